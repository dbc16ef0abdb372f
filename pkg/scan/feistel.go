/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package scan

// feistel is a keyed, stateless bijection of [0, 2^bits) onto itself. It
// gives the target generator a pseudo-random enumeration order with O(1)
// memory and a guaranteed full permutation: no repeats, no skipped values.
//
// The construction is an unbalanced Feistel network (Black & Rogaway style):
// the index is split into a left half and a right half whose widths stay
// fixed across rounds, and each round XORs one half with a keyed hash of the
// other. Because every round only transforms the half it updates with a
// value that doesn't depend on that half, each round is trivially invertible
// and the whole network is a bijection regardless of how uneven the two
// halves are.
type feistel struct {
	leftBits, rightBits uint
	rounds              int
	seed                uint64
}

const feistelRounds = 4

func newFeistel(bits uint, key uint64) feistel {
	// ceil(bits/2) and floor(bits/2), per the spec's odd-bits convention.
	leftBits := (bits + 1) / 2
	rightBits := bits / 2

	return feistel{leftBits: leftBits, rightBits: rightBits, rounds: feistelRounds, seed: key}
}

// permute maps i, an index in [0, 2^bits), to another index in the same
// range via the keyed permutation. It never allocates.
func (f feistel) permute(i u128) u128 {
	left := i.extractBits(f.rightBits, f.leftBits)
	right := i.extractBits(0, f.rightBits)

	for r := 0; r < f.rounds; r++ {
		if r%2 == 0 {
			left = (left ^ feistelRound(r, right, f.seed)) & mask64(f.leftBits)
		} else {
			right = (right ^ feistelRound(r, left, f.seed)) & mask64(f.rightBits)
		}
	}

	return composeBits(f.rightBits, f.leftBits, left).or(composeBits(0, f.rightBits, right))
}

// feistelRound is the round function: a cheap avalanche hash of the round
// number, the untouched half, and the generator's key. It does not need to
// be cryptographically strong, only to mix well enough to avoid visible
// patterns in scan order.
func feistelRound(round int, input, seed uint64) uint64 {
	h := input ^ seed ^ (uint64(round+1) * 0x9E3779B97F4A7C15)
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33

	return h
}
