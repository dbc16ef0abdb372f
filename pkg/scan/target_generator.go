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

import (
	"crypto/rand"
	"encoding/binary"
)

// targetState is the per-spec enumeration cursor: how far into the spec's
// 2^bits address space the generator has walked.
type targetState struct {
	spec  TargetSpec
	bits  uint
	total u128
	i     u128
	fei   feistel
}

// TargetGenerator enumerates the IPv6 addresses covered by a list of
// TargetSpecs, in linear or randomized order, with O(1) memory per spec
// regardless of the space size. It is accessed only by the sender loop; it
// is not safe for concurrent use.
type TargetGenerator struct {
	randomized bool
	key        uint64
	specs      []targetState
	cur        int
}

// NewTargetGenerator acquires a fresh generator. Pair with Close once the
// scan is done; this mirrors the scoped init/fini lifecycle of the
// underlying raw-socket and capture resources even though the generator
// itself holds no OS resource.
func NewTargetGenerator() *TargetGenerator {
	return &TargetGenerator{key: randomKey()}
}

// Close releases the generator. It is always safe to call.
func (g *TargetGenerator) Close() {}

// SetRandomized toggles randomized vs linear enumeration order. Must be
// called before Add. Each spec's Feistel permutation is built by Add from
// the generator's key; the randomized flag itself is read on every Next and
// so applies to all specs, including those already added.
func (g *TargetGenerator) SetRandomized(randomized bool) {
	g.randomized = randomized
}

// Add appends a spec to the generator. May be called multiple times; specs
// are drained in insertion order.
func (g *TargetGenerator) Add(spec TargetSpec) {
	spec = spec.normalize()
	bits := spec.VariableBits()

	g.specs = append(g.specs, targetState{
		spec:  spec,
		bits:  bits,
		total: u128Pow2(bits),
		fei:   newFeistel(bits, g.key),
	})
}

// Next produces the next address, or ok=false once every spec is exhausted.
func (g *TargetGenerator) Next() (addr [16]byte, ok bool) {
	for g.cur < len(g.specs) {
		st := &g.specs[g.cur]

		if st.i.less(st.total) {
			idx := st.i
			st.i = st.i.add1()

			if g.randomized {
				idx = st.fei.permute(idx)
			}

			return scatterBits(st.spec.Base, st.spec.Mask, idx), true
		}

		g.cur++
	}

	return [16]byte{}, false
}

// scatterBits writes the bits of i into the unmasked (variable) positions of
// base, scanning from the least-significant bit of the address upward, and
// leaves every masked (fixed) position untouched.
func scatterBits(base, mask [16]byte, i u128) [16]byte {
	addr := base

	var bitIndex uint

	for bytePos := 15; bytePos >= 0; bytePos-- {
		for bit := uint(0); bit < 8; bit++ {
			bitVal := byte(1) << bit
			if mask[bytePos]&bitVal != 0 {
				continue // fixed position, keep base
			}

			var v byte
			if bitIndex < 64 {
				v = byte(i.lo>>bitIndex) & 1
			} else {
				v = byte(i.hi>>(bitIndex-64)) & 1
			}

			if v == 1 {
				addr[bytePos] |= bitVal
			} else {
				addr[bytePos] &^= bitVal
			}

			bitIndex++
		}
	}

	return addr
}

func randomKey() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is exceptionally rare (kernel RNG unavailable);
		// fall back to a fixed key rather than failing generator
		// construction over a cosmetic property of scan order.
		return 0x9E3779B97F4A7C15
	}

	return binary.BigEndian.Uint64(b[:])
}
