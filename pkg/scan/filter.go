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
	"encoding/binary"

	"golang.org/x/net/bpf"
)

// buildReceiveFilter assembles a classic BPF program that accepts only
// Ethernet/IPv6/TCP frames addressed to our own endpoint: IPv6 destination
// address equal to localAddr always, and TCP destination port equal to
// localPort only when portPinned is set. Replies to an unpinned (random
// ephemeral) source port carry whatever port the sender picked, so there is
// nothing fixed to match against the wire in that case and the port term is
// omitted — mirroring rawsock_setfilter(fflags, IP_TYPE_TCP, source_addr,
// source_port) in the original, where the DSTPORT flag is only set when a
// source port was pinned on the command line. Any other frame is rejected.
func buildReceiveFilter(localAddr [16]byte, localPort uint16, portPinned bool) ([]bpf.RawInstruction, error) {
	type check struct {
		load bpf.LoadAbsolute
		val  uint32
	}

	checks := []check{
		{bpf.LoadAbsolute{Off: 12, Size: 2}, etherTypeIPv6},
		{bpf.LoadAbsolute{Off: ipv6Offset + 6, Size: 1}, nextHeaderTCP},
		{bpf.LoadAbsolute{Off: ipv6Offset + 24, Size: 4}, binary.BigEndian.Uint32(localAddr[0:4])},
		{bpf.LoadAbsolute{Off: ipv6Offset + 28, Size: 4}, binary.BigEndian.Uint32(localAddr[4:8])},
		{bpf.LoadAbsolute{Off: ipv6Offset + 32, Size: 4}, binary.BigEndian.Uint32(localAddr[8:12])},
		{bpf.LoadAbsolute{Off: ipv6Offset + 36, Size: 4}, binary.BigEndian.Uint32(localAddr[12:16])},
	}

	if portPinned {
		checks = append(checks, check{bpf.LoadAbsolute{Off: tcpOffset + 2, Size: 2}, uint32(localPort)})
	}

	prog := make([]bpf.Instruction, 0, len(checks)*2+2)

	for i, c := range checks {
		skipFalse := uint8((len(checks)-i-1)*2 + 1)
		prog = append(prog, c.load, bpf.JumpIf{Cond: bpf.JumpEqual, Val: c.val, SkipFalse: skipFalse})
	}

	prog = append(prog,
		bpf.RetConstant{Val: 0xffff}, // accept, snaplen-sized
		bpf.RetConstant{Val: 0},      // reject
	)

	return bpf.Assemble(prog)
}
