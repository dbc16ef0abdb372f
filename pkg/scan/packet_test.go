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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(t *testing.T) []byte {
	t.Helper()

	buf := make([]byte, FrameLen)

	eth := EthConfig{SourceMAC: [6]byte{1, 2, 3, 4, 5, 6}, RouterMAC: [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}}
	ip := IPConfig{SourceAddr: [16]byte{0x20, 0x01, 0x0d, 0xb8}, TTL: 64}

	EthPrepare(buf[ethOffset:], eth, etherTypeIPv6)
	IPv6Prepare(buf[ipv6Offset:], ip, nextHeaderTCP)
	IPv6Modify(buf[ipv6Offset:], TCPHeaderLen, [16]byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1})
	MakeSyn(buf[tcpOffset:], 443, 4096)
	Checksum(buf[ipv6Offset:], buf[tcpOffset:])

	return buf
}

func TestEthPrepareAndDecode(t *testing.T) {
	buf := testFrame(t)
	assert.Equal(t, uint16(etherTypeIPv6), EthDecode(buf))
}

func TestMakeSynRoundTripsPorts(t *testing.T) {
	buf := testFrame(t)

	srcPort, dstPort := TCPDecode(buf[tcpOffset:])
	assert.Equal(t, uint16(4096), srcPort)
	assert.Equal(t, uint16(443), dstPort)
}

func TestMakeSynSetsOnlySYNFlag(t *testing.T) {
	buf := testFrame(t)
	assert.True(t, hasFlags(buf[tcpOffset:], flagSYN))
	assert.False(t, hasFlags(buf[tcpOffset:], flagACK))
	assert.False(t, hasFlags(buf[tcpOffset:], flagRST))
}

func TestChecksumIsDeterministic(t *testing.T) {
	a := testFrame(t)
	b := testFrame(t)

	// Zero the sequence number and the checksum field, then recompute the
	// checksum of both frames from identical inputs.
	for _, buf := range [][]byte{a, b} {
		buf[tcpOffset+4] = 0
		buf[tcpOffset+5] = 0
		buf[tcpOffset+6] = 0
		buf[tcpOffset+7] = 0
		buf[tcpOffset+16] = 0
		buf[tcpOffset+17] = 0
		Checksum(a[ipv6Offset:], buf[tcpOffset:])
	}

	assert.Equal(t, a[tcpOffset+16:tcpOffset+18], b[tcpOffset+16:tcpOffset+18])
}

func TestIsSYNACKAndIsRSTACK(t *testing.T) {
	buf := testFrame(t)

	tcp := buf[tcpOffset:]
	tcp[13] = flagSYN | flagACK
	assert.True(t, IsSYNACK(tcp))
	assert.False(t, IsRSTACK(tcp))

	tcp[13] = flagRST | flagACK
	assert.False(t, IsSYNACK(tcp))
	assert.True(t, IsRSTACK(tcp))
}

func TestMakeAckDerivesNumbersFromReply(t *testing.T) {
	synack := make([]byte, TCPHeaderLen)
	MakeSyn(synack, 4096, 443) // pretend this is the server's reply framing
	// Mark it as a SYN|ACK; theirSeq and theirAck below stand in for its
	// sequence and acknowledgement numbers.
	synack[13] = flagSYN | flagACK

	theirSeq, theirAck := uint32(1000), uint32(5000)
	ack := make([]byte, TCPHeaderLen+4)
	n := MakeAck(ack, 443, 4096, theirSeq, theirAck, []byte("GET\n"))

	require.Equal(t, TCPHeaderLen+4, n)

	gotSeq, gotAck := TCPSeqAck(ack)
	assert.Equal(t, theirAck, gotSeq)
	assert.Equal(t, theirSeq+1, gotAck)
	assert.True(t, hasFlags(ack, flagACK))
}
