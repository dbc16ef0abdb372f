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

// Package scan implements the stateless IPv6 SYN-scan engine: target
// enumeration, port iteration, packet framing, raw-socket I/O and the
// send/receive pipeline that ties them together.
package scan

import (
	"encoding/binary"
)

// Fixed layout of a probe frame: Ethernet(14) + IPv6(40) + TCP(20), no
// options, no payload. One buffer is built once per sender and mutated
// in place for every probe; nothing in the hot path allocates.
const (
	EthHeaderLen  = 14
	IPv6HeaderLen = 40
	TCPHeaderLen  = 20
	FrameLen      = EthHeaderLen + IPv6HeaderLen + TCPHeaderLen

	ethOffset  = 0
	ipv6Offset = EthHeaderLen
	tcpOffset  = EthHeaderLen + IPv6HeaderLen

	etherTypeIPv6 = 0x86DD
	nextHeaderTCP = 6

	flagFIN = 0x01
	flagSYN = 0x02
	flagRST = 0x04
	flagACK = 0x10

	defaultTCPWindow = 1024
	defaultTCPSeq    = 0x01000000
)

// EthConfig is the process-wide Ethernet-layer configuration: set once
// before any send, read-only afterwards.
type EthConfig struct {
	SourceMAC [6]byte
	RouterMAC [6]byte // used as the destination (next-hop) MAC
}

// IPConfig is the process-wide IPv6-layer configuration.
type IPConfig struct {
	SourceAddr [16]byte
	TTL        uint8
}

// EthPrepare fills the Ethernet header of frame: destination (router) MAC,
// source MAC, and ethertype. frame must be at least EthHeaderLen bytes.
func EthPrepare(frame []byte, cfg EthConfig, ethertype uint16) {
	copy(frame[0:6], cfg.RouterMAC[:])
	copy(frame[6:12], cfg.SourceMAC[:])
	binary.BigEndian.PutUint16(frame[12:14], ethertype)
}

// EthDecode returns the ethertype of an Ethernet frame. frame must be at
// least EthHeaderLen bytes; callers are expected to have checked this.
func EthDecode(frame []byte) uint16 {
	return binary.BigEndian.Uint16(frame[12:14])
}

// IPv6Prepare fills the fields of the IPv6 header that never change between
// probes: version, traffic class, flow label (always 0), next header, hop
// limit and source address. ip must point at the start of the IPv6 header.
func IPv6Prepare(ip []byte, cfg IPConfig, nextHeader uint8) {
	binary.BigEndian.PutUint32(ip[0:4], 6<<28) // version=6, traffic class=0, flow label=0
	ip[6] = nextHeader
	ip[7] = cfg.TTL
	copy(ip[8:24], cfg.SourceAddr[:])
}

// IPv6Modify updates the per-probe fields of the IPv6 header: payload
// length and destination address.
func IPv6Modify(ip []byte, payloadLen uint16, dst [16]byte) {
	binary.BigEndian.PutUint16(ip[4:6], payloadLen)
	copy(ip[24:40], dst[:])
}

// IPv6Decode returns the next-header value, payload length, and source and
// destination address views (sub-slices of ip, not copies) of an IPv6
// header.
func IPv6Decode(ip []byte) (nextHeader uint8, payloadLen uint16, src, dst []byte) {
	payloadLen = binary.BigEndian.Uint16(ip[4:6])
	nextHeader = ip[6]
	src = ip[8:24]
	dst = ip[24:40]

	return
}

// MakeSyn fills a TCP header as a bare SYN segment: ports, a fixed sequence
// number (the same for every probe), data offset 5 (no options), the SYN
// flag only, a fixed window, and a zero urgent pointer. The checksum field
// is left zero; Checksum fills it afterwards.
func MakeSyn(tcp []byte, dstPort, srcPort uint16) {
	binary.BigEndian.PutUint16(tcp[0:2], srcPort)
	binary.BigEndian.PutUint16(tcp[2:4], dstPort)
	binary.BigEndian.PutUint32(tcp[4:8], defaultTCPSeq)
	binary.BigEndian.PutUint32(tcp[8:12], 0)
	tcp[12] = 5 << 4 // data offset = 5 32-bit words, no options
	tcp[13] = flagSYN
	binary.BigEndian.PutUint16(tcp[14:16], defaultTCPWindow)
	binary.BigEndian.PutUint16(tcp[16:18], 0) // checksum, filled by Checksum
	binary.BigEndian.PutUint16(tcp[18:20], 0) // urgent pointer
}

// TCPDecode returns the source and destination ports of a TCP header.
func TCPDecode(tcp []byte) (srcPort, dstPort uint16) {
	srcPort = binary.BigEndian.Uint16(tcp[0:2])
	dstPort = binary.BigEndian.Uint16(tcp[2:4])

	return
}

// TCPSeqAck returns the sequence and acknowledgement numbers of a TCP
// header.
func TCPSeqAck(tcp []byte) (seq, ack uint32) {
	seq = binary.BigEndian.Uint32(tcp[4:8])
	ack = binary.BigEndian.Uint32(tcp[8:12])

	return
}

// TCPDataOffset returns the TCP header length in bytes, as declared by the
// data-offset field (upper nibble of byte 12, counted in 32-bit words).
func TCPDataOffset(tcp []byte) int {
	return int(tcp[12]>>4) * 4
}

// MakeAck fills tcp as an ACK segment replying to a received SYN|ACK: our
// new sequence number is whatever the peer just acknowledged (their
// AckNumber), and our ack number is one past their sequence number. Because
// both values come straight out of the packet being replied to, no
// per-probe state needs to be retained between the SYN and this ACK.
// payload may be empty; when non-empty the PSH flag is also set. Returns
// the total segment length (header plus payload).
func MakeAck(tcp []byte, dstPort, srcPort uint16, theirSeq, theirAck uint32, payload []byte) int {
	binary.BigEndian.PutUint16(tcp[0:2], srcPort)
	binary.BigEndian.PutUint16(tcp[2:4], dstPort)
	binary.BigEndian.PutUint32(tcp[4:8], theirAck)
	binary.BigEndian.PutUint32(tcp[8:12], theirSeq+1)
	tcp[12] = 5 << 4

	if len(payload) > 0 {
		tcp[13] = flagACK | 0x08 // ACK + PSH
	} else {
		tcp[13] = flagACK
	}

	binary.BigEndian.PutUint16(tcp[14:16], defaultTCPWindow)
	binary.BigEndian.PutUint16(tcp[16:18], 0)
	binary.BigEndian.PutUint16(tcp[18:20], 0)

	n := copy(tcp[TCPHeaderLen:], payload)

	return TCPHeaderLen + n
}

func tcpFlags(tcp []byte) byte { return tcp[13] }

func hasFlags(tcp []byte, want byte) bool {
	return tcpFlags(tcp)&want == want
}

// IsSYNACK reports whether both SYN and ACK are set.
func IsSYNACK(tcp []byte) bool { return hasFlags(tcp, flagSYN|flagACK) }

// IsRSTACK reports whether both RST and ACK are set.
func IsRSTACK(tcp []byte) bool { return hasFlags(tcp, flagRST|flagACK) }

// Checksum computes the IPv6 pseudo-header TCP checksum over tcp (header
// plus any payload) and writes it into tcp's checksum field. The checksum
// field must be zero when this is called; Checksum does not clear it
// itself so callers can tell a freshly-built header from a stale one.
func Checksum(ip, tcp []byte) {
	_, _, src, dst := IPv6Decode(ip)

	var sum uint32

	sum += pseudoHeaderSum(src, dst, uint32(len(tcp)), nextHeaderTCP)
	sum += sumBytes(tcp)

	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}

	binary.BigEndian.PutUint16(tcp[16:18], ^uint16(sum))
}

func pseudoHeaderSum(src, dst []byte, length uint32, nextHeader uint8) uint32 {
	var sum uint32

	sum += sumBytes(src)
	sum += sumBytes(dst)
	sum += length >> 16
	sum += length & 0xffff
	sum += uint32(nextHeader)

	return sum
}

func sumBytes(b []byte) uint32 {
	var sum uint32

	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i:]))
	}

	if len(b)%2 != 0 {
		sum += uint32(b[len(b)-1]) << 8
	}

	return sum
}
