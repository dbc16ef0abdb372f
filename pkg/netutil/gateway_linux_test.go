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

//go:build linux

package netutil

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestDecodeHexIPv6RoundTripsKnownAddress(t *testing.T) {
	want := net.ParseIP("2001:0db8:0000:0000:0000:0000:0000:0001")

	got, err := decodeHexIPv6("20010db8000000000000000000000001")
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestDecodeHexIPv6RejectsWrongLength(t *testing.T) {
	_, err := decodeHexIPv6("2001")
	assert.Error(t, err)
}

func TestDecodeHexIPv6RejectsNonHex(t *testing.T) {
	_, err := decodeHexIPv6("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")
	assert.Error(t, err)
}

func TestBuildNeighRequestBodySetsFamilyAndIndex(t *testing.T) {
	body := buildNeighRequestBody(7)

	require.Len(t, body, 12)
	assert.Equal(t, byte(unix.AF_INET6), body[0])
	assert.Equal(t, uint32(7), binary.NativeEndian.Uint32(body[4:8]))
}

func buildNeighAttrs(mac net.HardwareAddr, addr net.IP) []byte {
	ndm := buildNeighRequestBody(1)

	var attrs []byte

	attrs = append(attrs, rtattr(unix.NDA_DST, addr.To16())...)
	attrs = append(attrs, rtattr(unix.NDA_LLADDR, mac)...)

	return append(ndm, attrs...)
}

func rtattr(attrType uint16, payload []byte) []byte {
	l := 4 + len(payload)
	buf := make([]byte, align4(l))
	binary.NativeEndian.PutUint16(buf[0:2], uint16(l))
	binary.NativeEndian.PutUint16(buf[2:4], attrType)
	copy(buf[4:], payload)

	return buf
}

func TestParseNeighAttrsExtractsMacAndAddr(t *testing.T) {
	mac := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	addr := net.ParseIP("fe80::1")

	data := buildNeighAttrs(mac, addr)

	gotMAC, gotAddr, ok := parseNeighAttrs(data)
	require.True(t, ok)
	assert.Equal(t, mac, gotMAC)
	assert.True(t, addr.Equal(gotAddr))
}

func TestParseNeighAttrsShortDataIsNotOK(t *testing.T) {
	_, _, ok := parseNeighAttrs([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestAlign4(t *testing.T) {
	assert.Equal(t, 0, align4(0))
	assert.Equal(t, 4, align4(1))
	assert.Equal(t, 4, align4(4))
	assert.Equal(t, 8, align4(5))
}
