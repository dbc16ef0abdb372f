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
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/sixscan/pkg/logger"
	"github.com/carverauto/sixscan/pkg/models"
)

func net16(addr [16]byte) net.IP {
	ip := make(net.IP, 16)
	copy(ip, addr[:])

	return ip
}

// fakeSocket is an in-memory RawSocket: Send just records what it was given,
// Recv replays a fixed queue of frames and then reports "nothing this
// cycle" forever, exactly like a live capture handle once probes stop
// arriving.
type fakeSocket struct {
	mu   sync.Mutex
	toRx [][]byte
	sent [][]byte
}

func (s *fakeSocket) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := append([]byte(nil), frame...)
	s.sent = append(s.sent, cp)

	return nil
}

func (s *fakeSocket) Recv() ([]byte, time.Time, bool, error) {
	s.mu.Lock()
	if len(s.toRx) > 0 {
		f := s.toRx[0]
		s.toRx = s.toRx[1:]
		s.mu.Unlock()

		return f, time.Now(), true, nil
	}
	s.mu.Unlock()

	time.Sleep(time.Millisecond)

	return nil, time.Time{}, false, nil
}

func (s *fakeSocket) Close() error { return nil }

// fakeSink records every Result handed to it, in order.
type fakeSink struct {
	mu      sync.Mutex
	records []models.Result
}

func (s *fakeSink) Begin() error { return nil }

func (s *fakeSink) Record(r models.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, r)

	return nil
}

func (s *fakeSink) End() error { return nil }

// buildReplyFrame hand-assembles a captured frame as if sniffed off the
// wire: IPv6 source is the scanned host, TCP flags are whatever the test
// scenario calls for.
func buildReplyFrame(srcAddr [16]byte, tcpSrcPort, tcpDstPort uint16, flags byte, payload []byte) []byte {
	buf := make([]byte, FrameLen+len(payload))

	eth := EthConfig{SourceMAC: [6]byte{1, 2, 3, 4, 5, 6}, RouterMAC: [6]byte{6, 5, 4, 3, 2, 1}}
	ipcfg := IPConfig{SourceAddr: srcAddr, TTL: 64}

	EthPrepare(buf[ethOffset:], eth, etherTypeIPv6)
	IPv6Prepare(buf[ipv6Offset:], ipcfg, nextHeaderTCP)
	IPv6Modify(buf[ipv6Offset:], uint16(TCPHeaderLen+len(payload)), [16]byte{})

	tcp := buf[tcpOffset:]
	binary.BigEndian.PutUint16(tcp[0:2], tcpSrcPort)
	binary.BigEndian.PutUint16(tcp[2:4], tcpDstPort)
	tcp[12] = 5 << 4
	tcp[13] = flags
	copy(tcp[TCPHeaderLen:], payload)

	Checksum(buf[ipv6Offset:], tcp[:TCPHeaderLen+len(payload)])

	return buf
}

func buildIPv4EtherFrame() []byte {
	buf := make([]byte, FrameLen)
	binary.BigEndian.PutUint16(buf[12:14], 0x0800)

	return buf
}

func runEngine(t *testing.T, sock *fakeSocket, cfg Config) (*fakeSink, *Engine) {
	t.Helper()

	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = 30 * time.Millisecond
	}

	targets := NewTargetGenerator()
	defer targets.Close()

	sink := &fakeSink{}
	eng := NewEngine(cfg, sock, targets, sink, logger.NewTestLogger())

	require.NoError(t, eng.Run(context.Background()))

	return sink, eng
}

func TestEngineClassifiesSynAckAsOpen(t *testing.T) {
	addr := [16]byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	sock := &fakeSocket{toRx: [][]byte{buildReplyFrame(addr, 80, 4096, flagSYN|flagACK, nil)}}

	sink, _ := runEngine(t, sock, Config{})

	require.Len(t, sink.records, 1)
	assert.Equal(t, models.StatusOpen, sink.records[0].Status)
	assert.Equal(t, uint16(80), sink.records[0].Port)
	assert.True(t, sink.records[0].Addr.Equal(net16(addr)))
}

func TestEngineClassifiesRstAckAsClosed(t *testing.T) {
	addr := [16]byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2}
	sock := &fakeSocket{toRx: [][]byte{buildReplyFrame(addr, 22, 4097, flagRST|flagACK, nil)}}

	sink, _ := runEngine(t, sock, Config{})

	require.Len(t, sink.records, 1)
	assert.Equal(t, models.StatusClosed, sink.records[0].Status)
}

func TestEngineDropsNonIPv6Frames(t *testing.T) {
	sock := &fakeSocket{toRx: [][]byte{buildIPv4EtherFrame()}}

	sink, eng := runEngine(t, sock, Config{})

	assert.Empty(t, sink.records)
	assert.GreaterOrEqual(t, eng.pktsRecv.Load(), uint32(1))
}

func TestEngineBannerSessionCompletesOnDataReply(t *testing.T) {
	addr := [16]byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 3}
	synack := buildReplyFrame(addr, 80, 4096, flagSYN|flagACK, nil)
	data := buildReplyFrame(addr, 80, 4096, flagACK, []byte("HTTP/1.0 200 OK\r\n"))

	sock := &fakeSocket{toRx: [][]byte{synack, data}}

	sink, _ := runEngine(t, sock, Config{Banner: NewDefaultBannerModule()})

	require.Len(t, sink.records, 1)
	assert.Equal(t, models.StatusOpen, sink.records[0].Status)
	assert.Contains(t, string(sink.records[0].Banner), "200 OK")
}

func TestEngineBannerSessionTimesOutWithoutReply(t *testing.T) {
	addr := [16]byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 4}
	synack := buildReplyFrame(addr, 80, 4096, flagSYN|flagACK, nil)

	sock := &fakeSocket{toRx: [][]byte{synack}}

	sink, _ := runEngine(t, sock, Config{Banner: NewDefaultBannerModule(), GracePeriod: bannerGrabTimeout + 200*time.Millisecond})

	require.Len(t, sink.records, 1)
	assert.Equal(t, models.StatusOpen, sink.records[0].Status)
	assert.Empty(t, sink.records[0].Banner)
}
