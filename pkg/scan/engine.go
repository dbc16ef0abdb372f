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
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/sixscan/pkg/logger"
	"github.com/carverauto/sixscan/pkg/models"
	"github.com/carverauto/sixscan/pkg/output"
)

const (
	// sourcePortRandom tells the sender to pick a fresh ephemeral source
	// port for every probe instead of a pinned one.
	sourcePortRandom = -1

	ephemeralPortFloor = 4096
	ephemeralPortMask  = 0xffff

	rateLimiterPoll = 1 * time.Millisecond
	statsInterval   = 1 * time.Second

	// defaultGracePeriod is how long the receiver keeps classifying
	// in-flight replies after the sender has exhausted its targets.
	defaultGracePeriod = 3 * time.Second

	// bannerGrabTimeout bounds how long an open result waits for its banner
	// query to be answered before being emitted without one.
	bannerGrabTimeout = 2 * time.Second
)

// pendingBanner holds an already-classified open Result while its banner
// session (ACK + query, waiting on a data reply) is outstanding.
type pendingBanner struct {
	result   models.Result
	deadline time.Time
}

// Config is the explicit, read-only-after-construction scan configuration
// threaded into the sender and receiver at construction time. Every field
// here corresponds to process-wide global state in the reference scanner;
// bundling it into a value makes the engine safe to construct more than
// once in a single process (tests build many).
type Config struct {
	Eth EthConfig
	IP  IPConfig

	// SourcePort pins every probe's TCP source port, or sourcePortRandom to
	// draw a fresh ephemeral port per probe.
	SourcePort int
	Ports      Ports

	// MaxRate is the target upper bound on packets per second, enforced
	// over each ~1-second window. Zero disables rate limiting.
	MaxRate uint32

	Quiet       bool
	GracePeriod time.Duration

	// Banner is consulted by the receiver after classifying a response as
	// open; nil disables banner grabbing entirely.
	Banner BannerModule
}

func (c Config) gracePeriod() time.Duration {
	if c.GracePeriod > 0 {
		return c.GracePeriod
	}

	return defaultGracePeriod
}

// Engine owns one sender, one receiver and a stats ticker, wired to a single
// RawSocket and TargetGenerator, exactly the composition the reference
// scan_main establishes before handing off to its two threads.
type Engine struct {
	cfg     Config
	sock    RawSocket
	targets *TargetGenerator
	sink    output.Sink
	log     logger.Logger

	pktsSent atomic.Uint32
	pktsRecv atomic.Uint32

	// pending is receiver-goroutine-local, like the capture buffer itself;
	// nothing else ever touches it, so it needs no lock.
	pending map[string]pendingBanner

	stopRecv chan struct{}
}

// NewEngine builds an Engine from already-open collaborators. The caller
// retains ownership of sock and targets and must Close them after Run
// returns, matching the "scoped acquisition, guaranteed release" lifecycle
// the raw socket and target generator both follow.
func NewEngine(cfg Config, sock RawSocket, targets *TargetGenerator, sink output.Sink, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Engine{
		cfg:      cfg,
		sock:     sock,
		targets:  targets,
		sink:     sink,
		log:      log,
		stopRecv: make(chan struct{}),
	}
}

// Run drives the scan to completion: starts the receiver and stats ticker,
// runs the sender to exhaustion on the calling goroutine, then keeps the
// receiver alive for the configured grace period before shutting it down.
// Run returns once every goroutine it started has exited.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.sink.Begin(); err != nil {
		return fmt.Errorf("engine: output begin: %w", err)
	}

	var wg sync.WaitGroup

	recvErr := make(chan error, 1)

	wg.Add(1)

	go func() {
		defer wg.Done()

		recvErr <- e.receiveLoop()
	}()

	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()

	wg.Add(1)

	go func() {
		defer wg.Done()

		e.statsLoop(statsCtx)
	}()

	e.sendLoop(ctx)

	grace := time.NewTimer(e.cfg.gracePeriod())
	defer grace.Stop()

	select {
	case <-grace.C:
	case <-ctx.Done():
	}

	close(e.stopRecv)
	stopStats()

	wg.Wait()

	var err error
	select {
	case err = <-recvErr:
	default:
	}

	if endErr := e.sink.End(); endErr != nil && err == nil {
		err = fmt.Errorf("engine: output end: %w", endErr)
	}

	return err
}

// sendLoop mirrors send_thread: one packet buffer prepared once, mutated per
// probe, transmitted until the target generator is exhausted.
func (e *Engine) sendLoop(ctx context.Context) {
	buf := make([]byte, FrameLen)

	EthPrepare(buf[ethOffset:], e.cfg.Eth, etherTypeIPv6)
	IPv6Prepare(buf[ipv6Offset:], e.cfg.IP, nextHeaderTCP)

	dst, ok := e.targets.Next()
	if !ok {
		return
	}

	IPv6Modify(buf[ipv6Offset:], TCPHeaderLen, dst)

	var it PortIter

	it.Begin(e.cfg.Ports)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		port := it.Next()
		if port == 0 {
			next, ok := e.targets.Next()
			if !ok {
				return
			}

			dst = next
			IPv6Modify(buf[ipv6Offset:], TCPHeaderLen, dst)
			it.Begin(nil)

			continue
		}

		srcPort := e.cfg.SourcePort
		if srcPort == sourcePortRandom {
			srcPort = randomEphemeralPort()
		}

		MakeSyn(buf[tcpOffset:], port, uint16(srcPort))
		Checksum(buf[ipv6Offset:], buf[tcpOffset:])

		if err := e.sock.Send(buf); err != nil {
			e.log.Warn().Err(err).Msg("transient send error")
			continue
		}

		e.rateLimit()
	}
}

// rateLimit implements the reference scanner's "park until the stats ticker
// resets the counter" pacing: increment pktsSent, and if that pushed us to
// or past the budget, busy-wait in coarse polls until statsLoop's next
// exchange-to-zero releases us.
func (e *Engine) rateLimit() {
	if e.cfg.MaxRate == 0 {
		e.pktsSent.Add(1)
		return
	}

	if prev := e.pktsSent.Add(1); prev >= e.cfg.MaxRate {
		for e.pktsSent.Load() != 0 {
			time.Sleep(rateLimiterPoll)
		}
	}
}

func randomEphemeralPort() int {
	return int(rand.Uint32()&ephemeralPortMask) | ephemeralPortFloor //nolint:gosec // not security sensitive, only needs to look unrelated across probes
}

// receiveLoop mirrors recv_thread: sniff, validate each layer, classify
// ACK&&(SYN||RST) frames, emit a Result. It exits on a fatal sniff error or
// once stopRecv is closed; on stopRecv it first emits every open result
// still waiting on a banner, without one.
func (e *Engine) receiveLoop() error {
	for {
		select {
		case <-e.stopRecv:
			for key, pb := range e.pending {
				delete(e.pending, key)

				if err := e.emit(pb.result); err != nil {
					e.log.Debug().Err(err).Msg("output record failed")
				}
			}

			return nil
		default:
		}

		frame, ts, ok, err := e.sock.Recv()
		if err != nil {
			e.log.Error().Err(err).Msg("fatal sniff error")
			return err
		}

		if !ok {
			e.expirePending()
			continue
		}

		e.pktsRecv.Add(1)

		if err := e.handleFrame(frame, ts); err != nil {
			e.log.Debug().Err(err).Int("len", len(frame)).Msg("packet decoding error")
		}

		e.expirePending()
	}
}

// handleFrame validates layering, then dispatches to classification (a
// SYN|ACK or RST|ACK response to one of our probes) or to banner-session
// completion (a plain ACK carrying data, matched against a pending probe by
// address and port pair).
func (e *Engine) handleFrame(frame []byte, ts time.Time) error {
	if len(frame) < EthHeaderLen+IPv6HeaderLen+TCPHeaderLen {
		return ErrShortFrame
	}

	if EthDecode(frame) != etherTypeIPv6 {
		return ErrNotIPv6
	}

	ip := frame[ipv6Offset:]

	nextHeader, _, _, _ := IPv6Decode(ip)
	if nextHeader != nextHeaderTCP {
		return ErrNotTCP
	}

	srcAddr := make(net.IP, 16)
	copy(srcAddr, ip[8:24])

	tcp := frame[tcpOffset:]

	hdrLen := TCPDataOffset(tcp)
	if hdrLen < TCPHeaderLen || len(tcp) < hdrLen {
		return ErrBadTCPHeaderLen
	}

	srcPort, dstPort := TCPDecode(tcp)

	switch {
	case hasFlags(tcp, flagACK|flagSYN):
		return e.classify(srcAddr, srcPort, dstPort, tcp, ts, models.StatusOpen)
	case hasFlags(tcp, flagACK|flagRST):
		return e.classify(srcAddr, srcPort, dstPort, tcp, ts, models.StatusClosed)
	case hasFlags(tcp, flagACK):
		e.completeBanner(srcAddr, srcPort, dstPort, tcp[hdrLen:])
		return nil
	default:
		return nil // other flag combinations are not classified
	}
}

// classify handles a SYN|ACK or RST|ACK reply. Closed results and open
// results with no registered banner query are emitted immediately. Open
// results whose port has a query are held pending until either the banner
// session completes or it times out.
func (e *Engine) classify(srcAddr net.IP, srcPort, dstPort uint16, tcp []byte, ts time.Time, status models.Status) error {
	result := models.Result{Timestamp: ts, Addr: srcAddr, Port: srcPort, Status: status}

	if status != models.StatusOpen || e.cfg.Banner == nil {
		return e.emit(result)
	}

	query := e.cfg.Banner.GetQuery(srcPort)
	if len(query) == 0 {
		return e.emit(result)
	}

	theirSeq, theirAck := TCPSeqAck(tcp)
	if err := e.sendBannerProbe(srcAddr, srcPort, dstPort, theirSeq, theirAck, query); err != nil {
		e.log.Debug().Err(err).Msg("banner probe send failed")
		return e.emit(result)
	}

	if e.pending == nil {
		e.pending = make(map[string]pendingBanner)
	}

	e.pending[bannerKey(srcAddr, srcPort, dstPort)] = pendingBanner{
		result:   result,
		deadline: time.Now().Add(bannerGrabTimeout),
	}

	return nil
}

// completeBanner matches a data-bearing ACK against a pending banner session
// and, if found, trims the payload and emits the held-back Result.
func (e *Engine) completeBanner(srcAddr net.IP, srcPort, dstPort uint16, payload []byte) {
	if len(payload) == 0 || e.pending == nil {
		return
	}

	key := bannerKey(srcAddr, srcPort, dstPort)

	pb, ok := e.pending[key]
	if !ok {
		return
	}

	delete(e.pending, key)

	pb.result.Banner = e.cfg.Banner.Postprocess(srcPort, payload)
	if err := e.emit(pb.result); err != nil {
		e.log.Debug().Err(err).Msg("output record failed")
	}
}

// expirePending flushes any banner session that never got a reply within
// bannerGrabTimeout, emitting the open result with no banner attached.
func (e *Engine) expirePending() {
	if len(e.pending) == 0 {
		return
	}

	now := time.Now()

	for key, pb := range e.pending {
		if now.Before(pb.deadline) {
			continue
		}

		delete(e.pending, key)

		if err := e.emit(pb.result); err != nil {
			e.log.Debug().Err(err).Msg("output record failed")
		}
	}
}

func (e *Engine) emit(result models.Result) error {
	if err := e.sink.Record(result); err != nil {
		return fmt.Errorf("engine: output record: %w", err)
	}

	return nil
}

// sendBannerProbe completes just enough of the handshake to read a banner:
// an ACK, optionally carrying the query payload, addressed back to the peer
// that sent the SYN|ACK. Both TCP sequence numbers are derived entirely from
// the packet being acknowledged (see MakeAck), so no per-probe state needs
// to have been retained since the SYN was sent.
func (e *Engine) sendBannerProbe(dstAddr net.IP, dstPort, srcPort uint16, theirSeq, theirAck uint32, query []byte) error {
	buf := make([]byte, FrameLen+len(query))

	EthPrepare(buf[ethOffset:], e.cfg.Eth, etherTypeIPv6)
	IPv6Prepare(buf[ipv6Offset:], e.cfg.IP, nextHeaderTCP)

	var dst [16]byte

	copy(dst[:], dstAddr.To16())

	segLen := MakeAck(buf[tcpOffset:], dstPort, srcPort, theirSeq, theirAck, query)
	IPv6Modify(buf[ipv6Offset:], uint16(segLen), dst)
	Checksum(buf[ipv6Offset:], buf[tcpOffset:tcpOffset+segLen])

	return e.sock.Send(buf[:tcpOffset+segLen])
}

func bannerKey(addr net.IP, port1, port2 uint16) string {
	return fmt.Sprintf("%s|%d|%d", addr.String(), port1, port2)
}

// statsLoop mirrors scan_main's 1Hz stats thread: every tick, atomically
// exchange both counters to zero (this is also what releases a parked
// sender) and, unless quiet, log the previous second's throughput.
func (e *Engine) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sent := e.pktsSent.Swap(0)
			recv := e.pktsRecv.Swap(0)

			if !e.cfg.Quiet {
				e.log.Info().Uint32("sent", sent).Uint32("recv", recv).Msg("scan progress")
			}
		}
	}
}
