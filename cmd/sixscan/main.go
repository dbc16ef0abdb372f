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

// sixscan is a stateless IPv6 TCP SYN port scanner: it crafts raw SYN
// probes against a target specification at a bounded rate and classifies
// the open/closed state of each port purely from the flags observed on the
// response, never completing a TCP handshake.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/carverauto/sixscan/pkg/logger"
	"github.com/carverauto/sixscan/pkg/netutil"
	"github.com/carverauto/sixscan/pkg/output"
	"github.com/carverauto/sixscan/pkg/scan"
)

var (
	randomizeHosts = flag.Bool("randomize-hosts", true, "Randomize order of hosts")
	echoHosts      = flag.Bool("echo-hosts", false, "Print all hosts to be scanned to stdout and exit")
	maxRate        = flag.Uint("max-rate", 0, "Send no more than <n> packets per second (0 = unlimited)")
	sourcePortFlag = flag.Int("source-port", -1, "Use specified source port for scanning (defaults to random ephemeral)")
	ifaceName      = flag.String("interface", "", "Use <if> for capturing and sending packets (defaults to first usable IPv6 interface)")
	sourceMACFlag  = flag.String("source-mac", "", "Set Ethernet layer source to <mac> (defaults to the interface's own MAC)")
	routerMACFlag  = flag.String("router-mac", "", "Set Ethernet layer destination to <mac> (defaults to the resolved default gateway)")
	sourceIPFlag   = flag.String("source-ip", "", "Use specified source IP for scanning (defaults to the interface's global IPv6 address)")
	ttl            = flag.Uint("ttl", 64, "Set Time-To-Live of sent packets to <n>")
	portsFlag      = flag.String("p", "-", `Only scan specified ports ("-" is short for 1-65535)`)
	outputFormat   = flag.String("output-format", "list", "Set output format to list/json/binary")
	outputFile     = flag.String("o", "", "Set output file (defaults to stdout)")
	banner         = flag.Bool("banner", false, "Attempt to grab a service banner from open ports")
	quiet          = flag.Bool("quiet", false, "Suppress the periodic packets/sec counter")
	logLevel       = flag.String("log-level", "", "Override the structured logger's level (trace/debug/info/warn/error)")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	logCfg := logger.DefaultConfig()
	if *logLevel != "" {
		logCfg.Level = *logLevel
	}

	if err := logger.Init(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log := logger.New()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "One target specification required")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(flag.Arg(0)); err != nil {
		log.Error().Err(err).Msg("scan failed")
		os.Exit(1)
	}
}

func run(tspec string) error {
	log := logger.New()

	specs, err := loadTargetSpecs(tspec)
	if err != nil {
		return fmt.Errorf("parse target specification: %w", err)
	}

	ports, err := scan.ParsePorts(*portsFlag)
	if err != nil {
		return fmt.Errorf("parse port specification: %w", err)
	}

	targets := scan.NewTargetGenerator()
	defer targets.Close()

	targets.SetRandomized(*randomizeHosts)
	for _, spec := range specs {
		targets.Add(spec)
	}

	if *echoHosts {
		return echoTargets(targets)
	}

	iface, localAddr, err := scan.ResolveInterface(*ifaceName)
	if err != nil {
		return fmt.Errorf("resolve interface: %w", err)
	}

	sourceAddr := localAddr
	if *sourceIPFlag != "" {
		sourceAddr = net.ParseIP(*sourceIPFlag)
		if sourceAddr == nil || sourceAddr.To16() == nil {
			return fmt.Errorf("--source-ip: not a valid IPv6 address: %s", *sourceIPFlag)
		}
	}

	sourceMAC, err := resolveSourceMAC(iface)
	if err != nil {
		return fmt.Errorf("resolve source mac: %w", err)
	}

	routerMAC, err := resolveRouterMAC(iface)
	if err != nil {
		return fmt.Errorf("resolve router mac: %w", err)
	}

	if *ttl < 1 || *ttl > 255 {
		return fmt.Errorf("--ttl must be in range 1-255, got %d", *ttl)
	}

	if *sourcePortFlag != -1 && (*sourcePortFlag < 1 || *sourcePortFlag > 65535) {
		return fmt.Errorf("--source-port must be in range 1-65535, got %d", *sourcePortFlag)
	}

	if len(ports) == 0 {
		return scan.ErrEmptyPortSpec
	}

	filterPort, portPinned := receiveFilterPort(*sourcePortFlag)

	sock, err := scan.OpenRawSocket(iface.Name, addrArray(sourceAddr), filterPort, portPinned)
	if err != nil {
		return fmt.Errorf("open raw socket: %w", err)
	}
	defer sock.Close()

	sink, err := newSink(*outputFormat, *outputFile)
	if err != nil {
		return fmt.Errorf("open output sink: %w", err)
	}

	var bannerModule scan.BannerModule
	if *banner {
		bannerModule = scan.NewDefaultBannerModule()
	}

	cfg := scan.Config{
		Eth: scan.EthConfig{
			SourceMAC: macArray(sourceMAC),
			RouterMAC: macArray(routerMAC),
		},
		IP: scan.IPConfig{
			SourceAddr: addrArray(sourceAddr),
			TTL:        uint8(*ttl),
		},
		SourcePort: *sourcePortFlag,
		Ports:      ports,
		MaxRate:    uint32(*maxRate),
		Quiet:      *quiet,
		Banner:     bannerModule,
	}

	log.Info().
		Str("interface", iface.Name).
		Str("source_addr", sourceAddr.String()).
		Int("ports", len(ports)).
		Bool("randomized", *randomizeHosts).
		Msg("starting scan")

	engine := scan.NewEngine(cfg, sock, targets, sink, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("received signal, stopping scan")
		cancel()
	}()

	return engine.Run(ctx)
}

// loadTargetSpecs parses tspec, handling the "@path" form that loads
// multiple specifications, one per line, from a file.
func loadTargetSpecs(tspec string) ([]scan.TargetSpec, error) {
	if !strings.HasPrefix(tspec, "@") {
		spec, err := scan.ParseTargetSpec(tspec)
		if err != nil {
			return nil, err
		}

		return []scan.TargetSpec{spec}, nil
	}

	path := tspec[1:]

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open target spec file %s: %w", path, err)
	}
	defer f.Close()

	var specs []scan.TargetSpec

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		spec, err := scan.ParseTargetSpec(line)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		specs = append(specs, spec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read target spec file %s: %w", path, err)
	}

	if len(specs) == 0 {
		return nil, scan.ErrEmptyTargetSpec
	}

	return specs, nil
}

func echoTargets(targets *scan.TargetGenerator) error {
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	for {
		addr, ok := targets.Next()
		if !ok {
			break
		}

		if _, err := fmt.Fprintln(w, net.IP(addr[:]).String()); err != nil {
			return err
		}
	}

	return nil
}

func resolveSourceMAC(iface *net.Interface) (net.HardwareAddr, error) {
	if *sourceMACFlag != "" {
		return net.ParseMAC(*sourceMACFlag)
	}

	return netutil.LocalMAC(iface)
}

func resolveRouterMAC(iface *net.Interface) (net.HardwareAddr, error) {
	if *routerMACFlag != "" {
		return net.ParseMAC(*routerMACFlag)
	}

	gw, err := netutil.DefaultGateway(iface)
	if err != nil {
		return nil, err
	}

	return netutil.GatewayMAC(iface, gw)
}

// receiveFilterPort reports the TCP destination port the BPF receive filter
// should require, and whether it should require one at all. A reply's TCP
// destination port is always our own source port, never the scanned port:
// when a source port is pinned on the command line every reply carries it,
// so the filter can require it; when the source port is a fresh ephemeral
// per probe there is nothing fixed to match and the port term is omitted,
// mirroring rawsock_setfilter's DSTPORT flag being set only when a source
// port was pinned.
func receiveFilterPort(sourcePort int) (port uint16, pinned bool) {
	if sourcePort < 0 {
		return 0, false
	}

	return uint16(sourcePort), true
}

func newSink(format, path string) (output.Sink, error) {
	w := os.Stdout

	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}

		w = f
	}

	return output.New(output.Format(format), w)
}

func macArray(mac net.HardwareAddr) [6]byte {
	var out [6]byte
	copy(out[:], mac)

	return out
}

func addrArray(ip net.IP) [16]byte {
	var out [16]byte
	copy(out[:], ip.To16())

	return out
}

func usage() {
	fmt.Fprintln(os.Stderr, "sixscan is an IPv6 network scanner aimed at scanning lots of hosts in little time.")
	fmt.Fprintln(os.Stderr, "Usage: sixscan [options] <target specification>")
	fmt.Fprintln(os.Stderr, "Options:")
	flag.PrintDefaults()
	fmt.Fprintln(os.Stderr, "Target specification:")
	fmt.Fprintln(os.Stderr, "  A target specification is basically just a fancy netmask.")
	fmt.Fprintln(os.Stderr, "  Target specs come in three shapes:")
	fmt.Fprintln(os.Stderr, "    2001:db8::/64 (classic subnet notation)")
	fmt.Fprintln(os.Stderr, "      You can even omit the prefix length (it defaults to 128).")
	fmt.Fprintln(os.Stderr, "    2001:db8::1/32-48 (subnet range notation)")
	fmt.Fprintln(os.Stderr, "      The resulting netmask clears bits [32,48) and keeps the rest set.")
	fmt.Fprintln(os.Stderr, "    2001:db8::x (wildcard nibble notation)")
	fmt.Fprintln(os.Stderr, "      Each x is a wildcard nibble, e.g. 2001:db8::0 .. 2001:db8::f.")
	fmt.Fprintln(os.Stderr, "  Only one target specification may be given on the command line;")
	fmt.Fprintln(os.Stderr, "  to scan several, save them one per line and pass @/path/to/file.txt.")
}
