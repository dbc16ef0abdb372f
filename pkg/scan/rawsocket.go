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
	"fmt"
	"net"
	"time"

	"github.com/gopacket/gopacket/pcap"
)

const (
	snapLen            = 128
	pcapReadTimeout     = 50 * time.Millisecond
	pcapBufferSizeBytes = 4 << 20
)

// RawSocket is the scoped handle the engine sends probes through and reads
// replies from. It wraps a single link-layer capture/injection device; one
// RawSocket serves both the sender and the receiver goroutine, mirroring a
// single fi6s-style fd shared by both threads.
type RawSocket interface {
	// Send transmits frame verbatim (already fully built by the caller).
	Send(frame []byte) error
	// Recv blocks for at most its internal read timeout and returns the next
	// captured frame, its capture timestamp, and whether anything was read.
	Recv() (frame []byte, ts time.Time, ok bool, err error)
	// Close releases the underlying capture/injection device. Idempotent.
	Close() error
}

// pcapSocket is the gopacket/pcap-backed RawSocket used on every platform
// that ships libpcap. It opens one live handle for both injection and
// capture, matching how a single AF_PACKET socket is traditionally used for
// stateless scanning.
type pcapSocket struct {
	handle *pcap.Handle
}

// OpenRawSocket acquires a live capture/injection handle on iface and
// installs a receive-side BPF filter that passes only IPv6/TCP frames
// destined for our own endpoint: IPv6 destination address localAddr, and (if
// portPinned) TCP destination port localPort. Call Close once the scan is
// done; this is the init()/fini() pairing the rest of the scan package
// follows for every scoped OS resource.
func OpenRawSocket(iface string, localAddr [16]byte, localPort uint16, portPinned bool) (RawSocket, error) {
	handle, err := pcap.OpenLive(iface, snapLen, true, pcapReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("open pcap handle on %s: %w", iface, err)
	}

	if err := handle.SetDirection(pcap.DirectionIn); err != nil {
		handle.Close()
		return nil, fmt.Errorf("set pcap capture direction: %w", err)
	}

	insns, err := buildReceiveFilter(localAddr, localPort, portPinned)
	if err != nil {
		handle.Close()
		return nil, fmt.Errorf("assemble bpf filter: %w", err)
	}

	if err := handle.SetBPFInstructionFilter(insns); err != nil {
		handle.Close()
		return nil, fmt.Errorf("install bpf filter: %w", err)
	}

	return &pcapSocket{handle: handle}, nil
}

func (s *pcapSocket) Send(frame []byte) error {
	return s.handle.WritePacketData(frame)
}

func (s *pcapSocket) Recv() ([]byte, time.Time, bool, error) {
	data, ci, err := s.handle.ReadPacketData()
	if err != nil {
		if err == pcap.NextErrorTimeoutExpired {
			return nil, time.Time{}, false, nil
		}

		return nil, time.Time{}, false, err
	}

	return data, ci.Timestamp, true, nil
}

func (s *pcapSocket) Close() error {
	s.handle.Close()
	return nil
}

// ResolveInterface picks the interface to scan from: the given name if
// non-empty, otherwise the first up, non-loopback interface carrying a
// global unicast IPv6 address (fi6s's "auto-detect" default).
func ResolveInterface(name string) (*net.Interface, net.IP, error) {
	if name != "" {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %w", ErrInterfaceNotFound, name, err)
		}

		addr, err := interfaceIPv6(iface)
		if err != nil {
			return nil, nil, err
		}

		return iface, addr, nil
	}

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, nil, fmt.Errorf("list interfaces: %w", err)
	}

	for i := range ifaces {
		iface := &ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		if addr, err := interfaceIPv6(iface); err == nil {
			return iface, addr, nil
		}
	}

	return nil, nil, ErrNoIPv6Address
}

func interfaceIPv6(iface *net.Interface) (net.IP, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("addresses for %s: %w", iface.Name, err)
	}

	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}

		ip := ipnet.IP
		if ip.To4() != nil || !ip.IsGlobalUnicast() {
			continue
		}

		return ip, nil
	}

	return nil, ErrNoIPv6Address
}

// GatewayResolver is the signature of a function that resolves the
// link-layer address the scanner must frame its outbound probes to: the
// neighbor (router) that forwards traffic off this interface. Nothing in
// this package calls one; cmd/sixscan resolves the router MAC directly
// through the netutil package.
type GatewayResolver func(iface *net.Interface) (net.HardwareAddr, error)
