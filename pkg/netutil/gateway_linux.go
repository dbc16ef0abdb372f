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
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

// DefaultGateway reads /proc/net/ipv6_route for the lowest-metric default
// route (destination ::/0) bound to iface and returns its next-hop address.
// Linux exposes the full routing table this way; parsing it is far cheaper
// than opening a second netlink socket just to ask the kernel the same
// question RTM_GETROUTE would answer.
func DefaultGateway(iface *net.Interface) (net.IP, error) {
	f, err := os.Open("/proc/net/ipv6_route")
	if err != nil {
		return nil, fmt.Errorf("netutil: open ipv6_route: %w", err)
	}
	defer f.Close()

	var best net.IP

	bestMetric := -1

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		// dest dest_prefixlen src src_prefixlen next_hop metric flags refcnt use ifname
		if len(fields) < 10 {
			continue
		}

		if fields[0] != strings.Repeat("0", 32) || fields[1] != "00" {
			continue // not a ::/0 default route
		}

		if fields[9] != iface.Name {
			continue
		}

		nh, err := decodeHexIPv6(fields[4])
		if err != nil || nh.IsUnspecified() {
			continue
		}

		metric, err := strconv.ParseInt(fields[5], 16, 64)
		if err != nil {
			continue
		}

		if bestMetric == -1 || int(metric) < bestMetric {
			best, bestMetric = nh, int(metric)
		}
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("netutil: scan ipv6_route: %w", err)
	}

	if best == nil {
		return nil, ErrNoGateway
	}

	return best, nil
}

func decodeHexIPv6(s string) (net.IP, error) {
	if len(s) != 32 {
		return nil, fmt.Errorf("netutil: malformed address %q", s)
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("netutil: decode address %q: %w", s, err)
	}

	return net.IP(b), nil
}

// GatewayMAC resolves gw's link-layer address on iface by querying the
// kernel neighbor table over an RTM_GETNEIGH netlink request. The table is
// only populated once the kernel has actually exchanged a neighbor
// solicitation with the gateway, which normally already happened the moment
// the interface came up; callers that hit ErrNoGateway here should provoke
// that exchange (e.g. by opening a short-lived UDP dial to the gateway)
// before retrying.
//
// Transport (socket lifecycle, sequence numbers, multipart NLMSG_DONE
// gathering) is handled by mdlayher/netlink's Conn; the ndmsg request body
// and NDA_DST/NDA_LLADDR attribute decoding are RTM_GETNEIGH-specific and
// have no counterpart in that library, so they're built and parsed by hand.
func GatewayMAC(iface *net.Interface, gw net.IP) (net.HardwareAddr, error) {
	conn, err := netlink.Dial(unix.NETLINK_ROUTE, nil)
	if err != nil {
		return nil, fmt.Errorf("netutil: dial netlink: %w", err)
	}
	defer conn.Close()

	req := netlink.Message{
		Header: netlink.Header{
			Type:  netlink.HeaderType(unix.RTM_GETNEIGH),
			Flags: netlink.Request | netlink.Dump,
		},
		Data: buildNeighRequestBody(iface.Index),
	}

	msgs, err := conn.Execute(req)
	if err != nil {
		return nil, fmt.Errorf("netutil: execute netlink request: %w", err)
	}

	for _, m := range msgs {
		if uint16(m.Header.Type) != unix.RTM_NEWNEIGH {
			continue
		}

		if mac, addr, ok := parseNeighAttrs(m.Data); ok && addr.Equal(gw) {
			return mac, nil
		}
	}

	return nil, ErrNoGateway
}

// buildNeighRequestBody builds the 12-byte ndmsg that follows the generic
// nlmsghdr in an RTM_GETNEIGH request, naming the address family and
// interface to filter the dump to. Native-endian, as the kernel expects for
// netlink payloads.
func buildNeighRequestBody(ifIndex int) []byte {
	const ndmsgLen = 12

	ndm := make([]byte, ndmsgLen)
	ndm[0] = unix.AF_INET6
	binary.NativeEndian.PutUint32(ndm[4:8], uint32(ifIndex))

	return ndm
}

// parseNeighAttrs walks the rtattr list following a 12-byte ndmsg and pulls
// out NDA_DST (the neighbor's address) and NDA_LLADDR (its MAC).
func parseNeighAttrs(data []byte) (mac net.HardwareAddr, addr net.IP, ok bool) {
	const ndmsgLen = 12
	if len(data) < ndmsgLen {
		return nil, nil, false
	}

	attrs := data[ndmsgLen:]

	for len(attrs) >= 4 {
		attrLen := binary.NativeEndian.Uint16(attrs[0:2])
		attrType := binary.NativeEndian.Uint16(attrs[2:4])

		if int(attrLen) < 4 || int(attrLen) > len(attrs) {
			break
		}

		payload := attrs[4:attrLen]

		switch attrType {
		case unix.NDA_DST:
			if len(payload) == 16 {
				addr = net.IP(append([]byte(nil), payload...))
			}
		case unix.NDA_LLADDR:
			if len(payload) == 6 {
				mac = net.HardwareAddr(append([]byte(nil), payload...))
			}
		}

		attrs = attrs[align4(int(attrLen)):]
	}

	return mac, addr, mac != nil && addr != nil
}

func align4(n int) int { return (n + 3) &^ 3 }
