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

// Package netutil resolves the handful of link-layer facts the scan engine
// needs before it can frame a single packet: the interface's own MAC, and
// the MAC of the next-hop router every outbound probe is actually addressed
// to at the Ethernet layer (an IPv6 scan never ARPs/NDs its destinations
// individually, it just hands every frame to the default gateway).
package netutil

import (
	"errors"
	"net"
)

// ErrNoGateway is returned when no default IPv6 route could be found on the
// host, or no neighbor entry exists yet for the resolved gateway address.
var ErrNoGateway = errors.New("netutil: no default ipv6 gateway found")

// LocalMAC returns iface's own hardware address.
func LocalMAC(iface *net.Interface) (net.HardwareAddr, error) {
	if len(iface.HardwareAddr) == 0 {
		return nil, errors.New("netutil: interface has no hardware address")
	}

	return iface.HardwareAddr, nil
}
