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

//go:build !linux

package netutil

import (
	"fmt"
	"net"
	"runtime"
)

// DefaultGateway is unsupported outside Linux: this scanner ships one
// netlink-backed implementation, and other platforms are expected to supply
// the gateway address via configuration instead of auto-detection.
func DefaultGateway(_ *net.Interface) (net.IP, error) {
	return nil, fmt.Errorf("netutil: default gateway auto-detection is not implemented on %s", runtime.GOOS)
}

// GatewayMAC is unsupported outside Linux; see DefaultGateway.
func GatewayMAC(_ *net.Interface, _ net.IP) (net.HardwareAddr, error) {
	return nil, fmt.Errorf("netutil: gateway mac resolution is not implemented on %s", runtime.GOOS)
}
