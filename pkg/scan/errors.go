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

import "errors"

var (
	// Packet decode errors.
	ErrShortFrame      = errors.New("frame shorter than ethernet+ipv6+tcp headers")
	ErrNotIPv6         = errors.New("not an ipv6 ethertype")
	ErrNotTCP          = errors.New("ipv6 next header is not tcp")
	ErrBadTCPHeaderLen = errors.New("bad tcp data offset")

	// Target / port spec errors.
	ErrEmptyTargetSpec = errors.New("empty target specification")
	ErrEmptyPortSpec   = errors.New("empty port specification")

	// Raw socket / interface errors.
	ErrInterfaceNotFound = errors.New("could not find requested interface")
	ErrNoIPv6Address     = errors.New("interface has no usable ipv6 address")
	ErrNoGatewayMAC      = errors.New("could not resolve gateway mac address")
	ErrHandleClosed      = errors.New("raw socket handle is closed")

	// Engine lifecycle errors.
	ErrScanAlreadyRunning = errors.New("scan already running")
	ErrNoTargets          = errors.New("no targets configured")
)
