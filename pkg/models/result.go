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

// Package models holds the data exchanged between the scan engine and the
// external collaborators (output sinks) that format it.
package models

import (
	"net"
	"time"
)

// Status classifies a probed port from the flags observed on its response.
type Status uint8

const (
	// StatusOpen means a SYN|ACK was observed for the probe.
	StatusOpen Status = iota
	// StatusClosed means a RST|ACK was observed for the probe.
	StatusClosed
)

func (s Status) String() string {
	if s == StatusOpen {
		return "open"
	}

	return "closed"
}

// Result is the outcome of a single classified response. It is transient:
// the scan engine builds one per received SYN|ACK or RST|ACK and hands it to
// the output sink immediately, it is never retained.
type Result struct {
	Timestamp time.Time
	Addr      net.IP
	Port      uint16
	Status    Status
	Banner    []byte
}
