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
	"strconv"
	"strings"
)

// PortRange is an inclusive range of TCP ports, 1..65535, Low <= High.
type PortRange struct {
	Low, High uint16
}

// Ports is an ordered list of PortRanges. Ranges may overlap; iteration
// does not deduplicate.
type Ports []PortRange

// ParsePorts parses a comma-separated port spec such as "22,80,8000-8100".
// A bare "-" is short for the full range 1-65535.
func ParsePorts(s string) (Ports, error) {
	s = strings.TrimSpace(s)
	if s == "-" {
		return Ports{{Low: 1, High: 65535}}, nil
	}

	var out Ports

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if lo, hi, ok := strings.Cut(part, "-"); ok {
			loN, err := parsePort(lo)
			if err != nil {
				return nil, err
			}

			hiN, err := parsePort(hi)
			if err != nil {
				return nil, err
			}

			if loN > hiN {
				return nil, fmt.Errorf("port range %q has low > high", part)
			}

			out = append(out, PortRange{Low: loN, High: hiN})

			continue
		}

		p, err := parsePort(part)
		if err != nil {
			return nil, err
		}

		out = append(out, PortRange{Low: p, High: p})
	}

	return out, nil
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}

	if v < 1 || v > 65535 {
		return 0, fmt.Errorf("port %d out of range [1,65535]", v)
	}

	return uint16(v), nil
}

// PortIter walks a Ports list in order, ranges ascending, restartable via
// Begin. It holds a cursor only; the underlying Ports is owned by the
// caller (the sender loop) and never mutated.
type PortIter struct {
	ports     Ports
	rangeIdx  int
	cur       uint32 // wider than uint16 so "one past High" doesn't wrap
	started   bool
	exhausted bool
}

// Begin resets the iterator. Passing nil rebinds to the previously bound
// Ports (used when advancing to the next target address with the same port
// set).
func (it *PortIter) Begin(ports Ports) {
	if ports != nil {
		it.ports = ports
	}

	it.rangeIdx = 0
	it.started = false
	it.exhausted = false
}

// Next returns the next port, or 0 once the iterator is exhausted. Once
// exhausted it keeps returning 0 until Begin is called again.
func (it *PortIter) Next() uint16 {
	if it.exhausted || len(it.ports) == 0 {
		it.exhausted = true
		return 0
	}

	if !it.started {
		it.started = true
		it.cur = uint32(it.ports[0].Low)
	} else {
		it.cur++
	}

	for it.rangeIdx < len(it.ports) && it.cur > uint32(it.ports[it.rangeIdx].High) {
		it.rangeIdx++
		if it.rangeIdx < len(it.ports) {
			it.cur = uint32(it.ports[it.rangeIdx].Low)
		}
	}

	if it.rangeIdx >= len(it.ports) {
		it.exhausted = true
		return 0
	}

	return uint16(it.cur)
}
