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

// Package output formats classified scan results. The core scan engine is
// format-agnostic: it only ever calls the three Sink methods, in the order
// Begin, zero or more Record, End.
package output

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/carverauto/sixscan/pkg/models"
)

// Sink receives classified results as the engine produces them. A Sink must
// be safe to call Record on from a single goroutine (the engine's receiver
// loop never calls it concurrently), but Begin/End happen on the engine's
// own lifecycle goroutine, so implementations that buffer should guard with
// a mutex if they expose any other access path.
type Sink interface {
	Begin() error
	Record(r models.Result) error
	End() error
}

// Format selects a Sink implementation by name.
type Format string

const (
	FormatList   Format = "list"
	FormatJSON   Format = "json"
	FormatBinary Format = "binary"
)

// New constructs the Sink for format, writing to w. Formats that tag each
// record with a scan run identifier (JSON) get a freshly generated one;
// formats that don't (list, binary) ignore it.
func New(format Format, w io.Writer) (Sink, error) {
	switch format {
	case FormatList, "":
		return NewListSink(w), nil
	case FormatJSON:
		return NewJSONSink(w, uuid.NewString()), nil
	case FormatBinary:
		return NewBinarySink(w), nil
	default:
		return nil, fmt.Errorf("output: unknown format %q", format)
	}
}

// ListSink writes one human-readable line per result, matching the
// "ADDR port STATUS" line the reference scanner prints to its console.
type ListSink struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewListSink(w io.Writer) *ListSink {
	return &ListSink{w: bufio.NewWriter(w)}
}

func (s *ListSink) Begin() error { return nil }

func (s *ListSink) Record(r models.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(r.Banner) > 0 {
		_, err := fmt.Fprintf(s.w, "%s port %d %s %q\n", r.Addr, r.Port, r.Status, r.Banner)
		return err
	}

	_, err := fmt.Fprintf(s.w, "%s port %d %s\n", r.Addr, r.Port, r.Status)

	return err
}

func (s *ListSink) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.w.Flush()
}

// jsonRecord is the wire shape written by JSONSink, one object per line
// (JSON Lines), so a scan can be streamed and tailed without buffering the
// whole result set.
type jsonRecord struct {
	ScanID    string `json:"scan_id"`
	Timestamp string `json:"timestamp"`
	Addr      string `json:"addr"`
	Port      uint16 `json:"port"`
	Status    string `json:"status"`
	Banner    string `json:"banner,omitempty"`
}

// JSONSink writes newline-delimited JSON, one object per result. Every
// record carries the same scan_id so records from concurrent scans can be
// demultiplexed downstream, the way serviceradar tags its event streams
// with a correlation id rather than relying on file/topic separation alone.
type JSONSink struct {
	mu     sync.Mutex
	enc    *json.Encoder
	w      *bufio.Writer
	scanID string
}

// NewJSONSink writes newline-delimited JSON to w, tagging every record with
// scanID. Pass uuid.NewString() for a fresh one per run.
func NewJSONSink(w io.Writer, scanID string) *JSONSink {
	bw := bufio.NewWriter(w)
	return &JSONSink{enc: json.NewEncoder(bw), w: bw, scanID: scanID}
}

func (s *JSONSink) Begin() error { return nil }

func (s *JSONSink) Record(r models.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := jsonRecord{
		ScanID:    s.scanID,
		Timestamp: r.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z"),
		Addr:      r.Addr.String(),
		Port:      r.Port,
		Status:    r.Status.String(),
	}

	if len(r.Banner) > 0 {
		rec.Banner = string(r.Banner)
	}

	return s.enc.Encode(rec)
}

func (s *JSONSink) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.w.Flush()
}

// Binary record layout, fixed-width and network-byte-order throughout:
//
//	8 bytes  timestamp, unix nanoseconds
//	16 bytes address
//	2 bytes  port
//	1 byte   status (0 = open, 1 = closed)
//	2 bytes  banner length
//	N bytes  banner
const binaryHeaderLen = 8 + 16 + 2 + 1 + 2

// BinarySink writes a dense fixed-header framed record per result, for
// pipelines that parse scan output themselves rather than through a text
// format.
type BinarySink struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewBinarySink(w io.Writer) *BinarySink {
	return &BinarySink{w: bufio.NewWriter(w)}
}

func (s *BinarySink) Begin() error { return nil }

func (s *BinarySink) Record(r models.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, binaryHeaderLen+len(r.Banner))

	binary.BigEndian.PutUint64(buf[0:8], uint64(r.Timestamp.UnixNano()))
	copy(buf[8:24], r.Addr.To16())
	binary.BigEndian.PutUint16(buf[24:26], r.Port)
	buf[26] = byte(r.Status)
	binary.BigEndian.PutUint16(buf[27:29], uint16(len(r.Banner)))
	copy(buf[29:], r.Banner)

	_, err := s.w.Write(buf)

	return err
}

func (s *BinarySink) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.w.Flush()
}
