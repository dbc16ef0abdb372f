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

import "bytes"

const (
	// BannerQueryMaxLength bounds any probe payload a BannerModule returns
	// from GetQuery.
	BannerQueryMaxLength = 1024
	// BannerMaxLength bounds a captured banner after Postprocess.
	BannerMaxLength = 4096
)

// OutputProto identifies the wire protocol an output sink is requesting a
// banner query for. The only value today is OutputProtoTCP (this scanner is
// TCP/IPv6-only, see Non-goals), but the type is carried separately from the
// packet layer's next-header constant so output modules never need to know
// that detail themselves.
type OutputProto int

// OutputProtoTCP is the sole supported output protocol.
const OutputProtoTCP OutputProto = 0

// OutprotoToIPType maps an output module's protocol tag to the packet-layer
// next-header value the banner module probes over, mirroring
// banner_outproto2ip_type(output_proto) in the original: a helper used by
// output modules so they never have to hard-code nextHeaderTCP themselves.
func OutprotoToIPType(_ OutputProto) uint8 {
	return nextHeaderTCP
}

// BannerModule supplies per-service probe payloads and trims captured
// responses. The engine treats it as opaque: banners never affect the
// open/closed classification, only what (if anything) is attached to an
// open result.
type BannerModule interface {
	// ServiceType returns a short service tag for port, or "" if none of the
	// registered probes recognize it.
	ServiceType(port uint16) string
	// GetQuery returns the bytes to send after a SYN/ACK to elicit a banner,
	// or nil for ports that only need to be observed passively (the reply
	// itself, with no prompt, is the banner).
	GetQuery(port uint16) []byte
	// Postprocess trims or transforms a captured banner: cuts it at the
	// first embedded NUL byte (which would otherwise corrupt text-based
	// output sinks), strips trailing line terminators, and caps it at
	// BannerMaxLength.
	Postprocess(port uint16, data []byte) []byte
}

// knownService pairs a port with the probe payload to send and the tag to
// report; it is the table-driven core of defaultBannerModule.
type knownService struct {
	port    uint16
	service string
	query   []byte
}

// defaultBannerModule implements BannerModule with a small built-in table of
// well-known probes: HTTP gets an HTTP/1.0 HEAD request, everything else is
// observed passively (SSH, SMTP and similar protocols banner themselves
// unprompted on connect).
type defaultBannerModule struct {
	byPort map[uint16]knownService
}

// NewDefaultBannerModule returns the built-in BannerModule.
func NewDefaultBannerModule() BannerModule {
	table := []knownService{
		{port: 80, service: "http", query: []byte("HEAD / HTTP/1.0\r\n\r\n")},
		{port: 8080, service: "http", query: []byte("HEAD / HTTP/1.0\r\n\r\n")},
		{port: 22, service: "ssh"},
		{port: 21, service: "ftp"},
		{port: 25, service: "smtp"},
		{port: 110, service: "pop3"},
		{port: 143, service: "imap"},
	}

	byPort := make(map[uint16]knownService, len(table))
	for _, s := range table {
		byPort[s.port] = s
	}

	return &defaultBannerModule{byPort: byPort}
}

func (m *defaultBannerModule) ServiceType(port uint16) string {
	return m.byPort[port].service
}

func (m *defaultBannerModule) GetQuery(port uint16) []byte {
	q := m.byPort[port].query
	if len(q) == 0 {
		return nil
	}

	if len(q) > BannerQueryMaxLength {
		q = q[:BannerQueryMaxLength]
	}

	return q
}

func (m *defaultBannerModule) Postprocess(_ uint16, data []byte) []byte {
	return postprocessBanner(data)
}

// postprocessBanner applies the trim rules common to every service: cut at
// the first NUL (embedded NULs in text banners are almost always
// mid-negotiation garbage, not content), trim trailing CR/LF, and cap the
// result at BannerMaxLength.
func postprocessBanner(data []byte) []byte {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}

	data = bytes.TrimRight(data, "\r\n")

	if len(data) > BannerMaxLength {
		data = data[:BannerMaxLength]
	}

	return data
}
