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
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultBannerModuleServiceType(t *testing.T) {
	m := NewDefaultBannerModule()

	assert.Equal(t, "http", m.ServiceType(80))
	assert.Equal(t, "ssh", m.ServiceType(22))
	assert.Equal(t, "", m.ServiceType(9999))
}

func TestDefaultBannerModuleGetQuery(t *testing.T) {
	m := NewDefaultBannerModule()

	assert.NotEmpty(t, m.GetQuery(80))
	assert.Nil(t, m.GetQuery(22))
	assert.Nil(t, m.GetQuery(9999))
}

func TestPostprocessBannerTrimsAndCaps(t *testing.T) {
	in := append(bytes.Repeat([]byte("A"), BannerMaxLength+100), "\r\n"...)

	out := postprocessBanner(in)

	assert.True(t, len(out) <= BannerMaxLength)
	assert.False(t, bytes.HasSuffix(out, []byte("\r\n")))
}

func TestPostprocessBannerCutsAtNUL(t *testing.T) {
	in := []byte("hello\x00garbage")

	out := postprocessBanner(in)

	assert.Equal(t, []byte("hello"), out)
}

func TestOutprotoToIPTypeIsTCP(t *testing.T) {
	assert.Equal(t, uint8(nextHeaderTCP), OutprotoToIPType(OutputProtoTCP))
}
