/*
 * Copyright 2022 CECTC, Inc.
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

package misc

import (
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// Charset converts between Go strings and the byte encoding the database
// session uses for character data.
type Charset struct {
	name string
	enc  encoding.Encoding
}

// UTF8 is the default charset.
var UTF8 = &Charset{name: "utf-8", enc: unicode.UTF8}

// LookupCharset resolves a charset name such as "utf-8", "euc-kr" or
// "iso-8859-1". An empty name yields UTF8.
func LookupCharset(name string) (*Charset, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" || name == "utf-8" || name == "utf8" {
		return UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, errors.Wrapf(err, "unsupported charset %s", name)
	}
	canonical, _ := htmlindex.Name(enc)
	return &Charset{name: canonical, enc: enc}, nil
}

func (c *Charset) Name() string {
	return c.name
}

// Encode converts s to the session charset.
func (c *Charset) Encode(s string) ([]byte, error) {
	if c == nil || c == UTF8 {
		return []byte(s), nil
	}
	b, err := c.enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, errors.Wrapf(err, "encode to %s", c.name)
	}
	return b, nil
}

// Decode converts session charset bytes to a Go string.
func (c *Charset) Decode(b []byte) (string, error) {
	if c == nil || c == UTF8 {
		return string(b), nil
	}
	s, err := c.enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", errors.Wrapf(err, "decode from %s", c.name)
	}
	return string(s), nil
}
