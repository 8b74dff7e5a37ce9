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
	"bytes"
	"encoding/binary"
	"math"
)

// This file contains the big-endian primitives the broker protocol is made of.

//
// Encoding methods.
//
// The same assumptions are made for all the encoding functions:
// - there is enough space to write the Content in the buffer. If not, we
// will panic with out of bounds.
// - all functions start writing at 'pos' in the buffer, and return the next position.

func WriteByte(data []byte, pos int, value byte) int {
	data[pos] = value
	return pos + 1
}

func WriteInt16(data []byte, pos int, value int16) int {
	binary.BigEndian.PutUint16(data[pos:], uint16(value))
	return pos + 2
}

func WriteInt32(data []byte, pos int, value int32) int {
	binary.BigEndian.PutUint32(data[pos:], uint32(value))
	return pos + 4
}

func WriteInt64(data []byte, pos int, value int64) int {
	binary.BigEndian.PutUint64(data[pos:], uint64(value))
	return pos + 8
}

func WriteFloat32(data []byte, pos int, value float32) int {
	binary.BigEndian.PutUint32(data[pos:], math.Float32bits(value))
	return pos + 4
}

func WriteFloat64(data []byte, pos int, value float64) int {
	binary.BigEndian.PutUint64(data[pos:], math.Float64bits(value))
	return pos + 8
}

func WriteBytes(data []byte, pos int, value []byte) int {
	return pos + copy(data[pos:], value)
}

// LenNullString is the encoded size of a NUL terminated string.
func LenNullString(value []byte) int {
	return len(value) + 1
}

func WriteNullString(data []byte, pos int, value []byte) int {
	pos += copy(data[pos:], value)
	data[pos] = 0
	return pos + 1
}

// WriteFixedString writes value into a field of exactly width bytes,
// truncating or NUL padding as needed.
func WriteFixedString(data []byte, pos int, value string, width int) int {
	n := copy(data[pos:pos+width], value)
	for i := pos + n; i < pos+width; i++ {
		data[i] = 0
	}
	return pos + width
}

//
// Decoding methods.
//
// The same assumptions are made for all the decoding functions:
// - they return the decode data, the new position to read from, and ak 'ok' flag.
// - all functions start reading at 'pos' in the buffer, and return the next position.
//

func ReadByte(data []byte, pos int) (byte, int, bool) {
	if pos >= len(data) {
		return 0, 0, false
	}
	return data[pos], pos + 1, true
}

func ReadBytes(data []byte, pos int, size int) ([]byte, int, bool) {
	if size < 0 || pos+size > len(data) {
		return nil, 0, false
	}
	return data[pos : pos+size], pos + size, true
}

// ReadBytesCopy returns a copy of the Content read from the buffer.
func ReadBytesCopy(data []byte, pos int, size int) ([]byte, int, bool) {
	if size < 0 || pos+size > len(data) {
		return nil, 0, false
	}
	result := make([]byte, size)
	copy(result, data[pos:pos+size])
	return result, pos + size, true
}

func ReadInt16(data []byte, pos int) (int16, int, bool) {
	if pos+1 >= len(data) {
		return 0, 0, false
	}
	return int16(binary.BigEndian.Uint16(data[pos : pos+2])), pos + 2, true
}

func ReadInt32(data []byte, pos int) (int32, int, bool) {
	if pos+3 >= len(data) {
		return 0, 0, false
	}
	return int32(binary.BigEndian.Uint32(data[pos : pos+4])), pos + 4, true
}

func ReadInt64(data []byte, pos int) (int64, int, bool) {
	if pos+7 >= len(data) {
		return 0, 0, false
	}
	return int64(binary.BigEndian.Uint64(data[pos : pos+8])), pos + 8, true
}

func ReadFloat32(data []byte, pos int) (float32, int, bool) {
	bits, pos, ok := ReadInt32(data, pos)
	if !ok {
		return 0, 0, false
	}
	return math.Float32frombits(uint32(bits)), pos, true
}

func ReadFloat64(data []byte, pos int) (float64, int, bool) {
	bits, pos, ok := ReadInt64(data, pos)
	if !ok {
		return 0, 0, false
	}
	return math.Float64frombits(uint64(bits)), pos, true
}

// ReadNullString reads a field of size bytes and cuts it at the first NUL.
func ReadNullString(data []byte, pos int, size int) ([]byte, int, bool) {
	raw, pos, ok := ReadBytes(data, pos, size)
	if !ok {
		return nil, 0, false
	}
	if end := bytes.IndexByte(raw, 0); end >= 0 {
		raw = raw[:end]
	}
	return raw, pos, true
}
