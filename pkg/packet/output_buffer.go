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

package packet

import (
	"github.com/cectc/cubrid-go/pkg/constant"
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/misc"
)

const (
	// HeaderSize is the length field plus the cas info echo.
	HeaderSize = 4 + constant.CASInfoSize

	defaultBufferSize = 1024
)

// OutputBuffer builds one request frame. Every Add method writes a length
// prefixed argument and returns the number of bytes it wrote, so callers
// building nested structures can back-patch an outer size with WriteInt32At.
type OutputBuffer struct {
	data    []byte
	charset *misc.Charset
	// framed is set by NewRequest; only a frame has a length to patch.
	framed bool
}

func NewOutputBuffer(charset *misc.Charset) *OutputBuffer {
	if charset == nil {
		charset = misc.UTF8
	}
	return &OutputBuffer{
		data:    make([]byte, 0, defaultBufferSize),
		charset: charset,
	}
}

// NewRequest starts a request frame: a length placeholder, the cas info the
// broker sent last and the function code.
func (b *OutputBuffer) NewRequest(casInfo []byte, code constant.FunctionCode) {
	b.data = b.data[:0]
	b.framed = true
	b.Reserve(4)
	info := b.grow(constant.CASInfoSize)
	copy(b.data[info:info+constant.CASInfoSize], casInfo)
	b.RawByte(byte(code))
}

// Bytes returns the content. A request started with NewRequest gets its
// frame length patched first.
func (b *OutputBuffer) Bytes() []byte {
	if b.framed {
		misc.WriteInt32(b.data, 0, int32(len(b.data)-4))
	}
	return b.data
}

// Len returns the number of bytes written so far.
func (b *OutputBuffer) Len() int {
	return len(b.data)
}

// Reset drops the content but keeps the allocation.
func (b *OutputBuffer) Reset() {
	b.data = b.data[:0]
	b.framed = false
}

func (b *OutputBuffer) grow(n int) int {
	pos := len(b.data)
	if cap(b.data)-pos < n {
		size := 2 * cap(b.data)
		if size < pos+n {
			size = pos + n
		}
		data := make([]byte, pos, size)
		copy(data, b.data)
		b.data = data
	}
	b.data = b.data[:pos+n]
	return pos
}

// Reserve appends n zero bytes and returns their offset.
func (b *OutputBuffer) Reserve(n int) int {
	pos := b.grow(n)
	for i := pos; i < pos+n; i++ {
		b.data[i] = 0
	}
	return pos
}

// WriteAt overwrites already written bytes at offset.
func (b *OutputBuffer) WriteAt(offset int, p []byte) {
	copy(b.data[offset:offset+len(p)], p)
}

// WriteInt32At overwrites a 4-byte placeholder.
func (b *OutputBuffer) WriteInt32At(offset int, v int32) {
	misc.WriteInt32(b.data, offset, v)
}

// RawByte appends one byte without a length prefix.
func (b *OutputBuffer) RawByte(v byte) int {
	pos := b.grow(1)
	misc.WriteByte(b.data, pos, v)
	return 1
}

// RawBytes appends bytes without a length prefix.
func (b *OutputBuffer) RawBytes(p []byte) int {
	pos := b.grow(len(p))
	misc.WriteBytes(b.data, pos, p)
	return len(p)
}

func (b *OutputBuffer) rawInt32(v int32) {
	pos := b.grow(4)
	misc.WriteInt32(b.data, pos, v)
}

func (b *OutputBuffer) AddByte(v byte) int {
	b.rawInt32(1)
	b.RawByte(v)
	return 5
}

func (b *OutputBuffer) AddShort(v int16) int {
	b.rawInt32(2)
	pos := b.grow(2)
	misc.WriteInt16(b.data, pos, v)
	return 6
}

func (b *OutputBuffer) AddInt(v int32) int {
	b.rawInt32(4)
	b.rawInt32(v)
	return 8
}

func (b *OutputBuffer) AddLong(v int64) int {
	b.rawInt32(8)
	pos := b.grow(8)
	misc.WriteInt64(b.data, pos, v)
	return 12
}

func (b *OutputBuffer) AddFloat(v float32) int {
	b.rawInt32(4)
	pos := b.grow(4)
	misc.WriteFloat32(b.data, pos, v)
	return 8
}

func (b *OutputBuffer) AddDouble(v float64) int {
	b.rawInt32(8)
	pos := b.grow(8)
	misc.WriteFloat64(b.data, pos, v)
	return 12
}

// AddNull writes a zero length argument.
func (b *OutputBuffer) AddNull() int {
	b.rawInt32(0)
	return 4
}

func (b *OutputBuffer) AddBytes(p []byte) int {
	b.rawInt32(int32(len(p)))
	b.RawBytes(p)
	return 4 + len(p)
}

// AddString writes s in the session charset with a trailing NUL.
func (b *OutputBuffer) AddString(s string) (int, error) {
	encoded, err := b.charset.Encode(s)
	if err != nil {
		return 0, err2.WrapDriverError(constant.ErTypeConversion, err)
	}
	size := misc.LenNullString(encoded)
	b.rawInt32(int32(size))
	pos := b.grow(size)
	misc.WriteNullString(b.data, pos, encoded)
	return 4 + size, nil
}

// AddDate writes the temporal fields of t; DATETIME carries milliseconds.
func (b *OutputBuffer) AddDate(t constant.UType, d misc.DateFields) int {
	n := dateFieldCount(t)
	b.rawInt32(int32(2 * n))
	fields := []int16{d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second, d.Millisecond}
	pos := b.grow(2 * n)
	for i := 0; i < n; i++ {
		pos = misc.WriteInt16(b.data, pos, fields[i])
	}
	return 4 + 2*n
}

func (b *OutputBuffer) AddOID(oid OID) int {
	b.rawInt32(OIDSize)
	pos := b.grow(OIDSize)
	pos = misc.WriteInt32(b.data, pos, oid.PageID)
	pos = misc.WriteInt16(b.data, pos, oid.SlotID)
	misc.WriteInt16(b.data, pos, oid.VolID)
	return 4 + OIDSize
}

func (b *OutputBuffer) AddCacheTime(c CacheTime) int {
	b.rawInt32(8)
	b.rawInt32(c.Sec)
	b.rawInt32(c.Usec)
	return 12
}

func (b *OutputBuffer) AddXID(x XID) int {
	size := 12 + len(x.GlobalTransactionID) + len(x.BranchQualifier)
	b.rawInt32(int32(size))
	b.rawInt32(x.FormatID)
	b.rawInt32(int32(len(x.GlobalTransactionID)))
	b.rawInt32(int32(len(x.BranchQualifier)))
	b.RawBytes(x.GlobalTransactionID)
	b.RawBytes(x.BranchQualifier)
	return 4 + size
}

// AddValue writes v as one length prefixed argument. Collections reserve
// their size field first and patch it once the elements are written.
func (b *OutputBuffer) AddValue(v Value) (int, error) {
	if v.Null {
		return b.AddNull(), nil
	}
	switch v.Type {
	case constant.TypeNull:
		return b.AddNull(), nil
	case constant.TypeShort:
		return b.AddShort(int16(v.Int)), nil
	case constant.TypeInt, constant.TypeResultSet:
		return b.AddInt(int32(v.Int)), nil
	case constant.TypeBigInt:
		return b.AddLong(v.Int), nil
	case constant.TypeFloat:
		return b.AddFloat(float32(v.Float)), nil
	case constant.TypeDouble, constant.TypeMonetary:
		return b.AddDouble(v.Float), nil
	case constant.TypeChar, constant.TypeString, constant.TypeNChar, constant.TypeVarNChar,
		constant.TypeNumeric, constant.TypeEnum:
		return b.AddString(v.Str)
	case constant.TypeBit, constant.TypeVarBit, constant.TypeBlob, constant.TypeClob:
		return b.AddBytes(v.Bytes), nil
	case constant.TypeDate, constant.TypeTime, constant.TypeTimestamp, constant.TypeDateTime:
		return b.AddDate(v.Type, v.Date), nil
	case constant.TypeObject:
		return b.AddOID(v.OID), nil
	case constant.TypeSet, constant.TypeMultiSet, constant.TypeSequence:
		return b.addCollection(v)
	}
	return 0, err2.NewDriverError(constant.ErTypeConversion, "cannot encode type %s", v.Type)
}

func (b *OutputBuffer) addCollection(v Value) (int, error) {
	sizeAt := b.Reserve(4)
	size := b.RawByte(byte(v.ElementType))
	countAt := b.Reserve(4)
	size += 4
	b.WriteInt32At(countAt, int32(len(v.Elements)))
	for _, elem := range v.Elements {
		if !elem.Null && elem.Type != v.ElementType {
			return 0, err2.NewDriverError(constant.ErTypeConversion,
				"collection of %s cannot hold %s", v.ElementType, elem.Type)
		}
		n, err := b.AddValue(elem)
		if err != nil {
			return 0, err
		}
		size += n
	}
	b.WriteInt32At(sizeAt, int32(size))
	return 4 + size, nil
}

// AddBindParameter writes one bind parameter as its type tag followed by the
// length prefixed value.
func (b *OutputBuffer) AddBindParameter(v Value) (int, error) {
	b.RawByte(byte(v.Type))
	n, err := b.AddValue(v)
	if err != nil {
		return 0, err
	}
	return 1 + n, nil
}
