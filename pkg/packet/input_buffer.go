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

// InputBuffer decodes one response. It never reads past the length the
// broker declared; doing so fails with ErIllegalDataSize.
type InputBuffer struct {
	data    []byte
	pos     int
	charset *misc.Charset

	casInfo [constant.CASInfoSize]byte
	resCode int32
}

// NewInputBuffer wraps a raw payload, used for sub-structures and tests.
func NewInputBuffer(data []byte, charset *misc.Charset) *InputBuffer {
	if charset == nil {
		charset = misc.UTF8
	}
	return &InputBuffer{data: data, charset: charset}
}

// ParseResponse decodes the fixed part of a response frame, frame being
// everything after the length field. A negative result code is turned into
// the server error the payload carries. The cas info is returned in both
// cases, since the broker expects it echoed on the next request.
func ParseResponse(frame []byte, charset *misc.Charset) (*InputBuffer, error) {
	in := NewInputBuffer(frame, charset)
	info, err := in.ReadBytes(constant.CASInfoSize)
	if err != nil {
		return nil, err
	}
	copy(in.casInfo[:], info)
	in.resCode, err = in.ReadInt()
	if err != nil {
		return in, err
	}
	if in.resCode < 0 {
		return in, in.readServerError(in.resCode)
	}
	return in, nil
}

func (in *InputBuffer) readServerError(indicator int32) error {
	code, err := in.ReadInt()
	if err != nil {
		return err
	}
	msg, err := in.ReadString(in.Remaining())
	if err != nil {
		return err
	}
	return err2.NewServerError(indicator, code, msg)
}

// CASInfo returns the cas info block of the response.
func (in *InputBuffer) CASInfo() []byte {
	return in.casInfo[:]
}

// ResCode returns the result code: a handle, a row count or a process id
// depending on the request.
func (in *InputBuffer) ResCode() int32 {
	return in.resCode
}

// Remaining is the number of undecoded bytes.
func (in *InputBuffer) Remaining() int {
	return len(in.data) - in.pos
}

// Position returns the read offset.
func (in *InputBuffer) Position() int {
	return in.pos
}

func (in *InputBuffer) Charset() *misc.Charset {
	return in.charset
}

func illegalSize(want, have int) error {
	return err2.NewDriverError(constant.ErIllegalDataSize,
		"cannot read %d bytes, %d bytes left in the response", want, have)
}

func (in *InputBuffer) ReadByte() (byte, error) {
	v, pos, ok := misc.ReadByte(in.data, in.pos)
	if !ok {
		return 0, illegalSize(1, in.Remaining())
	}
	in.pos = pos
	return v, nil
}

func (in *InputBuffer) ReadShort() (int16, error) {
	v, pos, ok := misc.ReadInt16(in.data, in.pos)
	if !ok {
		return 0, illegalSize(2, in.Remaining())
	}
	in.pos = pos
	return v, nil
}

func (in *InputBuffer) ReadInt() (int32, error) {
	v, pos, ok := misc.ReadInt32(in.data, in.pos)
	if !ok {
		return 0, illegalSize(4, in.Remaining())
	}
	in.pos = pos
	return v, nil
}

func (in *InputBuffer) ReadLong() (int64, error) {
	v, pos, ok := misc.ReadInt64(in.data, in.pos)
	if !ok {
		return 0, illegalSize(8, in.Remaining())
	}
	in.pos = pos
	return v, nil
}

func (in *InputBuffer) ReadFloat() (float32, error) {
	v, pos, ok := misc.ReadFloat32(in.data, in.pos)
	if !ok {
		return 0, illegalSize(4, in.Remaining())
	}
	in.pos = pos
	return v, nil
}

func (in *InputBuffer) ReadDouble() (float64, error) {
	v, pos, ok := misc.ReadFloat64(in.data, in.pos)
	if !ok {
		return 0, illegalSize(8, in.Remaining())
	}
	in.pos = pos
	return v, nil
}

// ReadBytes returns a copy of the next size bytes.
func (in *InputBuffer) ReadBytes(size int) ([]byte, error) {
	v, pos, ok := misc.ReadBytesCopy(in.data, in.pos, size)
	if !ok {
		return nil, illegalSize(size, in.Remaining())
	}
	in.pos = pos
	return v, nil
}

// ReadCount reads an element count and rejects counts the rest of the
// response could not possibly hold, each element taking at least minSize
// bytes.
func (in *InputBuffer) ReadCount(minSize int) (int, error) {
	count, err := in.ReadInt()
	if err != nil {
		return 0, err
	}
	if minSize < 1 {
		minSize = 1
	}
	if count < 0 || int(count) > in.Remaining()/minSize {
		return 0, illegalSize(int(count)*minSize, in.Remaining())
	}
	return int(count), nil
}

// Skip discards size bytes.
func (in *InputBuffer) Skip(size int) error {
	if size < 0 || size > in.Remaining() {
		return illegalSize(size, in.Remaining())
	}
	in.pos += size
	return nil
}

// ReadString decodes a size byte field whose content ends at the first NUL.
func (in *InputBuffer) ReadString(size int) (string, error) {
	raw, pos, ok := misc.ReadNullString(in.data, in.pos, size)
	if !ok {
		return "", illegalSize(size, in.Remaining())
	}
	in.pos = pos
	s, err := in.charset.Decode(raw)
	if err != nil {
		return "", err2.WrapDriverError(constant.ErTypeConversion, err)
	}
	return s, nil
}

// ReadSizedString reads a 4-byte length followed by the string.
func (in *InputBuffer) ReadSizedString() (string, error) {
	size, err := in.ReadInt()
	if err != nil {
		return "", err
	}
	if size <= 0 {
		return "", nil
	}
	return in.ReadString(int(size))
}

func (in *InputBuffer) ReadOID() (OID, error) {
	page, err := in.ReadInt()
	if err != nil {
		return OID{}, err
	}
	slot, err := in.ReadShort()
	if err != nil {
		return OID{}, err
	}
	vol, err := in.ReadShort()
	if err != nil {
		return OID{}, err
	}
	return OID{PageID: page, SlotID: slot, VolID: vol}, nil
}

func (in *InputBuffer) ReadCacheTime() (CacheTime, error) {
	sec, err := in.ReadInt()
	if err != nil {
		return CacheTime{}, err
	}
	usec, err := in.ReadInt()
	if err != nil {
		return CacheTime{}, err
	}
	return CacheTime{Sec: sec, Usec: usec}, nil
}

func (in *InputBuffer) ReadXID() (XID, error) {
	var x XID
	var err error
	if x.FormatID, err = in.ReadInt(); err != nil {
		return x, err
	}
	gtridLen, err := in.ReadInt()
	if err != nil {
		return x, err
	}
	bqualLen, err := in.ReadInt()
	if err != nil {
		return x, err
	}
	if x.GlobalTransactionID, err = in.ReadBytes(int(gtridLen)); err != nil {
		return x, err
	}
	if x.BranchQualifier, err = in.ReadBytes(int(bqualLen)); err != nil {
		return x, err
	}
	return x, nil
}

func (in *InputBuffer) readDate(t constant.UType) (misc.DateFields, error) {
	var fields [7]int16
	for i := 0; i < dateFieldCount(t); i++ {
		v, err := in.ReadShort()
		if err != nil {
			return misc.DateFields{}, err
		}
		fields[i] = v
	}
	d := misc.DateFields{
		Year: fields[0], Month: fields[1], Day: fields[2],
		Hour: fields[3], Minute: fields[4], Second: fields[5], Millisecond: fields[6],
	}
	switch t {
	case constant.TypeDate:
		d.Hour, d.Minute, d.Second = 0, 0, 0
	case constant.TypeTime:
		d.Year, d.Month, d.Day = 0, 0, 0
	}
	return d, nil
}

// ReadValue decodes a value of type t occupying exactly size bytes. A
// size of zero or less is a NULL.
func (in *InputBuffer) ReadValue(t constant.UType, size int) (Value, error) {
	if size <= 0 {
		return NullValue(t), nil
	}
	if size > in.Remaining() {
		return Value{}, illegalSize(size, in.Remaining())
	}
	start := in.pos
	v := Value{Type: t}
	var err error
	switch t {
	case constant.TypeNull:
	case constant.TypeChar, constant.TypeString, constant.TypeNChar, constant.TypeVarNChar,
		constant.TypeNumeric, constant.TypeEnum:
		v.Str, err = in.ReadString(size)
	case constant.TypeBit, constant.TypeVarBit, constant.TypeBlob, constant.TypeClob:
		v.Bytes, err = in.ReadBytes(size)
	case constant.TypeShort:
		var s int16
		s, err = in.ReadShort()
		v.Int = int64(s)
	case constant.TypeInt, constant.TypeResultSet:
		var i int32
		i, err = in.ReadInt()
		v.Int = int64(i)
	case constant.TypeBigInt:
		v.Int, err = in.ReadLong()
	case constant.TypeFloat:
		var f float32
		f, err = in.ReadFloat()
		v.Float = float64(f)
	case constant.TypeDouble, constant.TypeMonetary:
		v.Float, err = in.ReadDouble()
	case constant.TypeDate, constant.TypeTime, constant.TypeTimestamp, constant.TypeDateTime:
		v.Date, err = in.readDate(t)
	case constant.TypeObject:
		v.OID, err = in.ReadOID()
	case constant.TypeSet, constant.TypeMultiSet, constant.TypeSequence:
		err = in.readCollection(&v)
	default:
		return Value{}, err2.NewDriverError(constant.ErTypeConversion, "cannot decode type %s", t)
	}
	if err != nil {
		return Value{}, err
	}
	consumed := in.pos - start
	if consumed > size {
		return Value{}, illegalSize(consumed, size)
	}
	if consumed < size {
		in.pos = start + size
	}
	return v, nil
}

func (in *InputBuffer) readCollection(v *Value) error {
	elementType, err := in.ReadByte()
	if err != nil {
		return err
	}
	count, err := in.ReadInt()
	if err != nil {
		return err
	}
	if count < 0 || int(count) > in.Remaining()/4 {
		return illegalSize(int(count)*4, in.Remaining())
	}
	v.ElementType = constant.UType(elementType)
	v.Elements = make([]Value, 0, count)
	for i := int32(0); i < count; i++ {
		size, err := in.ReadInt()
		if err != nil {
			return err
		}
		elem, err := in.ReadValue(v.ElementType, int(size))
		if err != nil {
			return err
		}
		v.Elements = append(v.Elements, elem)
	}
	return nil
}
