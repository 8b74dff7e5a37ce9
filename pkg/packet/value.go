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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cectc/cubrid-go/pkg/constant"
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/misc"
)

// OID identifies a row or object in the database storage engine.
type OID struct {
	PageID int32
	SlotID int16
	VolID  int16
}

const OIDSize = 8

func (o OID) IsNull() bool {
	return o == OID{}
}

func (o OID) String() string {
	return fmt.Sprintf("@%d|%d|%d", o.PageID, o.SlotID, o.VolID)
}

// ParseOID is the inverse of OID.String.
func ParseOID(s string) (OID, error) {
	if !strings.HasPrefix(s, "@") {
		return OID{}, err2.NewDriverError(constant.ErInvalidArgument, "invalid oid %q", s)
	}
	parts := strings.Split(s[1:], "|")
	if len(parts) != 3 {
		return OID{}, err2.NewDriverError(constant.ErInvalidArgument, "invalid oid %q", s)
	}
	page, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return OID{}, err2.NewDriverError(constant.ErInvalidArgument, "invalid oid %q", s)
	}
	slot, err := strconv.ParseInt(parts[1], 10, 16)
	if err != nil {
		return OID{}, err2.NewDriverError(constant.ErInvalidArgument, "invalid oid %q", s)
	}
	vol, err := strconv.ParseInt(parts[2], 10, 16)
	if err != nil {
		return OID{}, err2.NewDriverError(constant.ErInvalidArgument, "invalid oid %q", s)
	}
	return OID{PageID: int32(page), SlotID: int16(slot), VolID: int16(vol)}, nil
}

// CacheTime is the server supplied stamp that validates a cached result.
type CacheTime struct {
	Sec  int32
	Usec int32
}

func (c CacheTime) IsZero() bool {
	return c.Sec == 0 && c.Usec == 0
}

// After reports whether c is strictly newer than other.
func (c CacheTime) After(other CacheTime) bool {
	if c.Sec != other.Sec {
		return c.Sec > other.Sec
	}
	return c.Usec > other.Usec
}

// Time converts the stamp to wall clock time.
func (c CacheTime) Time() time.Time {
	return time.Unix(int64(c.Sec), int64(c.Usec)*int64(time.Microsecond))
}

// XID is an XA transaction branch identifier.
type XID struct {
	FormatID            int32
	GlobalTransactionID []byte
	BranchQualifier     []byte
}

// Value is a tagged union over the wire types. Type selects which field
// carries the payload:
//
//	SHORT, INT, BIGINT, RESULTSET        Int
//	FLOAT, DOUBLE, MONETARY              Float
//	CHAR, STRING, NCHAR, VARNCHAR,
//	NUMERIC, ENUM                        Str
//	BIT, VARBIT, BLOB, CLOB              Bytes
//	DATE, TIME, TIMESTAMP, DATETIME      Date
//	OBJECT                               OID
//	SET, MULTISET, SEQUENCE              Elements (typed by ElementType)
type Value struct {
	Type constant.UType
	Null bool

	Int         int64
	Float       float64
	Str         string
	Bytes       []byte
	Date        misc.DateFields
	OID         OID
	ElementType constant.UType
	Elements    []Value
}

// NullValue is a NULL of type t.
func NullValue(t constant.UType) Value {
	return Value{Type: t, Null: true}
}

func ShortValue(v int16) Value {
	return Value{Type: constant.TypeShort, Int: int64(v)}
}

func IntValue(v int32) Value {
	return Value{Type: constant.TypeInt, Int: int64(v)}
}

func BigIntValue(v int64) Value {
	return Value{Type: constant.TypeBigInt, Int: v}
}

func FloatValue(v float32) Value {
	return Value{Type: constant.TypeFloat, Float: float64(v)}
}

func DoubleValue(v float64) Value {
	return Value{Type: constant.TypeDouble, Float: v}
}

func MonetaryValue(v float64) Value {
	return Value{Type: constant.TypeMonetary, Float: v}
}

func StringValue(v string) Value {
	return Value{Type: constant.TypeString, Str: v}
}

// NumericValue carries an exact decimal in its textual form.
func NumericValue(v string) Value {
	return Value{Type: constant.TypeNumeric, Str: v}
}

func BitValue(v []byte) Value {
	return Value{Type: constant.TypeVarBit, Bytes: v}
}

func DateValue(t time.Time) Value {
	f := misc.NewDateFields(t)
	return Value{Type: constant.TypeDate, Date: misc.DateFields{Year: f.Year, Month: f.Month, Day: f.Day}}
}

func TimeValue(t time.Time) Value {
	f := misc.NewDateFields(t)
	return Value{Type: constant.TypeTime, Date: misc.DateFields{Hour: f.Hour, Minute: f.Minute, Second: f.Second}}
}

func TimestampValue(t time.Time) Value {
	f := misc.NewDateFields(t)
	f.Millisecond = 0
	return Value{Type: constant.TypeTimestamp, Date: f}
}

func DateTimeValue(t time.Time) Value {
	return Value{Type: constant.TypeDateTime, Date: misc.NewDateFields(t)}
}

func ObjectValue(oid OID) Value {
	return Value{Type: constant.TypeObject, OID: oid}
}

func ResultSetValue(handle int32) Value {
	return Value{Type: constant.TypeResultSet, Int: int64(handle)}
}

// CollectionValue builds a SET, MULTISET or SEQUENCE of elements typed elementType.
func CollectionValue(kind constant.UType, elementType constant.UType, elements []Value) Value {
	return Value{Type: kind, ElementType: elementType, Elements: elements}
}

// dateFieldCount is how many 2-byte fields the temporal type t occupies.
func dateFieldCount(t constant.UType) int {
	if t == constant.TypeDateTime {
		return 7
	}
	return 6
}

func (v Value) String() string {
	if v.Null {
		return "NULL"
	}
	switch v.Type {
	case constant.TypeShort, constant.TypeInt, constant.TypeBigInt, constant.TypeResultSet:
		return strconv.FormatInt(v.Int, 10)
	case constant.TypeFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 32)
	case constant.TypeDouble, constant.TypeMonetary:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case constant.TypeChar, constant.TypeString, constant.TypeNChar, constant.TypeVarNChar,
		constant.TypeNumeric, constant.TypeEnum:
		return v.Str
	case constant.TypeBit, constant.TypeVarBit, constant.TypeBlob, constant.TypeClob:
		return fmt.Sprintf("%X", v.Bytes)
	case constant.TypeDate:
		return fmt.Sprintf("%04d-%02d-%02d", v.Date.Year, v.Date.Month, v.Date.Day)
	case constant.TypeTime:
		return fmt.Sprintf("%02d:%02d:%02d", v.Date.Hour, v.Date.Minute, v.Date.Second)
	case constant.TypeTimestamp:
		return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", v.Date.Year, v.Date.Month, v.Date.Day,
			v.Date.Hour, v.Date.Minute, v.Date.Second)
	case constant.TypeDateTime:
		return v.Date.String()
	case constant.TypeObject:
		return v.OID.String()
	case constant.TypeSet, constant.TypeMultiSet, constant.TypeSequence:
		elems := make([]string, 0, len(v.Elements))
		for _, e := range v.Elements {
			elems = append(elems, e.String())
		}
		return "{" + strings.Join(elems, ", ") + "}"
	}
	return ""
}
