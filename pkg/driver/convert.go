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

package driver

import (
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cectc/cubrid-go/pkg/constant"
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/misc"
	"github.com/cectc/cubrid-go/pkg/packet"
)

// toValue maps a Go value to the wire type it binds as. Integers that do
// not fit an INT travel as NUMERIC text so no precision is lost on
// brokers without BIGINT parameters.
func toValue(value interface{}) (packet.Value, error) {
	switch v := value.(type) {
	case nil:
		return packet.NullValue(constant.TypeNull), nil
	case packet.Value:
		return v, nil
	case bool:
		if v {
			return packet.ShortValue(constant.BoolTrue), nil
		}
		return packet.ShortValue(constant.BoolFalse), nil
	case int8:
		return packet.ShortValue(int16(v)), nil
	case uint8:
		return packet.ShortValue(int16(v)), nil
	case int16:
		return packet.ShortValue(v), nil
	case uint16:
		return packet.IntValue(int32(v)), nil
	case int32:
		return packet.IntValue(v), nil
	case int:
		return packet.NumericValue(strconv.FormatInt(int64(v), 10)), nil
	case int64:
		return packet.NumericValue(strconv.FormatInt(v, 10)), nil
	case uint:
		return packet.NumericValue(strconv.FormatUint(uint64(v), 10)), nil
	case uint32:
		return packet.NumericValue(strconv.FormatUint(uint64(v), 10)), nil
	case uint64:
		return packet.NumericValue(strconv.FormatUint(v, 10)), nil
	case float32:
		return packet.FloatValue(v), nil
	case float64:
		return packet.DoubleValue(v), nil
	case string:
		return packet.StringValue(v), nil
	case []byte:
		if v == nil {
			return packet.NullValue(constant.TypeVarBit), nil
		}
		b := make([]byte, len(v))
		copy(b, v)
		return packet.BitValue(b), nil
	case time.Time:
		return packet.DateTimeValue(v), nil
	case *time.Time:
		if v == nil {
			return packet.NullValue(constant.TypeDateTime), nil
		}
		return packet.DateTimeValue(*v), nil
	case packet.OID:
		return packet.ObjectValue(v), nil
	case *packet.OID:
		if v == nil {
			return packet.NullValue(constant.TypeObject), nil
		}
		return packet.ObjectValue(*v), nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return toCollection(constant.TypeSequence, rv)
	case reflect.Ptr:
		if rv.IsNil() {
			return packet.NullValue(constant.TypeNull), nil
		}
		return toValue(rv.Elem().Interface())
	}
	return packet.Value{}, err2.NewDriverError(constant.ErInvalidArgument, "cannot bind a value of type %T", value)
}

// toCollection converts the elements of a slice or array. The element
// type is taken from the first non NULL element and every other element
// must share it.
func toCollection(kind constant.UType, rv reflect.Value) (packet.Value, error) {
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		return packet.NullValue(kind), nil
	}
	elements := make([]packet.Value, rv.Len())
	elementType := constant.TypeNull
	for i := range elements {
		elem, err := toValue(rv.Index(i).Interface())
		if err != nil {
			return packet.Value{}, err
		}
		if elem.Type.IsCollection() {
			return packet.Value{}, err2.NewDriverError(constant.ErTypeConversion, "collections cannot nest")
		}
		if !elem.Null {
			if elementType == constant.TypeNull {
				elementType = elem.Type
			} else if elem.Type != elementType {
				return packet.Value{}, err2.NewDriverError(constant.ErTypeConversion,
					"collection mixes %s and %s elements", elementType, elem.Type)
			}
		}
		elements[i] = elem
	}
	for i := range elements {
		if elements[i].Null {
			elements[i] = packet.NullValue(elementType)
		}
	}
	return packet.CollectionValue(kind, elementType, elements), nil
}

func conversionError(v packet.Value, target string) error {
	return err2.NewDriverError(constant.ErTypeConversion, "cannot convert %s to %s", v.Type, target)
}

func valueInt64(v packet.Value) (int64, error) {
	switch {
	case v.Type == constant.TypeShort || v.Type == constant.TypeInt || v.Type == constant.TypeBigInt:
		return v.Int, nil
	case v.Type == constant.TypeFloat || v.Type == constant.TypeDouble || v.Type == constant.TypeMonetary:
		if v.Float < math.MinInt64 || v.Float >= math.MaxInt64 || math.IsNaN(v.Float) {
			return 0, conversionError(v, "BIGINT")
		}
		return int64(v.Float), nil
	case v.Type == constant.TypeNumeric || v.Type.IsString():
		s := strings.TrimSpace(v.Str)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, conversionError(v, "BIGINT")
		}
		return int64(f), nil
	}
	return 0, conversionError(v, "BIGINT")
}

func valueIntRange(v packet.Value, min, max int64, target string) (int64, error) {
	n, err := valueInt64(v)
	if err != nil {
		return 0, err
	}
	if n < min || n > max {
		return 0, conversionError(v, target)
	}
	return n, nil
}

func valueFloat64(v packet.Value) (float64, error) {
	switch {
	case v.Type == constant.TypeShort || v.Type == constant.TypeInt || v.Type == constant.TypeBigInt:
		return float64(v.Int), nil
	case v.Type == constant.TypeFloat || v.Type == constant.TypeDouble || v.Type == constant.TypeMonetary:
		return v.Float, nil
	case v.Type == constant.TypeNumeric || v.Type.IsString():
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, conversionError(v, "DOUBLE")
		}
		return f, nil
	}
	return 0, conversionError(v, "DOUBLE")
}

func valueBool(v packet.Value) (bool, error) {
	if v.Type == constant.TypeNumeric || v.Type.IsString() {
		switch s := strings.ToLower(strings.TrimSpace(v.Str)); s {
		case "true", "1":
			return true, nil
		case "false", "0", "":
			return false, nil
		}
	}
	f, err := valueFloat64(v)
	if err != nil {
		return false, conversionError(v, "BOOLEAN")
	}
	return f != 0, nil
}

// valueDecimal renders a numeric value as exact decimal text.
func valueDecimal(v packet.Value) (string, error) {
	switch {
	case v.Type == constant.TypeShort || v.Type == constant.TypeInt || v.Type == constant.TypeBigInt:
		return strconv.FormatInt(v.Int, 10), nil
	case v.Type == constant.TypeFloat:
		return strconv.FormatFloat(v.Float, 'f', -1, 32), nil
	case v.Type == constant.TypeDouble || v.Type == constant.TypeMonetary:
		return strconv.FormatFloat(v.Float, 'f', -1, 64), nil
	case v.Type == constant.TypeNumeric || v.Type.IsString():
		s := strings.TrimSpace(v.Str)
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return "", conversionError(v, "NUMERIC")
		}
		return s, nil
	}
	return "", conversionError(v, "NUMERIC")
}

func valueString(v packet.Value) (string, error) {
	if v.Type == constant.TypeResultSet {
		return "", conversionError(v, "VARCHAR")
	}
	return v.String(), nil
}

func valueBytes(v packet.Value) ([]byte, error) {
	switch {
	case v.Type == constant.TypeBit || v.Type == constant.TypeVarBit ||
		v.Type == constant.TypeBlob || v.Type == constant.TypeClob:
		return v.Bytes, nil
	case v.Type.IsString():
		return []byte(v.Str), nil
	}
	return nil, conversionError(v, "VARBIT")
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.000",
	misc.TimeFormat,
	misc.DateFormat,
	"15:04:05",
}

// valueTime converts to a time in the local zone, truncated to what
// target holds: DATE keeps the day, TIME the clock on 1970-01-01.
func valueTime(v packet.Value, target constant.UType) (time.Time, error) {
	var t time.Time
	switch {
	case v.Type.IsTemporal():
		t = v.Date.Time(time.Local)
	case v.Type.IsString():
		s := strings.TrimSpace(v.Str)
		var err error
		for _, layout := range timeLayouts {
			if t, err = time.ParseInLocation(layout, s, time.Local); err == nil {
				break
			}
		}
		if err != nil {
			return time.Time{}, conversionError(v, target.String())
		}
	default:
		return time.Time{}, conversionError(v, target.String())
	}
	if t.IsZero() {
		return t, nil
	}
	switch target {
	case constant.TypeDate:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()), nil
	case constant.TypeTime:
		return time.Date(1970, time.January, 1, t.Hour(), t.Minute(), t.Second(), 0, t.Location()), nil
	case constant.TypeTimestamp:
		return t.Truncate(time.Second), nil
	}
	return t, nil
}

func valueOID(v packet.Value) (packet.OID, error) {
	switch {
	case v.Type == constant.TypeObject:
		return v.OID, nil
	case v.Type.IsString():
		return packet.ParseOID(strings.TrimSpace(v.Str))
	}
	return packet.OID{}, conversionError(v, "OBJECT")
}

// valueObject returns the natural Go form of v.
func valueObject(v packet.Value) interface{} {
	if v.Null {
		return nil
	}
	switch v.Type {
	case constant.TypeShort:
		return int16(v.Int)
	case constant.TypeInt, constant.TypeResultSet:
		return int32(v.Int)
	case constant.TypeBigInt:
		return v.Int
	case constant.TypeFloat:
		return float32(v.Float)
	case constant.TypeDouble, constant.TypeMonetary:
		return v.Float
	case constant.TypeBit, constant.TypeVarBit, constant.TypeBlob, constant.TypeClob:
		return v.Bytes
	case constant.TypeDate, constant.TypeTime, constant.TypeTimestamp, constant.TypeDateTime:
		t, _ := valueTime(v, v.Type)
		return t
	case constant.TypeObject:
		return v.OID
	case constant.TypeSet, constant.TypeMultiSet, constant.TypeSequence:
		return valueCollection(v)
	case constant.TypeNull:
		return nil
	}
	return v.Str
}

func valueCollection(v packet.Value) []interface{} {
	elems := make([]interface{}, len(v.Elements))
	for i, e := range v.Elements {
		elems[i] = valueObject(e)
	}
	return elems
}
