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
	"context"
	"math"
	"time"

	"github.com/cectc/cubrid-go/pkg/cas"
	"github.com/cectc/cubrid-go/pkg/constant"
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/packet"
)

// Column accessors read the tuple under the cursor, fetching it first
// when it is not buffered. A NULL reads as the zero value and sets
// WasNull. Values convert between types where the conversion is lossless
// in practice; anything else fails with TypeConversion.

// currentTuple returns the tuple under the cursor. The caller holds s.mu.
func (s *Statement) currentTuple() (*cas.Tuple, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if err := s.checkReFetch(context.Background()); err != nil {
		return nil, err
	}
	if s.fetchedTupleNumber <= 0 {
		return nil, err2.ErrNoMoreData
	}
	if !s.inWindow() {
		return nil, err2.NewDriverError(constant.ErInvalidCursorPosition,
			"cursor %d is outside the fetched tuples [%d, %d)",
			s.cursorPosition, s.currentFirstCursor, s.currentFirstCursor+s.fetchedTupleNumber)
	}
	return s.tuples[s.cursorPosition-s.currentFirstCursor], nil
}

func (s *Statement) column(index int) (packet.Value, error) {
	if index < 0 || index >= len(s.columns) {
		return packet.Value{}, err2.NewDriverError(constant.ErColumnIndex,
			"column index %d out of range [0, %d)", index, len(s.columns))
	}
	tuple, err := s.currentTuple()
	if err != nil {
		return packet.Value{}, err
	}
	v, err := tuple.Value(index)
	if err != nil {
		return packet.Value{}, err
	}
	s.wasNull = v.Null
	return v, nil
}

// WasNull reports whether the last value read was NULL.
func (s *Statement) WasNull() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wasNull
}

// Value returns the raw wire value of a column.
func (s *Statement) Value(index int) (packet.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.column(index)
}

func (s *Statement) GetBool(index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.column(index)
	if err != nil || v.Null {
		return false, err
	}
	return valueBool(v)
}

func (s *Statement) GetByte(index int) (int8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.column(index)
	if err != nil || v.Null {
		return 0, err
	}
	n, err := valueIntRange(v, math.MinInt8, math.MaxInt8, "BYTE")
	return int8(n), err
}

func (s *Statement) GetShort(index int) (int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.column(index)
	if err != nil || v.Null {
		return 0, err
	}
	n, err := valueIntRange(v, math.MinInt16, math.MaxInt16, "SMALLINT")
	return int16(n), err
}

func (s *Statement) GetInt(index int) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.column(index)
	if err != nil || v.Null {
		return 0, err
	}
	n, err := valueIntRange(v, math.MinInt32, math.MaxInt32, "INTEGER")
	return int32(n), err
}

func (s *Statement) GetLong(index int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.column(index)
	if err != nil || v.Null {
		return 0, err
	}
	return valueInt64(v)
}

func (s *Statement) GetFloat(index int) (float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.column(index)
	if err != nil || v.Null {
		return 0, err
	}
	f, err := valueFloat64(v)
	if err != nil {
		return 0, err
	}
	if math.Abs(f) > math.MaxFloat32 && !math.IsInf(f, 0) {
		return 0, conversionError(v, "FLOAT")
	}
	return float32(f), nil
}

func (s *Statement) GetDouble(index int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.column(index)
	if err != nil || v.Null {
		return 0, err
	}
	return valueFloat64(v)
}

// GetDecimal returns a numeric column as exact decimal text.
func (s *Statement) GetDecimal(index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.column(index)
	if err != nil || v.Null {
		return "", err
	}
	return valueDecimal(v)
}

func (s *Statement) GetString(index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.column(index)
	if err != nil || v.Null {
		return "", err
	}
	return valueString(v)
}

func (s *Statement) GetBytes(index int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.column(index)
	if err != nil || v.Null {
		return nil, err
	}
	return valueBytes(v)
}

func (s *Statement) GetDate(index int) (time.Time, error) {
	return s.getTime(index, constant.TypeDate)
}

func (s *Statement) GetTime(index int) (time.Time, error) {
	return s.getTime(index, constant.TypeTime)
}

func (s *Statement) GetTimestamp(index int) (time.Time, error) {
	return s.getTime(index, constant.TypeTimestamp)
}

// GetDateTime keeps milliseconds.
func (s *Statement) GetDateTime(index int) (time.Time, error) {
	return s.getTime(index, constant.TypeDateTime)
}

func (s *Statement) getTime(index int, target constant.UType) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.column(index)
	if err != nil || v.Null {
		return time.Time{}, err
	}
	return valueTime(v, target)
}

func (s *Statement) GetOID(index int) (packet.OID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.column(index)
	if err != nil || v.Null {
		return packet.OID{}, err
	}
	return valueOID(v)
}

// GetCollection returns the elements of a SET, MULTISET or SEQUENCE
// column in their natural Go form.
func (s *Statement) GetCollection(index int) ([]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.column(index)
	if err != nil || v.Null {
		return nil, err
	}
	if !v.Type.IsCollection() {
		return nil, conversionError(v, "SEQUENCE")
	}
	return valueCollection(v), nil
}

// GetObject returns a column in its natural Go form: int16, int32, int64,
// float32, float64, string, []byte, time.Time, packet.OID or
// []interface{}.
func (s *Statement) GetObject(index int) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.column(index)
	if err != nil {
		return nil, err
	}
	return valueObject(v), nil
}
