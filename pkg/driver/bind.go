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
	"reflect"

	"github.com/cectc/cubrid-go/pkg/constant"
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/packet"
)

// parameter modes sent for stored procedure calls
const (
	paramModeIn  byte = 1
	paramModeOut byte = 2
)

func (s *Statement) initParams(n int) {
	s.params = make([]packet.Value, n)
	s.bound = make([]bool, n)
	s.paramModes = make([]byte, n)
	for i := range s.paramModes {
		s.paramModes[i] = paramModeIn
	}
}

// Bind sets the 0-based parameter index. The Go type of value picks the
// wire type; a packet.Value is sent as is.
func (s *Statement) Bind(index int, value interface{}) error {
	v, err := toValue(value)
	if err != nil {
		return err
	}
	return s.bindValue(index, v)
}

func (s *Statement) BindNull(index int) error {
	return s.bindValue(index, packet.NullValue(constant.TypeNull))
}

func (s *Statement) BindOID(index int, oid packet.OID) error {
	return s.bindValue(index, packet.ObjectValue(oid))
}

// BindCollection binds the elements of a slice as a SET, MULTISET or
// SEQUENCE.
func (s *Statement) BindCollection(index int, kind constant.UType, values interface{}) error {
	if !kind.IsCollection() {
		return err2.NewDriverError(constant.ErInvalidArgument, "%s is not a collection type", kind)
	}
	if values == nil {
		return s.bindValue(index, packet.NullValue(kind))
	}
	rv := reflect.ValueOf(values)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return err2.NewDriverError(constant.ErInvalidArgument, "cannot bind %T as %s", values, kind)
	}
	v, err := toCollection(kind, rv)
	if err != nil {
		return err
	}
	return s.bindValue(index, v)
}

// RegisterOutParameter marks a stored procedure parameter as returning a
// value. An out-only parameter needs no bound value.
func (s *Statement) RegisterOutParameter(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkBindIndex(index); err != nil {
		return err
	}
	s.paramModes[index] |= paramModeOut
	if !s.bound[index] {
		s.paramModes[index] = paramModeOut
		s.params[index] = packet.NullValue(constant.TypeNull)
		s.bound[index] = true
	}
	return nil
}

func (s *Statement) bindValue(index int, v packet.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := s.checkBindIndex(index); err != nil {
		return err
	}
	s.params[index] = v
	s.bound[index] = true
	s.paramModes[index] |= paramModeIn
	return nil
}

func (s *Statement) checkBindIndex(index int) error {
	if index < 0 || index >= s.paramCount {
		return err2.NewDriverError(constant.ErBindIndex, "parameter index %d out of range [0, %d)", index, s.paramCount)
	}
	return nil
}

// ClearBind forgets every bound value.
func (s *Statement) ClearBind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initParams(s.paramCount)
}

func (s *Statement) checkAllBound() error {
	for i, ok := range s.bound {
		if !ok {
			return err2.NewDriverError(constant.ErNotBound, "parameter %d is not bound", i)
		}
	}
	return nil
}
