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

	"github.com/cectc/cubrid-go/pkg/cas"
	"github.com/cectc/cubrid-go/pkg/constant"
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/packet"
)

// The cursor is a 0-based position into the result. The buffered window
// holds fetchedTupleNumber tuples starting at currentFirstCursor; a value
// can only be read while the cursor is inside it.

func (s *Statement) async() bool {
	return s.executeFlag&constant.ExecuteAsync != 0
}

func (s *Statement) inWindow() bool {
	return s.currentFirstCursor >= 0 &&
		s.currentFirstCursor <= s.cursorPosition &&
		s.cursorPosition <= s.currentFirstCursor+s.fetchedTupleNumber-1
}

// readFetchData replaces the window with the tuples of a fetch payload.
func (s *Statement) readFetchData(in *packet.InputBuffer, fetch bool) error {
	dec := cas.TupleDecoder{Columns: s.columns, CommandType: s.commandType}
	tuples, err := dec.ReadTuples(in)
	if err != nil {
		return err
	}
	s.tuples = tuples
	s.fetchedTupleNumber = int32(len(tuples))
	if len(tuples) > 0 {
		s.currentFirstCursor = tuples[0].Index - 1
	}
	if fetch && s.conn.brokerInfo.ProtoVersionIsAbove(constant.ProtocolV5) {
		completed, err := in.ReadByte()
		if err != nil {
			return err
		}
		s.fetchCompleted = completed == 1
	}
	return nil
}

// Fetch makes sure the tuple under the cursor is buffered.
func (s *Statement) Fetch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	return s.fetchLocked(ctx)
}

func (s *Statement) fetchLocked(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.realFetched = false
	if s.kind == constant.StatementGetByOID {
		return nil
	}
	if s.cursorPosition < 0 || (!s.async() && s.totalTupleNumber <= 0) {
		return err2.ErrNoMoreData
	}
	if s.inWindow() {
		return nil
	}
	return s.refetch(ctx)
}

// refetch reads the window starting at the cursor, or ending at it when
// fetching in reverse.
func (s *Statement) refetch(ctx context.Context) error {
	if s.kind == constant.StatementGetByOID {
		return nil
	}
	if err := s.requireHandle(); err != nil {
		return err
	}
	start := s.cursorPosition + 1
	if s.direction == FetchReverse {
		if start = s.cursorPosition - s.fetchSize + 2; start < 1 {
			start = 1
		}
	}
	err := s.conn.request(ctx, constant.FCFetch, func(out *packet.OutputBuffer) error {
		out.AddInt(s.slot.Handle())
		out.AddInt(start)
		out.AddInt(s.fetchSize)
		out.AddByte(boolByte(s.opts.Sensitive))
		out.AddInt(0)
		return nil
	}, func(in *packet.InputBuffer) error {
		return s.readFetchData(in, true)
	})
	if err != nil {
		if err2.ServerCode(err) == constant.CASErNoMoreData {
			return err2.ErrNoMoreData
		}
		return err
	}
	s.realFetched = true
	return nil
}

// RealFetched reports whether the last fetch went to the broker.
func (s *Statement) RealFetched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realFetched
}

// checkReFetch fetches when the cursor left the window.
func (s *Statement) checkReFetch(ctx context.Context) error {
	if s.currentFirstCursor < 0 || (s.cursorPosition >= 0 && !s.inWindow()) {
		s.conn.mu.Lock()
		defer s.conn.mu.Unlock()
		return s.fetchLocked(ctx)
	}
	return nil
}

// Next advances the cursor and reports whether it is on a tuple.
func (s *Statement) Next(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	if !s.async() && s.cursorPosition+1 >= s.totalTupleNumber {
		s.cursorPosition = s.totalTupleNumber
		return false, nil
	}
	s.cursorPosition++
	if err := s.checkReFetch(ctx); err != nil {
		if err2.Is(err, constant.ErNoMoreData) {
			return false, nil
		}
		return false, err
	}
	return s.inWindow(), nil
}

// MoveCursor positions the cursor relative to origin, one of CursorSet,
// CursorCur and CursorEnd. Positions known to be valid are taken without
// asking the broker. A move past either end fails with NoMoreData and
// leaves the cursor where it was.
func (s *Statement) MoveCursor(ctx context.Context, offset int32, origin int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if (origin != constant.CursorSet && origin != constant.CursorCur && origin != constant.CursorEnd) ||
		(!s.async() && s.totalTupleNumber == 0) {
		return err2.ErrNoMoreData
	}

	current := s.cursorPosition
	switch origin {
	case constant.CursorSet:
		s.cursorPosition = offset
	case constant.CursorCur:
		s.cursorPosition += offset
	}
	if origin == constant.CursorSet || origin == constant.CursorCur {
		if s.async() {
			if s.cursorPosition <= s.currentFirstCursor+s.fetchedTupleNumber-1 ||
				(s.totalTupleNumber != 0 && s.cursorPosition < s.totalTupleNumber) {
				return nil
			}
		} else if s.cursorPosition < s.totalTupleNumber {
			return nil
		} else {
			s.cursorPosition = current
			return err2.ErrNoMoreData
		}
	}
	if origin == constant.CursorEnd && s.totalTupleNumber != 0 {
		if s.cursorPosition = s.totalTupleNumber - offset - 1; s.cursorPosition >= 0 {
			return nil
		}
		s.cursorPosition = current
		return err2.ErrNoMoreData
	}
	if origin == constant.CursorCur {
		origin = constant.CursorSet
		offset += current
	}

	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := s.requireHandle(); err != nil {
		s.cursorPosition = current
		return err
	}
	var total int32
	err := c.request(ctx, constant.FCCursor, func(out *packet.OutputBuffer) error {
		out.AddInt(s.slot.Handle())
		out.AddInt(offset)
		out.AddInt(origin)
		return nil
	}, func(in *packet.InputBuffer) (err error) {
		total, err = in.ReadInt()
		return err
	})
	if err != nil {
		s.cursorPosition = current
		return err
	}
	if total < 0 {
		s.totalTupleNumber = 0
		return nil
	}
	s.totalTupleNumber = total
	if total <= s.cursorPosition {
		s.cursorPosition = current
		return err2.ErrNoMoreData
	}
	return nil
}

// CursorPosition returns the 0-based cursor, -1 before the first tuple.
func (s *Statement) CursorPosition() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursorPosition
}

// NextResult moves to the next result of a multi-statement execution. It
// returns false when there is none.
func (s *Statement) NextResult(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := s.requireHandle(); err != nil {
		return false, err
	}

	var result int32
	var cmd constant.CommandType
	var updatable bool
	var columns []*cas.ColumnInfo
	err := c.request(ctx, constant.FCNextResult, func(out *packet.OutputBuffer) error {
		out.AddInt(s.slot.Handle())
		out.AddInt(0)
		return nil
	}, func(in *packet.InputBuffer) (err error) {
		if result, err = in.ReadInt(); err != nil {
			return err
		}
		b, err := in.ReadByte()
		if err != nil {
			return err
		}
		cmd = constant.CommandType(b)
		if b, err = in.ReadByte(); err != nil {
			return err
		}
		updatable = b == 1
		columns, err = readColumns(in, constant.StatementNormal)
		return err
	})
	if err != nil {
		if err2.ServerCode(err) == constant.CASErNoMoreResultSet {
			return false, nil
		}
		return false, err
	}

	s.commandType = cmd
	s.updatable = updatable
	s.setColumns(columns)
	if s.opts.MaxRows > 0 && result > s.opts.MaxRows {
		result = s.opts.MaxRows
	}
	s.executeResult = result
	s.totalTupleNumber = result
	s.tuples = nil
	s.fetchedTupleNumber = 0
	s.currentFirstCursor, s.cursorPosition = -1, -1
	s.realFetched = false
	return true, nil
}

// GeneratedKeys returns the auto increment values the last INSERT
// produced, as a result of its own.
func (s *Statement) GeneratedKeys(ctx context.Context) (*Statement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := s.requireHandle(); err != nil {
		return nil, err
	}

	keys := newStatement(c, constant.StatementGetAutoIncrementKeys)
	keys.sql = s.sql
	keys.slot = s.slot
	err := c.request(ctx, constant.FCGetGeneratedKeys, func(out *packet.OutputBuffer) error {
		out.AddInt(s.slot.Handle())
		return nil
	}, func(in *packet.InputBuffer) error {
		b, err := in.ReadByte()
		if err != nil {
			return err
		}
		keys.commandType = constant.CommandType(b)
		keys.firstCommandType = keys.commandType
		if keys.totalTupleNumber, err = in.ReadInt(); err != nil {
			return err
		}
		if b, err = in.ReadByte(); err != nil {
			return err
		}
		keys.updatable = b == 1
		columns, err := readColumns(in, constant.StatementGetAutoIncrementKeys)
		if err != nil {
			return err
		}
		keys.setColumns(columns)
		keys.executeResult = keys.totalTupleNumber
		return keys.readFetchData(in, false)
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// CursorUpdate changes columns of the tuple under the cursor. columns
// are 0-based and parallel to values.
func (s *Statement) CursorUpdate(ctx context.Context, columns []int, values []interface{}) error {
	if len(columns) != len(values) {
		return err2.NewDriverError(constant.ErInvalidArgument, "%d columns for %d values", len(columns), len(values))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.updatable {
		return err2.ErrNotUpdatable
	}
	wire := make([]packet.Value, len(values))
	for i, col := range columns {
		if col < 0 || col >= len(s.columns) {
			return err2.NewDriverError(constant.ErColumnIndex, "column index %d out of range [0, %d)", col, len(s.columns))
		}
		v, err := toValue(values[i])
		if err != nil {
			return err
		}
		wire[i] = v
	}

	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := s.requireHandle(); err != nil {
		return err
	}
	return c.request(ctx, constant.FCCursorUpdate, func(out *packet.OutputBuffer) error {
		out.AddInt(s.slot.Handle())
		out.AddInt(s.cursorPosition + 1)
		for i, col := range columns {
			out.AddInt(int32(col + 1))
			if _, err := out.AddBindParameter(wire[i]); err != nil {
				return err
			}
		}
		return nil
	}, nil)
}

// CursorOID returns the OID of the tuple under the cursor. The statement
// must have been prepared with PrepareIncludeOID.
func (s *Statement) CursorOID() (packet.OID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prepareFlag&constant.PrepareIncludeOID == 0 {
		return packet.OID{}, err2.ErrOIDNotIncluded
	}
	tuple, err := s.currentTuple()
	if err != nil {
		return packet.OID{}, err
	}
	return tuple.OID, nil
}

// QueryPlan returns the plan the broker chose for the last execution.
func (s *Statement) QueryPlan(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := s.requireHandle(); err != nil {
		return "", err
	}
	var plan string
	err := c.request(ctx, constant.FCGetQueryInfo, func(out *packet.OutputBuffer) error {
		out.AddInt(s.slot.Handle())
		out.AddByte(constant.QueryInfoPlan)
		return nil
	}, func(in *packet.InputBuffer) (err error) {
		plan, err = in.ReadString(in.Remaining())
		return err
	})
	return plan, err
}

// SetFetchSize sets the rows per FETCH; zero restores the default.
func (s *Statement) SetFetchSize(size int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if size < 0 {
		return err2.NewDriverError(constant.ErInvalidArgument, "negative fetch size %d", size)
	}
	if size == 0 {
		size = constant.DefaultFetchSize
	}
	s.fetchSize = size
	return nil
}

func (s *Statement) FetchSize() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchSize
}

func (s *Statement) SetFetchDirection(d FetchDirection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if d != FetchForward && d != FetchReverse {
		return err2.NewDriverError(constant.ErInvalidArgument, "unknown fetch direction %d", d)
	}
	s.direction = d
	return nil
}

func (s *Statement) FetchDirection() FetchDirection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direction
}
