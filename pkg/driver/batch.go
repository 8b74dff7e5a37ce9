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
	"time"

	"github.com/cectc/cubrid-go/pkg/cas"
	"github.com/cectc/cubrid-go/pkg/constant"
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/packet"
)

// AddBatch queues the bound parameters as one batch item and clears them
// for the next. A statement without parameters has nothing to queue.
func (s *Statement) AddBatch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if s.paramCount == 0 {
		return nil
	}
	if err := s.checkAllBound(); err != nil {
		return err
	}
	item := make([]packet.Value, len(s.params))
	copy(item, s.params)
	s.batch = append(s.batch, item)
	s.initParams(s.paramCount)
	return nil
}

// ClearBatch drops the queued batch items.
func (s *Statement) ClearBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = nil
}

// BatchSize is the number of queued batch items.
func (s *Statement) BatchSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batch)
}

// ExecuteBatch runs every queued parameter set in one request. Items fail
// independently; the returned result tells which did.
func (s *Statement) ExecuteBatch(ctx context.Context) (*cas.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if s.kind != constant.StatementNormal {
		return nil, err2.NewDriverError(constant.ErInvalidArgument, "cannot batch a %d statement", s.kind)
	}
	s.releaseResCache()

	var result *cas.BatchResult
	start := time.Now()
	err := s.withRetry(ctx, "execute_batch", func(ctx context.Context) (err error) {
		result, err = s.executeBatchOnce(ctx)
		return err
	})
	s.logSlowQuery(start)
	if err != nil {
		return nil, err
	}
	s.batch = nil
	return result, nil
}

func (s *Statement) executeBatchOnce(ctx context.Context) (*cas.BatchResult, error) {
	c := s.conn
	var result *cas.BatchResult
	err := c.request(ctx, constant.FCExecuteBatchPreparedStatement, func(out *packet.OutputBuffer) error {
		out.AddInt(s.slot.Handle())
		if c.brokerInfo.ProtoVersionIsAbove(constant.ProtocolV4) {
			remaining, err := c.remainingTime(ctx)
			if err != nil {
				return err
			}
			out.AddInt(int32(remaining / time.Millisecond))
		}
		out.AddByte(boolByte(c.autoCommit))
		for _, item := range s.batch {
			for _, v := range item {
				if _, err := out.AddBindParameter(v); err != nil {
					return err
				}
			}
		}
		return nil
	}, func(in *packet.InputBuffer) (err error) {
		n, err := in.ReadCount(4)
		if err != nil {
			return err
		}
		result = cas.NewBatchResult(n)
		for i := 0; i < n; i++ {
			count, err := in.ReadInt()
			if err != nil {
				return err
			}
			result.StatementTypes[i] = s.commandType
			if count < 0 {
				code, err := in.ReadInt()
				if err != nil {
					return err
				}
				msg, err := in.ReadSizedString()
				if err != nil {
					return err
				}
				result.SetError(i, code, msg)
				continue
			}
			result.SetResult(i, count, s.commandType)
			if _, err = in.ReadOID(); err != nil {
				return err
			}
		}
		if c.brokerInfo.ProtoVersionIsAbove(constant.ProtocolV5) {
			// shard id
			if _, err = in.ReadInt(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.updateExecuted = true
	return result, nil
}

// ExecuteBatch runs several SQL statements in one request without
// preparing them. A failed statement reports its error in the result and
// the others still run.
func (c *Connection) ExecuteBatch(ctx context.Context, sqls []string) (*cas.BatchResult, error) {
	if len(sqls) == 0 {
		return nil, err2.NewDriverError(constant.ErInvalidArgument, "empty batch")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReconnect(ctx); err != nil {
		return nil, err
	}

	var result *cas.BatchResult
	err := c.request(ctx, constant.FCExecuteBatchStatement, func(out *packet.OutputBuffer) error {
		out.AddByte(boolByte(c.autoCommit))
		for _, sql := range sqls {
			if _, err := out.AddString(sql); err != nil {
				return err
			}
		}
		return nil
	}, func(in *packet.InputBuffer) error {
		n, err := in.ReadCount(1 + 4)
		if err != nil {
			return err
		}
		result = cas.NewBatchResult(n)
		for i := 0; i < n; i++ {
			b, err := in.ReadByte()
			if err != nil {
				return err
			}
			stmtType := constant.CommandType(b)
			result.StatementTypes[i] = stmtType
			count, err := in.ReadInt()
			if err != nil {
				return err
			}
			if count < 0 {
				// the count is the error code here
				msg, err := in.ReadSizedString()
				if err != nil {
					return err
				}
				result.SetError(i, count, msg)
				continue
			}
			result.SetResult(i, count, stmtType)
			if _, err = in.ReadOID(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.updateExecuted = true
	return result, nil
}
