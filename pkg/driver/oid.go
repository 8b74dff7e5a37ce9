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

// GetByOID reads the attributes of the object oid. With no attribute
// names every attribute is read. The returned statement holds the single
// object with the cursor already on it.
func (c *Connection) GetByOID(ctx context.Context, oid packet.OID, attrs ...string) (*Statement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReconnect(ctx); err != nil {
		return nil, err
	}

	s := newStatement(c, constant.StatementGetByOID)
	s.sql = oid.String()
	err := c.request(ctx, constant.FCGetByOID, func(out *packet.OutputBuffer) error {
		out.AddOID(oid)
		for _, attr := range attrs {
			if _, err := out.AddString(attr); err != nil {
				return err
			}
		}
		return nil
	}, func(in *packet.InputBuffer) error {
		// class name
		if _, err := in.ReadSizedString(); err != nil {
			return err
		}
		columns, err := readColumns(in, constant.StatementGetByOID)
		if err != nil {
			return err
		}
		s.setColumns(columns)
		dec := cas.TupleDecoder{Columns: columns, CommandType: constant.CommandSelect}
		tuple, err := dec.ReadObject(in, oid)
		if err != nil {
			return err
		}
		s.tuples = []*cas.Tuple{tuple}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.commandType = constant.CommandSelect
	s.firstCommandType = constant.CommandSelect
	s.fetchSize = 1
	s.totalTupleNumber, s.fetchedTupleNumber, s.executeResult = 1, 1, 1
	s.currentFirstCursor, s.cursorPosition = 0, 0
	return s, nil
}

// PutByOID sets attributes of the object oid. attrs and values are
// parallel.
func (c *Connection) PutByOID(ctx context.Context, oid packet.OID, attrs []string, values []interface{}) error {
	if len(attrs) == 0 || len(attrs) != len(values) {
		return err2.NewDriverError(constant.ErInvalidArgument, "%d attributes for %d values", len(attrs), len(values))
	}
	wire := make([]packet.Value, len(values))
	for i, value := range values {
		v, err := toValue(value)
		if err != nil {
			return err
		}
		wire[i] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReconnect(ctx); err != nil {
		return err
	}
	err := c.request(ctx, constant.FCPutByOID, func(out *packet.OutputBuffer) error {
		out.AddOID(oid)
		for i, attr := range attrs {
			if _, err := out.AddString(attr); err != nil {
				return err
			}
			if _, err := out.AddBindParameter(wire[i]); err != nil {
				return err
			}
		}
		return nil
	}, nil)
	if err != nil {
		return err
	}
	c.updateExecuted = true
	return nil
}

// OIDCommand sends a RELATED_TO_OID command, one of the OID* constants.
// It answers the class name for OIDClassName, the textual OID when the
// object exists for OIDIsInstance, and an empty string otherwise.
func (c *Connection) OIDCommand(ctx context.Context, oid packet.OID, cmd byte) (string, error) {
	if cmd < constant.OIDDrop || cmd > constant.OIDClassName {
		return "", err2.NewDriverError(constant.ErInvalidArgument, "unknown oid command %d", cmd)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReconnect(ctx); err != nil {
		return "", err
	}

	var answer string
	err := c.request(ctx, constant.FCRelatedToOID, func(out *packet.OutputBuffer) error {
		out.AddByte(cmd)
		out.AddOID(oid)
		return nil
	}, func(in *packet.InputBuffer) (err error) {
		switch cmd {
		case constant.OIDIsInstance:
			if in.ResCode() == 1 {
				answer = oid.String()
			}
		case constant.OIDClassName:
			answer, err = in.ReadString(in.Remaining())
		}
		return err
	})
	if err != nil {
		return "", err
	}
	if cmd == constant.OIDDrop {
		c.updateExecuted = true
	}
	return answer, nil
}

// IsInstance reports whether oid still names an object.
func (c *Connection) IsInstance(ctx context.Context, oid packet.OID) (bool, error) {
	answer, err := c.OIDCommand(ctx, oid, constant.OIDIsInstance)
	return answer != "", err
}

// ClassName returns the class of the object oid.
func (c *Connection) ClassName(ctx context.Context, oid packet.OID) (string, error) {
	return c.OIDCommand(ctx, oid, constant.OIDClassName)
}

// DropObject deletes the object oid.
func (c *Connection) DropObject(ctx context.Context, oid packet.OID) error {
	_, err := c.OIDCommand(ctx, oid, constant.OIDDrop)
	return err
}

// LockObject takes a read or write lock on oid for the transaction.
func (c *Connection) LockObject(ctx context.Context, oid packet.OID, write bool) error {
	cmd := constant.OIDLockRead
	if write {
		cmd = constant.OIDLockWrite
	}
	_, err := c.OIDCommand(ctx, oid, cmd)
	return err
}
