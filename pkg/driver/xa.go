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
	"fmt"

	"github.com/cectc/cubrid-go/pkg/constant"
	"github.com/cectc/cubrid-go/pkg/log"
	"github.com/cectc/cubrid-go/pkg/packet"
)

// XAPrepare runs the first phase of two phase commit for xid.
func (c *Connection) XAPrepare(ctx context.Context, xid packet.XID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReconnect(ctx); err != nil {
		return err
	}
	return c.request(ctx, constant.FCXAPrepare, func(out *packet.OutputBuffer) error {
		out.AddXID(xid)
		return nil
	}, nil)
}

// XARecover lists the branches the server holds prepared.
func (c *Connection) XARecover(ctx context.Context) ([]packet.XID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReconnect(ctx); err != nil {
		return nil, err
	}
	var xids []packet.XID
	err := c.request(ctx, constant.FCXARecover, nil, func(in *packet.InputBuffer) error {
		n := int(in.ResCode())
		xids = make([]packet.XID, 0, n)
		for i := 0; i < n; i++ {
			xid, err := in.ReadXID()
			if err != nil {
				return err
			}
			xids = append(xids, xid)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return xids, nil
}

// XAEndTransaction commits or rolls back the prepared branch xid. The
// session cannot continue after it, so the socket is dropped whatever the
// outcome and the next request connects again.
func (c *Connection) XAEndTransaction(ctx context.Context, xid packet.XID, commit bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReconnect(ctx); err != nil {
		return err
	}
	defer func() {
		c.clientSocketClose()
		c.casInfo.SetStatus(constant.CASStatusInactive)
		c.updateExecuted = false
	}()

	typ := constant.EndTranRollback
	if commit {
		typ = constant.EndTranCommit
	}
	return c.request(ctx, constant.FCXAEndTransaction, func(out *packet.OutputBuffer) error {
		out.AddXID(xid)
		out.AddByte(typ)
		return nil
	}, nil)
}

// MakeOutResultSet opens the result set a stored procedure returned in an
// out parameter. srvHandle is the RESULTSET value read from that
// parameter.
func (c *Connection) MakeOutResultSet(ctx context.Context, srvHandle int32) (*Statement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReconnect(ctx); err != nil {
		return nil, err
	}

	s := newStatement(c, constant.StatementOutResultSet)
	var handle int32
	err := c.request(ctx, constant.FCMakeOutResultSet, func(out *packet.OutputBuffer) error {
		out.AddInt(srvHandle)
		return nil
	}, func(in *packet.InputBuffer) (err error) {
		if handle, err = in.ReadInt(); err != nil {
			return err
		}
		cmd, err := in.ReadByte()
		if err != nil {
			return err
		}
		s.commandType = constant.CommandType(cmd)
		s.firstCommandType = s.commandType
		if s.totalTupleNumber, err = in.ReadInt(); err != nil {
			return err
		}
		updatable, err := in.ReadByte()
		if err != nil {
			return err
		}
		s.updatable = updatable == 1
		columns, err := readColumns(in, constant.StatementNormal)
		if err != nil {
			return err
		}
		s.setColumns(columns)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.executeResult = s.totalTupleNumber
	s.sql = fmt.Sprintf("out result set %d", srvHandle)
	s.slot = c.pool.add(s.sql, handle)
	log.Debugf("opened out result set %d as handle %d", srvHandle, handle)
	return s, nil
}
