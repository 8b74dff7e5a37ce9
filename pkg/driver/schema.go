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
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/packet"
)

// SchemaInfo opens a catalog result. typ is one of the Schema* request
// types; arg1 and arg2 name the class and attribute (empty for none) and
// flag tells which of them are LIKE patterns. The result is read with the
// cursor methods like any query.
func (c *Connection) SchemaInfo(ctx context.Context, typ int32, arg1, arg2 string, flag byte) (*Statement, error) {
	if typ < constant.SchemaClass || typ > constant.SchemaCrossReference {
		return nil, err2.NewDriverError(constant.ErSchemaType, "unknown schema type %d", typ)
	}
	if flag > constant.SchemaBothPattern {
		return nil, err2.NewDriverError(constant.ErIllegalFlag, "unknown schema pattern flag %d", flag)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReconnect(ctx); err != nil {
		return nil, err
	}

	s := newStatement(c, constant.StatementGetSchemaInfo)
	s.sql = fmt.Sprintf("schema %d %s %s", typ, arg1, arg2)
	var handle int32
	err := c.request(ctx, constant.FCGetSchemaInfo, func(out *packet.OutputBuffer) error {
		out.AddInt(typ)
		for _, arg := range []string{arg1, arg2} {
			if arg == "" {
				out.AddNull()
				continue
			}
			if _, err := out.AddString(arg); err != nil {
				return err
			}
		}
		out.AddByte(flag)
		return nil
	}, func(in *packet.InputBuffer) (err error) {
		handle = in.ResCode()
		if s.totalTupleNumber, err = in.ReadInt(); err != nil {
			return err
		}
		columns, err := readColumns(in, constant.StatementGetSchemaInfo)
		if err != nil {
			return err
		}
		s.setColumns(columns)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// catalog results are fetched and closed like a query
	s.commandType = constant.CommandSelect
	s.firstCommandType = constant.CommandSelect
	s.executeResult = s.totalTupleNumber
	s.slot = c.pool.add(s.sql, handle)
	return s, nil
}
