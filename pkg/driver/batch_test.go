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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cectc/cubrid-go/pkg/constant"
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/packet"
	"github.com/cectc/cubrid-go/testdata"
)

func TestPreparedBatchPartialFailure(t *testing.T) {
	ctx := context.Background()
	b := testdata.NewFakeBroker(t)
	b.Handle(constant.FCPrepare, testdata.Respond(
		testdata.PrepareResponse(4, constant.CommandInsert, 1)))
	b.Handle(constant.FCExecuteBatchPreparedStatement, testdata.Respond(testdata.BatchResponse(
		testdata.BatchItem{Count: 1},
		testdata.BatchItem{ErrorCode: -670, Message: "Operation would have caused one or more unique constraint violations."},
		testdata.BatchItem{Count: 1},
	)))
	conn := connect(t, b)

	stmt, err := conn.Prepare(ctx, "insert into t values (?)", 0)
	require.NoError(t, err)

	err = stmt.AddBatch()
	assert.True(t, err2.Is(err, constant.ErNotBound))
	for _, v := range []int32{1, 1, 2} {
		require.NoError(t, stmt.Bind(0, v))
		require.NoError(t, stmt.AddBatch())
	}
	assert.Equal(t, 3, stmt.BatchSize())

	res, err := stmt.ExecuteBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, res.Len())
	assert.True(t, res.ErrorFlag)
	assert.Equal(t, int32(1), res.Results[0])
	assert.Equal(t, int32(-3), res.Results[1])
	assert.Equal(t, int32(-670), res.ErrorCodes[1])
	assert.Contains(t, res.ErrorMessages[1], "unique constraint")
	assert.Equal(t, int32(1), res.Results[2])
	for _, typ := range res.StatementTypes {
		assert.Equal(t, constant.CommandInsert, typ)
	}
	assert.Equal(t, 0, stmt.BatchSize())

	reqs := b.Requests(constant.FCExecuteBatchPreparedStatement)
	require.Len(t, reqs, 1)
	assert.Equal(t, int32(4), reqs[0].IntArg(0))
	// three INT parameters follow the handle, timeout and auto commit flag
	param := []byte{byte(constant.TypeInt), 0, 0, 0, 4}
	payload := reqs[0].Payload
	tail := payload[len(payload)-3*(len(param)+4):]
	for i, v := range []byte{1, 1, 2} {
		item := tail[i*9 : (i+1)*9]
		assert.Equal(t, param, item[:5])
		assert.Equal(t, []byte{0, 0, 0, v}, item[5:])
	}
}

func TestStatementBatch(t *testing.T) {
	ctx := context.Background()
	b := testdata.NewFakeBroker(t)
	b.Handle(constant.FCExecuteBatchStatement, testdata.Respond(testdata.OK().Int(3).
		Byte(byte(constant.CommandInsert)).Int(1).OID(packet.OID{}).
		Byte(byte(constant.CommandUpdate)).Int(-493).String("Syntax: unknown class").
		Byte(byte(constant.CommandDelete)).Int(2).OID(packet.OID{})))
	conn := connect(t, b)

	_, err := conn.ExecuteBatch(ctx, nil)
	assert.True(t, err2.Is(err, constant.ErInvalidArgument))

	sqls := []string{"insert into t values (1)", "update nope set a = 1", "delete from t"}
	res, err := conn.ExecuteBatch(ctx, sqls)
	require.NoError(t, err)
	require.Equal(t, 3, res.Len())
	assert.True(t, res.ErrorFlag)
	assert.Equal(t, []constant.CommandType{constant.CommandInsert, constant.CommandUpdate, constant.CommandDelete},
		res.StatementTypes)
	assert.Equal(t, int32(1), res.Results[0])
	assert.Equal(t, int32(-3), res.Results[1])
	assert.Equal(t, int32(-493), res.ErrorCodes[1])
	assert.Equal(t, "Syntax: unknown class", res.ErrorMessages[1])
	assert.Equal(t, int32(2), res.Results[2])

	reqs := b.Requests(constant.FCExecuteBatchStatement)
	require.Len(t, reqs, 1)
	args := reqs[0].Args()
	require.Len(t, args, 4)
	assert.Equal(t, []byte{1}, args[0])
	for i, sql := range sqls {
		assert.Equal(t, sql, reqs[0].StringArg(i+1))
	}
}

func TestBatchWithoutParameters(t *testing.T) {
	ctx := context.Background()
	b := testdata.NewFakeBroker(t)
	b.Handle(constant.FCPrepare, testdata.Respond(
		testdata.PrepareResponse(4, constant.CommandDelete, 0)))
	conn := connect(t, b)

	stmt, err := conn.Prepare(ctx, "delete from t", 0)
	require.NoError(t, err)
	require.NoError(t, stmt.AddBatch())
	assert.Equal(t, 0, stmt.BatchSize())

	require.NoError(t, stmt.Close(ctx))
	_, err = stmt.ExecuteBatch(ctx)
	assert.True(t, err2.Is(err, constant.ErIsClosed))
}
