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
	"errors"
	"net"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cectc/cubrid-go/pkg/constant"
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/log"
	"github.com/cectc/cubrid-go/testdata"
)

func TestHandshake(t *testing.T) {
	b := testdata.NewFakeBroker(t)
	conn := connect(t, b)

	hs := b.Handshakes()
	require.Len(t, hs, 1)
	assert.Equal(t, "demodb", hs[0].DBName)
	assert.Equal(t, "dba", hs[0].User)
	assert.Equal(t, "", hs[0].Password)
	assert.Equal(t, "cubrid:"+b.Addr()+":demodb:dba::", hs[0].URL)

	assert.Equal(t, StateConnected, conn.State())
	assert.Equal(t, testdata.SessionID, conn.SessionID())
	assert.Equal(t, b.Addr(), conn.ActiveHost())
	info := conn.BrokerInfo()
	assert.True(t, info.ProtoVersionIsAbove(constant.ProtocolV5))
	assert.True(t, info.KeepConnection())
	assert.False(t, info.StatementPooling())

	version, err := conn.DBVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "11.2.0.0378", version)
	// the cas was idle, so it was checked before the request
	assert.Equal(t, 1, b.Count(constant.FCCheckCAS))
}

func TestHandshakeRedirect(t *testing.T) {
	front := testdata.NewFakeBroker(t)
	back := testdata.NewFakeBroker(t)
	front.SetRedirect(back.Port())

	conn := connect(t, front)
	assert.Empty(t, front.Handshakes())
	assert.Len(t, back.Handshakes(), 1)
	assert.Equal(t, front.Addr(), conn.ActiveHost())

	_, err := conn.DBVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, back.Count(constant.FCGetDBVersion))
	assert.Zero(t, front.Count(constant.FCGetDBVersion))
}

func TestHandshakeRefused(t *testing.T) {
	t.Run("not authorized", func(t *testing.T) {
		b := testdata.NewFakeBroker(t)
		b.SetRefuseCode(constant.CASErNotAuthorizedClient)
		connector, dctx := newTestConnector(t, NewNetDialer(), b.Addr())

		_, err := connector.Connect(context.Background())
		require.Error(t, err)
		assert.Equal(t, constant.CASErNotAuthorizedClient, err2.ServerCode(err))
		// an authorization failure says nothing about the host
		assert.False(t, dctx.IsUnreachable(b.Addr()))
		// nor does a refused handshake count as the last good host
		_, ok := dctx.LastConnectInfo(connector.Config().URL)
		assert.False(t, ok)
	})

	t.Run("busy", func(t *testing.T) {
		b := testdata.NewFakeBroker(t)
		b.SetRefuseCode(constant.CASErFreeServer)
		connector, dctx := newTestConnector(t, NewNetDialer(), b.Addr())

		_, err := connector.Connect(context.Background())
		assert.True(t, err2.Is(err, constant.ErConnection))
		assert.True(t, dctx.IsUnreachable(b.Addr()))
	})
}

// recordingDialer expects dials on m and remembers their order. Dials to
// live are passed on to the network.
func recordingDialer(m *testdata.MockDialer, live string, dialed *[]string) {
	m.EXPECT().DialContext(gomock.Any(), "tcp", gomock.Any()).DoAndReturn(
		func(ctx context.Context, network, addr string) (net.Conn, error) {
			*dialed = append(*dialed, addr)
			if addr != live {
				return nil, errors.New("connection refused")
			}
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		}).AnyTimes()
}

func TestFailover(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b := testdata.NewFakeBroker(t)
	down := "127.0.0.1:1"
	var dialed []string
	dialer := testdata.NewMockDialer(ctrl)
	recordingDialer(dialer, b.Addr(), &dialed)

	connector, dctx := newTestConnector(t, dialer, down, b.Addr())
	conn, err := connector.Connect(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, b.Addr(), conn.ActiveHost())
	assert.True(t, dctx.IsUnreachable(down))
	last, ok := dctx.LastConnectInfo(connector.Config().URL)
	require.True(t, ok)
	assert.Equal(t, b.Addr(), last)

	// a second connection goes straight to the host that worked
	other, err := connector.Connect(context.Background())
	require.NoError(t, err)
	defer other.Close()
	assert.Equal(t, []string{down, b.Addr(), b.Addr()}, dialed)
}

func TestFailoverAllHostsDown(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	first, second := "127.0.0.1:1", "127.0.0.1:2"
	var dialed []string
	dialer := testdata.NewMockDialer(ctrl)
	recordingDialer(dialer, "", &dialed)

	connector, dctx := newTestConnector(t, dialer, first, second)
	conn := connector.Open()
	err := conn.Connect(context.Background())
	assert.True(t, err2.Is(err, constant.ErConnection))
	assert.Equal(t, StateNeedsReconnect, conn.State())
	// marked hosts are still tried on the second pass
	assert.Equal(t, []string{first, second, first, second}, dialed)
	assert.Equal(t, []string{first, second}, dctx.UnreachableHosts())
	require.NoError(t, conn.Close())
}

func TestAlternateHostGivesWay(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b := testdata.NewFakeBroker(t)
	down := "127.0.0.1:1"
	var dialed []string
	dialer := testdata.NewMockDialer(ctrl)
	recordingDialer(dialer, b.Addr(), &dialed)

	connector, dctx := newTestConnector(t, dialer, down, b.Addr())
	connector.Config().ReconnectTime = time.Nanosecond
	conn, err := connector.Connect(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Commit(context.Background()))
	assert.Equal(t, StateNeedsReconnect, conn.State())
	_, ok := dctx.LastConnectInfo(connector.Config().URL)
	assert.False(t, ok)
	// nothing was open, so the commit needed no request
	assert.Zero(t, b.Count(constant.FCEndTransaction))
}

func TestTransactionEnd(t *testing.T) {
	b := testdata.NewFakeBroker(t)
	conn := connect(t, b)
	ctx := context.Background()

	require.NoError(t, conn.SetAutoCommit(ctx, false))
	b.SetCASStatus(constant.CASStatusActive)
	_, err := conn.DBVersion(ctx)
	require.NoError(t, err)

	require.NoError(t, conn.Commit(ctx))
	reqs := b.Requests(constant.FCEndTransaction)
	require.Len(t, reqs, 1)
	assert.Equal(t, []byte{constant.EndTranCommit}, reqs[0].Args()[0])
	assert.Equal(t, StateConnected, conn.State())

	// the transaction is over until the next request
	require.NoError(t, conn.Rollback(ctx))
	assert.Equal(t, 1, b.Count(constant.FCEndTransaction))
}

func TestSessionParametersSurviveReconnect(t *testing.T) {
	b := testdata.NewFakeBroker(t)
	b.Handle(constant.FCGetDBParameter, testdata.Respond(testdata.OK().Int(constant.TranSerializable)))
	conn := connect(t, b)
	ctx := context.Background()

	require.NoError(t, conn.SetIsolationLevel(ctx, constant.TranSerializable))
	require.NoError(t, conn.SetLockTimeout(ctx, -5))
	reqs := b.Requests(constant.FCSetDBParameter)
	require.Len(t, reqs, 2)
	assert.Equal(t, constant.ParamIsolationLevel, reqs[0].IntArg(0))
	assert.Equal(t, constant.TranSerializable, reqs[0].IntArg(1))
	assert.Equal(t, constant.LockTimeoutInfinite, reqs[1].IntArg(1))

	b.DropConnections()
	level, err := conn.IsolationLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, constant.TranSerializable, level)
	assert.Len(t, b.Handshakes(), 2)
	assert.Equal(t, 4, b.Count(constant.FCSetDBParameter))

	err = conn.SetIsolationLevel(ctx, 42)
	assert.True(t, err2.Is(err, constant.ErIsolationLevel))
}

func TestSessionRequests(t *testing.T) {
	b := testdata.NewFakeBroker(t)
	b.Handle(constant.FCGetQueryInfo, testdata.Respond(testdata.OK().Raw([]byte("Join graph\x00"))))
	conn := connect(t, b)
	ctx := context.Background()

	require.NoError(t, conn.CheckCAS(ctx, "hello"))
	reqs := b.Requests(constant.FCCheckCAS)
	require.Len(t, reqs, 1)
	assert.Equal(t, "hello", reqs[0].StringArg(0))

	plan, err := conn.QueryPlanOnly(ctx, "select 1")
	require.NoError(t, err)
	assert.Equal(t, "Join graph", plan)

	require.NoError(t, conn.EndSession(ctx))
	assert.Zero(t, conn.SessionID())
}

func TestFailoverSkipsMarkedHosts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b := testdata.NewFakeBroker(t)
	first, second := "127.0.0.1:1", "127.0.0.1:2"
	var dialed []string
	dialer := testdata.NewMockDialer(ctrl)
	recordingDialer(dialer, b.Addr(), &dialed)

	connector, dctx := newTestConnector(t, dialer, first, second, b.Addr())
	dctx.MarkUnreachable(first)
	dctx.MarkUnreachable(second)

	for i := 0; i < 3; i++ {
		conn, err := connector.Connect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, b.Addr(), conn.ActiveHost())
		require.NoError(t, conn.Close())
	}
	assert.Equal(t, []string{b.Addr(), b.Addr(), b.Addr()}, dialed)
}

func TestUnreadResponseBytesLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log.SetLogger(zap.New(core))
	defer log.Init(nil)

	b := testdata.NewFakeBroker(t)
	b.Handle(constant.FCGetDBParameter, testdata.Respond(testdata.OK().Int(4).Int(99)))
	conn := connect(t, b)

	level, err := conn.IsolationLevel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(4), level)
	unread := logs.FilterMessageSnippet("left 4 bytes unread").All()
	require.NotEmpty(t, unread)
	assert.Equal(t, zapcore.DebugLevel, unread[0].Level)
}
