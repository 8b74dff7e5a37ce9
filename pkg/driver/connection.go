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
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/cectc/cubrid-go/pkg/cache"
	"github.com/cectc/cubrid-go/pkg/cas"
	"github.com/cectc/cubrid-go/pkg/constant"
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/lb"
	"github.com/cectc/cubrid-go/pkg/log"
	"github.com/cectc/cubrid-go/pkg/metrics"
	"github.com/cectc/cubrid-go/pkg/misc"
	"github.com/cectc/cubrid-go/pkg/packet"
	"github.com/cectc/cubrid-go/pkg/resource"
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateNeedsReconnect
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateNeedsReconnect:
		return "needs-reconnect"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// cancelTarget is what Cancel needs to reach the broker without taking
// the connection lock.
type cancelTarget struct {
	addr      string
	processID int32
	localPort int
	protocol  cas.BrokerInfo
}

// Connection is a session with a CAS broker. All round trips are
// serialized by mu; methods ending in Locked expect it held.
type Connection struct {
	conf     *Config
	dialer   Dialer
	dctx     *resource.DriverContext
	balancer lb.Interface
	charset  *misc.Charset

	mu    sync.Mutex
	state *atomic.Int32

	conn       *cas.Conn
	out        *packet.OutputBuffer
	casInfo    cas.CASInfo
	brokerInfo cas.BrokerInfo
	processID  int32
	sessionID  int32

	// activeHost indexes conf.Hosts, -1 while not connected.
	activeHost int
	activeAddr string
	lastRCTime time.Time

	autoCommit     bool
	updateExecuted bool
	isolationLevel int32
	lockTimeout    int32
	skipCheckCAS   bool

	pool          *handlePool
	deferredClose []int32
	urlCache      *cache.URLCache

	target atomic.Value
}

func newConnection(cfg *Config, dctx *resource.DriverContext, dialer Dialer) *Connection {
	balancer, err := lb.New(cfg.LoadBalance)
	if err != nil {
		log.Warnf("%v, trying hosts in order", err)
		balancer = lb.SequentialAlgorithm{}
	}
	return &Connection{
		conf:           cfg,
		dialer:         dialer,
		dctx:           dctx,
		balancer:       balancer,
		charset:        cfg.CharsetCodec(),
		state:          atomic.NewInt32(int32(StateDisconnected)),
		out:            packet.NewOutputBuffer(cfg.CharsetCodec()),
		casInfo:        cas.NewCASInfo(),
		brokerInfo:     cas.DefaultBrokerInfo,
		activeHost:     -1,
		autoCommit:     true,
		isolationLevel: constant.TranUnknownIsolation,
		lockTimeout:    constant.LockTimeoutNotUsed,
		pool:           newHandlePool(),
	}
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Connection) Config() *Config {
	return c.conf
}

// BrokerInfo returns the capabilities of the broker last connected to.
func (c *Connection) BrokerInfo() cas.BrokerInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.brokerInfo
}

// ActiveHost returns the address currently connected to, empty when none.
func (c *Connection) ActiveHost() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeAddr
}

func (c *Connection) SessionID() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Connection) IsClosed() bool {
	return c.State() == StateClosed
}

// Connect establishes the session now instead of on the first request.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkReconnect(ctx)
}

func (c *Connection) ensureOpen() error {
	if c.State() == StateClosed {
		return err2.ErrIsClosed
	}
	return nil
}

// checkReconnect makes sure a live session exists before a request. An
// inactive CAS is probed first since the broker may have handed it to
// another client in the meantime.
func (c *Connection) checkReconnect(ctx context.Context) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if c.State() == StateConnected && !c.skipCheckCAS &&
		c.casInfo.Status() == constant.CASStatusInactive && !c.checkCASLocked(ctx) {
		log.Debugf("broker %s did not pass the cas check, dropping the socket", c.activeAddr)
		c.clientSocketClose()
	}
	c.skipCheckCAS = false
	if c.State() != StateConnected {
		return c.reconnect(ctx)
	}
	return nil
}

// deadline returns the bound of the next request: the query timeout or
// the context deadline, whichever comes first.
func (c *Connection) deadline(ctx context.Context) time.Time {
	var d time.Time
	if c.conf.QueryTimeout > 0 {
		d = time.Now().Add(c.conf.QueryTimeout)
	}
	if dl, ok := ctx.Deadline(); ok && (d.IsZero() || dl.Before(d)) {
		d = dl
	}
	return d
}

// request performs one round trip. build writes the arguments after the
// function code, decode reads the response past the result code. The frame
// is only valid while decode runs.
func (c *Connection) request(ctx context.Context, code constant.FunctionCode,
	build func(out *packet.OutputBuffer) error, decode func(in *packet.InputBuffer) error) (err error) {
	conn := c.conn
	if conn == nil || c.State() != StateConnected {
		return err2.NewDriverError(constant.ErCommunication, "no broker connection for %s", code)
	}

	start := time.Now()
	defer func() {
		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusFailed
		}
		metrics.RequestCounter.WithLabelValues(code.String(), status).Inc()
		metrics.RequestTimer.WithLabelValues(code.String()).Observe(time.Since(start).Seconds())
	}()

	c.out.NewRequest(c.casInfo[:], code)
	if build != nil {
		if err = build(c.out); err != nil {
			return err
		}
	}

	conn.SetDeadline(c.deadline(ctx))
	if err = conn.WritePacket(c.out.Bytes()); err != nil {
		log.Debugf("%s to %s failed: %v", code, c.activeAddr, err)
		c.clientSocketClose()
		return err
	}
	frame, err := conn.ReadEphemeralPacket()
	if err != nil {
		log.Debugf("%s response from %s failed: %v", code, c.activeAddr, err)
		c.clientSocketClose()
		return err
	}
	defer conn.RecycleReadPacket()

	in, err := packet.ParseResponse(frame, c.charset)
	if in != nil {
		copy(c.casInfo[:], in.CASInfo())
	}
	if err != nil {
		if err2.Is(err, constant.ErIllegalDataSize) {
			c.clientSocketClose()
		}
		return err
	}
	if decode != nil {
		if err = decode(in); err != nil {
			if err2.Is(err, constant.ErIllegalDataSize) {
				c.clientSocketClose()
			}
			return err
		}
		if n := in.Remaining(); n > 0 {
			log.Debugf("%s response from %s left %d bytes unread", code, c.activeAddr, n)
		}
	}
	return nil
}

// clientSocketClose drops the socket without a goodbye. Every server
// handle dies with it, so the pool is invalidated and pending deferred
// closes are forgotten.
func (c *Connection) clientSocketClose() {
	if c.conn != nil {
		c.conn.ForceClose()
		c.conn = nil
	}
	if c.State() != StateClosed {
		c.setState(StateNeedsReconnect)
	}
	if n := c.pool.invalidateAll(); n > 0 {
		log.Debugf("released %d statement handles of %s", n, c.activeAddr)
	}
	c.deferredClose = nil
	c.activeHost = -1
	c.activeAddr = ""
}

// Close ends the session. CON_CLOSE is best effort; the socket is closed
// whatever its outcome.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == StateClosed {
		return nil
	}
	if c.State() == StateConnected {
		if err := c.request(context.Background(), constant.FCConClose, nil, nil); err != nil {
			log.Debugf("CON_CLOSE to %s failed: %v", c.activeAddr, err)
		}
	}
	c.clientSocketClose()
	c.setState(StateClosed)
	return nil
}

// AutoCommit reports whether each statement commits on its own.
func (c *Connection) AutoCommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoCommit
}

// SetAutoCommit switches auto commit. Switching it on commits the
// transaction in progress.
func (c *Connection) SetAutoCommit(ctx context.Context, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if on && !c.autoCommit && c.casInfo.IsActive() {
		if err := c.endTransactionLocked(ctx, true); err != nil {
			return err
		}
	}
	c.autoCommit = on
	return nil
}

func (c *Connection) Commit(ctx context.Context) error {
	return c.EndTransaction(ctx, true)
}

func (c *Connection) Rollback(ctx context.Context) error {
	return c.EndTransaction(ctx, false)
}

// EndTransaction commits or rolls back the transaction in progress.
func (c *Connection) EndTransaction(ctx context.Context, commit bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureOpen(); err != nil {
		return err
	}
	return c.endTransactionLocked(ctx, commit)
}

func (c *Connection) endTransactionLocked(ctx context.Context, commit bool) error {
	if c.State() != StateConnected {
		// nothing survived the socket
		c.casInfo.SetStatus(constant.CASStatusInactive)
		c.updateExecuted = false
		return nil
	}

	var err error
	if c.casInfo.Status() != constant.CASStatusInactive {
		if err = c.checkReconnect(ctx); err == nil && c.casInfo.IsActive() {
			typ := constant.EndTranRollback
			if commit {
				typ = constant.EndTranCommit
			}
			err = c.request(ctx, constant.FCEndTransaction, func(out *packet.OutputBuffer) error {
				out.AddByte(typ)
				return nil
			}, nil)
		}
	}

	keep := c.brokerInfo.KeepConnection()
	if c.activeHost > 0 && c.conf.ReconnectTime > 0 && time.Since(c.lastRCTime) > c.conf.ReconnectTime {
		// give the primary a chance again
		log.Infof("connected to alternate host %s for more than %s, reconnecting", c.activeAddr, c.conf.ReconnectTime)
		c.dctx.ForgetLastConnectInfo(c.conf.URL)
		keep = false
		c.lastRCTime = time.Now()
	}
	if err != nil || !keep {
		if !commit {
			// a rollback on a dead socket is still a rollback
			err = nil
		}
		c.clientSocketClose()
	}

	c.casInfo.SetStatus(constant.CASStatusInactive)
	c.updateExecuted = false
	return err
}

// SetIsolationLevel changes the isolation level, kept across reconnects.
func (c *Connection) SetIsolationLevel(ctx context.Context, level int32) error {
	if level < constant.TranCommitClassUncommitInstance || level > constant.TranSerializable {
		return err2.NewDriverError(constant.ErIsolationLevel, "unknown isolation level %d", level)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReconnect(ctx); err != nil {
		return err
	}
	if err := c.setDBParameter(ctx, constant.ParamIsolationLevel, level); err != nil {
		return err
	}
	c.isolationLevel = level
	return nil
}

func (c *Connection) IsolationLevel(ctx context.Context) (int32, error) {
	return c.dbParameter(ctx, constant.ParamIsolationLevel)
}

// SetLockTimeout changes the lock timeout in milliseconds; negative means
// wait forever.
func (c *Connection) SetLockTimeout(ctx context.Context, timeout int32) error {
	if timeout < 0 {
		timeout = constant.LockTimeoutInfinite
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReconnect(ctx); err != nil {
		return err
	}
	if err := c.setDBParameter(ctx, constant.ParamLockTimeout, timeout); err != nil {
		return err
	}
	c.lockTimeout = timeout
	return nil
}

func (c *Connection) LockTimeout(ctx context.Context) (int32, error) {
	return c.dbParameter(ctx, constant.ParamLockTimeout)
}

func (c *Connection) dbParameter(ctx context.Context, param int32) (int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReconnect(ctx); err != nil {
		return 0, err
	}
	var value int32
	err := c.request(ctx, constant.FCGetDBParameter, func(out *packet.OutputBuffer) error {
		out.AddInt(param)
		return nil
	}, func(in *packet.InputBuffer) (err error) {
		value, err = in.ReadInt()
		return err
	})
	return value, err
}

func (c *Connection) setDBParameter(ctx context.Context, param, value int32) error {
	return c.request(ctx, constant.FCSetDBParameter, func(out *packet.OutputBuffer) error {
		out.AddInt(param)
		out.AddInt(value)
		return nil
	}, nil)
}

// restoreParameters re-applies what the user set on an earlier session.
func (c *Connection) restoreParameters(ctx context.Context) error {
	if c.isolationLevel != constant.TranUnknownIsolation {
		if err := c.setDBParameter(ctx, constant.ParamIsolationLevel, c.isolationLevel); err != nil {
			return err
		}
	}
	if c.lockTimeout != constant.LockTimeoutNotUsed {
		if err := c.setDBParameter(ctx, constant.ParamLockTimeout, c.lockTimeout); err != nil {
			return err
		}
	}
	return nil
}

// DBVersion returns the version string of the database server.
func (c *Connection) DBVersion(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReconnect(ctx); err != nil {
		return "", err
	}
	var version string
	err := c.request(ctx, constant.FCGetDBVersion, func(out *packet.OutputBuffer) error {
		out.AddByte(boolByte(c.autoCommit))
		return nil
	}, func(in *packet.InputBuffer) (err error) {
		version, err = in.ReadString(in.Remaining())
		return err
	})
	return version, err
}

// checkCASLocked sends a bare CHECK_CAS and reports whether the broker
// answered it.
func (c *Connection) checkCASLocked(ctx context.Context) bool {
	if err := c.request(ctx, constant.FCCheckCAS, nil, nil); err != nil {
		log.Debugf("CHECK_CAS to %s failed: %v", c.activeAddr, err)
		return false
	}
	return true
}

// CheckCAS sends msg in a CHECK_CAS request.
func (c *Connection) CheckCAS(ctx context.Context, msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipCheckCAS = true
	if err := c.checkReconnect(ctx); err != nil {
		return err
	}
	return c.request(ctx, constant.FCCheckCAS, func(out *packet.OutputBuffer) error {
		_, err := out.AddString(msg)
		return err
	}, nil)
}

// EndSession drops the server session; the next connect starts a new one.
func (c *Connection) EndSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReconnect(ctx); err != nil {
		return err
	}
	if err := c.request(ctx, constant.FCEndSession, nil, nil); err != nil {
		return err
	}
	c.sessionID = 0
	return nil
}

// QueryPlanOnly asks for the plan of sql without preparing it.
func (c *Connection) QueryPlanOnly(ctx context.Context, sql string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkReconnect(ctx); err != nil {
		return "", err
	}
	var plan string
	err := c.request(ctx, constant.FCGetQueryInfo, func(out *packet.OutputBuffer) error {
		out.AddInt(0)
		out.AddByte(constant.QueryInfoPlan)
		_, err := out.AddString(sql)
		return err
	}, func(in *packet.InputBuffer) (err error) {
		plan, err = in.ReadString(in.Remaining())
		return err
	})
	return plan, err
}

// resultCache returns the URL cache shared with every connection to the
// same broker as the same user.
func (c *Connection) resultCache() *cache.URLCache {
	if c.urlCache == nil {
		c.urlCache = c.dctx.URLCache(c.conf.URLKey())
	}
	return c.urlCache
}

// cancelTarget returns where Cancel goes, nil before the first connect.
func (c *Connection) cancelTarget() *cancelTarget {
	if t, ok := c.target.Load().(*cancelTarget); ok {
		return t
	}
	return nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
