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
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/cectc/cubrid-go/pkg/cache"
	"github.com/cectc/cubrid-go/pkg/cas"
	"github.com/cectc/cubrid-go/pkg/constant"
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/log"
	"github.com/cectc/cubrid-go/pkg/metrics"
	"github.com/cectc/cubrid-go/pkg/packet"
)

// ExecuteOptions select how EXECUTE runs the statement.
type ExecuteOptions struct {
	Async      bool
	ExecuteAll bool
	Sensitive  bool
	Scrollable bool
	QueryInfo  bool
	OnlyPlan   bool
	// UseCache serves the result from the client side cache when the
	// broker confirms it is still current.
	UseCache bool

	// MaxRows caps the reported tuple count, zero for no cap.
	MaxRows int32
	// MaxField truncates long values on the server, zero for no limit.
	MaxField int32
}

type FetchDirection int

const (
	FetchForward FetchDirection = iota
	FetchReverse
)

// Statement is a prepared statement together with its result cursor.
// Calls on one statement are serialized by mu, which is always taken
// before the connection lock.
type Statement struct {
	conn *Connection

	mu          sync.Mutex
	kind        constant.StatementKind
	sql         string
	prepareFlag byte
	slot        *handleSlot
	closed      *atomic.Bool

	commandType      constant.CommandType
	firstCommandType constant.CommandType
	paramCount       int
	updatable        bool
	columns          []*cas.ColumnInfo
	columnIndex      map[string]int

	params     []packet.Value
	bound      []bool
	paramModes []byte
	batch      [][]packet.Value

	opts          ExecuteOptions
	executeFlag   byte
	resultInfos   []*cas.ResultInfo
	executeResult int32

	totalTupleNumber   int32
	fetchSize          int32
	direction          FetchDirection
	cursorPosition     int32
	currentFirstCursor int32
	fetchedTupleNumber int32
	tuples             []*cas.Tuple
	realFetched        bool
	fetchCompleted     bool
	wasNull            bool

	cacheLifetime int32
	stmtCache     *cache.StmtCache
	resCache      *cache.ResCache
}

// prepareResult is the statement description PREPARE answers with.
type prepareResult struct {
	handle        int32
	cacheLifetime int32
	commandType   constant.CommandType
	paramCount    int32
	updatable     bool
	columns       []*cas.ColumnInfo
}

func newStatement(c *Connection, kind constant.StatementKind) *Statement {
	return &Statement{
		conn:               c,
		kind:               kind,
		closed:             atomic.NewBool(false),
		fetchSize:          c.conf.FetchSize,
		cursorPosition:     -1,
		currentFirstCursor: -1,
	}
}

// Prepare compiles sql on the broker. flag combines the Prepare* flags of
// pkg/constant.
func (c *Connection) Prepare(ctx context.Context, sql string, flag byte) (*Statement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureOpen(); err != nil {
		return nil, err
	}
	if c.conf.HoldCursor {
		flag |= constant.PrepareHoldable
	}
	res, err := c.prepareLocked(ctx, sql, flag)
	if err != nil {
		return nil, err
	}

	s := newStatement(c, constant.StatementNormal)
	s.sql = sql
	s.prepareFlag = flag
	s.applyPrepare(res)
	s.firstCommandType = res.commandType
	s.initParams(s.paramCount)
	s.slot = c.pool.add(sql, res.handle)

	if c.conf.ResultCache && res.cacheLifetime >= 0 &&
		flag&(constant.PrepareIncludeOID|constant.PrepareUpdatable) == 0 {
		s.stmtCache = c.resultCache().StmtCache(sql)
	}
	return s, nil
}

// prepareLocked sends PREPARE, once more after a reconnect-worthy
// failure. A server that went down behind a live broker is only
// abandoned when the broker fails the CAS check too.
func (c *Connection) prepareLocked(ctx context.Context, sql string, flag byte) (*prepareResult, error) {
	for attempt := 0; ; attempt++ {
		c.skipCheckCAS = true
		res, err := c.prepareOnce(ctx, sql, flag)
		if err == nil {
			return res, nil
		}
		if attempt > 0 {
			return nil, err
		}
		switch {
		case err2.ServerCode(err) == constant.ErTMServerDownUnilaterallyAborted:
			if c.State() == StateConnected && !c.checkCASLocked(ctx) {
				c.clientSocketClose()
			}
		case err2.IsReconnectable(err):
			c.clientSocketClose()
		default:
			return nil, err
		}
		metrics.RetryCounter.WithLabelValues("prepare").Inc()
		log.Debugf("retrying prepare after %v", err)
	}
}

func (c *Connection) prepareOnce(ctx context.Context, sql string, flag byte) (*prepareResult, error) {
	if err := c.checkReconnect(ctx); err != nil {
		return nil, err
	}
	if !c.brokerInfo.SupportHoldableResult() {
		flag &^= constant.PrepareHoldable
	}

	deferred := c.deferredClose
	c.deferredClose = nil
	res := &prepareResult{}
	err := c.request(ctx, constant.FCPrepare, func(out *packet.OutputBuffer) error {
		if _, err := out.AddString(sql); err != nil {
			return err
		}
		out.AddByte(flag)
		out.AddByte(boolByte(c.autoCommit))
		for _, handle := range deferred {
			out.AddInt(handle)
		}
		return nil
	}, func(in *packet.InputBuffer) (err error) {
		res.handle = in.ResCode()
		if res.cacheLifetime, err = in.ReadInt(); err != nil {
			return err
		}
		cmd, err := in.ReadByte()
		if err != nil {
			return err
		}
		res.commandType = constant.CommandType(cmd)
		if res.paramCount, err = in.ReadInt(); err != nil {
			return err
		}
		updatable, err := in.ReadByte()
		if err != nil {
			return err
		}
		res.updatable = updatable == 1
		res.columns, err = readColumns(in, constant.StatementNormal)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res.commandType == constant.CommandCallSP {
		res.columns = callColumns(int(res.paramCount))
	}
	return res, nil
}

// readColumns reads a column count and that many descriptions.
func readColumns(in *packet.InputBuffer, kind constant.StatementKind) ([]*cas.ColumnInfo, error) {
	// type, scale, precision and name length
	n, err := in.ReadCount(1 + 2 + 4 + 4)
	if err != nil {
		return nil, err
	}
	return cas.ReadColumnInfo(in, n, kind)
}

// callColumns describes the result of a stored procedure call: the
// return value followed by one column per parameter, each value typed
// on the wire.
func callColumns(params int) []*cas.ColumnInfo {
	columns := make([]*cas.ColumnInfo, params+1)
	for i := range columns {
		columns[i] = &cas.ColumnInfo{Type: constant.TypeNull, Nullable: true}
	}
	return columns
}

func (s *Statement) applyPrepare(res *prepareResult) {
	s.cacheLifetime = res.cacheLifetime
	s.commandType = res.commandType
	s.updatable = res.updatable
	s.setColumns(res.columns)
	if n := int(res.paramCount); n != s.paramCount && s.params != nil {
		// the statement changed shape behind our back
		s.initParams(n)
	}
	s.paramCount = int(res.paramCount)
}

func (s *Statement) setColumns(columns []*cas.ColumnInfo) {
	s.columns = columns
	s.columnIndex = cas.ColumnIndexes(columns)
}

// Execute runs the statement with the bound parameters. A transient
// transport failure is retried once on a fresh socket when no
// transaction work can be lost by doing so.
func (s *Statement) Execute(ctx context.Context, opts ExecuteOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return err
	}
	if s.kind == constant.StatementGetSchemaInfo {
		return nil
	}
	if err := s.checkAllBound(); err != nil {
		return err
	}
	s.releaseResCache()
	s.setExecuteOptions(opts)

	start := time.Now()
	err := s.withRetry(ctx, "execute", s.executeOnce)
	s.logSlowQuery(start)
	return err
}

// ExecuteInsert runs an INSERT and returns the OID of the new row.
func (s *Statement) ExecuteInsert(ctx context.Context) (packet.OID, error) {
	s.mu.Lock()
	cmd := s.commandType
	s.mu.Unlock()
	if cmd != constant.CommandInsert {
		return packet.OID{}, err2.ErrCmdIsNotInsert
	}
	if err := s.Execute(ctx, ExecuteOptions{}); err != nil {
		return packet.OID{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.resultInfos) == 0 {
		return packet.OID{}, err2.ErrOIDNotIncluded
	}
	return s.resultInfos[0].OID, nil
}

// withRetry runs op once more after a reconnect-worthy failure if the
// transaction had not done anything yet, and once more again after the
// broker dropped a pooled handle.
func (s *Statement) withRetry(ctx context.Context, name string, op func(ctx context.Context) error) error {
	c := s.conn
	if err := s.ensurePrepared(ctx); err != nil {
		return err
	}

	firstInTran := !c.casInfo.IsActive()
	err := op(ctx)
	if err != nil && err2.IsReconnectable(err) {
		if !c.brokerInfo.ReconnectWhenServerDown() || !err2.IsServerDown(err) {
			c.clientSocketClose()
		}
		if !c.casInfo.IsActive() || firstInTran {
			metrics.RetryCounter.WithLabelValues(name).Inc()
			log.Warnf("%s of %q failed, retrying once: %v", name, s.sql, err)
			if err = s.reprepare(ctx); err == nil {
				err = op(ctx)
			}
			if err != nil && err2.IsReconnectable(err) {
				return err2.WrapDriverError(constant.ErConnection, err)
			}
		}
	}
	if err != nil && c.brokerInfo.StatementPooling() && err2.IsStatementPooling(err) {
		metrics.RetryCounter.WithLabelValues("statement_pooling").Inc()
		if err = s.reprepare(ctx); err == nil {
			err = op(ctx)
		}
	}
	return err
}

func (s *Statement) setExecuteOptions(opts ExecuteOptions) {
	s.opts = opts
	s.executeFlag = 0
	if opts.Async {
		s.executeFlag |= constant.ExecuteAsync
	}
	if opts.ExecuteAll {
		s.executeFlag |= constant.ExecuteQueryAll
	}
	if opts.QueryInfo {
		s.executeFlag |= constant.ExecuteQueryInfo
	}
	if opts.OnlyPlan {
		s.executeFlag |= constant.ExecuteQueryInfo | constant.ExecuteOnlyQueryPlan
	}
	if s.prepareFlag&constant.PrepareHoldable != 0 && s.conn.brokerInfo.SupportHoldableResult() {
		s.executeFlag |= constant.ExecuteHoldable
	}
}

func (s *Statement) resetCursor() {
	s.currentFirstCursor = -1
	s.fetchedTupleNumber = 0
	s.tuples = nil
	s.realFetched = false
	s.fetchCompleted = false
	s.cursorPosition = -1
	if s.firstCommandType == constant.CommandCallSP {
		s.cursorPosition = 0
	}
}

func (s *Statement) executeOnce(ctx context.Context) error {
	c := s.conn
	s.resetCursor()

	var entry *cache.ResCache
	if s.cacheable() {
		if key, err := cache.BindKey(s.params); err == nil {
			entry = s.stmtCache.Get(key)
		}
	}
	served := false
	defer func() {
		if entry != nil && !served {
			entry.Unpin()
		}
	}()

	var reusable bool
	err := c.request(ctx, constant.FCExecute, func(out *packet.OutputBuffer) error {
		return s.writeExecuteRequest(ctx, out, entry)
	}, func(in *packet.InputBuffer) error {
		b, err := in.ReadByte()
		if err != nil {
			return err
		}
		reusable = b == 1
		if s.resultInfos, err = cas.ReadResultInfo(in); err != nil {
			return err
		}
		if err = s.readResultMeta(in); err != nil {
			return err
		}
		if c.brokerInfo.ProtoVersionIsAbove(constant.ProtocolV5) {
			// shard id
			if _, err = in.ReadInt(); err != nil {
				return err
			}
		}

		s.executeResult = in.ResCode()
		if s.opts.MaxRows > 0 && s.executeResult > s.opts.MaxRows {
			s.executeResult = s.opts.MaxRows
		}
		s.totalTupleNumber = s.executeResult
		s.batch = nil

		if reusable && entry != nil && entry.Data() != nil {
			return nil
		}
		if s.commandType == constant.CommandSelect && s.totalTupleNumber > 0 {
			// fetch result code
			if _, err = in.ReadInt(); err != nil {
				return err
			}
			return s.readFetchData(in, false)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, info := range s.resultInfos {
		if info.StatementType != constant.CommandSelect {
			c.updateExecuted = true
			break
		}
	}

	if entry == nil {
		return nil
	}
	if reusable && entry.Data() != nil {
		// the statement keeps the pin until its result is released
		served = true
		s.serveFromCache(entry)
		return nil
	}
	metrics.ResultCacheCounter.WithLabelValues(metrics.CacheMiss).Inc()
	s.storeInCache(entry)
	return nil
}

func (s *Statement) writeExecuteRequest(ctx context.Context, out *packet.OutputBuffer, entry *cache.ResCache) error {
	c := s.conn
	out.AddInt(s.slot.Handle())
	out.AddByte(s.executeFlag)
	maxField := s.opts.MaxField
	if maxField < 0 {
		maxField = 0
	}
	out.AddInt(maxField)
	out.AddInt(0)
	if s.firstCommandType == constant.CommandCallSP && len(s.paramModes) > 0 {
		out.AddBytes(s.paramModes)
	} else {
		out.AddNull()
	}
	out.AddByte(boolByte(s.firstCommandType == constant.CommandSelect))
	out.AddByte(boolByte(c.autoCommit))
	out.AddByte(boolByte(!s.opts.Scrollable))
	var cacheTime packet.CacheTime
	if entry != nil {
		cacheTime = entry.CacheTime()
	}
	out.AddCacheTime(cacheTime)

	remaining, err := c.remainingTime(ctx)
	if err != nil {
		return err
	}
	switch {
	case c.brokerInfo.ProtoVersionIsAbove(constant.ProtocolV2):
		out.AddInt(int32(remaining / time.Millisecond))
	case c.brokerInfo.ProtoVersionIsAbove(constant.ProtocolV1):
		out.AddInt(int32((remaining + time.Second - 1) / time.Second))
	default:
		out.AddInt(0)
	}

	for _, v := range s.params {
		if _, err := out.AddBindParameter(v); err != nil {
			return err
		}
	}
	return nil
}

// remainingTime is how long the server may spend on the request, zero
// when unbounded.
func (c *Connection) remainingTime(ctx context.Context) (time.Duration, error) {
	dl := c.deadline(ctx)
	if dl.IsZero() {
		return 0, nil
	}
	remaining := time.Until(dl)
	if remaining <= 0 {
		return 0, err2.NewDriverError(constant.ErTimeout, "no time left to run the query")
	}
	return remaining, nil
}

// readResultMeta reads the statement description a broker sends along
// with the result when the statement was recompiled for this execution.
func (s *Statement) readResultMeta(in *packet.InputBuffer) error {
	if !s.conn.brokerInfo.ProtoVersionIsAbove(constant.ProtocolV2) {
		return nil
	}
	include, err := in.ReadByte()
	if err != nil || include != 1 {
		return err
	}
	// result cache lifetime
	if _, err = in.ReadInt(); err != nil {
		return err
	}
	cmd, err := in.ReadByte()
	if err != nil {
		return err
	}
	s.commandType = constant.CommandType(cmd)
	// parameter count
	if _, err = in.ReadInt(); err != nil {
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
	if s.commandType == constant.CommandCallSP {
		columns = callColumns(s.paramCount)
	}
	s.setColumns(columns)
	return nil
}

// cacheable reports whether this execution may use the result cache.
func (s *Statement) cacheable() bool {
	return s.opts.UseCache && s.stmtCache != nil && !s.conn.updateExecuted &&
		s.firstCommandType == constant.CommandSelect
}

func (s *Statement) serveFromCache(entry *cache.ResCache) {
	data := entry.Data()
	s.resCache = entry
	metrics.ResultCacheCounter.WithLabelValues(metrics.CacheHit).Inc()

	s.resultInfos = data.ResultInfos
	s.setColumns(data.Columns)
	s.tuples = data.Tuples
	s.totalTupleNumber = data.TotalTupleNumber
	s.executeResult = data.TotalTupleNumber
	s.fetchedTupleNumber = int32(len(data.Tuples))
	s.currentFirstCursor = 0
	s.cursorPosition = -1
	s.realFetched = true
}

// storeInCache keeps a fully fetched single result.
func (s *Statement) storeInCache(entry *cache.ResCache) {
	if len(s.resultInfos) != 1 || s.fetchedTupleNumber != s.totalTupleNumber ||
		s.currentFirstCursor > 0 || s.cacheLifetime < 0 {
		return
	}
	data := &cache.Data{
		ResultInfos:      s.resultInfos,
		Columns:          s.columns,
		Tuples:           s.tuples,
		TotalTupleNumber: s.totalTupleNumber,
		CacheTime:        s.resultInfos[0].CacheTime,
	}
	expireAt := time.Now().Add(time.Duration(s.cacheLifetime) * time.Second)
	if entry.Put(data, expireAt) {
		metrics.ResultCacheCounter.WithLabelValues(metrics.CachePut).Inc()
	}
}

func (s *Statement) releaseResCache() {
	if s.resCache != nil {
		s.resCache.Unpin()
		s.resCache = nil
	}
}

func (s *Statement) logSlowQuery(start time.Time) {
	if !s.conn.conf.LogSlowQueries {
		return
	}
	if elapsed := time.Since(start); elapsed > s.conn.conf.SlowQueryThreshold {
		log.Warnf("slow query (%s): %s", elapsed, s.sql)
	}
}

func (s *Statement) ensureOpen() error {
	if err := s.conn.ensureOpen(); err != nil {
		return err
	}
	if !s.closed.Load() {
		return nil
	}
	if s.kind == constant.StatementNormal && s.slot != nil && s.conn.brokerInfo.StatementPooling() {
		// closed statements stay usable and prepare again on demand
		return nil
	}
	return err2.ErrIsClosed
}

// ensurePrepared makes sure the slot holds a live handle, preparing the
// statement again when the socket was lost or the handle was released.
func (s *Statement) ensurePrepared(ctx context.Context) error {
	if s.slot == nil {
		return err2.ErrIsClosed
	}
	if s.conn.State() == StateConnected && s.slot.State() == HandleHolding {
		return nil
	}
	if s.kind != constant.StatementNormal {
		return err2.ErrIsClosed
	}
	return s.reprepare(ctx)
}

// reprepare replaces the server handle, keeping bound values and the slot.
func (s *Statement) reprepare(ctx context.Context) error {
	c := s.conn
	if s.slot.State() == HandleHolding && c.State() == StateConnected {
		s.closeHandle(ctx)
	}
	res, err := c.prepareLocked(ctx, s.sql, s.prepareFlag)
	if err != nil {
		return err
	}
	s.applyPrepare(res)
	s.slot.hold(res.handle)
	s.closed.Store(false)
	return nil
}

// requireHandle guards requests addressing the server handle.
func (s *Statement) requireHandle() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if s.closed.Load() || s.slot == nil || s.slot.State() != HandleHolding ||
		s.conn.State() != StateConnected {
		return err2.ErrIsClosed
	}
	return nil
}

// closeHandle frees the server handle. Under auto commit the broker frees
// a query handle with its result, and other handles are closed along with
// the next PREPARE to spare a round trip.
func (s *Statement) closeHandle(ctx context.Context) {
	c := s.conn
	handle := s.slot.Handle()
	s.slot.release()
	holdable := s.prepareFlag&constant.PrepareHoldable != 0 && c.brokerInfo.SupportHoldableResult()
	if c.autoCommit && !c.brokerInfo.StatementPooling() && !holdable {
		return
	}
	if !s.commandType.IsQuery() {
		c.deferredClose = append(c.deferredClose, handle)
		return
	}
	err := c.request(ctx, constant.FCCloseStatement, func(out *packet.OutputBuffer) error {
		out.AddInt(handle)
		out.AddByte(boolByte(c.autoCommit))
		return nil
	}, nil)
	if err != nil {
		log.Debugf("closing handle %d failed: %v", handle, err)
	}
}

// Close releases the server handle. With statement pooling the statement
// keeps its slot and prepares again when executed; otherwise it is done.
func (s *Statement) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conn
	c.mu.Lock()
	defer c.mu.Unlock()

	if s.closed.Load() {
		return nil
	}
	s.releaseResCache()
	if s.kind == constant.StatementGetAutoIncrementKeys {
		// the handle belongs to the statement that ran the INSERT
		s.tuples = nil
		s.closed.Store(true)
		return nil
	}
	if s.slot != nil && s.slot.State() == HandleHolding && c.State() == StateConnected {
		s.closeHandle(ctx)
	}
	s.tuples = nil
	s.batch = nil
	s.totalTupleNumber, s.fetchedTupleNumber = 0, 0
	s.cursorPosition, s.currentFirstCursor = -1, -1
	s.closed.Store(true)

	if s.slot != nil && s.kind == constant.StatementNormal && c.brokerInfo.StatementPooling() {
		return nil
	}
	if s.slot != nil {
		c.pool.remove(s.slot)
	}
	if s.stmtCache != nil {
		s.stmtCache.Release()
		s.stmtCache = nil
	}
	return nil
}

func (s *Statement) IsClosed() bool {
	return s.closed.Load()
}

func (s *Statement) SQL() string {
	return s.sql
}

func (s *Statement) CommandType() constant.CommandType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commandType
}

func (s *Statement) ParamCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paramCount
}

func (s *Statement) Updatable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatable
}

// ColumnInfo describes the result columns.
func (s *Statement) ColumnInfo() []*cas.ColumnInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.columns
}

// ColumnIndex resolves a column name, ignoring case. The first of several
// columns with the same name wins.
func (s *Statement) ColumnIndex(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.columnIndex[strings.ToLower(name)]; ok {
		return i, nil
	}
	return -1, err2.NewDriverError(constant.ErColumnIndex, "no column named %q", name)
}

func (s *Statement) ResultInfo() []*cas.ResultInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultInfos
}

// ExecuteResult is the row count of the last execution: tuples selected
// or rows changed.
func (s *Statement) ExecuteResult() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executeResult
}

func (s *Statement) TotalTupleNumber() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalTupleNumber
}

// Cancel aborts the request this statement's connection is blocked on.
func (s *Statement) Cancel(ctx context.Context) error {
	return s.conn.Cancel(ctx)
}
