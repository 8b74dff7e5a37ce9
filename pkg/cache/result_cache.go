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

package cache

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/cectc/cubrid-go/pkg/cas"
	"github.com/cectc/cubrid-go/pkg/packet"
)

// Data is a cached result: the tuples of one execution together with the
// cache time the broker stamped it with.
type Data struct {
	ResultInfos      []*cas.ResultInfo
	Columns          []*cas.ColumnInfo
	Tuples           []*cas.Tuple
	TotalTupleNumber int32
	CacheTime        packet.CacheTime
}

// BindKey renders bound values into a map key. The key is the bind
// parameter wire encoding of every value, which is tag and length
// prefixed, so two value lists share a key exactly when they hold the
// same typed values in the same order.
func BindKey(values []packet.Value) (string, error) {
	out := packet.NewOutputBuffer(nil)
	for _, v := range values {
		if _, err := out.AddBindParameter(v); err != nil {
			return "", err
		}
	}
	return string(out.Bytes()), nil
}

// ResCache holds the cached result for one bind key.
type ResCache struct {
	key      string
	mu       sync.RWMutex
	data     *Data
	expireAt time.Time
	pins     *atomic.Int32
}

func newResCache(key string) *ResCache {
	return &ResCache{key: key, pins: atomic.NewInt32(0)}
}

func (r *ResCache) Key() string {
	return r.key
}

// Data returns the cached result, nil when nothing was stored yet.
func (r *ResCache) Data() *Data {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data
}

// CacheTime is the cache time of the stored result, zero when empty.
func (r *ResCache) CacheTime() packet.CacheTime {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.data == nil {
		return packet.CacheTime{}
	}
	return r.data.CacheTime
}

// Put stores data unless the entry already holds a result with a more
// recent cache time. Puts race between statements sharing the entry, so
// the newest server state wins rather than the last arrival. It reports
// whether data was stored.
func (r *ResCache) Put(data *Data, expireAt time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data != nil && !data.CacheTime.After(r.data.CacheTime) {
		return false
	}
	r.data = data
	r.expireAt = expireAt
	return true
}

// Pin marks the entry as used by one more statement. Pinned entries,
// including empty ones waiting for a result, survive sweeps.
func (r *ResCache) Pin() {
	r.pins.Inc()
}

// Unpin drops a pin taken with Pin or StmtCache.Get.
func (r *ResCache) Unpin() {
	r.pins.Dec()
}

func (r *ResCache) InUse() bool {
	return r.pins.Load() > 0
}

// Expired reports whether a sweep at now may drop the entry.
func (r *ResCache) Expired(now time.Time) bool {
	if r.InUse() {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data == nil || now.After(r.expireAt)
}

// StmtCache holds the results of one SQL text, keyed by bound values.
type StmtCache struct {
	sql      string
	refCount *atomic.Int32
	mu       sync.Mutex
	entries  map[string]*ResCache
}

func newStmtCache(sql string) *StmtCache {
	return &StmtCache{
		sql:      sql,
		refCount: atomic.NewInt32(0),
		entries:  make(map[string]*ResCache),
	}
}

func (s *StmtCache) SQL() string {
	return s.sql
}

// Get returns the entry of key pinned, creating an empty one on first
// use. The caller unpins it when done.
func (s *StmtCache) Get(key string) *ResCache {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		entry = newResCache(key)
		s.entries[key] = entry
	}
	entry.Pin()
	return entry
}

// Release drops the reference a statement took with URLCache.StmtCache.
func (s *StmtCache) Release() {
	s.refCount.Dec()
}

// Len is the number of entries.
func (s *StmtCache) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *StmtCache) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// URLCache groups the statement caches of one host, port, database and
// user combination.
type URLCache struct {
	mu    sync.Mutex
	stmts map[string]*StmtCache
}

func NewURLCache() *URLCache {
	return &URLCache{stmts: make(map[string]*StmtCache)}
}

// StmtCache returns the cache of sql and takes a reference on it.
func (u *URLCache) StmtCache(sql string) *StmtCache {
	u.mu.Lock()
	defer u.mu.Unlock()
	stmt, ok := u.stmts[sql]
	if !ok {
		stmt = newStmtCache(sql)
		u.stmts[sql] = stmt
	}
	stmt.refCount.Inc()
	return stmt
}

// Sweep drops expired entries and the statement caches nobody references
// any more. It returns the number of dropped entries.
func (u *URLCache) Sweep(now time.Time) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	removed := 0
	for sql, stmt := range u.stmts {
		removed += stmt.sweep(now)
		if stmt.refCount.Load() <= 0 && stmt.Len() == 0 {
			delete(u.stmts, sql)
		}
	}
	return removed
}

// Len is the number of statement caches.
func (u *URLCache) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.stmts)
}
