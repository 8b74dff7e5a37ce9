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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/cectc/cubrid-go/pkg/cas"
	"github.com/cectc/cubrid-go/pkg/constant"
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/packet"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func dataAt(sec int32, rows int32) *Data {
	return &Data{
		TotalTupleNumber: rows,
		CacheTime:        packet.CacheTime{Sec: sec},
		Tuples:           []*cas.Tuple{{Index: 1, Values: []packet.Value{packet.IntValue(rows)}}},
	}
}

func TestPutRecencyWins(t *testing.T) {
	entry := newResCache("k")
	expire := time.Now().Add(time.Minute)

	assert.True(t, entry.Put(dataAt(20, 2), expire))
	// an older result arriving later must not replace the newer one
	assert.False(t, entry.Put(dataAt(10, 1), expire))
	assert.Equal(t, int32(2), entry.Data().TotalTupleNumber)
	assert.Equal(t, packet.CacheTime{Sec: 20}, entry.CacheTime())

	// same time does not overwrite either
	assert.False(t, entry.Put(dataAt(20, 3), expire))
	assert.True(t, entry.Put(dataAt(30, 4), expire))
	assert.Equal(t, int32(4), entry.Data().TotalTupleNumber)
}

func TestPutConcurrent(t *testing.T) {
	entry := newResCache("k")
	expire := time.Now().Add(time.Minute)
	var wg sync.WaitGroup
	for i := int32(1); i <= 50; i++ {
		wg.Add(1)
		go func(sec int32) {
			defer wg.Done()
			entry.Put(dataAt(sec, sec), expire)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(50), entry.Data().TotalTupleNumber)
}

func TestBindKey(t *testing.T) {
	key := func(values ...packet.Value) string {
		k, err := BindKey(values)
		assert.Nil(t, err)
		return k
	}
	sequence := func(elements ...packet.Value) packet.Value {
		return packet.CollectionValue(constant.TypeSequence, constant.TypeString, elements)
	}

	cases := map[string]struct {
		a, b  []packet.Value
		equal bool
	}{
		"same values": {
			a:     []packet.Value{packet.IntValue(1), packet.StringValue("x;y")},
			b:     []packet.Value{packet.IntValue(1), packet.StringValue("x;y")},
			equal: true,
		},
		"different type": {
			a: []packet.Value{packet.IntValue(1)},
			b: []packet.Value{packet.BigIntValue(1)},
		},
		"null and text null": {
			a: []packet.Value{packet.NullValue(constant.TypeString)},
			b: []packet.Value{packet.StringValue("NULL")},
		},
		"element holding a separator": {
			a: []packet.Value{sequence(packet.StringValue("a, b"))},
			b: []packet.Value{sequence(packet.StringValue("a"), packet.StringValue("b"))},
		},
		"null element and text null element": {
			a: []packet.Value{sequence(packet.NullValue(constant.TypeString))},
			b: []packet.Value{sequence(packet.StringValue("NULL"))},
		},
		"split across values": {
			a: []packet.Value{packet.StringValue("ab"), packet.StringValue("c")},
			b: []packet.Value{packet.StringValue("a"), packet.StringValue("bc")},
		},
	}
	for caseTitle, tc := range cases {
		t.Run(caseTitle, func(t *testing.T) {
			assert.Equal(t, tc.equal, key(tc.a...) == key(tc.b...))
		})
	}
	assert.Equal(t, "", key())

	bad := packet.CollectionValue(constant.TypeSequence, constant.TypeShort, []packet.Value{packet.StringValue("x")})
	_, err := BindKey([]packet.Value{bad})
	assert.Equal(t, constant.ErTypeConversion, err2.Code(err))
}

func TestSweep(t *testing.T) {
	now := time.Now()
	url := NewURLCache()
	stmt := url.StmtCache("select * from t where a = ?")

	expired := stmt.Get("expired")
	expired.Put(dataAt(1, 1), now.Add(-time.Second))
	expired.Unpin()
	used := stmt.Get("used")
	used.Put(dataAt(1, 1), now.Add(-time.Second))
	fresh := stmt.Get("fresh")
	fresh.Put(dataAt(1, 1), now.Add(time.Minute))
	fresh.Unpin()

	assert.Equal(t, 1, url.Sweep(now))
	assert.Equal(t, 2, stmt.Len())

	used.Unpin()
	assert.Equal(t, 1, url.Sweep(now))
	assert.Equal(t, 1, url.Len())

	// once released and empty the statement cache goes too
	stmt.Release()
	assert.Equal(t, 1, url.Sweep(now.Add(2*time.Minute)))
	assert.Equal(t, 0, url.Len())
}

func TestSweepKeepsPendingEntry(t *testing.T) {
	now := time.Now()
	url := NewURLCache()
	stmt := url.StmtCache("select 1")
	defer stmt.Release()

	// an execution holds the empty entry until its result arrives
	pending := stmt.Get("k")
	assert.Equal(t, 0, url.Sweep(now))
	assert.True(t, pending.Put(dataAt(5, 1), now.Add(time.Minute)))
	assert.Same(t, pending, stmt.Get("k"))
	pending.Unpin()
	pending.Unpin()

	// unpinned and still empty, it goes
	empty := stmt.Get("empty")
	empty.Unpin()
	assert.Equal(t, 1, url.Sweep(now))
	assert.Equal(t, 1, stmt.Len())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(10 * time.Millisecond)
	defer r.Close()

	key := URLKey{Host: "127.0.0.1", Port: 33000, DBName: "demodb", User: "dba"}
	u1 := r.URLCache(key)
	u2 := r.URLCache(key)
	assert.Same(t, u1, u2)
	assert.NotSame(t, u1, r.URLCache(URLKey{Host: "127.0.0.1", Port: 33000, DBName: "demodb", User: "public"}))

	stmt := u1.StmtCache("select 1")
	entry := stmt.Get("")
	entry.Put(dataAt(1, 1), time.Now().Add(-time.Second))
	entry.Unpin()
	assert.Eventually(t, func() bool {
		return stmt.Len() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestRegistryCloseTwice(t *testing.T) {
	r := NewRegistry(0)
	r.Close()
	r.Close()
}
