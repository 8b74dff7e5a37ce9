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
	"sync"

	"go.uber.org/atomic"
)

type HandleState int32

const (
	// HandleAvailable slots have no live server handle. The next execute
	// prepares the statement again into the same slot.
	HandleAvailable HandleState = iota
	// HandleHolding slots own a live server handle.
	HandleHolding
)

func (s HandleState) String() string {
	if s == HandleHolding {
		return "holding"
	}
	return "available"
}

// handleSlot is the pooled place of one statement's server handle.
type handleSlot struct {
	sql    string
	handle *atomic.Int32
	state  *atomic.Int32
}

func (s *handleSlot) State() HandleState {
	return HandleState(s.state.Load())
}

func (s *handleSlot) Handle() int32 {
	return s.handle.Load()
}

func (s *handleSlot) hold(handle int32) {
	s.handle.Store(handle)
	s.state.Store(int32(HandleHolding))
}

func (s *handleSlot) release() {
	s.state.Store(int32(HandleAvailable))
}

// handlePool tracks the handle slots of one connection. Each slot belongs
// to exactly one statement for its whole life, so an available slot is
// never handed to another statement; the SQL text only groups slots for
// counting and removal. Slots are touched from the connection side
// without the statement lock, which is why their fields are atomic.
type handlePool struct {
	mu    sync.Mutex
	slots map[string][]*handleSlot
}

func newHandlePool() *handlePool {
	return &handlePool{slots: make(map[string][]*handleSlot)}
}

// add registers a slot holding handle.
func (p *handlePool) add(sql string, handle int32) *handleSlot {
	slot := &handleSlot{
		sql:    sql,
		handle: atomic.NewInt32(handle),
		state:  atomic.NewInt32(int32(HandleHolding)),
	}
	p.mu.Lock()
	p.slots[sql] = append(p.slots[sql], slot)
	p.mu.Unlock()
	return slot
}

// remove forgets slot for good.
func (p *handlePool) remove(slot *handleSlot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	slots := p.slots[slot.sql]
	for i, s := range slots {
		if s == slot {
			slots = append(slots[:i], slots[i+1:]...)
			break
		}
	}
	if len(slots) == 0 {
		delete(p.slots, slot.sql)
		return
	}
	p.slots[slot.sql] = slots
}

// invalidateAll marks every slot available, the server side handles being
// gone with the socket.
func (p *handlePool) invalidateAll() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, slots := range p.slots {
		for _, slot := range slots {
			if slot.State() == HandleHolding {
				slot.release()
				n++
			}
		}
	}
	return n
}

// count returns the number of slots in state.
func (p *handlePool) count(state HandleState) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, slots := range p.slots {
		for _, slot := range slots {
			if slot.State() == state {
				n++
			}
		}
	}
	return n
}
