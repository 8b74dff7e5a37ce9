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

package lb

import (
	"bytes"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// Policy decides in which order the hosts of a connection are tried.
type Policy int32

const (
	// Sequential tries the primary host first, then the alternates in order.
	Sequential Policy = iota
	Random
	RoundRobin
)

func (p Policy) String() string {
	switch p {
	case Sequential:
		return "Sequential"
	case Random:
		return "Random"
	case RoundRobin:
		return "RoundRobin"
	}
	return fmt.Sprintf("Policy(%d)", int32(p))
}

func (p *Policy) UnmarshalText(text []byte) error {
	if p == nil {
		return errors.New("can't unmarshal a nil *Policy")
	}
	if !p.unmarshalText(bytes.ToLower(text)) {
		return fmt.Errorf("unrecognized load balance policy: %s", text)
	}
	return nil
}

func (p *Policy) unmarshalText(text []byte) bool {
	policy := string(text)
	switch {
	case policy == "", strings.EqualFold(policy, "Sequential"), policy == "false", policy == "off":
		*p = Sequential
	case strings.EqualFold(policy, "Random"), policy == "true", policy == "on":
		*p = Random
	case strings.EqualFold(policy, "RoundRobin"):
		*p = RoundRobin
	default:
		return false
	}
	return true
}

// Interface orders n hosts. Order returns a permutation of [0, n).
type Interface interface {
	Order(n int) []int
}

type SequentialAlgorithm struct{}

func (SequentialAlgorithm) Order(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

type RandomAlgorithm struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (r *RandomAlgorithm) Order(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Perm(n)
}

// RoundRobinAlgorithm rotates the starting host on every call while
// keeping the relative order of the others.
type RoundRobinAlgorithm struct {
	counter *atomic.Int64
}

func (r *RoundRobinAlgorithm) Order(n int) []int {
	if n == 0 {
		return nil
	}
	start := int((r.counter.Inc() - 1) % int64(n))
	order := make([]int, n)
	for i := range order {
		order[i] = (start + i) % n
	}
	return order
}

func New(policy Policy) (Interface, error) {
	switch policy {
	case Sequential:
		return SequentialAlgorithm{}, nil
	case Random:
		return &RandomAlgorithm{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}, nil
	case RoundRobin:
		return &RoundRobinAlgorithm{counter: atomic.NewInt64(0)}, nil
	default:
		return nil, errors.Errorf("unsupported load balance policy %d", policy)
	}
}
