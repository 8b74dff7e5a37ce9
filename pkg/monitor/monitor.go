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


package monitor

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cectc/cubrid-go/pkg/driver"
	"github.com/cectc/cubrid-go/pkg/log"
	"github.com/cectc/cubrid-go/pkg/metrics"
)

// Target is the host list of one data source.
type Target struct {
	DataSource string
	Hosts      []string
}

type HostStatus struct {
	DataSource string        `json:"data_source"`
	Host       string        `json:"host"`
	Reachable  bool          `json:"reachable"`
	Latency    time.Duration `json:"latency"`
	Error      string        `json:"error,omitempty"`
	CheckedAt  time.Time     `json:"checked_at"`
}

// Monitor pings the brokers of a set of data sources and keeps the
// outcome of the last round.
type Monitor struct {
	dialer  driver.Dialer
	targets []Target
	timeout time.Duration

	mu     sync.RWMutex
	status []HostStatus
}

func New(dialer driver.Dialer, targets []Target, timeout time.Duration) *Monitor {
	if dialer == nil {
		dialer = driver.NewNetDialer()
	}
	return &Monitor{dialer: dialer, targets: targets, timeout: timeout}
}

// Check pings every host concurrently and returns the statuses in target
// order. An unreachable host is a status, not an error; Check only fails
// when ctx ends first.
func (m *Monitor) Check(ctx context.Context) ([]HostStatus, error) {
	var statuses []HostStatus
	for _, target := range m.targets {
		for _, host := range target.Hosts {
			statuses = append(statuses, HostStatus{DataSource: target.DataSource, Host: host})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range statuses {
		st := &statuses[i]
		g.Go(func() error {
			pingCtx, cancel := context.WithTimeout(gctx, m.timeout)
			defer cancel()
			start := time.Now()
			err := driver.Ping(pingCtx, m.dialer, st.Host)
			st.Latency = time.Since(start)
			st.CheckedAt = time.Now()
			metrics.PingTimer.WithLabelValues(st.Host).Observe(st.Latency.Seconds())
			up := 0.0
			if err == nil {
				st.Reachable = true
				up = 1
			} else {
				st.Error = err.Error()
				log.Debugf("broker %s of %s did not answer: %v", st.Host, st.DataSource, err)
			}
			metrics.BrokerUp.WithLabelValues(st.DataSource, st.Host).Set(up)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.status = statuses
	m.mu.Unlock()
	return statuses, nil
}

// Run checks every interval until ctx ends.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := m.Check(ctx); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Status returns the statuses of the last completed round.
func (m *Monitor) Status() []HostStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]HostStatus, len(m.status))
	copy(out, m.status)
	return out
}

// Ready reports whether every data source had a reachable host in the
// last round. It is false before the first round.
func (m *Monitor) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.status) == 0 {
		return false
	}
	reachable := make(map[string]bool, len(m.targets))
	for _, st := range m.status {
		reachable[st.DataSource] = reachable[st.DataSource] || st.Reachable
	}
	for _, target := range m.targets {
		if len(target.Hosts) > 0 && !reachable[target.DataSource] {
			return false
		}
	}
	return true
}
