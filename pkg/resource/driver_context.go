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

package resource

import (
	"context"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/cectc/cubrid-go/pkg/cache"
	"github.com/cectc/cubrid-go/pkg/constant"
	"github.com/cectc/cubrid-go/pkg/log"
	"github.com/cectc/cubrid-go/pkg/metrics"
)

// Prober checks whether a broker at addr answers.
type Prober func(ctx context.Context, addr string) error

type Options struct {
	// UnreachableTTL is how long a failed host stays out of the failover
	// rotation unless a probe clears it earlier.
	UnreachableTTL time.Duration
	SweepInterval  time.Duration
	ProbeInterval  time.Duration
	Prober         Prober
}

// DriverContext holds the state every connection of a process shares:
// the unreachable host registry, the last host each URL connected to and
// the result caches. Connections get it passed in; nothing in the driver
// reaches for a package level singleton except through Default.
type DriverContext struct {
	unreachable *gocache.Cache
	lastConnect *gocache.Cache
	results     *cache.Registry

	probeInterval time.Duration
	prober        Prober

	once sync.Once
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewDriverContext(opts Options) *DriverContext {
	if opts.UnreachableTTL <= 0 {
		opts.UnreachableTTL = constant.DefaultUnreachableTTL
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = constant.DefaultProbeInterval
	}
	// no janitor goroutines: expired marks are invisible to Get and the
	// probe loop deletes them
	ctx := &DriverContext{
		unreachable:   gocache.New(opts.UnreachableTTL, 0),
		lastConnect:   gocache.New(gocache.NoExpiration, 0),
		results:       cache.NewRegistry(opts.SweepInterval),
		probeInterval: opts.ProbeInterval,
		prober:        opts.Prober,
		stop:          make(chan struct{}),
	}
	if ctx.prober != nil {
		ctx.wg.Add(1)
		go ctx.probeLoop()
	}
	return ctx
}

// MarkUnreachable excludes addr from failover until the TTL passes or a
// probe succeeds.
func (d *DriverContext) MarkUnreachable(addr string) {
	d.unreachable.SetDefault(addr, time.Now())
	metrics.UnreachableHosts.Set(float64(d.unreachable.ItemCount()))
	log.Warnf("broker %s marked unreachable", addr)
}

// ClearUnreachable makes addr eligible again.
func (d *DriverContext) ClearUnreachable(addr string) {
	if _, ok := d.unreachable.Get(addr); !ok {
		return
	}
	d.unreachable.Delete(addr)
	metrics.UnreachableHosts.Set(float64(d.unreachable.ItemCount()))
	log.Infof("broker %s is reachable again", addr)
}

func (d *DriverContext) IsUnreachable(addr string) bool {
	_, ok := d.unreachable.Get(addr)
	return ok
}

// UnreachableHosts lists the hosts currently marked, sorted.
func (d *DriverContext) UnreachableHosts() []string {
	items := d.unreachable.Items()
	hosts := make([]string, 0, len(items))
	for addr := range items {
		hosts = append(hosts, addr)
	}
	sort.Strings(hosts)
	return hosts
}

// SetLastConnectInfo remembers which host a URL last connected to.
func (d *DriverContext) SetLastConnectInfo(url, addr string) {
	d.lastConnect.SetDefault(url, addr)
}

func (d *DriverContext) LastConnectInfo(url string) (string, bool) {
	v, ok := d.lastConnect.Get(url)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// ForgetLastConnectInfo makes the next reconnect of url start over from
// the host list.
func (d *DriverContext) ForgetLastConnectInfo(url string) {
	d.lastConnect.Delete(url)
}

// URLCache returns the shared result cache of key.
func (d *DriverContext) URLCache(key cache.URLKey) *cache.URLCache {
	return d.results.URLCache(key)
}

func (d *DriverContext) probeLoop() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.unreachable.DeleteExpired()
			d.Probe()
		}
	}
}

// Probe pings every unreachable host once and clears those that answer.
func (d *DriverContext) Probe() {
	if d.prober == nil {
		return
	}
	for _, addr := range d.UnreachableHosts() {
		ctx, cancel := context.WithTimeout(context.Background(), constant.SocketTimeout)
		err := d.prober(ctx, addr)
		cancel()
		if err != nil {
			log.Debugf("probe of unreachable broker %s failed: %v", addr, err)
			continue
		}
		d.ClearUnreachable(addr)
	}
}

// Close stops the background goroutines. It is safe to call twice.
func (d *DriverContext) Close() {
	d.once.Do(func() {
		close(d.stop)
		d.wg.Wait()
		d.results.Close()
	})
}

var (
	defaultMu      sync.Mutex
	defaultContext *DriverContext
)

// Init installs the process wide context, closing the previous one.
func Init(opts Options) *DriverContext {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultContext != nil {
		defaultContext.Close()
	}
	defaultContext = NewDriverContext(opts)
	return defaultContext
}

// Default returns the process wide context, creating one with default
// options on first use.
func Default() *DriverContext {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultContext == nil {
		defaultContext = NewDriverContext(Options{})
	}
	return defaultContext
}

// Close tears the process wide context down.
func Close() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultContext != nil {
		defaultContext.Close()
		defaultContext = nil
	}
}
