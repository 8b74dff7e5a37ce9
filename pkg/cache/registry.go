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
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/cectc/cubrid-go/pkg/constant"
	"github.com/cectc/cubrid-go/pkg/log"
)

// URLKey identifies the URL cache a connection shares with the others
// talking to the same broker as the same user.
type URLKey struct {
	Host   string
	Port   int
	DBName string
	User   string
}

func (k URLKey) String() string {
	return fmt.Sprintf("%s:%d/%s@%s", k.Host, k.Port, k.DBName, k.User)
}

// Registry owns every URL cache of a process and the goroutine sweeping
// them.
type Registry struct {
	caches   *gocache.Cache
	interval time.Duration

	once sync.Once
	stop chan struct{}
	done chan struct{}
}

// NewRegistry starts a registry whose sweeper runs every interval.
func NewRegistry(interval time.Duration) *Registry {
	if interval <= 0 {
		interval = constant.DefaultSweepInterval
	}
	r := &Registry{
		// url caches live as long as the registry, the sweeper only
		// trims their content
		caches:   gocache.New(gocache.NoExpiration, 0),
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// URLCache returns the cache of key, creating it on first use.
func (r *Registry) URLCache(key URLKey) *URLCache {
	k := key.String()
	if c, ok := r.caches.Get(k); ok {
		return c.(*URLCache)
	}
	// Add fails when another goroutine won the race; use its cache then.
	if err := r.caches.Add(k, NewURLCache(), gocache.NoExpiration); err != nil {
		c, _ := r.caches.Get(k)
		return c.(*URLCache)
	}
	c, _ := r.caches.Get(k)
	return c.(*URLCache)
}

// Sweep runs one sweep over all URL caches.
func (r *Registry) Sweep(now time.Time) int {
	removed := 0
	for _, item := range r.caches.Items() {
		removed += item.Object.(*URLCache).Sweep(now)
	}
	return removed
}

func (r *Registry) run() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			if removed := r.Sweep(now); removed > 0 {
				log.Debugf("result cache sweep dropped %d entries", removed)
			}
		}
	}
}

// Close stops the sweeper and waits for it to exit.
func (r *Registry) Close() {
	r.once.Do(func() {
		close(r.stop)
	})
	<-r.done
}
