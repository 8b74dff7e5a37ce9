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
	"time"

	"github.com/cectc/cubrid-go/pkg/constant"
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/log"
)

// reconnect opens a new session. The host the URL last connected to is
// tried first, then the host list in load balancing order. Hosts marked
// unreachable are skipped on the first pass; the second pass tries them
// anyway so a stale mark can never lock the client out. A failure that is
// not about reaching the host, such as a bad password, ends the search.
func (c *Connection) reconnect(ctx context.Context) error {
	if err := c.ensureOpen(); err != nil {
		return err
	}
	if c.conn != nil {
		c.clientSocketClose()
	}
	deadline := time.Now().Add(c.conf.ConnectTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	var lastErr error
	tried := make(map[string]bool, len(c.conf.Hosts))

	if addr, ok := c.dctx.LastConnectInfo(c.conf.URL); ok && !c.dctx.IsUnreachable(addr) {
		if idx := c.hostIndex(addr); idx >= 0 {
			err := c.connectHost(ctx, idx, addr, deadline)
			if err == nil {
				c.dctx.ClearUnreachable(addr)
				return nil
			}
			if !err2.IsConnectionClass(err) {
				return err
			}
			log.Warnf("last connected broker %s failed: %v", addr, err)
			c.dctx.MarkUnreachable(addr)
			tried[addr] = true
			lastErr = err
		}
	}

	order := c.balancer.Order(len(c.conf.Hosts))
	for pass := 0; pass < 2; pass++ {
		for _, idx := range order {
			addr := c.conf.Hosts[idx]
			if pass == 0 && (tried[addr] || c.dctx.IsUnreachable(addr)) {
				continue
			}
			if !time.Now().Before(deadline) {
				return c.connectFailure(lastErr, true)
			}
			err := c.connectHost(ctx, idx, addr, deadline)
			if err == nil {
				c.dctx.ClearUnreachable(addr)
				if idx > 0 {
					log.Warnf("failed over to alternate broker %s", addr)
				}
				return nil
			}
			if !err2.IsConnectionClass(err) {
				return err
			}
			log.Warnf("connecting to broker %s failed: %v", addr, err)
			c.dctx.MarkUnreachable(addr)
			lastErr = err
		}
	}
	return c.connectFailure(lastErr, false)
}

func (c *Connection) connectFailure(cause error, timedOut bool) error {
	c.setState(StateNeedsReconnect)
	if timedOut {
		return err2.NewDriverError(constant.ErTimeout, "connecting to %v timed out after %s: %v",
			c.conf.Hosts, c.conf.ConnectTimeout, cause)
	}
	if cause == nil {
		return err2.NewDriverError(constant.ErConnection, "no broker to connect to")
	}
	return err2.WrapDriverError(constant.ErConnection, cause)
}

func (c *Connection) hostIndex(addr string) int {
	for i, host := range c.conf.Hosts {
		if host == addr {
			return i
		}
	}
	return -1
}
