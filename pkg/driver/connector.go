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
	"net"
	"time"

	"github.com/cectc/cubrid-go/pkg/resource"
)

//go:generate mockgen -destination=../../testdata/mock_dialer.go -package=testdata . Dialer

// Dialer opens the TCP connections to brokers, both the main socket and
// the short lived cancel and ping side channels.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NewNetDialer returns the dialer used when none is configured.
func NewNetDialer() Dialer {
	return &net.Dialer{KeepAlive: 30 * time.Second}
}

type Connector struct {
	conf   *Config
	dialer Dialer
	dctx   *resource.DriverContext
}

// NewConnector parses url and binds the result to the process wide driver
// context.
func NewConnector(url string) (*Connector, error) {
	cfg, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewConnectorWithConfig(cfg, resource.Default(), NewNetDialer()), nil
}

// NewConnectorWithConfig builds a connector from explicit parts. A nil
// context or dialer falls back to the defaults.
func NewConnectorWithConfig(cfg *Config, dctx *resource.DriverContext, dialer Dialer) *Connector {
	if dctx == nil {
		dctx = resource.Default()
	}
	if dialer == nil {
		dialer = NewNetDialer()
	}
	return &Connector{conf: cfg, dialer: dialer, dctx: dctx}
}

func (c *Connector) Config() *Config {
	return c.conf
}

// Open returns an unconnected connection; the first request connects it.
func (c *Connector) Open() *Connection {
	return newConnection(c.conf.Clone(), c.dctx, c.dialer)
}

// Connect returns a connection with its session already established.
func (c *Connector) Connect(ctx context.Context) (*Connection, error) {
	conn := c.Open()
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

// Prober adapts Ping to the driver context host probe.
func Prober(dialer Dialer) resource.Prober {
	return func(ctx context.Context, addr string) error {
		return Ping(ctx, dialer, addr)
	}
}
