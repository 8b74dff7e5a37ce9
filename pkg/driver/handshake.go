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
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/cectc/cubrid-go/pkg/cas"
	"github.com/cectc/cubrid-go/pkg/constant"
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/log"
	"github.com/cectc/cubrid-go/pkg/metrics"
	"github.com/cectc/cubrid-go/pkg/misc"
	"github.com/cectc/cubrid-go/pkg/packet"
)

// driverInfo is the first message on a fresh broker socket.
func driverInfo() []byte {
	info := make([]byte, constant.DriverInfoSize)
	pos := misc.WriteBytes(info, 0, []byte(constant.DriverMagic))
	pos = misc.WriteByte(info, pos, constant.ClientJDBC)
	misc.WriteByte(info, pos, constant.ProtoIndicator|constant.ProtocolVersion)
	return info
}

// dbInfo is the fixed width session request: database, user, password,
// URL and the session id to resume, as decimal text.
func (c *Connection) dbInfo() []byte {
	info := make([]byte, constant.DBInfoSize)
	pos := misc.WriteFixedString(info, 0, c.conf.DBName, constant.DBNameSize)
	pos = misc.WriteFixedString(info, pos, c.conf.User, constant.UserSize)
	pos = misc.WriteFixedString(info, pos, c.conf.Password, constant.PasswordSize)
	pos = misc.WriteFixedString(info, pos, c.conf.URL, constant.URLSize)
	misc.WriteFixedString(info, pos, strconv.FormatInt(int64(c.sessionID), 10), constant.SessionIDSize)
	return info
}

func (c *Connection) dial(ctx context.Context, addr string) (*cas.Conn, error) {
	netConn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, err2.WrapDriverError(constant.ErUnknownHost, err)
		}
		return nil, err2.WrapDriverError(constant.ErConnection, err)
	}
	if tcpConn, ok := netConn.(*net.TCPConn); ok {
		// SetNoDelay controls whether the operating system should delay packet transmission
		// in hopes of sending fewer packets (Nagle's algorithm).
		_ = tcpConn.SetNoDelay(true)
		_ = tcpConn.SetKeepAlive(true)
	}
	conn := cas.NewConn(netConn)
	conn.SetPollInterval(c.conf.PollInterval)
	conn.SetPinger(func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), constant.SocketTimeout)
		defer cancel()
		return Ping(pingCtx, c.dialer, addr)
	})
	return conn, nil
}

// connectHost runs the whole handshake against one host. On success the
// connection is Connected and the parameters of the previous session are
// restored.
func (c *Connection) connectHost(ctx context.Context, idx int, addr string, deadline time.Time) (err error) {
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	c.setState(StateConnecting)
	defer func() {
		status := metrics.StatusSuccess
		if err != nil {
			status = metrics.StatusFailed
			if c.State() == StateConnecting {
				c.setState(StateNeedsReconnect)
			}
		}
		metrics.ReconnectCounter.WithLabelValues(addr, status).Inc()
	}()

	conn, err := c.dial(dialCtx, addr)
	if err != nil {
		return err
	}
	conn.SetDeadline(deadline)

	if err = conn.WritePacket(driverInfo()); err != nil {
		conn.ForceClose()
		return err
	}
	port, err := conn.ReadInt()
	if err != nil {
		conn.ForceClose()
		return err
	}
	if port < 0 {
		code, rerr := conn.ReadInt()
		conn.ForceClose()
		if rerr != nil {
			return rerr
		}
		return err2.NewServerError(port, code, "broker refused the connection")
	}
	if port > 0 {
		// the broker hands us over to a dedicated CAS port
		conn.ForceClose()
		host, _, serr := net.SplitHostPort(addr)
		if serr != nil {
			return err2.WrapDriverError(constant.ErConnection, serr)
		}
		if conn, err = c.dial(dialCtx, net.JoinHostPort(host, strconv.Itoa(int(port)))); err != nil {
			return err
		}
		conn.SetDeadline(deadline)
	}

	if err = conn.WritePacket(c.dbInfo()); err != nil {
		conn.ForceClose()
		return err
	}
	frame, err := conn.ReadEphemeralPacket()
	if err != nil {
		conn.ForceClose()
		return err
	}
	in, err := packet.ParseResponse(frame, c.charset)
	if err != nil {
		conn.RecycleReadPacket()
		conn.ForceClose()
		return err
	}
	var brokerInfo cas.BrokerInfo
	raw, err := in.ReadBytes(constant.BrokerInfoSize)
	if err == nil {
		copy(brokerInfo[:], raw)
		c.sessionID, err = in.ReadInt()
	}
	copy(c.casInfo[:], in.CASInfo())
	processID := in.ResCode()
	conn.RecycleReadPacket()
	if err != nil {
		conn.ForceClose()
		return err
	}

	conn.SetDeadline(time.Time{})
	c.conn = conn
	c.brokerInfo = brokerInfo
	c.processID = processID
	c.activeHost = idx
	c.activeAddr = addr
	c.lastRCTime = time.Now()
	c.setState(StateConnected)
	c.dctx.SetLastConnectInfo(c.conf.URL, addr)
	c.target.Store(&cancelTarget{
		addr:      addr,
		processID: processID,
		localPort: conn.LocalPort(),
		protocol:  brokerInfo,
	})
	log.Infof("connected to broker %s, cas pid %d, %s", addr, processID, brokerInfo)

	if err = c.restoreParameters(ctx); err != nil {
		log.Warnf("restoring session parameters on %s failed: %v", addr, err)
		return err
	}
	return nil
}
