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
	"bytes"
	"context"
	"net"
	"time"

	"vimagination.zapto.org/byteio"

	"github.com/cectc/cubrid-go/pkg/constant"
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/log"
)

// sideChannel sends msg on a fresh connection to addr and reads the int
// answer. A negative answer is followed by an error code.
func sideChannel(ctx context.Context, dialer Dialer, addr string, msg []byte) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, constant.SocketTimeout)
		defer cancel()
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err2.WrapDriverError(constant.ErConnection, err)
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	if _, err = conn.Write(msg); err != nil {
		return ioFailure(err)
	}
	r := byteio.BigEndianReader{Reader: conn}
	status, _, err := r.ReadInt32()
	if err != nil {
		return ioFailure(err)
	}
	if status < 0 {
		code, _, err := r.ReadInt32()
		if err != nil {
			return ioFailure(err)
		}
		return err2.NewServerError(constant.CASErrorIndicator, code, "side channel request refused")
	}
	return nil
}

func ioFailure(err error) error {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return err2.WrapDriverError(constant.ErTimeout, err)
	}
	return err2.WrapDriverError(constant.ErCommunication, err)
}

// Ping checks that a broker answers at addr, without opening a session.
func Ping(ctx context.Context, dialer Dialer, addr string) error {
	return sideChannel(ctx, dialer, addr, []byte(constant.PingMagic))
}

// Cancel asks the broker to abort the request the connection is blocked
// on. It never takes the connection lock; the blocked call returns with
// the error the broker answers it with.
func (c *Connection) Cancel(ctx context.Context) error {
	target := c.cancelTarget()
	if target == nil || c.State() != StateConnected {
		return nil
	}

	var buf bytes.Buffer
	w := byteio.BigEndianWriter{Writer: &buf}
	if target.protocol.ProtoVersionIsAbove(constant.ProtocolV1) {
		w.WriteString(constant.CancelMagicV1)
		w.WriteInt32(target.processID)
		w.WriteUint16(uint16(target.localPort))
		w.WriteUint16(0)
	} else {
		w.WriteString(constant.CancelMagic)
		w.WriteInt32(target.processID)
	}

	start := time.Now()
	err := sideChannel(ctx, c.dialer, target.addr, buf.Bytes())
	if err != nil {
		log.Warnf("cancel of cas %d on %s failed: %v", target.processID, target.addr, err)
		return err
	}
	log.Debugf("cancelled cas %d on %s in %s", target.processID, target.addr, time.Since(start))
	return nil
}
