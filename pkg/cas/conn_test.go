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


package cas

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/goleak"

	"github.com/cectc/cubrid-go/pkg/constant"
	err2 "github.com/cectc/cubrid-go/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func frame(payload []byte) []byte {
	p := make([]byte, 4, 4+len(payload))
	binary.BigEndian.PutUint32(p, uint32(len(payload)))
	return append(p, payload...)
}

// pipe returns a Conn and the broker end of it.
func pipe(t *testing.T) (*Conn, net.Conn) {
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return NewConn(client), server
}

func TestReadEphemeralPacket(t *testing.T) {
	conn, server := pipe(t)
	payload := []byte{0, 0xff, 0xff, 0xff, 0, 0, 0, 1, 'o', 'k'}
	done := make(chan error, 1)
	go func() {
		_, err := server.Write(frame(payload))
		done <- err
	}()

	got, err := conn.ReadEphemeralPacket()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Panics(t, func() { conn.ReadEphemeralPacket() })
	conn.RecycleReadPacket()
	conn.RecycleReadPacket()
	require.NoError(t, <-done)
}

func TestReadIllegalFrame(t *testing.T) {
	for _, size := range []int32{3, constant.MaxFrameSize + 1} {
		conn, server := pipe(t)
		go func() {
			var header [4]byte
			binary.BigEndian.PutUint32(header[:], uint32(size))
			server.Write(header[:])
		}()
		_, err := conn.ReadEphemeralPacket()
		assert.True(t, err2.Is(err, constant.ErIllegalDataSize), "size %d", size)
	}
}

func TestReadDeadline(t *testing.T) {
	conn, _ := pipe(t)
	conn.SetDeadline(time.Now().Add(-time.Second))
	_, err := conn.ReadInt()
	assert.True(t, err2.Is(err, constant.ErTimeout))
}

func TestReadPingsWhileWaiting(t *testing.T) {
	conn, server := pipe(t)
	conn.SetPollInterval(5 * time.Millisecond)
	pings := atomic.NewInt32(0)
	conn.SetPinger(func() error {
		pings.Inc()
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(50 * time.Millisecond)
		server.Write([]byte{0, 0, 0, 42})
	}()
	v, err := conn.ReadInt()
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)
	assert.Greater(t, pings.Load(), int32(0))
	<-done
}

func TestReadFailedPing(t *testing.T) {
	conn, _ := pipe(t)
	conn.SetPollInterval(5 * time.Millisecond)
	conn.SetPinger(func() error { return errors.New("no answer") })
	_, err := conn.ReadInt()
	assert.True(t, err2.Is(err, constant.ErCommunication))
	assert.True(t, err2.IsReconnectable(err))
}

func TestPeerClosed(t *testing.T) {
	conn, server := pipe(t)
	require.NoError(t, server.Close())
	_, err := conn.ReadInt()
	assert.True(t, err2.Is(err, constant.ErCommunication))
	assert.True(t, errors.Is(err, io.EOF))
}

func TestWriteAfterClose(t *testing.T) {
	conn, server := pipe(t)
	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 3)
		io.ReadFull(server, buf)
		done <- buf
	}()
	require.NoError(t, conn.WritePacket([]byte("abc")))
	assert.Equal(t, []byte("abc"), <-done)
	assert.Equal(t, 0, conn.LocalPort())

	conn.ForceClose()
	assert.True(t, conn.IsClosed())
	require.NoError(t, conn.Close())
	err := conn.WritePacket([]byte("x"))
	assert.True(t, err2.Is(err, constant.ErCommunication))
}
