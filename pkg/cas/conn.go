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
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"vimagination.zapto.org/byteio"

	"github.com/cectc/cubrid-go/pkg/constant"
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/log"
	"github.com/cectc/cubrid-go/pkg/misc"
)

const (
	// connBufferSize is how much we buffer for reading. It is also the
	// initial size of pooled frame buffers.
	connBufferSize = 16 * 1024
)

// framePool recycles response frame buffers between requests.
var framePool = sync.Pool{New: func() interface{} {
	b := make([]byte, connBufferSize)
	return &b
}}

// Pinger probes the broker on a side channel. It is called when a read
// times out at the socket level, to tell a busy broker from a dead one.
type Pinger func() error

// Conn is a connection to a CAS broker. It is built on top of an existing
// net.Conn and knows how to move frames over it; it knows nothing about
// what the frames mean.
//
// A Conn is not safe for concurrent use. The owner serializes each
// request/response pair.
type Conn struct {
	// conn is the underlying network connection.
	// Calling Close() on the Conn will close this connection.
	conn net.Conn

	// closed is set to true when Close() is called on the connection.
	closed *atomic.Bool

	bufferedReader *bufio.Reader

	// pollInterval bounds a single socket read. When it fires the pinger
	// runs and, if the broker answers, the read resumes.
	pollInterval time.Duration
	pinger       Pinger

	// deadline bounds the current operation as a whole. Zero means none.
	deadline time.Time

	// currentFrame is the pooled buffer handed out by ReadEphemeralPacket.
	currentFrame *[]byte
}

// NewConn wraps an established connection.
func NewConn(conn net.Conn) *Conn {
	return &Conn{
		conn:           conn,
		closed:         atomic.NewBool(false),
		bufferedReader: bufio.NewReaderSize(conn, connBufferSize),
		pollInterval:   constant.SocketTimeout,
	}
}

// SetPinger installs the keep-alive probe used on read timeouts.
func (c *Conn) SetPinger(p Pinger) {
	c.pinger = p
}

// SetPollInterval changes how long a single socket read may block.
func (c *Conn) SetPollInterval(d time.Duration) {
	if d > 0 {
		c.pollInterval = d
	}
}

// SetDeadline bounds every following read and write until it is changed.
func (c *Conn) SetDeadline(t time.Time) {
	c.deadline = t
}

// Deadline returns the current operation deadline.
func (c *Conn) Deadline() time.Time {
	return c.deadline
}

// RemoteAddr returns the broker address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalPort returns the local TCP port, zero for other transports.
func (c *Conn) LocalPort() int {
	if addr, ok := c.conn.LocalAddr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// remaining returns how long the next read may block, or an error when the
// operation deadline has passed.
func (c *Conn) remaining() (time.Duration, error) {
	wait := c.pollInterval
	if c.deadline.IsZero() {
		return wait, nil
	}
	left := time.Until(c.deadline)
	if left <= 0 {
		return 0, err2.NewDriverError(constant.ErTimeout, "")
	}
	if left < wait {
		wait = left
	}
	return wait, nil
}

// Read implements io.Reader with the timeout policy of the driver: every
// call recomputes the time left, a socket level timeout pings the broker
// and retries while time remains.
func (c *Conn) Read(p []byte) (int, error) {
	for {
		wait, err := c.remaining()
		if err != nil {
			return 0, err
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
			return 0, err2.WrapDriverError(constant.ErCommunication, err)
		}
		n, err := c.bufferedReader.Read(p)
		if n > 0 || err == nil {
			return n, nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			if c.pinger == nil {
				continue
			}
			if perr := c.pinger(); perr != nil {
				log.Warnf("broker %s did not answer the keep-alive ping: %v", c.RemoteAddr(), perr)
				return 0, err2.WrapDriverError(constant.ErCommunication, perr)
			}
			continue
		}
		return 0, err2.WrapDriverError(constant.ErCommunication, err)
	}
}

// readFull fills p completely.
func (c *Conn) readFull(p []byte) error {
	for off := 0; off < len(p); {
		n, err := c.Read(p[off:])
		if err != nil {
			return err
		}
		off += n
	}
	return nil
}

// ReadInt reads a bare big-endian int, used before framing is established.
func (c *Conn) ReadInt() (int32, error) {
	r := byteio.BigEndianReader{Reader: readerFunc(c.readFull)}
	v, _, err := r.ReadInt32()
	if err != nil {
		return 0, c.ioError(err)
	}
	return v, nil
}

// readerFunc adapts readFull to io.Reader so byteio never sees a short read.
type readerFunc func(p []byte) error

func (f readerFunc) Read(p []byte) (int, error) {
	if err := f(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ReadEphemeralPacket reads one response frame and returns everything that
// follows its length field. The returned slice is only valid until
// RecycleReadPacket is called.
func (c *Conn) ReadEphemeralPacket() ([]byte, error) {
	if c.currentFrame != nil {
		panic(errors.New("ReadEphemeralPacket: a frame is already in use"))
	}
	var header [4]byte
	if err := c.readFull(header[:]); err != nil {
		return nil, err
	}
	length, _, _ := misc.ReadInt32(header[:], 0)
	if length < constant.CASInfoSize+4 || length > constant.MaxFrameSize {
		return nil, err2.NewDriverError(constant.ErIllegalDataSize, "illegal response frame size %d", length)
	}
	buf := framePool.Get().(*[]byte)
	if cap(*buf) < int(length) {
		*buf = make([]byte, length)
	}
	*buf = (*buf)[:length]
	c.currentFrame = buf
	if err := c.readFull(*buf); err != nil {
		c.RecycleReadPacket()
		return nil, err
	}
	return *buf, nil
}

// RecycleReadPacket returns the frame buffer to the pool.
func (c *Conn) RecycleReadPacket() {
	if c.currentFrame == nil {
		return
	}
	framePool.Put(c.currentFrame)
	c.currentFrame = nil
}

// WritePacket writes an already framed request.
func (c *Conn) WritePacket(data []byte) error {
	if c.IsClosed() {
		return err2.NewDriverError(constant.ErCommunication, "write on a closed broker connection")
	}
	if err := c.conn.SetWriteDeadline(c.deadline); err != nil {
		return err2.WrapDriverError(constant.ErCommunication, err)
	}
	for off := 0; off < len(data); {
		n, err := c.conn.Write(data[off:])
		if err != nil {
			return c.ioError(err)
		}
		off += n
	}
	return nil
}

// Writer returns a big-endian writer for handshake style messages that are
// not framed.
func (c *Conn) Writer() *byteio.BigEndianWriter {
	return &byteio.BigEndianWriter{Writer: writerFunc(c.WritePacket)}
}

type writerFunc func(p []byte) error

func (f writerFunc) Write(p []byte) (int, error) {
	if err := f(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *Conn) ioError(err error) error {
	if _, ok := err2.As(err); ok {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return err2.WrapDriverError(constant.ErTimeout, err)
	}
	return err2.WrapDriverError(constant.ErCommunication, err)
}

// IsClosed returns true if this connection was ever closed by the
// Close() method.  Note if the other side closes the connection, but
// Close() wasn't called, this will return false.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Close closes the connection. It can be called from a different go
// routine to interrupt the current connection.
func (c *Conn) Close() error {
	if c.closed.CAS(false, true) {
		return c.conn.Close()
	}
	return nil
}

// ForceClose drops the connection without a graceful FIN handshake so the
// broker notices immediately and the local port is not left in TIME_WAIT.
func (c *Conn) ForceClose() {
	if !c.closed.CAS(false, true) {
		return
	}
	if tcpConn, ok := c.conn.(*net.TCPConn); ok {
		_ = tcpConn.SetLinger(0)
	}
	_ = c.conn.Close()
}
