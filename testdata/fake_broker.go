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

package testdata

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"go.uber.org/atomic"
	"vimagination.zapto.org/byteio"

	"github.com/cectc/cubrid-go/pkg/constant"
	"github.com/cectc/cubrid-go/pkg/packet"
)

// Handler answers one request. Returning nil drops the connection
// without an answer, which the client sees as a communication failure.
type Handler func(req *Request) *Response

// Request is one request frame as the broker received it.
type Request struct {
	Code    constant.FunctionCode
	CASInfo [constant.CASInfoSize]byte
	// Payload is everything after the function code.
	Payload []byte
}

// Args splits the payload into its length prefixed arguments. Parsing
// stops at the first field that is not one, such as the type tag of a bind
// parameter.
func (r *Request) Args() [][]byte {
	var args [][]byte
	rd := byteio.BigEndianReader{Reader: bytes.NewReader(r.Payload)}
	for pos := 0; pos+4 <= len(r.Payload); {
		size, _, err := rd.ReadInt32()
		if err != nil || size < 0 || pos+4+int(size) > len(r.Payload) {
			break
		}
		arg := make([]byte, size)
		if _, err = io.ReadFull(rd.Reader, arg); err != nil {
			break
		}
		args = append(args, arg)
		pos += 4 + int(size)
	}
	return args
}

// IntArg decodes argument i as an int, -1 when it is missing.
func (r *Request) IntArg(i int) int32 {
	args := r.Args()
	if i >= len(args) || len(args[i]) != 4 {
		return -1
	}
	rd := byteio.BigEndianReader{Reader: bytes.NewReader(args[i])}
	v, _, _ := rd.ReadInt32()
	return v
}

// StringArg decodes argument i as a NUL terminated string.
func (r *Request) StringArg(i int) string {
	args := r.Args()
	if i >= len(args) {
		return ""
	}
	return strings.TrimRight(string(args[i]), "\x00")
}

// Response is a response frame under construction. Its methods append
// unprefixed fields the way the broker writes them.
type Response struct {
	ResCode int32
	CASInfo *[constant.CASInfoSize]byte

	buf bytes.Buffer
	w   byteio.BigEndianWriter
}

// NewResponse starts a response with result code resCode.
func NewResponse(resCode int32) *Response {
	r := &Response{ResCode: resCode}
	r.w = byteio.BigEndianWriter{Writer: &r.buf}
	return r
}

// OK is an empty successful response.
func OK() *Response {
	return NewResponse(0)
}

// ErrorResponse is a failed response: the indicator as result code, then
// the error code and message.
func ErrorResponse(indicator, code int32, msg string) *Response {
	r := NewResponse(indicator)
	r.Int(code)
	r.buf.WriteString(msg)
	r.buf.WriteByte(0)
	return r
}

// WithCASInfo overrides the cas info echoed with this response.
func (r *Response) WithCASInfo(status byte) *Response {
	r.CASInfo = &[constant.CASInfoSize]byte{status, 0xff, 0xff, 0xff}
	return r
}

func (r *Response) Byte(v byte) *Response {
	r.w.WriteUint8(v)
	return r
}

func (r *Response) Short(v int16) *Response {
	r.w.WriteInt16(v)
	return r
}

func (r *Response) Int(v int32) *Response {
	r.w.WriteInt32(v)
	return r
}

func (r *Response) Long(v int64) *Response {
	r.w.WriteInt64(v)
	return r
}

// String writes a sized string: length including the NUL, bytes, NUL.
func (r *Response) String(s string) *Response {
	r.w.WriteInt32(int32(len(s) + 1))
	r.buf.WriteString(s)
	r.buf.WriteByte(0)
	return r
}

// Raw appends bytes as they are.
func (r *Response) Raw(p []byte) *Response {
	r.buf.Write(p)
	return r
}

func (r *Response) OID(oid packet.OID) *Response {
	r.w.WriteInt32(oid.PageID)
	r.w.WriteInt16(oid.SlotID)
	r.w.WriteInt16(oid.VolID)
	return r
}

func (r *Response) XID(x packet.XID) *Response {
	r.w.WriteInt32(x.FormatID)
	r.w.WriteInt32(int32(len(x.GlobalTransactionID)))
	r.w.WriteInt32(int32(len(x.BranchQualifier)))
	r.buf.Write(x.GlobalTransactionID)
	r.buf.Write(x.BranchQualifier)
	return r
}

// Bytes returns the payload written so far.
func (r *Response) Bytes() []byte {
	return r.buf.Bytes()
}

// Column describes a result column for the response builders.
type Column struct {
	Type  constant.UType
	Name  string
	Table string
}

// Columns writes a column count and full column descriptions, the layout
// of normal statements.
func (r *Response) Columns(cols ...Column) *Response {
	r.Int(int32(len(cols)))
	for _, col := range cols {
		r.Byte(byte(col.Type)).Short(0).Int(10).String(col.Name)
		r.String(col.Name).String(col.Table)
		// nullable, then an empty default value
		r.Byte(0).String("")
		for i := 0; i < 7; i++ {
			r.Byte(0)
		}
	}
	return r
}

// ShortColumns writes the abbreviated column descriptions of catalog and
// object reads.
func (r *Response) ShortColumns(cols ...Column) *Response {
	r.Int(int32(len(cols)))
	for _, col := range cols {
		r.Byte(byte(col.Type)).Short(0).Int(10).String(col.Name)
	}
	return r
}

// Row is a tuple for the response builders. Index is 1-based.
type Row struct {
	Index  int32
	OID    packet.OID
	Values []packet.Value
}

// Rows builds consecutive rows starting at index first, one per value
// list.
func Rows(first int32, values ...[]packet.Value) []Row {
	rows := make([]Row, len(values))
	for i, v := range values {
		rows[i] = Row{Index: first + int32(i), Values: v}
	}
	return rows
}

// Tuples writes a tuple count and the tuples.
func (r *Response) Tuples(rows ...Row) *Response {
	r.Int(int32(len(rows)))
	for _, row := range rows {
		r.Int(row.Index).OID(row.OID)
		for _, v := range row.Values {
			r.Value(v)
		}
	}
	return r
}

// Value writes one sized attribute value.
func (r *Response) Value(v packet.Value) *Response {
	if v.Null {
		return r.Int(0)
	}
	switch v.Type {
	case constant.TypeShort:
		r.Int(2).Short(int16(v.Int))
	case constant.TypeInt:
		r.Int(4).Int(int32(v.Int))
	case constant.TypeBigInt:
		r.Int(8).Long(v.Int)
	case constant.TypeDouble:
		r.Int(8)
		r.w.WriteFloat64(v.Float)
	case constant.TypeFloat:
		r.Int(4)
		r.w.WriteFloat32(float32(v.Float))
	case constant.TypeChar, constant.TypeString, constant.TypeNChar, constant.TypeVarNChar,
		constant.TypeNumeric, constant.TypeEnum:
		r.String(v.Str)
	case constant.TypeBit, constant.TypeVarBit:
		r.Int(int32(len(v.Bytes))).Raw(v.Bytes)
	case constant.TypeObject:
		r.Int(packet.OIDSize).OID(v.OID)
	default:
		panic(fmt.Sprintf("fake broker cannot encode %s", v.Type))
	}
	return r
}

// The builders below produce protocol V5 layouts, the version the fake
// broker announces by default.

// PrepareResponse answers PREPARE.
func PrepareResponse(handle int32, cmd constant.CommandType, params int32, cols ...Column) *Response {
	r := NewResponse(handle)
	// no result cache
	r.Int(-1)
	r.Byte(byte(cmd)).Int(params).Byte(0)
	return r.Columns(cols...)
}

// ExecuteResponse answers EXECUTE with a single result. The rows of a
// SELECT are sent along as the first fetch.
func ExecuteResponse(cmd constant.CommandType, count int32, rows ...Row) *Response {
	r := NewResponse(count)
	// not served from the result cache
	r.Byte(0)
	r.Int(1).Byte(byte(cmd)).Int(count).OID(packet.OID{}).Int(0).Int(0)
	// no statement description, shard id
	r.Byte(0).Int(0)
	if cmd == constant.CommandSelect && count > 0 {
		r.Int(0).Tuples(rows...)
	}
	return r
}

// FetchResponse answers FETCH.
func FetchResponse(completed bool, rows ...Row) *Response {
	r := OK().Tuples(rows...)
	if completed {
		return r.Byte(1)
	}
	return r.Byte(0)
}

// BatchItem is one entry of a prepared batch response. A non-zero
// ErrorCode makes it a failure.
type BatchItem struct {
	Count     int32
	ErrorCode int32
	Message   string
}

// BatchResponse answers EXECUTE_BATCH_PREPAREDSTATEMENT.
func BatchResponse(items ...BatchItem) *Response {
	r := OK().Int(int32(len(items)))
	for _, item := range items {
		if item.ErrorCode != 0 {
			r.Int(-1).Int(item.ErrorCode).String(item.Message)
			continue
		}
		r.Int(item.Count).OID(packet.OID{})
	}
	// shard id
	return r.Int(0)
}

// Handshake is the session request of one connection.
type Handshake struct {
	DBName   string
	User     string
	Password string
	URL      string
}

// CancelRequest is a cancel message received on the side channel.
type CancelRequest struct {
	ProcessID int32
	Port      uint16
}

// Every session of a fake broker gets the same cas process and session id.
const (
	ProcessID int32 = 4242
	SessionID int32 = 7
)

// FakeBroker is an in-process CAS broker listening on a loopback port.
// Requests are answered by the handler of their function code; queued
// one-shot handlers run first, in order.
type FakeBroker struct {
	t        testing.TB
	listener net.Listener

	mu         sync.Mutex
	handlers   map[constant.FunctionCode]Handler
	queued     map[constant.FunctionCode][]Handler
	requests   []*Request
	handshakes []Handshake
	cancels    []CancelRequest
	conns      map[net.Conn]struct{}

	brokerInfo [constant.BrokerInfoSize]byte
	casStatus  byte
	redirect   int32
	refuseCode int32

	pings  *atomic.Int32
	closed *atomic.Bool
	wg     sync.WaitGroup
}

// NewFakeBroker starts a broker. It is stopped when the test ends.
func NewFakeBroker(t testing.TB) *FakeBroker {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("fake broker listen: %v", err)
	}
	b := &FakeBroker{
		t:         t,
		listener:  l,
		handlers:  make(map[constant.FunctionCode]Handler),
		queued:    make(map[constant.FunctionCode][]Handler),
		conns:     make(map[net.Conn]struct{}),
		casStatus: constant.CASStatusInactive,
		pings:     atomic.NewInt32(0),
		closed:    atomic.NewBool(false),
	}
	b.brokerInfo = [constant.BrokerInfoSize]byte{
		constant.DBMSCubrid, 1, 0, 1, constant.ProtoIndicator | constant.ProtocolV5, 0, 0, 0,
	}
	ok := func(*Request) *Response { return OK() }
	for _, code := range []constant.FunctionCode{
		constant.FCCheckCAS, constant.FCConClose, constant.FCEndTransaction, constant.FCSetDBParameter,
		constant.FCCloseStatement, constant.FCEndSession,
	} {
		b.handlers[code] = ok
	}
	b.handlers[constant.FCGetDBVersion] = func(*Request) *Response {
		return OK().Raw([]byte("11.2.0.0378\x00"))
	}

	b.wg.Add(1)
	go b.accept()
	t.Cleanup(b.Close)
	return b
}

// SetProtocol changes the protocol version announced to new sessions.
func (b *FakeBroker) SetProtocol(version byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.brokerInfo[constant.BrokerInfoProtoVersion] = constant.ProtoIndicator | version
}

// SetStatementPooling toggles statement pooling for new sessions.
func (b *FakeBroker) SetStatementPooling(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.brokerInfo[constant.BrokerInfoStatementPooling] = 0
	if on {
		b.brokerInfo[constant.BrokerInfoStatementPooling] = 1
	}
}

// SetCASStatus sets the transaction status echoed in the cas info of
// every response without one of its own.
func (b *FakeBroker) SetCASStatus(status byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.casStatus = status
}

// SetRedirect makes the broker hand every new client over to port.
func (b *FakeBroker) SetRedirect(port int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.redirect = int32(port)
}

// SetRefuseCode makes the broker refuse every new session with code.
func (b *FakeBroker) SetRefuseCode(code int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refuseCode = code
}

// Addr is the host:port the broker listens on.
func (b *FakeBroker) Addr() string {
	return b.listener.Addr().String()
}

// Port is the port the broker listens on.
func (b *FakeBroker) Port() int {
	return b.listener.Addr().(*net.TCPAddr).Port
}

// Handle sets the handler of code.
func (b *FakeBroker) Handle(code constant.FunctionCode, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[code] = h
}

// Enqueue adds one-shot handlers for code, used before the regular one.
func (b *FakeBroker) Enqueue(code constant.FunctionCode, hs ...Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queued[code] = append(b.queued[code], hs...)
}

// Respond is a handler that always answers r.
func Respond(r *Response) Handler {
	return func(*Request) *Response { return r }
}

// Drop is a handler that closes the connection instead of answering.
func Drop(*Request) *Response {
	return nil
}

// Requests returns the requests received so far, optionally only those
// with the given function codes.
func (b *FakeBroker) Requests(codes ...constant.FunctionCode) []*Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(codes) == 0 {
		return append([]*Request(nil), b.requests...)
	}
	var out []*Request
	for _, req := range b.requests {
		for _, code := range codes {
			if req.Code == code {
				out = append(out, req)
				break
			}
		}
	}
	return out
}

// Count returns how many requests with code were received.
func (b *FakeBroker) Count(code constant.FunctionCode) int {
	return len(b.Requests(code))
}

// Handshakes returns the sessions opened so far.
func (b *FakeBroker) Handshakes() []Handshake {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Handshake(nil), b.handshakes...)
}

// Cancels returns the cancel requests received so far.
func (b *FakeBroker) Cancels() []CancelRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]CancelRequest(nil), b.cancels...)
}

// Pings returns how many ping probes were answered.
func (b *FakeBroker) Pings() int {
	return int(b.pings.Load())
}

// DropConnections closes every open session, as a broker restart would.
func (b *FakeBroker) DropConnections() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.conns {
		conn.Close()
	}
}

// Close stops the broker and waits for its goroutines.
func (b *FakeBroker) Close() {
	if !b.closed.CAS(false, true) {
		return
	}
	b.listener.Close()
	b.DropConnections()
	b.wg.Wait()
}

func (b *FakeBroker) accept() {
	defer b.wg.Done()
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conns[conn] = struct{}{}
		b.mu.Unlock()
		b.wg.Add(1)
		go b.serve(conn)
	}
}

func (b *FakeBroker) serve(conn net.Conn) {
	defer b.wg.Done()
	defer func() {
		b.mu.Lock()
		delete(b.conns, conn)
		b.mu.Unlock()
		conn.Close()
	}()

	var magic [constant.DriverInfoSize]byte
	if _, err := io.ReadFull(conn, magic[:]); err != nil {
		return
	}
	msg := string(magic[:])
	w := byteio.BigEndianWriter{Writer: conn}
	switch {
	case msg == constant.PingMagic:
		b.pings.Inc()
		w.WriteInt32(0)
		return
	case strings.HasPrefix(msg, constant.CancelMagic):
		r := byteio.BigEndianReader{Reader: bytes.NewReader(magic[len(constant.CancelMagic):])}
		pid, _, _ := r.ReadInt32()
		b.recordCancel(CancelRequest{ProcessID: pid})
		w.WriteInt32(0)
		return
	case strings.HasPrefix(msg, constant.CancelMagicV1):
		r := byteio.BigEndianReader{Reader: bytes.NewReader(magic[len(constant.CancelMagicV1):])}
		pid, _, _ := r.ReadInt32()
		port, _, _ := r.ReadUint16()
		b.recordCancel(CancelRequest{ProcessID: pid, Port: port})
		w.WriteInt32(0)
		return
	case !strings.HasPrefix(msg, constant.DriverMagic):
		return
	}

	b.mu.Lock()
	refuse, redirect, info := b.refuseCode, b.redirect, b.brokerInfo
	b.mu.Unlock()
	if refuse != 0 {
		w.WriteInt32(constant.CASErrorIndicator)
		w.WriteInt32(refuse)
		return
	}
	w.WriteInt32(redirect)
	if redirect > 0 {
		return
	}
	if !b.readSession(conn) {
		return
	}
	session := NewResponse(ProcessID).Raw(info[:]).Int(SessionID)
	if b.writeFrame(conn, session) != nil {
		return
	}

	for {
		req, err := b.readRequest(conn)
		if err != nil {
			return
		}
		resp := b.dispatch(req)
		if resp == nil {
			return
		}
		if b.writeFrame(conn, resp) != nil {
			return
		}
	}
}

func (b *FakeBroker) recordCancel(c CancelRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancels = append(b.cancels, c)
}

func fixedString(p []byte) string {
	if i := bytes.IndexByte(p, 0); i >= 0 {
		p = p[:i]
	}
	return string(p)
}

func (b *FakeBroker) readSession(conn net.Conn) bool {
	info := make([]byte, constant.DBInfoSize)
	if _, err := io.ReadFull(conn, info); err != nil {
		return false
	}
	h := Handshake{}
	pos := 0
	for _, f := range []struct {
		dst  *string
		size int
	}{
		{&h.DBName, constant.DBNameSize},
		{&h.User, constant.UserSize},
		{&h.Password, constant.PasswordSize},
		{&h.URL, constant.URLSize},
	} {
		*f.dst = fixedString(info[pos : pos+f.size])
		pos += f.size
	}
	b.mu.Lock()
	b.handshakes = append(b.handshakes, h)
	b.mu.Unlock()
	return true
}

func (b *FakeBroker) readRequest(conn net.Conn) (*Request, error) {
	r := byteio.BigEndianReader{Reader: conn}
	length, _, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if length < constant.CASInfoSize+1 {
		return nil, fmt.Errorf("short request frame of %d bytes", length)
	}
	frame := make([]byte, length)
	if _, err = io.ReadFull(conn, frame); err != nil {
		return nil, err
	}
	req := &Request{
		Code:    constant.FunctionCode(frame[constant.CASInfoSize]),
		Payload: frame[constant.CASInfoSize+1:],
	}
	copy(req.CASInfo[:], frame)
	return req, nil
}

func (b *FakeBroker) dispatch(req *Request) *Response {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	h := b.handlers[req.Code]
	if q := b.queued[req.Code]; len(q) > 0 {
		h = q[0]
		b.queued[req.Code] = q[1:]
	}
	b.mu.Unlock()
	if h == nil {
		b.t.Logf("fake broker: no handler for %s", req.Code)
		return ErrorResponse(constant.CASErrorIndicator, constant.CASErInternal, "unhandled "+req.Code.String())
	}
	return h(req)
}

func (b *FakeBroker) writeFrame(conn net.Conn, resp *Response) error {
	b.mu.Lock()
	info := [constant.CASInfoSize]byte{b.casStatus, 0xff, 0xff, 0xff}
	b.mu.Unlock()
	if resp.CASInfo != nil {
		info = *resp.CASInfo
	}
	var frame bytes.Buffer
	w := byteio.BigEndianWriter{Writer: &frame}
	w.WriteInt32(int32(constant.CASInfoSize + 4 + resp.buf.Len()))
	frame.Write(info[:])
	w.WriteInt32(resp.ResCode)
	frame.Write(resp.buf.Bytes())
	_, err := conn.Write(frame.Bytes())
	return err
}
