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


package listener

import (
	"net"
	"net/http"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/cectc/cubrid-go/pkg/log"
)

// AdminListener serves the admin endpoints over fasthttp.
type AdminListener struct {
	// This is the main listener socket.
	listener net.Listener
	handler  fasthttp.RequestHandler
	closed   int32
}

func NewAdminListener(address string, handler http.Handler) (*AdminListener, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		log.Errorf("listen %s error, %s", address, err)
		return nil, errors.Wrapf(err, "listen admin address %s", address)
	}
	return &AdminListener{
		listener: l,
		handler:  fasthttpadaptor.NewFastHTTPHandler(handler),
	}, nil
}

func (l *AdminListener) Addr() net.Addr {
	return l.listener.Addr()
}

// Listen blocks until Close.
func (l *AdminListener) Listen() {
	log.Infof("start admin listener %s", l.listener.Addr())
	if err := fasthttp.Serve(l.listener, l.handler); err != nil && atomic.LoadInt32(&l.closed) == 0 {
		log.Error(err)
	}
}

func (l *AdminListener) Close() {
	if !atomic.CompareAndSwapInt32(&l.closed, 0, 1) {
		return
	}
	if err := l.listener.Close(); err != nil {
		log.Error(err)
	}
}
