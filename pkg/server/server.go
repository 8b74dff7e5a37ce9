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


package server

import (
	"sync"
)

// Listener is a blocking accept loop that Close stops.
type Listener interface {
	Listen()
	Close()
}

type Server struct {
	listeners []Listener
	wg        sync.WaitGroup
}

func NewServer() *Server {
	return &Server{
		listeners: make([]Listener, 0),
	}
}

func (srv *Server) AddListener(listener Listener) {
	srv.listeners = append(srv.listeners, listener)
}

func (srv *Server) Start() {
	for _, l := range srv.listeners {
		srv.wg.Add(1)
		go func(l Listener) {
			defer srv.wg.Done()
			l.Listen()
		}(l)
	}
}

// Stop closes every listener and waits for their loops to return.
func (srv *Server) Stop() {
	for _, l := range srv.listeners {
		l.Close()
	}
	srv.wg.Wait()
}
