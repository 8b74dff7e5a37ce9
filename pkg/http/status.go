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


package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/cectc/cubrid-go/pkg/log"
	"github.com/cectc/cubrid-go/pkg/monitor"
)

const (
	statusPath = "/status"
)

type Result struct {
	Ready bool                 `json:"ready"`
	Hosts []monitor.HostStatus `json:"hosts"`
}

func registerStatusRouter(router *mux.Router, mon HostMonitor) {
	router.Methods(http.MethodGet).Path(statusPath).HandlerFunc(statusHandler(mon))
}

func statusHandler(mon HostMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := Result{Hosts: []monitor.HostStatus{}}
		if mon != nil {
			result.Ready = mon.Ready()
			result.Hosts = append(result.Hosts, mon.Status()...)
		}
		b, err := json.Marshal(result)
		if err != nil {
			log.Error(err)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(err.Error()))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(b)
	}
}
