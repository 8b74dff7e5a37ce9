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
	"net/http"

	"github.com/gorilla/mux"
)

const (
	healthCheckLivenessPath  = "/live"
	healthCheckReadinessPath = "/ready"
)

func registerHealthCheckRouter(router *mux.Router, mon HostMonitor) {
	router.Methods(http.MethodGet).Path(healthCheckReadinessPath).HandlerFunc(readinessHandler(mon))
	router.Methods(http.MethodGet).Path(healthCheckLivenessPath).HandlerFunc(livenessHandler)
}

// readinessHandler answers 200 once every data source has a live broker.
func readinessHandler(mon HostMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if mon == nil || !mon.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func livenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
