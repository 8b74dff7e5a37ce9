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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cectc/cubrid-go/pkg/monitor"
)

const metricsPath = "/metrics"

// HostMonitor is what the admin endpoints read broker health from.
type HostMonitor interface {
	Status() []monitor.HostStatus
	Ready() bool
}

// NewRouter builds the admin endpoints backed by mon.
func NewRouter(mon HostMonitor) *mux.Router {
	router := mux.NewRouter()
	registerHealthCheckRouter(router, mon)
	registerStatusRouter(router, mon)
	router.Methods(http.MethodGet).Path(metricsPath).Handler(promhttp.Handler())
	return router
}
