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
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cectc/cubrid-go/pkg/monitor"
)

type stubMonitor struct {
	ready  bool
	status []monitor.HostStatus
}

func (s *stubMonitor) Status() []monitor.HostStatus { return s.status }
func (s *stubMonitor) Ready() bool                  { return s.ready }

func serve(router http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthCheck(t *testing.T) {
	cases := []struct {
		name   string
		mon    HostMonitor
		path   string
		expect int
	}{
		{"live", &stubMonitor{}, healthCheckLivenessPath, http.StatusOK},
		{"ready", &stubMonitor{ready: true}, healthCheckReadinessPath, http.StatusOK},
		{"not ready", &stubMonitor{}, healthCheckReadinessPath, http.StatusServiceUnavailable},
		{"no monitor", nil, healthCheckReadinessPath, http.StatusServiceUnavailable},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expect, serve(NewRouter(c.mon), http.MethodGet, c.path).Code)
		})
	}
}

func TestStatus(t *testing.T) {
	checked := time.Date(2022, 5, 1, 10, 0, 0, 0, time.UTC)
	mon := &stubMonitor{ready: true, status: []monitor.HostStatus{
		{DataSource: "demodb", Host: "10.0.0.1:33000", Reachable: true, Latency: time.Millisecond, CheckedAt: checked},
		{DataSource: "demodb", Host: "10.0.0.2:33000", Error: "connection refused", CheckedAt: checked},
	}}
	rec := serve(NewRouter(mon), http.MethodGet, statusPath)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Ready)
	assert.Equal(t, mon.status, result.Hosts)

	rec = serve(NewRouter(nil), http.MethodGet, statusPath)
	assert.JSONEq(t, `{"ready":false,"hosts":[]}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	rec := serve(NewRouter(&stubMonitor{}), http.MethodGet, metricsPath)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	assert.Equal(t, http.StatusMethodNotAllowed, serve(NewRouter(nil), http.MethodPost, metricsPath).Code)
}
