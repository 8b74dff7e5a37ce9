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
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	http2 "github.com/cectc/cubrid-go/pkg/http"
	"github.com/cectc/cubrid-go/pkg/monitor"
)

type readyMonitor struct{}

func (readyMonitor) Status() []monitor.HostStatus {
	return []monitor.HostStatus{{DataSource: "demodb", Host: "127.0.0.1:33000", Reachable: true}}
}
func (readyMonitor) Ready() bool { return true }

func TestAdminListener(t *testing.T) {
	l, err := NewAdminListener("127.0.0.1:0", http2.NewRouter(readyMonitor{}))
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Listen()
	}()

	base := "http://" + l.Addr().String()
	resp, err := http.Get(base + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/status")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"data_source":"demodb"`)

	resp, err = http.Get(base + "/nothing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	l.Close()
	l.Close()
	<-done
}

func TestAdminListenerAddressInUse(t *testing.T) {
	l, err := NewAdminListener("127.0.0.1:0", http.NotFoundHandler())
	require.NoError(t, err)
	defer l.Close()
	_, err = NewAdminListener(l.Addr().String(), http.NotFoundHandler())
	assert.Error(t, err)
}
