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


package main

import (
	"bytes"
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cectc/cubrid-go/testdata"
)

func resetFlags() {
	configPath, sourceName, brokerURL = "", "", ""
}

func TestLoadConfigNeedsSource(t *testing.T) {
	defer resetFlags()
	resetFlags()
	_, err := loadConfig()
	assert.Error(t, err)

	brokerURL = "cubrid:127.0.0.1:33000:demodb:::"
	conf, err := loadConfig()
	require.NoError(t, err)
	require.Len(t, conf.DataSources, 1)
	assert.Equal(t, "default", conf.DataSources[0].Name)
}

func TestNewMonitorFiltersSource(t *testing.T) {
	defer resetFlags()
	path := filepath.Join(t.TempDir(), "casctl.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(`
data_sources:
  - name: demodb
    url: cubrid:127.0.0.1:33000:demodb:::?altHosts=127.0.0.1:33001
  - name: reporting
    url: cubrid:127.0.0.1:34000:stats:::
`), 0o644))
	configPath = path
	conf, err := loadConfig()
	require.NoError(t, err)

	sourceName = "reporting"
	_, err = newMonitor(conf)
	require.NoError(t, err)

	sourceName = "missing"
	_, err = newMonitor(conf)
	assert.Error(t, err)
}

func TestPingCommand(t *testing.T) {
	defer resetFlags()
	b := testdata.NewFakeBroker(t)

	var out bytes.Buffer
	rootCommand.SetOut(&out)
	rootCommand.SetArgs([]string{"ping", "--url", "cubrid:" + b.Addr() + ":demodb:::"})
	require.NoError(t, rootCommand.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "demodb")
	assert.Contains(t, out.String(), "up")
	assert.Equal(t, 1, b.Pings())
}
