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

package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]struct {
		in  string
		out zapcore.Level
	}{
		"empty": {"", zapcore.InfoLevel},
		"debug": {"debug", zapcore.DebugLevel},
		"upper": {"WARN", zapcore.WarnLevel},
		"bogus": {"loud", zapcore.InfoLevel},
	}

	for caseTitle, tc := range cases {
		t.Run(caseTitle, func(t *testing.T) {
			assert.Equal(t, tc.out, parseLevel(tc.in))
		})
	}
}

func TestSetLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	defer Init(nil)

	Infof("connected to %s", "broker1:33000")
	Debugf("dropped")

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "connected to broker1:33000", entries[0].Message)
}

func TestInitWithFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "driver.log")
	Init(&Config{Level: "info", Encoding: "json", File: file, MaxSize: 1})
	defer Init(nil)

	Info("hello")
	_ = Sync()

	data, err := os.ReadFile(file)
	assert.Nil(t, err)
	assert.Contains(t, string(data), "hello")
}
