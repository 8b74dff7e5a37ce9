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

package misc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateFields(t *testing.T) {
	cases := map[string]struct {
		in     time.Time
		fields DateFields
		text   string
	}{
		"datetime": {
			in:     time.Date(2022, time.March, 7, 9, 5, 3, 42*int(time.Millisecond), time.UTC),
			fields: DateFields{2022, 3, 7, 9, 5, 3, 42},
			text:   "2022-03-07 09:05:03.042",
		},
		"leap day": {
			in:     time.Date(2020, time.February, 29, 23, 59, 59, 0, time.UTC),
			fields: DateFields{2020, 2, 29, 23, 59, 59, 0},
			text:   "2020-02-29 23:59:59.000",
		},
		"early year": {
			in:     time.Date(9, time.January, 1, 0, 0, 0, 0, time.UTC),
			fields: DateFields{9, 1, 1, 0, 0, 0, 0},
			text:   "0009-01-01 00:00:00.000",
		},
	}

	for caseTitle, tc := range cases {
		t.Run(caseTitle, func(t *testing.T) {
			fields := NewDateFields(tc.in)
			assert.Equal(t, tc.fields, fields)
			assert.Equal(t, tc.text, fields.String())
			assert.True(t, tc.in.Equal(fields.Time(time.UTC)))
		})
	}
}

func TestZeroDateFields(t *testing.T) {
	assert.True(t, DateFields{}.IsZero())
	assert.True(t, DateFields{}.Time(time.UTC).IsZero())

	onlyTime := DateFields{Hour: 12, Minute: 30}
	tm := onlyTime.Time(time.UTC)
	assert.Equal(t, 12, tm.Hour())
	assert.Equal(t, 30, tm.Minute())
	assert.Equal(t, 1970, tm.Year())
}
