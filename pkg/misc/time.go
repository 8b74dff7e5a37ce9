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
	"fmt"
	"time"
)

const (
	TimeFormat = "2006-01-02 15:04:05"
	DateFormat = "2006-01-02"
)

// DateFields is the calendar breakdown the broker uses for every temporal type.
type DateFields struct {
	Year        int16
	Month       int16
	Day         int16
	Hour        int16
	Minute      int16
	Second      int16
	Millisecond int16
}

// NewDateFields breaks t down in its own location.
func NewDateFields(t time.Time) DateFields {
	return DateFields{
		Year:        int16(t.Year()),
		Month:       int16(t.Month()),
		Day:         int16(t.Day()),
		Hour:        int16(t.Hour()),
		Minute:      int16(t.Minute()),
		Second:      int16(t.Second()),
		Millisecond: int16(t.Nanosecond() / int(time.Millisecond)),
	}
}

// Time assembles the fields in loc. A zero date (0000-00-00) maps to the
// zero time.Time, matching how the broker encodes missing dates.
func (d DateFields) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	if d.Year == 0 && d.Month == 0 && d.Day == 0 {
		if d.Hour == 0 && d.Minute == 0 && d.Second == 0 && d.Millisecond == 0 {
			return time.Time{}
		}
		return time.Date(1970, time.January, 1, int(d.Hour), int(d.Minute), int(d.Second),
			int(d.Millisecond)*int(time.Millisecond), loc)
	}
	return time.Date(int(d.Year), time.Month(d.Month), int(d.Day), int(d.Hour), int(d.Minute),
		int(d.Second), int(d.Millisecond)*int(time.Millisecond), loc)
}

// IsZero reports whether every field is zero.
func (d DateFields) IsZero() bool {
	return d == DateFields{}
}

func (d DateFields) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d.%03d",
		d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second, d.Millisecond)
}
