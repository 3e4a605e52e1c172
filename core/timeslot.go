// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"strconv"
	"strings"
	"time"
)

const (
	// AM is the bucket for hours 0-11.
	AM = "AM"
	// PM is the bucket for hours 12-23.
	PM = "PM"

	dayLayout = "2006-01-02"
)

// Timeslot is the temporal bucket derived from an event start time.
// The zero value means the start time could not be parsed.
type Timeslot struct {
	Day  string // YYYY-MM-DD
	Hour int    // hour as written in the source, no zone conversion
	AMPM string
}

// Valid reports whether the timeslot came from a parseable start time.
func (t Timeslot) Valid() bool {
	return t.Day != ""
}

// Year returns the year of Day, or 0 for an invalid timeslot.
func (t Timeslot) Year() int {
	if len(t.Day) < 4 {
		return 0
	}
	year, err := strconv.Atoi(t.Day[:4])
	if err != nil {
		return 0
	}
	return year
}

// BucketForHour returns AM for hours before noon and PM otherwise.
func BucketForHour(hour int) string {
	if hour < 12 {
		return AM
	}
	return PM
}

// ParseTimeslot parses a start time of the form <date>T<time>.
// Only the date and the leading hour of the time part are interpreted;
// minutes, seconds and zone suffixes are ignored.
func ParseTimeslot(startTime string) (Timeslot, error) {
	s := strings.TrimSpace(startTime)
	if s == "" {
		return Timeslot{}, &ParseError{Field: "start_time", Value: startTime, Reason: "empty"}
	}

	datePart, timePart, ok := strings.Cut(s, "T")
	if !ok {
		return Timeslot{}, &ParseError{Field: "start_time", Value: startTime, Reason: "missing date/time separator"}
	}

	if _, err := time.Parse(dayLayout, datePart); err != nil {
		return Timeslot{}, &ParseError{Field: "start_time", Value: startTime, Reason: "invalid date"}
	}

	hourPart, _, _ := strings.Cut(timePart, ":")
	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < 0 || hour > 23 {
		return Timeslot{}, &ParseError{Field: "start_time", Value: startTime, Reason: "invalid hour"}
	}

	return Timeslot{
		Day:  datePart,
		Hour: hour,
		AMPM: BucketForHour(hour),
	}, nil
}

// DeriveTimeslot parses startTime and returns the zero Timeslot on failure.
func DeriveTimeslot(startTime string) Timeslot {
	slot, err := ParseTimeslot(startTime)
	if err != nil {
		return Timeslot{}
	}
	return slot
}
