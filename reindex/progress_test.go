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


package reindex

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// steppedTracker returns a tracker whose clock advances one second per reading.
func steppedTracker(buf *bytes.Buffer, total, interval int) *ProgressTracker {
	tracker := NewProgressTracker(buf, total, interval)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	return tracker
}

func TestProgressTracker_Increment(t *testing.T) {
	var buf bytes.Buffer
	tracker := steppedTracker(&buf, 100, 10)

	tracker.Start()
	tracker.Increment(25)
	tracker.Increment(25)
	tracker.Increment(50)

	assert.Greater(t, tracker.Elapsed(), time.Duration(0), "elapsed time should be positive")

	output := buf.String()
	assert.Contains(t, output, "100/100", "should show completion")
	assert.Contains(t, output, "100.0%", "should show 100%")
}

func TestProgressTracker_Finish(t *testing.T) {
	var buf bytes.Buffer
	tracker := steppedTracker(&buf, 100, 10)

	tracker.Start()
	tracker.Increment(75)
	buf.Reset()
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "75/100", "finish keeps the handled count")
	assert.True(t, strings.HasSuffix(output, "\n"), "finish should print newline")
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := steppedTracker(&buf, 0, 10)

	tracker.Start()
	tracker.Finish()

	assert.Contains(t, buf.String(), "0/0", "should handle zero total")
}

func TestProgressTracker_IncrementBeyondTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := steppedTracker(&buf, 100, 10)

	tracker.Start()
	tracker.Increment(150)

	assert.Contains(t, buf.String(), "100/100", "should not exceed total")
}

func TestProgressTracker_Rate(t *testing.T) {
	var buf bytes.Buffer
	tracker := steppedTracker(&buf, 1000, 100)

	// Start reads the clock once and report once more, one second later.
	tracker.Start()
	tracker.Increment(100)

	assert.Contains(t, buf.String(), "100.0 documents/s")
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 100, 10)

	tracker.Increment(10)
	tracker.Finish()

	assert.Equal(t, "", buf.String(), "should have no output when not started")
	assert.Zero(t, tracker.Elapsed())
}

func TestProgressTracker_ReportInterval(t *testing.T) {
	var buf bytes.Buffer
	tracker := steppedTracker(&buf, 1000, 100)

	tracker.Start()

	tracker.Increment(50)
	assert.Equal(t, "", buf.String(), "should not print under interval")

	tracker.Increment(50)
	assert.NotEmpty(t, buf.String(), "should print at interval")

	buf.Reset()
	tracker.Increment(150)
	assert.NotEmpty(t, buf.String(), "should print beyond interval")

	buf.Reset()
	tracker.Increment(10)
	assert.Equal(t, "", buf.String(), "interval restarts after each report")
}

func TestProgressTracker_FormattedOutput(t *testing.T) {
	var buf bytes.Buffer
	tracker := steppedTracker(&buf, 5000, 1000)

	tracker.Start()
	tracker.Increment(2500)
	tracker.Increment(2500)

	lines := strings.Split(strings.TrimPrefix(buf.String(), "\r"), "\r")
	assert.Len(t, lines, 2)
	assert.Equal(t, "Progress: 5000/5000 (100.0%) - 2500.0 documents/s", lines[1])
}
