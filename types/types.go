package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// TestStatus represents the possible states of a test case execution
type TestStatus string

const (
	TestStatusPass  TestStatus = "pass"
	TestStatusFail  TestStatus = "fail"
	TestStatusError TestStatus = "error"
)

// TestCase pairs one input fixture with one expected fixture. The name is the
// test case's enclosing directory name.
type TestCase struct {
	Name         string
	InputFile    string
	ExpectedFile string
}

// Event is one JSON document emitted by the Logstash container. The bytes are
// kept opaque until the driver compares them against the expected fixture.
type Event = json.RawMessage

// CaseResult captures the outcome of a single test case
type CaseResult struct {
	Case     TestCase
	Status   TestStatus
	Error    error
	Duration time.Duration
}

// RunStats tracks counts across a whole run
type RunStats struct {
	Total     int
	Passed    int
	Failed    int
	StartTime time.Time
	EndTime   time.Time
}

// RunResult captures the complete outcome of a test run
type RunResult struct {
	RunID    string
	Cases    []*CaseResult
	Status   TestStatus
	Duration time.Duration
	Stats    RunStats
}

func (r *RunResult) String() string {
	return fmt.Sprintf("run %s: %d/%d cases passed (%s)",
		r.RunID, r.Stats.Passed, r.Stats.Total, r.Status)
}
