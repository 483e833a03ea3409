// Package runner implements the test driver: it feeds each fixture to the
// engine under test and consumes exactly one correlated output event per
// fixture, in submission order.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/logstash-acceptor/jsoncmp"
	"github.com/ethereum-optimism/infra/logstash-acceptor/metrics"
	"github.com/ethereum-optimism/infra/logstash-acceptor/types"
)

// Config for the test driver.
type Config struct {
	Log log.Logger
	// Cases are executed strictly sequentially, one fixture at a time.
	Cases []types.TestCase
	// Events is the receive end of the queue fed by the response collector.
	// Correlation is purely by program order: the engine under test must
	// process and emit in strict submission order.
	Events <-chan types.Event
	// InputURL is the engine's declared input endpoint.
	InputURL string
	// Client is optional; the default http client is used when nil.
	Client *http.Client
}

// TestDriver runs the suite. It alone determines when the overall run
// completes: after the last case or the first failure.
type TestDriver struct {
	cfg    Config
	client *http.Client
}

func NewTestDriver(cfg Config) (*TestDriver, error) {
	if len(cfg.Cases) == 0 {
		return nil, errors.New("no test cases were found")
	}
	if cfg.Events == nil {
		return nil, errors.New("event queue is required")
	}
	if cfg.InputURL == "" {
		return nil, errors.New("engine input URL is required")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &TestDriver{cfg: cfg, client: client}, nil
}

// Run executes every case in order and fails fast: a mismatch or
// infrastructure failure aborts the run before the next fixture is attempted.
// The returned RunResult is populated for the cases that did run even when
// err is non-nil.
func (d *TestDriver) Run(ctx context.Context) (*types.RunResult, error) {
	result := &types.RunResult{
		RunID:  uuid.New().String(),
		Status: types.TestStatusPass,
	}
	result.Stats.StartTime = time.Now()
	defer func() {
		result.Stats.EndTime = time.Now()
		result.Duration = result.Stats.EndTime.Sub(result.Stats.StartTime)
		metrics.RecordRun(result.RunID, result.Status, result.Duration)
	}()

	d.cfg.Log.Info("Running test cases", "count", len(d.cfg.Cases), "run_id", result.RunID)

	for i, tc := range d.cfg.Cases {
		caseStart := time.Now()
		err := d.runCase(ctx, tc)
		caseResult := &types.CaseResult{
			Case:     tc,
			Status:   types.TestStatusPass,
			Duration: time.Since(caseStart),
		}
		if err != nil {
			caseResult.Status = types.TestStatusFail
			if !types.IsComparisonError(err) {
				caseResult.Status = types.TestStatusError
			}
			caseResult.Error = err
		}
		result.Cases = append(result.Cases, caseResult)
		result.Stats.Total++
		metrics.RecordCase(result.RunID, caseResult.Status)

		if err != nil {
			result.Stats.Failed++
			result.Status = types.TestStatusFail
			d.cfg.Log.Error("Test case failed", "case", tc.Name, "index", i)
			return result, errors.Wrapf(err, "running test case %d (%s)", i, tc.Name)
		}

		result.Stats.Passed++
		d.cfg.Log.Info("Test case passed", "case", tc.Name, "index", i)
	}

	return result, nil
}

// runCase submits one input fixture and verifies the single correlated
// output event against the expected fixture.
func (d *TestDriver) runCase(ctx context.Context, tc types.TestCase) error {
	input, err := readFixture(tc.InputFile)
	if err != nil {
		return err
	}

	if err := d.submit(ctx, input); err != nil {
		return err
	}

	event, err := d.awaitEvent(ctx)
	if err != nil {
		return err
	}

	expected, err := readFixture(tc.ExpectedFile)
	if err != nil {
		return err
	}

	var actual any
	if err := json.Unmarshal(event, &actual); err != nil {
		return types.NewCommunicationError("decoding output event", err)
	}
	var want any
	if err := json.Unmarshal(expected, &want); err != nil {
		return types.NewIOError(tc.ExpectedFile, errors.Wrap(err, "decoding expected fixture"))
	}

	if diffs := jsoncmp.Compare(actual, want); len(diffs) > 0 {
		return &types.ComparisonError{
			Case:     tc.Name,
			Diff:     jsoncmp.FormatDiffs(diffs),
			Actual:   jsoncmp.Pretty(actual),
			Expected: jsoncmp.Pretty(want),
		}
	}
	return nil
}

func (d *TestDriver) submit(ctx context.Context, input []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.InputURL, bytes.NewReader(input))
	if err != nil {
		return types.NewCommunicationError("building input request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return types.NewCommunicationError("sending input to the engine", err)
	}
	defer resp.Body.Close()

	// The response body is ignored; only the status matters.
	if resp.StatusCode >= http.StatusBadRequest {
		return types.NewCommunicationError("sending input to the engine",
			errors.Errorf("engine returned status %d", resp.StatusCode))
	}
	return nil
}

// awaitEvent blocks until the collector forwards exactly one event. A closed
// queue is a distinct "no output produced" failure rather than a comparison
// error.
func (d *TestDriver) awaitEvent(ctx context.Context) (types.Event, error) {
	select {
	case event, ok := <-d.cfg.Events:
		if !ok {
			return nil, types.NewCommunicationError("awaiting output event", types.ErrNoOutput)
		}
		return event, nil
	case <-ctx.Done():
		return nil, types.NewCommunicationError("awaiting output event", ctx.Err())
	}
}

func readFixture(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewIOError(path, errors.Wrap(err, "reading fixture"))
	}
	if !json.Valid(data) {
		return nil, types.NewIOError(path, errors.New("fixture is not valid JSON"))
	}
	return data, nil
}
