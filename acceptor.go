package acceptor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/logstash-acceptor/archive"
	"github.com/ethereum-optimism/infra/logstash-acceptor/collector"
	"github.com/ethereum-optimism/infra/logstash-acceptor/container"
	"github.com/ethereum-optimism/infra/logstash-acceptor/discovery"
	"github.com/ethereum-optimism/infra/logstash-acceptor/exitcodes"
	"github.com/ethereum-optimism/infra/logstash-acceptor/metrics"
	"github.com/ethereum-optimism/infra/logstash-acceptor/runner"
	"github.com/ethereum-optimism/infra/logstash-acceptor/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// stopTimeout bounds container teardown. Teardown runs on a fresh context so
// a cancelled run context cannot skip the stop.
const stopTimeout = 30 * time.Second

// acceptor implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &acceptor{}

// acceptor orchestrates one acceptance run: it assembles the build artifact,
// builds and starts the Logstash container, drives the test cases through it
// and tears the container down again.
type acceptor struct {
	ctx     context.Context
	config  *Config
	version string
	runtime container.Runtime
	builder *archive.Builder
	result  *types.RunResult

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

func New(ctx context.Context, config *Config, version string, runtime container.Runtime, shutdownCallback func(error)) (*acceptor, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if runtime == nil {
		return nil, errors.New("container runtime is required")
	}

	config.Log.Debug("Creating acceptor with config",
		"targetDir", config.TargetDir,
		"rulesDir", config.RulesDir,
		"testsDir", config.TestsDir,
		"cacheDir", config.CacheDir,
		"imageTag", config.ImageTag,
		"keepContainer", config.KeepContainer)

	return &acceptor{
		ctx:              ctx,
		config:           config,
		version:          version,
		runtime:          runtime,
		builder:          archive.NewBuilder(config.CacheDir, config.Log),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the acceptance suite exactly once and then triggers shutdown.
// Start implements the cliapp.Lifecycle interface.
func (a *acceptor) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			a.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	a.ctx = ctx
	a.running.Store(true)

	a.config.Log.Info("Starting logstash-acceptor", "target", a.config.TargetDir)

	err := a.runSuite(ctx)

	if a.result != nil {
		a.printResultsTable()
		fmt.Println(a.result.String())
	}

	if err != nil {
		if types.IsComparisonError(err) {
			a.config.Log.Warn("Run completed with fixture mismatches, returning exit code 1")
			return NewTestFailureError(err.Error())
		}
		a.config.Log.Error("Runtime error running test cases", "error", err)
		return NewRuntimeError(err)
	}

	a.config.Log.Info("All test cases passed, exiting")
	go func() {
		a.shutdownCallback(nil)
	}()
	return nil // Success (exit code 0)
}

// runSuite performs the whole run: discovery, artifact assembly, image build,
// container lifecycle and test execution. Once a container has been created,
// exactly one stop is issued no matter how the run ends; a stop failure is
// joined to the primary error and never masks it.
func (a *acceptor) runSuite(ctx context.Context) error {
	rules, err := discovery.CollectRules(a.config.RulesDir)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return types.NewConfigurationError("collecting rules",
			fmt.Errorf("no rule fragments found in %s", a.config.RulesDir))
	}
	scripts, err := discovery.CollectScripts(a.config.ScriptsDir)
	if err != nil {
		return err
	}
	patterns, err := discovery.CollectPatterns(a.config.PatternsDir)
	if err != nil {
		return err
	}
	cases, err := discovery.CollectTestCases(a.config.TestsDir)
	if err != nil {
		return err
	}
	a.config.Log.Info("Collected suite inputs",
		"rules", len(rules), "scripts", len(scripts), "patterns", len(patterns), "cases", len(cases))

	params := archive.DefaultParams(a.config.Suite.InputPort, a.config.Suite.OutputPort, a.config.Suite.APIPort)
	artifactPath, err := a.builder.Build(params, rules, scripts, patterns)
	if err != nil {
		return err
	}

	image, err := a.runtime.BuildImage(ctx, artifactPath, a.config.ImageTag)
	if err != nil {
		return err
	}

	c, err := a.runtime.CreateContainer(ctx, image, !a.config.KeepContainer)
	if err != nil {
		return err
	}

	runErr := a.execute(ctx, c, cases)

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if stopErr := a.runtime.StopContainer(stopCtx, c); stopErr != nil {
		a.config.Log.Error("Failed to stop container", "container", c.ID, "error", stopErr)
		metrics.RecordErrorDetails("container stop failed", stopErr)
		runErr = errors.Join(runErr, stopErr)
	}

	return runErr
}

// execute starts the container, waits for it to become healthy and then runs
// the response collector and the test driver concurrently. The driver decides
// when the run is over; its completion cancels the collector, and execute
// returns only after both have terminated.
func (a *acceptor) execute(ctx context.Context, c container.Container, cases []types.TestCase) error {
	if err := a.runtime.StartContainer(ctx, c); err != nil {
		return err
	}
	if err := container.WaitHealthy(ctx, a.runtime, c, a.config.HealthRetries, a.config.HealthDelay, a.config.Log); err != nil {
		return err
	}

	events := make(chan types.Event, a.config.Suite.QueueCapacity)

	col := collector.New(collector.Config{
		Port:   a.config.Suite.OutputPort,
		Events: events,
		Log:    a.config.Log,
	})
	driver, err := runner.NewTestDriver(runner.Config{
		Log:      a.config.Log,
		Cases:    cases,
		Events:   events,
		InputURL: fmt.Sprintf("http://127.0.0.1:%d/", a.config.Suite.InputPort),
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return col.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		result, err := driver.Run(gctx)
		a.result = result
		return err
	})
	return g.Wait()
}

// Stop stops the logstash-acceptor service.
// Stop implements the cliapp.Lifecycle interface.
func (a *acceptor) Stop(ctx context.Context) error {
	a.config.Log.Info("Stopping logstash-acceptor")

	if !a.running.Load() {
		a.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}
	a.running.Store(false)

	a.config.Log.Info("logstash-acceptor stopped successfully")
	return nil
}

// Stopped returns true if the logstash-acceptor service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (a *acceptor) Stopped() bool {
	return !a.running.Load()
}

// printResultsTable prints the results of the acceptance run to the console.
func (a *acceptor) printResultsTable() {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Acceptance Testing Results (%s)", formatDuration(a.result.Duration)))

	t.AppendHeader(table.Row{"#", "Case", "Duration", "Status", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "Case", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for i, cr := range a.result.Cases {
		errorMsg := ""
		if cr.Error != nil {
			errorMsg = firstLine(cr.Error.Error())
		}
		t.AppendRow(table.Row{
			i + 1,
			cr.Case.Name,
			formatDuration(cr.Duration),
			getResultString(cr.Status),
			errorMsg,
		})
	}

	if a.result.Status == types.TestStatusPass {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		fmt.Sprintf("%d passed, %d failed", a.result.Stats.Passed, a.result.Stats.Failed),
		formatDuration(a.result.Duration),
		getResultString(a.result.Status),
		"",
	})

	t.Render()
}

// firstLine trims a multi-line error message down to its first line for the
// table; the full diff is already printed by the driver's error chain.
func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}

// getResultString returns a string representing the test result
func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusError:
		return "! error"
	default:
		return "✗ fail"
	}
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
