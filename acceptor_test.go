package acceptor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/logstash-acceptor/container"
	"github.com/ethereum-optimism/infra/logstash-acceptor/discovery"
	"github.com/ethereum-optimism/infra/logstash-acceptor/types"
)

// writeSuite lays out a minimal rule repository under a temp directory: one
// rule fragment and the given test cases, each a (input, expected) pair.
func writeSuite(t *testing.T, cases map[string][2]string) string {
	t.Helper()
	target := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(target, "rules"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(target, "rules", "00_noop.conf"),
		[]byte("filter {\n}\n"), 0o644))

	for name, fixtures := range cases {
		caseDir := filepath.Join(target, "tests", name)
		require.NoError(t, os.MkdirAll(caseDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(caseDir, discovery.InputFixtureName), []byte(fixtures[0]), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(caseDir, discovery.ExpectedFixtureName), []byte(fixtures[1]), 0o644))
	}
	return target
}

func testConfig(t *testing.T, target string) *Config {
	t.Helper()
	return &Config{
		TargetDir:     target,
		RulesDir:      filepath.Join(target, "rules"),
		TestsDir:      filepath.Join(target, "tests"),
		ScriptsDir:    filepath.Join(target, "scripts"),
		PatternsDir:   filepath.Join(target, "patterns"),
		CacheDir:      t.TempDir(),
		ImageTag:      "logstash-acceptor/test:latest",
		HealthRetries: 3,
		HealthDelay:   time.Millisecond,
		Suite:         discovery.DefaultSuiteConfig(),
		Log:           log.New(),
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// startEchoEngine serves the engine's input endpoint on a fresh port and
// forwards every document it receives to the collector, unchanged.
func startEchoEngine(t *testing.T, collectorPort int) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		// Echo the document back as the emitted event.
		resp, err := http.Post(
			fmt.Sprintf("http://127.0.0.1:%d/", collectorPort),
			"application/json",
			bytes.NewReader(body))
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		resp.Body.Close()
		w.WriteHeader(http.StatusOK)
	})}
	go server.Serve(ln) //nolint:errcheck
	t.Cleanup(func() { _ = server.Close() })

	return ln.Addr().(*net.TCPAddr).Port
}

func TestRunSuite_AllCasesPass(t *testing.T) {
	target := writeSuite(t, map[string][2]string{
		"case-a": {`{"message":"a"}`, `{"message":"a"}`},
		"case-b": {`{"message":"b"}`, `{"message":"b"}`},
	})
	cfg := testConfig(t, target)
	cfg.Suite.OutputPort = freePort(t)
	cfg.Suite.InputPort = startEchoEngine(t, cfg.Suite.OutputPort)

	fake := &container.FakeRuntime{HealthSequence: []container.HealthStatus{container.HealthHealthy}}
	a, err := New(context.Background(), cfg, "test", fake, func(error) {})
	require.NoError(t, err)

	require.NoError(t, a.runSuite(context.Background()))

	require.NotNil(t, a.result)
	require.Equal(t, types.TestStatusPass, a.result.Status)
	require.Equal(t, 2, a.result.Stats.Passed)
	require.Equal(t, 1, fake.BuildCalls)
	require.Equal(t, 1, fake.StartCalls)
	require.Equal(t, 1, fake.StopCalls)
	require.Equal(t, cfg.ImageTag, fake.LastTag)
	require.True(t, fake.LastAutoRemove)
	require.FileExists(t, filepath.Join(cfg.CacheDir, "image.tar"))
}

func TestRunSuite_FixtureMismatchFailsFast(t *testing.T) {
	target := writeSuite(t, map[string][2]string{
		"case-a": {`{"message":"a"}`, `{"message":"a"}`},
		"case-b": {`{"message":"b"}`, `{"message":"different"}`},
		"case-c": {`{"message":"c"}`, `{"message":"c"}`},
	})
	cfg := testConfig(t, target)
	cfg.Suite.OutputPort = freePort(t)
	cfg.Suite.InputPort = startEchoEngine(t, cfg.Suite.OutputPort)

	fake := &container.FakeRuntime{HealthSequence: []container.HealthStatus{container.HealthHealthy}}
	a, err := New(context.Background(), cfg, "test", fake, func(error) {})
	require.NoError(t, err)

	err = a.runSuite(context.Background())
	require.Error(t, err)
	require.True(t, types.IsComparisonError(err))
	require.Contains(t, err.Error(), "case-b")

	// case-c never ran and the container was still stopped exactly once.
	require.Equal(t, 2, a.result.Stats.Total)
	require.Equal(t, 1, fake.StopCalls)
}

func TestRunSuite_HealthFailureStopsContainer(t *testing.T) {
	target := writeSuite(t, map[string][2]string{
		"case-a": {`{"message":"a"}`, `{"message":"a"}`},
	})
	cfg := testConfig(t, target)

	fake := &container.FakeRuntime{HealthSequence: []container.HealthStatus{container.HealthUnhealthy}}
	a, err := New(context.Background(), cfg, "test", fake, func(error) {})
	require.NoError(t, err)

	err = a.runSuite(context.Background())
	require.Error(t, err)
	var healthErr *types.HealthCheckError
	require.ErrorAs(t, err, &healthErr)
	require.Equal(t, 1, fake.StopCalls)
}

func TestRunSuite_StopErrorDoesNotMaskRunError(t *testing.T) {
	target := writeSuite(t, map[string][2]string{
		"case-a": {`{"message":"a"}`, `{"message":"a"}`},
	})
	cfg := testConfig(t, target)

	stopErr := types.NewContainerLifecycleError("stop", fmt.Errorf("daemon gone"))
	fake := &container.FakeRuntime{
		HealthSequence: []container.HealthStatus{container.HealthUnhealthy},
		StopErr:        stopErr,
	}
	a, err := New(context.Background(), cfg, "test", fake, func(error) {})
	require.NoError(t, err)

	err = a.runSuite(context.Background())
	require.Error(t, err)
	var healthErr *types.HealthCheckError
	require.ErrorAs(t, err, &healthErr)
	require.ErrorIs(t, err, stopErr)
}

func TestRunSuite_BuildFailureSkipsContainer(t *testing.T) {
	target := writeSuite(t, map[string][2]string{
		"case-a": {`{"message":"a"}`, `{"message":"a"}`},
	})
	cfg := testConfig(t, target)

	buildErr := types.NewBuildTransportError(fmt.Errorf("daemon unreachable"))
	fake := &container.FakeRuntime{BuildErr: buildErr}
	a, err := New(context.Background(), cfg, "test", fake, func(error) {})
	require.NoError(t, err)

	err = a.runSuite(context.Background())
	require.ErrorIs(t, err, buildErr)
	require.Equal(t, 0, fake.CreateCalls)
	require.Equal(t, 0, fake.StopCalls)
}

func TestRunSuite_NoRules(t *testing.T) {
	target := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(target, "rules"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(target, "tests"), 0o755))
	cfg := testConfig(t, target)

	fake := &container.FakeRuntime{}
	a, err := New(context.Background(), cfg, "test", fake, func(error) {})
	require.NoError(t, err)

	err = a.runSuite(context.Background())
	require.Error(t, err)
	var cfgErr *types.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, 0, fake.BuildCalls)
}

func TestRunSuite_KeepContainerDisablesAutoRemove(t *testing.T) {
	target := writeSuite(t, map[string][2]string{
		"case-a": {`{"message":"a"}`, `{"message":"a"}`},
	})
	cfg := testConfig(t, target)
	cfg.KeepContainer = true

	fake := &container.FakeRuntime{HealthSequence: []container.HealthStatus{container.HealthUnhealthy}}
	a, err := New(context.Background(), cfg, "test", fake, func(error) {})
	require.NoError(t, err)

	_ = a.runSuite(context.Background())
	require.False(t, fake.LastAutoRemove)
}
