package archive

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/logstash-acceptor/types"
)

func testParams() Params {
	return DefaultParams(5066, 5067, 9600)
}

func writeRule(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func extractEntries(t *testing.T, archivePath string) map[string][]byte {
	t.Helper()
	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()

	entries := make(map[string][]byte)
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = data
	}
	return entries
}

func TestBuild_PipelineConcatenation(t *testing.T) {
	cacheDir := t.TempDir()
	rulesDir := t.TempDir()
	ruleA := writeRule(t, rulesDir, "10-first.conf", "filter { mutate { add_field => { \"[a]\" => \"1\" } } }\n")
	ruleB := writeRule(t, rulesDir, "20-second.conf", "filter { mutate { add_field => { \"[b]\" => \"2\" } } }\n")

	b := NewBuilder(cacheDir, log.New())
	archivePath, err := b.Build(testParams(), []string{ruleA, ruleB}, nil, nil)
	require.NoError(t, err)

	entries := extractEntries(t, archivePath)
	pipeline, ok := entries[PipelineName]
	require.True(t, ok, "pipeline definition missing from artifact")

	input, err := b.render("templates/pipeline/input.conf", testParams())
	require.NoError(t, err)
	output, err := b.render("templates/pipeline/output.conf", testParams())
	require.NoError(t, err)

	var want bytes.Buffer
	want.Write(input)
	want.WriteString("filter { mutate { add_field => { \"[a]\" => \"1\" } } }\n")
	want.WriteString("filter { mutate { add_field => { \"[b]\" => \"2\" } } }\n")
	want.Write(output)

	assert.Equal(t, want.Bytes(), pipeline, "pipeline must be input ++ rules (sorted) ++ output, byte-exact")
}

func TestBuild_ContainsRenderedConfigs(t *testing.T) {
	cacheDir := t.TempDir()
	rulesDir := t.TempDir()
	rule := writeRule(t, rulesDir, "rule.conf", "filter {}\n")

	b := NewBuilder(cacheDir, log.New())
	archivePath, err := b.Build(testParams(), []string{rule}, nil, nil)
	require.NoError(t, err)

	entries := extractEntries(t, archivePath)
	require.Contains(t, entries, "Dockerfile")
	require.Contains(t, entries, "logstash.yml")
	require.Contains(t, entries, "pipelines.yml")

	assert.Contains(t, string(entries["Dockerfile"]), "EXPOSE 5066/tcp 9600/tcp")
	assert.Contains(t, string(entries["logstash.yml"]), "api.http.port: 9600")
	assert.Contains(t, string(entries["pipelines.yml"]), PipelineName)
	assert.NotContains(t, string(entries["Dockerfile"]), "{{", "all parameters must be resolved")
}

func TestBuild_PlaceholdersAlwaysPresent(t *testing.T) {
	cacheDir := t.TempDir()
	rulesDir := t.TempDir()
	rule := writeRule(t, rulesDir, "rule.conf", "filter {}\n")

	b := NewBuilder(cacheDir, log.New())
	archivePath, err := b.Build(testParams(), []string{rule}, nil, nil)
	require.NoError(t, err)

	entries := extractEntries(t, archivePath)
	assert.Contains(t, entries, "scripts/.keep")
	assert.Contains(t, entries, "patterns/.keep")
}

func TestBuild_AuxiliaryFilesKeepBaseName(t *testing.T) {
	cacheDir := t.TempDir()
	rulesDir := t.TempDir()
	auxDir := t.TempDir()
	rule := writeRule(t, rulesDir, "rule.conf", "filter {}\n")
	script := writeRule(t, auxDir, "helper.rb", "def helper; end\n")
	pattern := writeRule(t, auxDir, "nginx.grok", "NGINXLOG .*\n")

	b := NewBuilder(cacheDir, log.New())
	archivePath, err := b.Build(testParams(), []string{rule}, []string{script}, []string{pattern})
	require.NoError(t, err)

	entries := extractEntries(t, archivePath)
	assert.Equal(t, []byte("def helper; end\n"), entries["scripts/helper.rb"])
	assert.Equal(t, []byte("NGINXLOG .*\n"), entries["patterns/nginx.grok"])
}

func TestBuild_Deterministic(t *testing.T) {
	rulesDir := t.TempDir()
	rule := writeRule(t, rulesDir, "rule.conf", "filter {}\n")

	first := t.TempDir()
	second := t.TempDir()
	pathA, err := NewBuilder(first, log.New()).Build(testParams(), []string{rule}, nil, nil)
	require.NoError(t, err)
	pathB, err := NewBuilder(second, log.New()).Build(testParams(), []string{rule}, nil, nil)
	require.NoError(t, err)

	a, err := os.ReadFile(pathA)
	require.NoError(t, err)
	bb, err := os.ReadFile(pathB)
	require.NoError(t, err)
	assert.Equal(t, a, bb, "identical inputs must yield byte-identical artifacts")
}

func TestBuild_MissingRuleFile(t *testing.T) {
	b := NewBuilder(t.TempDir(), log.New())
	_, err := b.Build(testParams(), []string{filepath.Join(t.TempDir(), "absent.conf")}, nil, nil)
	require.Error(t, err)
	var ioErr *types.IOError
	assert.ErrorAs(t, err, &ioErr)
}

func TestBuild_StagingFilesLeftBehind(t *testing.T) {
	cacheDir := t.TempDir()
	rulesDir := t.TempDir()
	rule := writeRule(t, rulesDir, "rule.conf", "filter {}\n")

	_, err := NewBuilder(cacheDir, log.New()).Build(testParams(), []string{rule}, nil, nil)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(cacheDir, "Dockerfile"))
	assert.FileExists(t, filepath.Join(cacheDir, PipelineName))
}

func TestBuild_RulePathWithoutBaseName(t *testing.T) {
	b := NewBuilder(t.TempDir(), log.New())
	_, err := b.Build(testParams(), []string{"/"}, nil, nil)
	require.Error(t, err)
	var cfgErr *types.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRender_StrictMode(t *testing.T) {
	b := NewBuilder(t.TempDir(), log.New())

	// The embedded templates resolve fully against the default context.
	for _, name := range []string{"templates/pipeline/input.conf", "templates/pipeline/output.conf"} {
		out, err := b.render(name, testParams())
		require.NoError(t, err)
		assert.NotContains(t, string(out), "{{")
	}
}
