package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/logstash-acceptor/types"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCollectRules_SortedByName(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "20-parse.conf"), "filter {}")
	writeFile(t, filepath.Join(dir, "10-drop.conf"), "filter {}")
	writeFile(t, filepath.Join(dir, "30-mutate.conf"), "filter {}")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	rules, err := CollectRules(dir)
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, "10-drop.conf", filepath.Base(rules[0]))
	assert.Equal(t, "20-parse.conf", filepath.Base(rules[1]))
	assert.Equal(t, "30-mutate.conf", filepath.Base(rules[2]))
}

func TestCollectRules_MissingDir(t *testing.T) {
	_, err := CollectRules(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	var ioErr *types.IOError
	assert.ErrorAs(t, err, &ioErr)
}

func TestCollectScripts_MissingDirIsEmpty(t *testing.T) {
	scripts, err := CollectScripts(filepath.Join(t.TempDir(), "scripts"))
	require.NoError(t, err)
	assert.Empty(t, scripts)
}

func TestCollectScripts_FiltersExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "helper.rb"), "")
	writeFile(t, filepath.Join(dir, "readme.md"), "")

	scripts, err := CollectScripts(dir)
	require.NoError(t, err)
	require.Len(t, scripts, 1)
	assert.Equal(t, "helper.rb", filepath.Base(scripts[0]))
}

func TestCollectPatterns_AnyExtension(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "extra"), "")
	writeFile(t, filepath.Join(dir, "nginx.grok"), "")

	patterns, err := CollectPatterns(dir)
	require.NoError(t, err)
	assert.Len(t, patterns, 2)
}

func TestCollectTestCases(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b-case", "input.json"), "{}")
	writeFile(t, filepath.Join(dir, "b-case", "expected.json"), "{}")
	writeFile(t, filepath.Join(dir, "a-case", "input.json"), "{}")
	writeFile(t, filepath.Join(dir, "a-case", "expected.json"), "{}")
	writeFile(t, filepath.Join(dir, "stray.json"), "{}")

	cases, err := CollectTestCases(dir)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "a-case", cases[0].Name)
	assert.Equal(t, "b-case", cases[1].Name)
	assert.FileExists(t, cases[0].InputFile)
	assert.FileExists(t, cases[0].ExpectedFile)
}

func TestCollectTestCases_MissingExpected(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken", "input.json"), "{}")

	_, err := CollectTestCases(dir)
	require.Error(t, err)
	var ioErr *types.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Contains(t, ioErr.Path, "expected.json")
}

func TestLoadSuiteConfig_Defaults(t *testing.T) {
	cfg, err := LoadSuiteConfig(filepath.Join(t.TempDir(), SuiteConfigName))
	require.NoError(t, err)
	assert.Equal(t, 5066, cfg.InputPort)
	assert.Equal(t, 5067, cfg.OutputPort)
	assert.Equal(t, 9600, cfg.APIPort)
	assert.Equal(t, 32, cfg.QueueCapacity)
	assert.Empty(t, cfg.ImageTag)
}

func TestLoadSuiteConfig_Overlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, SuiteConfigName)
	writeFile(t, path, "input_port: 15066\nimage_tag: acceptor/custom:latest\n")

	cfg, err := LoadSuiteConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 15066, cfg.InputPort)
	assert.Equal(t, 5067, cfg.OutputPort)
	assert.Equal(t, "acceptor/custom:latest", cfg.ImageTag)
}

func TestLoadSuiteConfig_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, SuiteConfigName)
	writeFile(t, path, "input_port: [not a port\n")

	_, err := LoadSuiteConfig(path)
	require.Error(t, err)
	var cfgErr *types.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}
