// Package discovery locates the rule fragments, auxiliary files and test case
// fixtures that make up an acceptance suite. All listings are sorted by file
// name; rule ordering is load-bearing because fragments are concatenated into
// the pipeline in exactly this order.
package discovery

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/ethereum-optimism/infra/logstash-acceptor/types"
)

const (
	// InputFixtureName is the per-case input document file name.
	InputFixtureName = "input.json"
	// ExpectedFixtureName is the per-case expected document file name.
	ExpectedFixtureName = "expected.json"
	// RuleExtension marks Logstash filter rule fragments.
	RuleExtension = ".conf"
	// ScriptExtension marks ruby script files referenced by rules.
	ScriptExtension = ".rb"
)

// CollectRules returns every rule fragment under dir, sorted ascending by
// file name. The directory must exist; a suite without rules is an error the
// caller raises once it sees the empty list.
func CollectRules(dir string) ([]string, error) {
	return collectFiles(dir, func(name string) bool {
		return filepath.Ext(name) == RuleExtension
	}, true)
}

// CollectScripts returns the ruby script files under dir. A missing directory
// yields an empty list; scripts are optional.
func CollectScripts(dir string) ([]string, error) {
	return collectFiles(dir, func(name string) bool {
		return filepath.Ext(name) == ScriptExtension
	}, false)
}

// CollectPatterns returns every file under dir regardless of extension. A
// missing directory yields an empty list; patterns are optional.
func CollectPatterns(dir string) ([]string, error) {
	return collectFiles(dir, func(string) bool { return true }, false)
}

func collectFiles(dir string, keep func(string) bool, required bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil, nil
		}
		return nil, types.NewIOError(dir, errors.Wrap(err, "reading directory"))
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !keep(entry.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// CollectTestCases returns one TestCase per subdirectory of dir, sorted by
// directory name. Every case directory must contain both fixture files.
func CollectTestCases(dir string) ([]types.TestCase, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, types.NewIOError(dir, errors.Wrap(err, "reading test cases directory"))
	}

	var cases []types.TestCase
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		caseDir := filepath.Join(dir, entry.Name())
		input := filepath.Join(caseDir, InputFixtureName)
		if _, err := os.Stat(input); err != nil {
			return nil, types.NewIOError(input, errors.Wrap(err, "input fixture not found"))
		}
		expected := filepath.Join(caseDir, ExpectedFixtureName)
		if _, err := os.Stat(expected); err != nil {
			return nil, types.NewIOError(expected, errors.Wrap(err, "expected fixture not found"))
		}
		cases = append(cases, types.TestCase{
			Name:         entry.Name(),
			InputFile:    input,
			ExpectedFile: expected,
		})
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].Name < cases[j].Name })
	return cases, nil
}
