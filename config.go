package acceptor

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/logstash-acceptor/discovery"
	"github.com/ethereum-optimism/infra/logstash-acceptor/flags"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	TargetDir   string // Root of the rule repository under test
	RulesDir    string
	TestsDir    string
	ScriptsDir  string
	PatternsDir string
	CacheDir    string // Staging area for rendered config and the build artifact
	ImageTag    string

	KeepContainer bool
	HealthRetries int
	HealthDelay   time.Duration

	Suite discovery.SuiteConfig
	Log   log.Logger
}

// NewConfig creates a new Config from cli context. targetDir is the first
// positional argument; when empty the current working directory is used.
func NewConfig(ctx *cli.Context, log log.Logger, targetDir string) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	if targetDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		targetDir = wd
	}
	absTargetDir, err := filepath.Abs(targetDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for target directory '%s': %w", targetDir, err)
	}
	if info, err := os.Stat(absTargetDir); err != nil {
		return nil, fmt.Errorf("failed to stat target directory '%s': %w", absTargetDir, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("target '%s' is not a directory", absTargetDir)
	}

	suite, err := discovery.LoadSuiteConfig(filepath.Join(absTargetDir, discovery.SuiteConfigName))
	if err != nil {
		return nil, err
	}

	// The cache key ties the staging directory and the default image tag to
	// the target directory, so distinct rule repositories never share state.
	cacheKey := targetCacheKey(absTargetDir)

	cacheDir := ctx.String(flags.CacheDir.Name)
	if cacheDir == "" {
		userCache, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine user cache directory: %w", err)
		}
		cacheDir = filepath.Join(userCache, "logstash-acceptor", cacheKey)
	}
	cacheDir, err = filepath.Abs(cacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for cache directory '%s': %w", cacheDir, err)
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory '%s': %w", cacheDir, err)
	}

	imageTag := suite.ImageTag
	if imageTag == "" {
		imageTag = fmt.Sprintf("logstash-acceptor/%s:latest", cacheKey)
	}

	return &Config{
		TargetDir:     absTargetDir,
		RulesDir:      filepath.Join(absTargetDir, ctx.String(flags.RulesDir.Name)),
		TestsDir:      filepath.Join(absTargetDir, ctx.String(flags.TestsDir.Name)),
		ScriptsDir:    filepath.Join(absTargetDir, ctx.String(flags.ScriptsDir.Name)),
		PatternsDir:   filepath.Join(absTargetDir, ctx.String(flags.PatternsDir.Name)),
		CacheDir:      cacheDir,
		ImageTag:      imageTag,
		KeepContainer: ctx.Bool(flags.KeepContainer.Name),
		HealthRetries: ctx.Int(flags.HealthRetries.Name),
		HealthDelay:   ctx.Duration(flags.HealthDelay.Name),
		Suite:         suite,
		Log:           log,
	}, nil
}

// targetCacheKey derives a short stable identifier from the absolute target
// path.
func targetCacheKey(absTargetDir string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(absTargetDir))
	return fmt.Sprintf("%x", h.Sum64())
}
