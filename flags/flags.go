package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

const EnvVarPrefix = "LOGSTASH_ACCEPTOR"

var (
	RulesDir = &cli.StringFlag{
		Name:    "rules-dir",
		Value:   "rules",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RULES_DIR"),
		Usage:   "Location of the Logstash filter rules, relative to the target directory",
	}
	TestsDir = &cli.StringFlag{
		Name:    "tests-dir",
		Value:   "tests",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TESTS_DIR"),
		Usage:   "Location of the test cases, relative to the target directory",
	}
	ScriptsDir = &cli.StringFlag{
		Name:    "scripts-dir",
		Value:   "scripts",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SCRIPTS_DIR"),
		Usage:   "Location of ruby script files referenced by rules, relative to the target directory",
	}
	PatternsDir = &cli.StringFlag{
		Name:    "patterns-dir",
		Value:   "patterns",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PATTERNS_DIR"),
		Usage:   "Location of grok pattern files, relative to the target directory",
	}
	CacheDir = &cli.StringFlag{
		Name:    "cache-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CACHE_DIR"),
		Usage:   "Staging directory for rendered configuration and the build artifact. Defaults to a per-target directory under the user cache directory.",
	}
	KeepContainer = &cli.BoolFlag{
		Name:    "keep-container",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "KEEP_CONTAINER"),
		Usage:   "Do not remove the container after the run completes",
	}
	HealthRetries = &cli.IntFlag{
		Name:    "health-retries",
		Value:   10,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTH_RETRIES"),
		Usage:   "Number of health-check attempts before giving up on a starting container",
	}
	HealthDelay = &cli.DurationFlag{
		Name:    "health-delay",
		Value:   10 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTH_DELAY"),
		Usage:   "Delay between health-check attempts",
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	RulesDir,
	TestsDir,
	ScriptsDir,
	PatternsDir,
	CacheDir,
	KeepContainer,
	HealthRetries,
	HealthDelay,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
