// Package command provides the redis-demo command line.
//
// One-shot commands (list, run, history, ping) build a runtime from the
// environment configuration plus the global flags, do their work and exit.
// serve keeps the same runtime alive behind the HTTP API.
package command

import (
	"fmt"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/leafsii/redis-demo/internal/config"
	"github.com/leafsii/redis-demo/internal/log"
	"github.com/leafsii/redis-demo/internal/metrics"
	"github.com/leafsii/redis-demo/internal/output"
	"github.com/leafsii/redis-demo/internal/scenario"
	"github.com/leafsii/redis-demo/pkg/kv"

	// Backends register themselves with kv on import
	_ "github.com/leafsii/redis-demo/pkg/kv/embedded"
	_ "github.com/leafsii/redis-demo/pkg/kv/redis"
)

// Build information, set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const serviceName = "redis-demo"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "redis-demo",
		Usage:   "Exercise a Redis server with string, hash, list, set, sorted set, transaction, HyperLogLog and bitmap scenarios",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ListCommand(),
			RunCommand(),
			HistoryCommand(),
			PingCommand(),
			ServeCommand(),
		},
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},
	}
}

// globalFlags returns the global CLI flags. Unset flags leave the RDM_*
// environment configuration alone.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "redis-url",
			Usage: "Redis server URL (e.g., redis://localhost:6379/0); selects the redis backend",
		},
		&cli.BoolFlag{
			Name:  "embedded",
			Usage: "Run against an in-process server instead of an external one",
		},
		&cli.StringFlag{
			Name:  "env",
			Usage: "Environment: dev, test, prod",
		},
		&cli.StringFlag{
			Name:  "prefix",
			Usage: "Prefix for every key the scenarios touch",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Log at debug level, including every store command",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	RedisURL string
	Embedded bool
	Env      string
	Prefix   string
	Output   string
	Verbose  bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		RedisURL: c.String("redis-url"),
		Embedded: c.Bool("embedded"),
		Env:      c.String("env"),
		Prefix:   c.String("prefix"),
		Output:   c.String("output"),
		Verbose:  c.Bool("verbose"),
	}
}

// loadConfig reads the environment configuration and applies the global flags
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := ParseGlobalFlags(c)
	if flags.RedisURL != "" {
		cfg.Redis.Backend = string(kv.BackendRedis)
		cfg.Redis.URL = flags.RedisURL
	}
	if flags.Embedded {
		cfg.Redis.Backend = string(kv.BackendEmbedded)
	}
	if flags.Env != "" {
		cfg.Env = flags.Env
	}
	if c.IsSet("prefix") {
		cfg.Runner.KeyPrefix = flags.Prefix
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runtime is everything a command needs to talk to the store
type runtime struct {
	cfg            *config.Config
	logger         *zap.SugaredLogger
	metrics        *metrics.Metrics
	metricsHandler http.Handler
	tpl            kv.Template
	runner         *scenario.Runner
}

// openRuntime wires config, logging, metrics, the template and the runner.
// Outside of serve, logging is raised to warn unless --verbose is set so
// command output stays readable.
func openRuntime(c *cli.Context, serving bool) (*runtime, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if c.IsSet("parallel") {
		cfg.Runner.Parallelism = c.Int("parallel")
	}

	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if !serving && !c.Bool("verbose") {
		logger = logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel))
	}

	metricsObj, metricsHandler, err := metrics.Setup(serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to setup metrics: %w", err)
	}

	tpl, err := kv.NewTemplateFromConfig(cfg.KV(metricsObj, log.KVLogFunc(logger)))
	if err != nil {
		return nil, err
	}

	runner := scenario.NewRunner(tpl, scenario.Default(), scenario.RunnerConfig{
		Prefix:          cfg.Runner.KeyPrefix,
		Parallelism:     cfg.Runner.Parallelism,
		HistoryKey:      cfg.Runner.HistoryKey,
		HistoryLimit:    cfg.Runner.HistoryLimit,
		EventsChannel:   cfg.Runner.EventsChannel,
		ScenarioTimeout: cfg.Runner.ScenarioTimeout,
	}, logger, metricsObj)

	return &runtime{
		cfg:            cfg,
		logger:         logger,
		metrics:        metricsObj,
		metricsHandler: metricsHandler,
		tpl:            tpl,
		runner:         runner,
	}, nil
}

func (rt *runtime) Close() {
	if err := rt.tpl.Close(); err != nil {
		rt.logger.Warnw("Failed to close store", "error", err)
	}
	_ = rt.logger.Sync()
}

// render writes data to the app's writer in the selected format
func render(c *cli.Context, data any) error {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}
	return output.NewFormatter(format).Format(c.App.Writer, data)
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
