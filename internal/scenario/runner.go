package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/leafsii/redis-demo/pkg/kv"
)

// MetricsRecorder receives one call per finished scenario
type MetricsRecorder interface {
	RecordScenario(ctx context.Context, scenario, result string, duration time.Duration)
}

// RunnerConfig controls where scenarios write and how reports are kept
type RunnerConfig struct {
	Prefix        string
	Parallelism   int
	HistoryKey    string
	HistoryLimit  int
	EventsChannel string
	// ScenarioTimeout bounds one shared execution, which no longer follows
	// the context of the caller that started it
	ScenarioTimeout time.Duration
	Codec           kv.Codec
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.Parallelism <= 0 {
		c.Parallelism = 4
	}
	if c.HistoryKey == "" {
		c.HistoryKey = "rdm:runs"
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 100
	}
	if c.EventsChannel == "" {
		c.EventsChannel = "rdm:events"
	}
	if c.ScenarioTimeout <= 0 {
		c.ScenarioTimeout = 2 * time.Minute
	}
	if c.Codec == nil {
		c.Codec = kv.DefaultCodec
	}
	return c
}

// Runner executes scenarios against a template
type Runner struct {
	tpl      kv.Template
	registry *Registry
	cfg      RunnerConfig
	logger   *zap.SugaredLogger
	metrics  MetricsRecorder

	group singleflight.Group
}

func NewRunner(tpl kv.Template, registry *Registry, cfg RunnerConfig, logger *zap.SugaredLogger, metrics MetricsRecorder) *Runner {
	if registry == nil {
		registry = Default()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Runner{
		tpl:      tpl,
		registry: registry,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		metrics:  metrics,
	}
}

// Scenarios describes every registered scenario
func (r *Runner) Scenarios() []Info {
	list := r.registry.List()
	out := make([]Info, 0, len(list))
	for _, s := range list {
		out = append(out, s.Info(r.cfg.Prefix))
	}
	return out
}

// Run executes the named scenarios, or all of them when names is empty.
// Reports are returned in the order requested. Unknown names fail the whole
// call before anything runs.
func (r *Runner) Run(ctx context.Context, names ...string) ([]Report, error) {
	if len(names) == 0 {
		names = r.registry.Names()
	}

	selected := make([]Scenario, 0, len(names))
	for _, name := range names {
		s, err := r.registry.Lookup(name)
		if err != nil {
			return nil, err
		}
		selected = append(selected, s)
	}

	runID := uuid.NewString()
	r.logger.Infow("Starting run", "run_id", runID, "scenarios", names, "parallelism", r.cfg.Parallelism)

	reports := make([]Report, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Parallelism)
	for i, s := range selected {
		i, s := i, s
		g.Go(func() error {
			reports[i] = r.runShared(gctx, runID, s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Infow("Run finished", "run_id", runID, "passed", AllPassed(reports))
	return reports, nil
}

// RunOne executes a single scenario
func (r *Runner) RunOne(ctx context.Context, name string) (Report, error) {
	reports, err := r.Run(ctx, name)
	if err != nil {
		return Report{}, err
	}
	return reports[0], nil
}

// runShared collapses concurrent runs of the same scenario into one, since
// two runs would race on the same keys. The shared execution is detached from
// the caller that started it; every caller stops waiting when its own context
// ends, and only that caller sees the cancellation.
func (r *Runner) runShared(ctx context.Context, runID string, s Scenario) Report {
	ch := r.group.DoChan(s.Name, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ScenarioTimeout)
		defer cancel()
		return r.execute(runCtx, runID, s), nil
	})

	select {
	case res := <-ch:
		return res.Val.(Report)
	case <-ctx.Done():
		r.logger.Warnw("Stopped waiting for scenario", "run_id", runID, "scenario", s.Name, "error", ctx.Err())
		return Report{
			RunID:     runID,
			Scenario:  s.Name,
			StartedAt: time.Now().UTC(),
			Checks:    []Check{},
			Error:     ctx.Err().Error(),
		}
	}
}

func (r *Runner) execute(ctx context.Context, runID string, s Scenario) Report {
	start := time.Now()
	rec := NewRecorder()
	env := &Env{Template: r.tpl, Prefix: r.cfg.Prefix}

	err := env.clear(ctx, s)
	if err == nil {
		err = s.Run(ctx, env, rec)
	}

	report := Report{
		RunID:        runID,
		Scenario:     s.Name,
		StartedAt:    start.UTC(),
		Duration:     time.Since(start),
		Observations: rec.Observations(),
		Checks:       rec.Checks(),
	}
	if report.Checks == nil {
		report.Checks = []Check{}
	}
	if err != nil {
		report.Error = err.Error()
	}
	report.Passed = err == nil && !rec.Failed()

	if r.metrics != nil {
		r.metrics.RecordScenario(ctx, s.Name, report.Result(), report.Duration)
	}

	switch {
	case err != nil:
		r.logger.Errorw("Scenario error", "run_id", runID, "scenario", s.Name, "error", err)
	case !report.Passed:
		r.logger.Warnw("Scenario failed", "run_id", runID, "scenario", s.Name, "failed_checks", report.FailedChecks())
	default:
		r.logger.Infow("Scenario passed", "run_id", runID, "scenario", s.Name, "checks", len(report.Checks), "duration", report.Duration)
	}

	r.publish(ctx, report)
	return report
}

// publish appends the report to the capped history list and announces it.
// Failures here do not change the outcome of the scenario.
func (r *Runner) publish(ctx context.Context, report Report) {
	payload, err := kv.Encode(r.cfg.Codec, report)
	if err != nil {
		r.logger.Warnw("Failed to encode report", "scenario", report.Scenario, "error", err)
		return
	}

	_, err = r.tpl.Pipeline(ctx, func(ops kv.Ops) error {
		if _, err := ops.Lists().LeftPush(ctx, r.cfg.HistoryKey, payload); err != nil {
			return err
		}
		return ops.Lists().Trim(ctx, r.cfg.HistoryKey, 0, int64(r.cfg.HistoryLimit-1))
	})
	if err != nil {
		r.logger.Warnw("Failed to record history", "scenario", report.Scenario, "error", err)
	}

	if _, err := r.tpl.PubSub().Publish(ctx, r.cfg.EventsChannel, payload); err != nil {
		r.logger.Warnw("Failed to publish report", "scenario", report.Scenario, "error", err)
	}
}

// History returns up to limit reports, newest first
func (r *Runner) History(ctx context.Context, limit int) ([]Report, error) {
	if limit <= 0 || limit > r.cfg.HistoryLimit {
		limit = r.cfg.HistoryLimit
	}

	entries, err := r.tpl.Lists().Range(ctx, r.cfg.HistoryKey, 0, int64(limit-1))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return []Report{}, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}

	reports := make([]Report, 0, len(entries))
	for _, entry := range entries {
		report, err := r.DecodeReport(entry)
		if err != nil {
			r.logger.Warnw("Skipping unreadable history entry", "error", err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// Subscribe streams reports as they are published, from any runner sharing
// the events channel
func (r *Runner) Subscribe(ctx context.Context) (kv.Subscription, error) {
	return r.tpl.PubSub().Subscribe(ctx, r.cfg.EventsChannel)
}

// DecodeReport parses a history entry or event payload
func (r *Runner) DecodeReport(payload string) (Report, error) {
	var report Report
	if err := kv.Decode(r.cfg.Codec, payload, &report); err != nil {
		return Report{}, err
	}
	return report, nil
}

// Ping checks the backing store
func (r *Runner) Ping(ctx context.Context) error {
	return r.tpl.Ping(ctx)
}
