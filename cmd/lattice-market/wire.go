package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"go.uber.org/zap"

	"github.com/kingrea/market-lattice/internal/agent"
	"github.com/kingrea/market-lattice/internal/artifact"
	"github.com/kingrea/market-lattice/internal/budget"
	"github.com/kingrea/market-lattice/internal/config"
	"github.com/kingrea/market-lattice/internal/logbook"
	"github.com/kingrea/market-lattice/internal/pipeline"
	"github.com/kingrea/market-lattice/internal/progress"
	"github.com/kingrea/market-lattice/internal/report"
	"github.com/kingrea/market-lattice/internal/research"
)

const logBuffer = 256

// runOptions are the per-invocation switches that shape program caching.
type runOptions struct {
	optimize bool
	noCache  bool
}

// app holds the long-lived collaborators shared by every run in a process.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	guard   *budget.Guard
	client  *client.Client
	suite   *agent.Suite
	cache   *artifact.Cache
	results *artifact.ResultCache[agent.SWOTAnalysis]
	writer  *report.Writer
	opts    runOptions
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts runOptions) (*app, error) {
	if cfg.AgentCommand() == "" {
		return nil, fmt.Errorf("no agent command configured; set agent.command in %s or %s", cfg.ProjectConfigPath(), config.EnvAgentCommand)
	}
	guard := budget.New(cfg.ResearchBudget(),
		budget.WithLogger(logger),
		budget.WithDefaultScopeLimit(cfg.ScopeLimit()),
	)
	c, err := agent.Dial(ctx, cfg.AgentCommand(), cfg.Project.Agent.Env, version)
	if err != nil {
		return nil, err
	}
	suite := agent.NewSuite(c,
		agent.WithSuiteGuard(guard),
		agent.WithResearcher(research.NewGuarded(newExtractor(cfg, logger), guard, logger)),
		agent.WithSuiteLogger(logger),
	)
	a := &app{
		cfg:    cfg,
		logger: logger,
		guard:  guard,
		client: c,
		suite:  suite,
		cache:  artifact.NewCache(artifact.WithLogger(logger)),
		writer: report.NewWriter(cfg.OutputDir(), report.WithWriterLogger(logger)),
		opts:   opts,
	}
	if !opts.noCache {
		a.results = artifact.NewResultCache[agent.SWOTAnalysis](cfg.ResultCacheDir(), logger)
	}
	return a, nil
}

// newExtractor prefers the configured extract API and falls back to fetching
// pages directly.
func newExtractor(cfg *config.Config, logger *zap.Logger) research.Extractor {
	rc := cfg.Project.Research
	if rc.APIKey == "" {
		return research.NewFetchExtractor(rc.RatePerSecond, logger)
	}
	endpoint := rc.Endpoint
	if endpoint == "" {
		endpoint = config.DefaultResearchEndpoint
	}
	return research.NewHTTPClient(endpoint, rc.APIKey,
		research.WithRateLimit(rc.RatePerSecond, 1),
		research.WithHTTPLogger(logger),
	)
}

func (a *app) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}

// scheduler builds a scheduler that reports through bridge and onState.
func (a *app) scheduler(bridge *progress.Bridge, onState func(pipeline.Transition)) *pipeline.Scheduler {
	refresh := a.opts.noCache
	return pipeline.New(a.suite,
		pipeline.WithConfig(pipeline.Config{
			Concurrency:     a.cfg.Concurrency(),
			VendorProgram:   a.suite.VendorRecipe(a.cfg.Project.Cache.VendorProgram, refresh, a.opts.optimize),
			DeepDiveProgram: a.suite.DeepDiveRecipe(a.cfg.Project.Cache.SWOTProgram, refresh, a.opts.optimize),
		}),
		pipeline.WithGuard(a.guard),
		pipeline.WithCache(a.cache),
		pipeline.WithResultCache(a.results),
		pipeline.WithReports(a.writer),
		pipeline.WithBridge(bridge),
		pipeline.WithLogger(a.logger),
		pipeline.WithStateHook(onState),
	)
}

// execute runs one pipeline run. Progress goes to the run logbook and to
// extra, which the caller uses for the console or the TUI.
func (a *app) execute(ctx context.Context, run *pipeline.Run, extra *progress.Bridge, onState func(pipeline.Transition)) (*pipeline.Result, error) {
	book, err := logbook.ForRun(a.writer.RunDir(run))
	if err != nil {
		return nil, err
	}
	bridge, closeBridge := runBridge(a.logger.With(zap.String("run_id", run.ID())), book.Sink(), extra)
	defer closeBridge()
	return a.scheduler(bridge, onState).Run(ctx, run)
}

// runBridge queues every sink behind its own buffer so a slow terminal or
// disk never stalls a pipeline worker. The returned func drains the queues.
func runBridge(logger *zap.Logger, logSink func(string), extra *progress.Bridge) (*progress.Bridge, func()) {
	book := progress.NewAsyncLog(logSink, logBuffer)
	view := progress.NewAsync(extra, logBuffer)
	closeAll := func() {
		book.Close()
		view.Close()
		if dropped := book.Dropped(); dropped > 0 {
			logger.Warn("run logbook dropped lines", zap.Int64("dropped", dropped))
		}
		if dropped := view.Dropped(); dropped > 0 {
			logger.Warn("progress view dropped updates", zap.Int64("dropped", dropped))
		}
	}
	return progress.Fanout(book.Bridge(), view.Bridge()), closeAll
}
