package cli

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aristath/ecf/internal/config"
	"github.com/aristath/ecf/internal/controller"
	"github.com/aristath/ecf/internal/events"
	"github.com/aristath/ecf/internal/executor"
	"github.com/aristath/ecf/internal/llm"
	"github.com/aristath/ecf/internal/logging"
	"github.com/aristath/ecf/internal/planner"
	"github.com/aristath/ecf/internal/task"
	"github.com/aristath/ecf/internal/tool"
	"github.com/aristath/ecf/internal/tools"
	"github.com/aristath/ecf/internal/trace"
)

// app holds the wired dependency graph for one command invocation.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	store    *task.Store
	tracer   *trace.Store
	bus      *events.Bus
	client   *llm.Client
	ctl      *controller.Controller
	closeLog func() error
}

// buildApp constructs the full stack from configuration. All failures here
// are configuration or dependency problems.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logging.Setup(logging.Options{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
	})
	if err != nil {
		return nil, errors.Join(ErrConfig, err)
	}
	slog.SetDefault(log)

	store, err := task.NewStore(cfg.Storage.TasksDir, log)
	if err != nil {
		closeLog()
		return nil, errors.Join(ErrConfig, err)
	}

	var tracer *trace.Store
	if cfg.Storage.TraceDB != "" {
		tracer, err = trace.Open(ctx, cfg.Storage.TraceDB)
		if err != nil {
			closeLog()
			return nil, errors.Join(ErrConfig, err)
		}
	}

	client := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.Timeout),
	}, log)

	registry := tool.NewRegistry(log)
	registry.Register(tools.NewTextOutput())

	providers := []tools.SearchProvider{}
	if cfg.Search.TavilyAPIKey != "" {
		providers = append(providers, tools.NewTavily(cfg.Search.TavilyAPIKey, ""))
	}
	providers = append(providers, tools.NewDuckDuckGo(""))
	registry.Register(tools.NewWebSearch(providers, log))

	bus := events.NewBus()

	ctl := controller.New(controller.Config{
		MaxPlannedSteps:  cfg.Controller.MaxPlannedSteps,
		MaxExecutedSteps: cfg.Controller.MaxExecutedSteps,
		PreResolveTools:  cfg.Controller.PreResolveTools,
	}, controller.Deps{
		Store:    store,
		Planner:  planner.New(client, store, tracer, log),
		Executor: executor.New(client, registry, tracer, log),
		Tracer:   tracer,
		Bus:      bus,
		Log:      log,
	})

	return &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		tracer:   tracer,
		bus:      bus,
		client:   client,
		ctl:      ctl,
		closeLog: closeLog,
	}, nil
}

func (a *app) Close() {
	a.bus.Close()
	if a.tracer != nil {
		a.tracer.Close()
	}
	if a.closeLog != nil {
		a.closeLog()
	}
}
