package app

import (
	"context"
	"fmt"
	"time"

	"github.com/zapagent/zapagent/db"
	"github.com/zapagent/zapagent/internal/command"
	"github.com/zapagent/zapagent/internal/config"
	"github.com/zapagent/zapagent/internal/database"
	"github.com/zapagent/zapagent/internal/engine"
	"github.com/zapagent/zapagent/internal/history"
	"github.com/zapagent/zapagent/internal/knowledge"
	"github.com/zapagent/zapagent/internal/log"
	"github.com/zapagent/zapagent/internal/model"
	"github.com/zapagent/zapagent/internal/policy"
	"github.com/zapagent/zapagent/internal/provider"
	"github.com/zapagent/zapagent/internal/supervisor"
	"github.com/zapagent/zapagent/internal/telemetry"
	"github.com/zapagent/zapagent/internal/tool"
	"github.com/zapagent/zapagent/internal/transcribe"
)

// Setup creates and initializes the application. The transport is the
// caller's messaging implementation; everything else is built from cfg.
// Returns an App with an embedded cleanup stack, released by Close.
func Setup(ctx context.Context, cfg *config.Config, transport supervisor.Transport, version string) (_ *App, retErr error) {
	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	if cfg.TracesEnabled {
		shutdown, err := telemetry.Init(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment, version)
		if err != nil {
			return nil, fmt.Errorf("initializing telemetry: %w", err)
		}
		a.cleanups = append(a.cleanups, shutdown)
	}

	pool, err := database.Open(ctx, cfg.PostgresConnectionString(), logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.Pool = pool
	a.cleanups = append(a.cleanups, func(context.Context) error {
		pool.Close()
		return nil
	})

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	a.Source = model.NewMemorySource()
	a.History = history.NewPostgres(pool, logger)

	if cfg.EmbeddingModel != "" {
		embedder := knowledge.NewHTTPEmbedder(knowledge.EmbedderConfig{
			URL:    cfg.EmbeddingURL,
			APIKey: cfg.EmbeddingAPIKey,
			Model:  cfg.EmbeddingModel,
		})
		a.Knowledge = knowledge.NewStore(pool, embedder, logger)
	}

	gateway := provider.NewGateway(map[model.ProviderKind]provider.Client{
		model.ProviderOpenAI: provider.NewOpenAI(logger),
		model.ProviderOllama: provider.NewOllama(logger),
		model.ProviderGemini: provider.NewGemini(logger),
	}, provider.GatewayConfig{}, logger)

	a.Dispatcher = tool.NewDispatcher(logger)

	var transcriber transcribe.Transcriber
	if cfg.TranscriptionAPIKey != "" {
		transcriber = transcribe.NewClient(transcribe.Config{
			URL:      cfg.TranscriptionURL,
			APIKey:   cfg.TranscriptionAPIKey,
			Model:    cfg.TranscriptionModel,
			Language: cfg.TranscriptionLang,
		}, logger)
	}

	var retriever engine.Retriever
	if a.Knowledge != nil {
		retriever = a.Knowledge
	}

	a.Engine = engine.New(engine.Deps{
		Source:  a.Source,
		History: a.History,
		Commands: command.New(a.Source, a.History, command.Options{
			CaseSensitivePrefix: cfg.CommandCaseSensitivePrefix,
		}, logger),
		Policy:      policy.New(a.Source),
		Gateway:     gateway,
		Tools:       a.Dispatcher,
		Retriever:   retriever,
		Transcriber: transcriber,
		Logger:      logger,
	}, engine.Config{
		RunTimeout:           time.Duration(cfg.RunTimeoutSeconds) * time.Second,
		MaxToolIterations:    cfg.MaxToolIterations,
		HistoryWindow:        cfg.HistoryWindow,
		RetrievalTopK:        cfg.RetrievalTopK,
		PolicyBeforeCommands: cfg.PolicyBeforeCommands,
	})

	a.Supervisor = supervisor.New(transport, a.Engine, supervisor.Config{
		InboundBuffer:        cfg.InboundBuffer,
		RequeueMax:           cfg.RequeueMax,
		RequeueDelay:         time.Duration(cfg.RequeueDelayMillis) * time.Millisecond,
		ReconnectMaxInterval: time.Duration(cfg.ReconnectMaxSeconds) * time.Second,
	}, logger)

	return a, nil
}
