// Package app wires the application together: storage, providers, tools,
// the engine and the supervisor, with a cleanup stack released by Close.
package app

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zapagent/zapagent/internal/config"
	"github.com/zapagent/zapagent/internal/engine"
	"github.com/zapagent/zapagent/internal/history"
	"github.com/zapagent/zapagent/internal/knowledge"
	"github.com/zapagent/zapagent/internal/log"
	"github.com/zapagent/zapagent/internal/model"
	"github.com/zapagent/zapagent/internal/supervisor"
	"github.com/zapagent/zapagent/internal/tool"
)

// App holds the wired application components.
type App struct {
	Config *config.Config
	Logger log.Logger

	Pool    *pgxpool.Pool
	Source  *model.MemorySource
	History history.Store

	// Knowledge is nil when no embedding model is configured.
	Knowledge *knowledge.Store

	Dispatcher *tool.Dispatcher
	Engine     *engine.Engine
	Supervisor *supervisor.Supervisor

	remotes  []*tool.Remote
	cleanups []func(ctx context.Context) error
}

const closeTimeout = 10 * time.Second

// Close releases everything Setup initialized, in reverse order. Safe to
// call on a partially initialized App.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if a.Supervisor != nil {
		a.Supervisor.StopAll()
	}
	for _, r := range a.remotes {
		if err := r.Close(); err != nil {
			a.Logger.Warn("remote catalog close failed", "error", err)
		}
	}

	var firstErr error
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		if err := a.cleanups[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
