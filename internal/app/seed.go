package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/zapagent/zapagent/internal/model"
	"github.com/zapagent/zapagent/internal/tool"
)

// Seed declares the connections, agents, command overrides, message rules
// and tools the application serves. It is the file-based configuration
// surface for deployments without an admin panel; the records land in the
// in-memory ConfigSource.
type Seed struct {
	Connections []model.Connection             `json:"connections"`
	Agents      []model.Agent                  `json:"agents"`
	Commands    map[string][]model.Command     `json:"commands"`
	Rules       map[string][]model.MessageRule `json:"rules"`
	Tools       SeedTools                      `json:"tools"`
}

// SeedTools declares the tool catalog by kind.
type SeedTools struct {
	Rest   []tool.RestConfig   `json:"rest"`
	Code   []tool.CodeConfig   `json:"code"`
	Remote []tool.RemoteConfig `json:"remote"`
}

// LoadSeed reads and decodes a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing seed file %s: %w", path, err)
	}
	return &seed, nil
}

// ApplySeed loads the seed's records into the configuration source and
// registers its tools on the dispatcher. Remote catalogs that fail to sync
// are logged and skipped; the rest of the seed still applies.
func (a *App) ApplySeed(ctx context.Context, seed *Seed) error {
	for _, agent := range seed.Agents {
		a.Source.PutAgent(agent)
	}
	for _, conn := range seed.Connections {
		a.Source.PutConnection(conn)
	}
	for connID, cmds := range seed.Commands {
		a.Source.PutCommands(connID, cmds)
	}
	for connID, rules := range seed.Rules {
		a.Source.PutRules(connID, rules)
	}

	for _, cfg := range seed.Tools.Rest {
		if err := a.Dispatcher.Register(tool.NewRest(cfg, a.Logger)); err != nil {
			return fmt.Errorf("registering rest tool %q: %w", cfg.Name, err)
		}
	}
	for _, cfg := range seed.Tools.Code {
		if err := a.Dispatcher.Register(tool.NewCode(cfg, a.Logger)); err != nil {
			return fmt.Errorf("registering code tool %q: %w", cfg.Name, err)
		}
	}
	for _, cfg := range seed.Tools.Remote {
		remote := tool.NewRemote(cfg, a.Logger)
		if err := remote.Sync(ctx); err != nil {
			a.Logger.Warn("remote tool catalog unavailable, skipping",
				"endpoint", cfg.Endpoint, "error", err)
			continue
		}
		a.remotes = append(a.remotes, remote)
		for _, t := range remote.Tools() {
			if err := a.Dispatcher.Register(t); err != nil {
				return fmt.Errorf("registering remote tool %q: %w", t.Definition().Name, err)
			}
		}
	}

	return nil
}

// StartConnections brings every active seeded connection up.
func (a *App) StartConnections(ctx context.Context) error {
	for _, conn := range a.Source.Connections() {
		if !conn.Active {
			continue
		}
		if err := a.Supervisor.Start(ctx, conn); err != nil {
			return fmt.Errorf("starting connection %q: %w", conn.ID, err)
		}
	}
	return nil
}
