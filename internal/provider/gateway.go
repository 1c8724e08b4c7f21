package provider

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/zapagent/zapagent/internal/log"
	"github.com/zapagent/zapagent/internal/model"
)

// GatewayConfig tunes per-provider client-side rate limiting. Zero values
// disable limiting.
type GatewayConfig struct {
	// RPS is the sustained request rate allowed per provider name.
	RPS float64
	// Burst is the bucket size. Defaults to 1 when RPS is set.
	Burst int
}

// Gateway routes one completion call through an agent's ordered provider
// chain. The chain applies per call: a fallback used for one message does
// not become the persistent primary.
type Gateway struct {
	clients map[model.ProviderKind]Client
	cfg     GatewayConfig
	logger  log.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewGateway creates a gateway over the given adapters, keyed by provider
// kind.
func NewGateway(clients map[model.ProviderKind]Client, cfg GatewayConfig, logger log.Logger) *Gateway {
	return &Gateway{
		clients:  clients,
		cfg:      cfg,
		logger:   logger.With("component", "provider"),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Complete tries each provider in order until one succeeds. Failures
// classified as auth stop immediately; everything else advances. When the
// chain is exhausted the last error is returned wrapped in ErrExhausted.
func (g *Gateway) Complete(ctx context.Context, chain []model.ProviderConfig, req Request) (*Response, error) {
	if len(chain) == 0 {
		return nil, ErrEmptyChain
	}

	var lastErr *Error
	for i, cfg := range chain {
		client, ok := g.clients[cfg.Kind]
		if !ok {
			lastErr = &Error{Kind: KindUnavailable, Provider: cfg.Name,
				Err: fmt.Errorf("no adapter registered for kind %q", cfg.Kind)}
			g.logger.Warn("provider skipped", "provider", cfg.Name, "kind", cfg.Kind, "error", lastErr)
			continue
		}

		if err := g.wait(ctx, cfg.Name); err != nil {
			return nil, &Error{Kind: KindTimeout, Provider: cfg.Name, Err: err}
		}

		resp, err := client.Complete(ctx, cfg, req)
		if err == nil {
			if i > 0 {
				g.logger.Info("fallback provider answered",
					"provider", cfg.Name, "position", i)
			}
			return resp, nil
		}

		perr := classify(cfg.Name, KindUnavailable, err)
		if !perr.Advances() {
			g.logger.Error("provider call failed fatally",
				"provider", cfg.Name, "kind", perr.Kind, "error", perr.Err)
			return nil, perr
		}

		g.logger.Warn("provider call failed, advancing",
			"provider", cfg.Name, "kind", perr.Kind, "remaining", len(chain)-i-1, "error", perr.Err)
		lastErr = perr
	}

	return nil, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
}

// wait applies the client-side limiter for one provider name.
func (g *Gateway) wait(ctx context.Context, name string) error {
	if g.cfg.RPS <= 0 {
		return nil
	}

	g.mu.Lock()
	lim, ok := g.limiters[name]
	if !ok {
		burst := g.cfg.Burst
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(g.cfg.RPS), burst)
		g.limiters[name] = lim
	}
	g.mu.Unlock()

	return lim.Wait(ctx)
}
