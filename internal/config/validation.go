package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validSSLModes are the sslmode values pgx accepts.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate performs fail-fast configuration validation with clear messages.
// Called by Load; call it again after mutating a Config by hand.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (must be 1-65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if c.RunTimeoutSeconds < 1 || c.RunTimeoutSeconds > 3600 {
		return fmt.Errorf("%w: %d seconds (must be 1-3600)", ErrInvalidRunTimeout, c.RunTimeoutSeconds)
	}
	if c.MaxToolIterations < 1 || c.MaxToolIterations > 50 {
		return fmt.Errorf("%w: %d (must be 1-50)", ErrInvalidToolIterations, c.MaxToolIterations)
	}
	if c.HistoryWindow < 1 || c.HistoryWindow > MaxAllowedHistoryWindow {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidHistoryWindow, c.HistoryWindow, MaxAllowedHistoryWindow)
	}
	if c.RetrievalTopK < 1 || c.RetrievalTopK > 50 {
		return fmt.Errorf("%w: %d (must be 1-50)", ErrInvalidRetrievalTopK, c.RetrievalTopK)
	}

	if c.InboundBuffer < 1 || c.InboundBuffer > 65536 {
		return fmt.Errorf("%w: %d (must be 1-65536)", ErrInvalidInboundBuffer, c.InboundBuffer)
	}
	if c.RequeueMax < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRequeueMax, c.RequeueMax)
	}

	if c.TranscriptionURL != "" {
		u, err := url.Parse(c.TranscriptionURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidTranscriptionURL, c.TranscriptionURL)
		}
	}

	if c.EmbeddingURL != "" {
		u, err := url.Parse(c.EmbeddingURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidEmbeddingURL, c.EmbeddingURL)
		}
	}

	return nil
}
