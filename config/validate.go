package config

import (
	"fmt"

	"github.com/mikehamer/crazyclient/link"
)

// Validate checks a normalized configuration. It does not mutate it.
func Validate(cfg *Config) error {
	if _, err := link.ParseURI(cfg.Link); err != nil {
		return fmt.Errorf("link %q: %w", cfg.Link, err)
	}

	if cfg.DispatchPeriodMs < 1 {
		return fmt.Errorf("dispatch_period_ms must be positive, got %d", cfg.DispatchPeriodMs)
	}

	if cfg.Toc.TimeoutMs < 1 {
		return fmt.Errorf("toc.timeout_ms must be positive, got %d", cfg.Toc.TimeoutMs)
	}
	if cfg.Toc.Retries != nil && *cfg.Toc.Retries < 0 {
		return fmt.Errorf("toc.retries must not be negative, got %d", *cfg.Toc.Retries)
	}
	if cfg.Toc.Protocol != 1 && cfg.Toc.Protocol != 2 {
		return fmt.Errorf("toc.protocol must be 1 or 2, got %d", cfg.Toc.Protocol)
	}

	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen must not be empty")
	}
	return nil
}
