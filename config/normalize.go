package config

import (
	"github.com/mitchellh/go-homedir"

	"github.com/mikehamer/crazyclient/crazyflie"
	"github.com/mikehamer/crazyclient/toc"
)

const (
	DefaultLink     = "ble://Crazyflie"
	DefaultListen   = "127.0.0.1:8000"
	DefaultCacheDir = "~/.crazyclient-cache"
)

// Normalize fills in defaults. It may be called more than once.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Link == "" {
		cfg.Link = DefaultLink
	}
	if cfg.DispatchPeriodMs == 0 {
		cfg.DispatchPeriodMs = int(crazyflie.DefaultPeriod.Milliseconds())
	}

	if cfg.Toc.TimeoutMs == 0 {
		cfg.Toc.TimeoutMs = int(toc.DefaultTimeout.Milliseconds())
	}
	if cfg.Toc.Retries == nil {
		retries := toc.DefaultRetries
		cfg.Toc.Retries = &retries
	}
	if cfg.Toc.Protocol == 0 {
		cfg.Toc.Protocol = 1
	}
	if cfg.Toc.CacheDir == "" {
		cfg.Toc.CacheDir = DefaultCacheDir
	}
	if dir, err := homedir.Expand(cfg.Toc.CacheDir); err == nil {
		cfg.Toc.CacheDir = dir
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = DefaultListen
	}
	if cfg.Server.Static != "" {
		if dir, err := homedir.Expand(cfg.Server.Static); err == nil {
			cfg.Server.Static = dir
		}
	}
}
