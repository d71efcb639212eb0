// Package config holds the client settings read from a YAML file.
package config

import (
	"time"

	"github.com/mikehamer/crazyclient/crazyflie"
	"github.com/mikehamer/crazyclient/toc"
)

type Config struct {
	// Link is a ble://, radio:// or stub:// URI.
	Link             string       `yaml:"link"`
	DispatchPeriodMs int          `yaml:"dispatch_period_ms"`
	Toc              TocConfig    `yaml:"toc"`
	Server           ServerConfig `yaml:"server"`
}

type TocConfig struct {
	TimeoutMs int  `yaml:"timeout_ms"`
	Retries   *int `yaml:"retries"`
	Protocol  int  `yaml:"protocol"`
	FetchLog  bool `yaml:"fetch_log"`
	Cache     bool `yaml:"cache"`
	// CacheDir defaults to ~/.crazyclient-cache
	CacheDir string `yaml:"cache_dir"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
	// Static is an optional directory served under /.
	Static string `yaml:"static"`
}

func (c *Config) DispatchPeriod() time.Duration {
	return time.Duration(c.DispatchPeriodMs) * time.Millisecond
}

// TocOptions returns the requester settings without logger or cache.
func (c *Config) TocOptions() toc.Config {
	retries := toc.DefaultRetries
	if c.Toc.Retries != nil {
		retries = *c.Toc.Retries
	}
	return toc.Config{
		Timeout: time.Duration(c.Toc.TimeoutMs) * time.Millisecond,
		Retries: retries,
		V2:      c.Toc.Protocol == 2,
	}
}

// SessionOptions returns the parts of a session config the file controls.
func (c *Config) SessionOptions() crazyflie.Config {
	return crazyflie.Config{
		Period:      c.DispatchPeriod(),
		Toc:         c.TocOptions(),
		FetchLogToc: c.Toc.FetchLog,
	}
}
