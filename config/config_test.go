package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "crazyclient.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultLink, cfg.Link)
	assert.Equal(t, 50*time.Millisecond, cfg.DispatchPeriod())
	assert.Equal(t, DefaultListen, cfg.Server.Listen)

	opts := cfg.TocOptions()
	assert.Equal(t, 500*time.Millisecond, opts.Timeout)
	assert.Equal(t, 2, opts.Retries)
	assert.False(t, opts.V2)
	assert.NotContains(t, cfg.Toc.CacheDir, "~")
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
link: radio://0/60/2M/E7E7E7E701
dispatch_period_ms: 20
toc:
  timeout_ms: 250
  retries: 0
  protocol: 2
  fetch_log: true
  cache: true
server:
  listen: 0.0.0.0:9000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "radio://0/60/2M/E7E7E7E701", cfg.Link)
	assert.Equal(t, 20*time.Millisecond, cfg.DispatchPeriod())
	assert.True(t, cfg.Toc.Cache)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Listen)

	session := cfg.SessionOptions()
	assert.Equal(t, 20*time.Millisecond, session.Period)
	assert.True(t, session.FetchLogToc)
	assert.Equal(t, 0, session.Toc.Retries)
	assert.True(t, session.Toc.V2)
	assert.Equal(t, 250*time.Millisecond, session.Toc.Timeout)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultLink, cfg.Link)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	_, err := Load(writeConfig(t, "linkk: ble://Crazyflie\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		Normalize(cfg)
		return cfg
	}
	require.NoError(t, Validate(valid()))

	cases := map[string]func(*Config){
		"bad scheme":      func(c *Config) { c.Link = "usb://0" },
		"bad channel":     func(c *Config) { c.Link = "radio://0/200" },
		"negative period": func(c *Config) { c.DispatchPeriodMs = -1 },
		"zero timeout":    func(c *Config) { c.Toc.TimeoutMs = 0 },
		"protocol 3":      func(c *Config) { c.Toc.Protocol = 3 },
		"no listen":       func(c *Config) { c.Server.Listen = "" },
		"negative retries": func(c *Config) {
			r := -1
			c.Toc.Retries = &r
		},
	}

	for name, mutate := range cases {
		cfg := valid()
		mutate(cfg)
		assert.Error(t, Validate(cfg), name)
	}
}
