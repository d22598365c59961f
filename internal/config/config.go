package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "benchsum.yaml"

// Config is the project configuration loaded from benchsum.yaml.
// Systems maps workflow_id to the system under test; workflows absent
// from the map fall back to the leading underscore-separated segment of
// their id (opencode_run_headless -> opencode).
type Config struct {
	RunsRoot        string            `yaml:"runs_root"`
	Systems         map[string]string `yaml:"systems"`
	WatchDebounceMS int               `yaml:"watch_debounce_ms"`
	ServePort       int               `yaml:"serve_port"`
	CacheTTLSeconds int               `yaml:"cache_ttl_seconds"`
}

func Default() Config {
	return Config{
		RunsRoot:        "runs",
		Systems:         map[string]string{},
		WatchDebounceMS: 500,
		ServePort:       8099,
		CacheTTLSeconds: 60,
	}
}

// Load reads the config at path, layering file values and BENCHSUM_*
// environment overrides on top of the defaults. A missing file is not an
// error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Systems == nil {
		cfg.Systems = map[string]string{}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BENCHSUM_RUNS_ROOT"); v != "" {
		c.RunsRoot = v
	}
	if v := os.Getenv("BENCHSUM_SERVE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.ServePort = p
		}
	}
	if v := os.Getenv("BENCHSUM_WATCH_DEBOUNCE_MS"); v != "" {
		if d, err := strconv.Atoi(v); err == nil {
			c.WatchDebounceMS = d
		}
	}
}

// SystemFor resolves the system name for a workflow id.
func (c Config) SystemFor(workflowID string) string {
	if s, ok := c.Systems[workflowID]; ok && s != "" {
		return s
	}
	if i := strings.Index(workflowID, "_"); i > 0 {
		return workflowID[:i]
	}
	return workflowID
}
