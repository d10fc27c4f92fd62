// Package config loads the engine's optional YAML configuration file,
// generalizing the reference worker's env-driven Config.Load into the
// file-based shape spec.md's CLI surface implies ("before CLI flags so
// flags override"): a workflow run has no env-var contract of its own, but
// tag limits and pool sizing are still worth keeping out of the command
// line for repeated local runs.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EngineConfig mirrors spec.md §6's CLI options so the same values can be
// supplied either way; CLI flags always win when both are set (zero value
// on this struct means "unset, let the flag default apply").
type EngineConfig struct {
	MaxWorkers int               `yaml:"max_workers"`
	Executor   string            `yaml:"executor"` // "process" | "thread"
	TagLimits  map[string]int    `yaml:"tag_limits"`
	CacheDir   string            `yaml:"cache_dir"`
	SummaryJSON string           `yaml:"summary_json"`
	TimeoutSeconds float64       `yaml:"timeout_seconds"`
}

// Load reads and validates a YAML config file. An empty path is not an
// error — it returns a zero-value EngineConfig so callers fall through
// entirely to flag defaults.
func Load(path string) (*EngineConfig, error) {
	if path == "" {
		return &EngineConfig{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg EngineConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Executor != "" && cfg.Executor != "process" && cfg.Executor != "thread" {
		return nil, fmt.Errorf("config: executor must be %q or %q, got %q", "process", "thread", cfg.Executor)
	}
	for tag, limit := range cfg.TagLimits {
		if limit <= 0 {
			return nil, fmt.Errorf("config: tag_limits[%q] must be positive, got %d", tag, limit)
		}
	}
	return &cfg, nil
}

// Merge overlays non-zero fields of override onto a copy of c, implementing
// "flags override file config".
func (c EngineConfig) Merge(override EngineConfig) EngineConfig {
	out := c
	if override.MaxWorkers != 0 {
		out.MaxWorkers = override.MaxWorkers
	}
	if override.Executor != "" {
		out.Executor = override.Executor
	}
	if override.CacheDir != "" {
		out.CacheDir = override.CacheDir
	}
	if override.SummaryJSON != "" {
		out.SummaryJSON = override.SummaryJSON
	}
	if override.TimeoutSeconds != 0 {
		out.TimeoutSeconds = override.TimeoutSeconds
	}
	if len(override.TagLimits) > 0 {
		merged := make(map[string]int, len(c.TagLimits)+len(override.TagLimits))
		for k, v := range c.TagLimits {
			merged[k] = v
		}
		for k, v := range override.TagLimits {
			merged[k] = v
		}
		out.TagLimits = merged
	}
	return out
}
