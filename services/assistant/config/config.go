// Copyright (C) 2025 The ServiceIT AI Extension Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for license details.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the assistant service
// configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig is the HTTP listener configuration.
type ServerConfig struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"required,min=1,max=65535"`
	Mode string `yaml:"mode" validate:"oneof=debug release test"`
}

// RemoteConfig is the upstream platform connection.
type RemoteConfig struct {
	BaseURL           string   `yaml:"base_url" validate:"required,url"`
	APIToken          string   `yaml:"api_token"`
	RequestTimeout    Duration `yaml:"request_timeout"`
	RequestsPerSecond float64  `yaml:"requests_per_second" validate:"gte=0"`
	MaxRetryAttempts  int      `yaml:"max_retry_attempts" validate:"min=1,max=10"`
}

// CacheConfig is the persistent cache configuration.
type CacheConfig struct {
	Path              string   `yaml:"path"`
	InMemory          bool     `yaml:"in_memory"`
	MaxEntriesPerType int      `yaml:"max_entries_per_type" validate:"min=1"`
	DefaultTTL        Duration `yaml:"default_ttl"`
	GCInterval        Duration `yaml:"gc_interval"`
}

// SnapshotConfig tunes snapshot builds.
type SnapshotConfig struct {
	PageSize          int      `yaml:"page_size" validate:"min=1,max=500"`
	MaxPages          int      `yaml:"max_pages" validate:"min=1"`
	MaxPagesPerProbe  int      `yaml:"max_pages_per_probe" validate:"min=1"`
	DetailConcurrency int      `yaml:"detail_concurrency" validate:"min=1,max=32"`
	Freshness         Duration `yaml:"freshness"`
}

// MonitorConfig tunes change polling.
type MonitorConfig struct {
	WatchedInterval Duration `yaml:"watched_interval"`
	OwnSetInterval  Duration `yaml:"own_set_interval"`
	WatchTTL        Duration `yaml:"watch_ttl"`
}

// DigestConfig bounds context disclosure.
type DigestConfig struct {
	MaxTicketLines   int `yaml:"max_ticket_lines" validate:"min=10,max=150"`
	MaxEmployeeLines int `yaml:"max_employee_lines" validate:"min=10,max=150"`
	MaxCatalogLines  int `yaml:"max_catalog_lines" validate:"min=10,max=150"`
}

// GroundingConfig selects validation behavior.
type GroundingConfig struct {
	Mode string `yaml:"mode" validate:"oneof=advisory corrective"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// TelemetryConfig selects the metric and trace exporters.
type TelemetryConfig struct {
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=prometheus stdout none"`
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=stdout none"`
}

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Remote    RemoteConfig    `yaml:"remote"`
	Cache     CacheConfig     `yaml:"cache"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Digest    DigestConfig    `yaml:"digest"`
	Grounding GroundingConfig `yaml:"grounding"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Default returns the configuration used when a field is absent from
// the file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "127.0.0.1", Port: 8870, Mode: "release"},
		Remote: RemoteConfig{
			BaseURL:           "http://localhost:9080",
			RequestTimeout:    Duration(15 * time.Second),
			RequestsPerSecond: 5,
			MaxRetryAttempts:  3,
		},
		Cache: CacheConfig{
			Path:              "~/.serviceit/cache",
			MaxEntriesPerType: 1000,
			DefaultTTL:        Duration(5 * time.Minute),
			GCInterval:        Duration(10 * time.Minute),
		},
		Snapshot: SnapshotConfig{
			PageSize:          100,
			MaxPages:          50,
			MaxPagesPerProbe:  5,
			DetailConcurrency: 5,
			Freshness:         Duration(30 * time.Minute),
		},
		Monitor: MonitorConfig{
			WatchedInterval: Duration(30 * time.Second),
			OwnSetInterval:  Duration(60 * time.Second),
			WatchTTL:        Duration(7 * 24 * time.Hour),
		},
		Digest: DigestConfig{
			MaxTicketLines:   50,
			MaxEmployeeLines: 25,
			MaxCatalogLines:  20,
		},
		Grounding: GroundingConfig{Mode: "advisory"},
		Logging:   LoggingConfig{Level: "info", JSON: false},
		Telemetry: TelemetryConfig{MetricExporter: "prometheus", TraceExporter: "none"},
	}
}

// Load reads, merges over defaults, and validates a configuration
// file.
//
// Inputs:
//
//	path - YAML file path. Empty means defaults only.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - Non-nil on read, parse, or validation failure.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints, including the ones struct tags
// cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	for name, d := range map[string]Duration{
		"remote.request_timeout":   c.Remote.RequestTimeout,
		"cache.default_ttl":        c.Cache.DefaultTTL,
		"snapshot.freshness":       c.Snapshot.Freshness,
		"monitor.watched_interval": c.Monitor.WatchedInterval,
		"monitor.own_set_interval": c.Monitor.OwnSetInterval,
		"monitor.watch_ttl":        c.Monitor.WatchTTL,
	} {
		if d.Std() <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	if c.Cache.GCInterval.Std() < 0 {
		return fmt.Errorf("config: cache.gc_interval must not be negative")
	}
	return nil
}
