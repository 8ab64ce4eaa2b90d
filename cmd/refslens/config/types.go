// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the refslens configuration file schema.
package config

import (
	"time"

	"github.com/AleutianAI/refslens/pkg/telemetry"
	"github.com/AleutianAI/refslens/services/codelens/provider"
)

// Service modes.
const (
	ModeProcess = "process"
	ModeSocket  = "socket"
)

// Config is the contents of refslens.yaml.
type Config struct {
	// Log configures console and file logging.
	Log LogConfig `yaml:"log"`

	// DefaultService names the entry in Services that data points connect to.
	DefaultService string `yaml:"default_service" validate:"required"`

	// Services maps a service name to how it is reached.
	Services map[string]ServiceConfig `yaml:"services" validate:"required,min=1,dive"`

	// Metrics configures the HTTP endpoint for metrics and health.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing configures span export.
	Tracing TracingConfig `yaml:"tracing"`

	// Analysis configures `refslens analysis`.
	Analysis AnalysisConfig `yaml:"analysis"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"loglevel"`             // e.g. info
	Dir    string `yaml:"dir,omitempty"`                         // e.g. ~/.refslens/logs
	Format string `yaml:"format" validate:"omitempty,oneof=auto text json"`
	Quiet  bool   `yaml:"quiet,omitempty"`
}

// ServiceConfig describes one analysis service.
type ServiceConfig struct {
	// Mode is "process" (spawn per data point) or "socket" (dial a listener).
	Mode string `yaml:"mode" validate:"required,oneof=process socket"`

	// Command and Args start the service in process mode.
	Command string   `yaml:"command,omitempty" validate:"required_if=Mode process"`
	Args    []string `yaml:"args,omitempty"`
	Env     []string `yaml:"env,omitempty"`
	Dir     string   `yaml:"dir,omitempty"`

	// StopTimeout bounds a graceful process exit before it is killed.
	StopTimeout time.Duration `yaml:"stop_timeout,omitempty" validate:"gte=0"`

	// Network and Address locate the listener in socket mode. Address may
	// contain {hostGroup}.
	Network string `yaml:"network,omitempty" validate:"required_if=Mode socket,omitempty,oneof=unix tcp"`
	Address string `yaml:"address,omitempty" validate:"required_if=Mode socket"`

	// DialTimeout bounds the dial in socket mode.
	DialTimeout time.Duration `yaml:"dial_timeout,omitempty" validate:"gte=0"`
}

type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Listen   string `yaml:"listen" validate:"required_if=Enabled true,omitempty,hostname_port"` // e.g. 127.0.0.1:9464
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=prometheus stdout none"`
}

type TracingConfig struct {
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`
	File     string `yaml:"file,omitempty"` // stdout exporter only

	// Endpoint and Insecure locate the OTLP gRPC collector.
	Endpoint string `yaml:"endpoint,omitempty" validate:"required_if=Exporter otlp,omitempty,hostname_port"`
	Insecure bool   `yaml:"insecure,omitempty"`
}

type AnalysisConfig struct {
	// Network and Address make `refslens analysis` listen instead of
	// serving stdio. Both empty means stdio.
	Network  string        `yaml:"network,omitempty" validate:"required_with=Address,omitempty,oneof=unix tcp"`
	Address  string        `yaml:"address,omitempty" validate:"required_with=Network"`
	Debounce time.Duration `yaml:"debounce,omitempty" validate:"gte=0"`
}

// DefaultConfig returns a configuration that spawns `refslens analysis`
// as a child process for every data point.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Dir:    "~/.refslens/logs",
			Format: "auto",
		},
		DefaultService: provider.DefaultServiceName,
		Services: map[string]ServiceConfig{
			provider.DefaultServiceName: {
				Mode:        ModeProcess,
				Command:     "refslens",
				Args:        []string{"analysis"},
				StopTimeout: 5 * time.Second,
			},
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Listen:   "127.0.0.1:9464",
			Exporter: telemetry.ExporterPrometheus,
		},
		Tracing: TracingConfig{
			Exporter: telemetry.ExporterNone,
		},
		Analysis: AnalysisConfig{
			Debounce: 100 * time.Millisecond,
		},
	}
}
