// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/refslens/pkg/logging"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// configValidate is shared by every Validate call. Initialized in init()
// with custom validators.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New(validator.WithRequiredStructEnabled())
	_ = configValidate.RegisterValidation("loglevel", validateLogLevel)
}

// validateLogLevel accepts anything logging.ParseLevel accepts.
func validateLogLevel(fl validator.FieldLevel) bool {
	_, err := logging.ParseLevel(fl.Field().String())
	return err == nil
}

// DefaultPath returns ~/.refslens/refslens.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".refslens", "refslens.yaml"), nil
}

// Load reads and validates the config at path.
//
// Description:
//
//	An empty path means DefaultPath. A missing file at the default path is
//	created from DefaultConfig on first run; a missing explicit path is an
//	error. Keys absent from the file keep their defaults, except services,
//	which replace the default set when present.
//
// Outputs:
//
//	Config - The validated configuration
//	string - The path that was read
//	error - Read, parse or validation failure
func Load(path string) (Config, string, error) {
	if path == "" {
		defaultPath, err := DefaultPath()
		if err != nil {
			return Config{}, "", err
		}
		path = defaultPath
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := createDefault(path); err != nil {
				return Config{}, path, err
			}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, path, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return Config{}, path, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, path, nil
}

// Parse decodes YAML from r over DefaultConfig and validates the result.
// Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	defaults := cfg.Services
	cfg.Services = nil

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Services == nil {
		cfg.Services = defaults
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field rules and that DefaultService names a service.
func Validate(cfg Config) error {
	if err := configValidate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, describeFieldError(fe))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, ok := cfg.Services[cfg.DefaultService]; !ok {
		return fmt.Errorf("%w: default_service %q is not defined in services", ErrInvalidConfig, cfg.DefaultService)
	}
	return nil
}

// describeFieldError renders a field error as "Namespace: tag=param (got value)".
func describeFieldError(fe validator.FieldError) string {
	rule := fe.Tag()
	if fe.Param() != "" {
		rule += "=" + fe.Param()
	}
	return fmt.Sprintf("%s: failed %s (got %q)", fe.Namespace(), rule, fmt.Sprint(fe.Value()))
}

// Write saves cfg as YAML at path, creating parent directories.
func Write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func createDefault(path string) error {
	fmt.Fprintf(os.Stderr, "First run detected, creating the config at %s\n", path)
	return Write(path, DefaultConfig())
}
