// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"

	"github.com/OpenPSG/waveconv"
)

// Config holds all configuration for a conversion run.
type Config struct {
	// Paths, usually given as flags
	Input  string `env:"WAVECONV_INPUT" validate:"required"`
	Output string `env:"WAVECONV_OUTPUT" validate:"required"`

	// Segmenting
	Split           bool          `env:"WAVECONV_SPLIT, default=false"`
	SegmentDuration time.Duration `env:"WAVECONV_SEGMENT_DURATION, default=24h" validate:"gt=0"`

	// EDF header identification
	PatientID   string `env:"WAVECONV_PATIENT_ID, default=X" validate:"max=80"`
	RecordingID string `env:"WAVECONV_RECORDING_ID, default=X" validate:"max=80"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" validate:"oneof=text json"`
	LogLevel  string `env:"LOG_LEVEL, default=info" validate:"oneof=debug info warn warning error"`
}

// Load reads configuration from environment variables using go-envconfig.
// Required fields are checked by Validate, once flags had a chance to set them.
func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration against its constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Options returns the conversion options for this configuration.
func (c *Config) Options(logger *slog.Logger) waveconv.Options {
	return waveconv.Options{
		Split:           c.Split,
		SegmentDuration: c.SegmentDuration,
		PatientID:       c.PatientID,
		RecordingID:     c.RecordingID,
		Logger:          logger,
	}
}

// NewLogger creates a structured logger writing to w. When LogFormat is
// "json" it outputs JSON, otherwise human readable text.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}
	if strings.ToLower(c.LogFormat) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
