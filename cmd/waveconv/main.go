// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Command waveconv converts biosignal recordings into EDF files.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/OpenPSG/waveconv"
	"github.com/OpenPSG/waveconv/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Flags take precedence over the environment.
	fs := flag.NewFlagSet("waveconv", flag.ContinueOnError)
	fs.StringVar(&cfg.Input, "i", cfg.Input, "Input file or directory")
	fs.StringVar(&cfg.Output, "o", cfg.Output, "Output file or directory")
	fs.BoolVar(&cfg.Split, "split", cfg.Split, "Split recordings longer than the segment duration into parts")
	fs.DurationVar(&cfg.SegmentDuration, "segment", cfg.SegmentDuration, "Longest segment when splitting")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		fs.Usage()
		return err
	}

	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	logger.Info("starting conversion",
		slog.String("input", cfg.Input),
		slog.String("output", cfg.Output),
		slog.Bool("split", cfg.Split),
		slog.Duration("segment_duration", cfg.SegmentDuration),
	)

	report, err := waveconv.New(cfg.Options(logger)).Dispatch(ctx, cfg.Input, cfg.Output)
	if err != nil {
		return err
	}

	logger.Info("conversion finished",
		slog.Int("converted", report.Converted),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", len(report.Failures)),
	)

	if len(report.Failures) > 0 {
		return fmt.Errorf("%d input(s) failed to convert", len(report.Failures))
	}

	return nil
}
