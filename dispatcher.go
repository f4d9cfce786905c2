// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package waveconv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/OpenPSG/waveconv/adapter"
	"github.com/OpenPSG/waveconv/waveform"
)

// Options configures a conversion run.
type Options struct {
	Split           bool             // Split long recordings into segments
	SegmentDuration time.Duration    // Longest segment, DefaultSegmentDuration if zero
	PatientID       string           // EDF patient identification
	RecordingID     string           // EDF recording identification
	Adapters        adapter.Registry // Extension to adapter table, adapter.Default() if nil
	Logger          *slog.Logger     // slog.Default() if nil
}

func (o Options) withDefaults() Options {
	if o.SegmentDuration <= 0 {
		o.SegmentDuration = DefaultSegmentDuration
	}
	if o.PatientID == "" {
		o.PatientID = defaultIdentification
	}
	if o.RecordingID == "" {
		o.RecordingID = defaultIdentification
	}
	if o.Adapters == nil {
		o.Adapters = adapter.Default()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Failure records an input that could not be converted.
type Failure struct {
	Path string
	Err  error
}

// Report summarizes a conversion run.
type Report struct {
	Converted int       // Inputs written successfully
	Skipped   int       // Files with an unrecognized extension
	Failures  []Failure // Inputs that failed, the run continued past them
}

// Err joins the errors of all failures, nil if there were none.
func (r *Report) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = fmt.Errorf("%s: %w", f.Path, f.Err)
	}
	return errors.Join(errs...)
}

// Dispatcher selects an adapter per input and writes or splits the result.
type Dispatcher struct {
	adapters adapter.Registry
	writer   *Writer
	splitter *Splitter
	split    bool
	logger   *slog.Logger
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	w := NewWriter(opts)
	return &Dispatcher{
		adapters: opts.Adapters,
		writer:   w,
		splitter: NewSplitter(w, opts.SegmentDuration),
		split:    opts.Split,
		logger:   opts.Logger,
	}
}

// Dispatch converts input, a file or a directory tree, into output.
//
// A file is converted with the adapter registered for its extension and
// written to output. A directory holding only adapter.GroupExtension files is
// one recording written to output. Any other directory is mirrored to the
// output directory and its entries are dispatched recursively, files being
// written under their name without extension.
//
// Files with unrecognized extensions are skipped, a stray adapter.GroupExtension
// file in a directory with other entries is a failure. A failing input is recorded
// in the report and does not stop the run. The returned error is only set when
// the run could not start or ctx was cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, input, output string) (*Report, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, waveform.IOError(err)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, waveform.IOError(err)
	}

	report := &Report{}
	if info.IsDir() {
		d.dispatchDir(ctx, input, output, report)
	} else {
		d.dispatchFile(input, output, report)
	}

	return report, ctx.Err()
}

func (d *Dispatcher) dispatchDir(ctx context.Context, input, output string, report *Report) {
	entries, err := os.ReadDir(input)
	if err != nil {
		d.fail(report, input, waveform.IOError(err))
		return
	}

	if adapter.IsGroupDir(entries) {
		d.convert(input, output, adapter.ReadBinDir, report)
		return
	}

	if err := os.MkdirAll(output, 0o755); err != nil {
		d.fail(report, input, waveform.IOError(err))
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		path := filepath.Join(input, entry.Name())
		if entry.IsDir() {
			d.dispatchDir(ctx, path, filepath.Join(output, entry.Name()), report)
			continue
		}

		ext := filepath.Ext(entry.Name())
		if strings.EqualFold(ext, adapter.GroupExtension) {
			d.fail(report, path, waveform.FormatErrorf("%s channel in a directory with other entries", adapter.GroupExtension))
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ext)
		d.dispatchFile(path, filepath.Join(output, name), report)
	}
}

func (d *Dispatcher) dispatchFile(input, output string, report *Report) {
	fn, ok := d.adapters.Lookup(input)
	if !ok {
		report.Skipped++
		d.logger.Debug("skipping unrecognized file", slog.String("input", input))
		return
	}

	d.convert(input, output, fn, report)
}

func (d *Dispatcher) convert(input, output string, fn adapter.Func, report *Report) {
	rec, err := fn(input)
	if err == nil {
		if d.split {
			err = d.splitter.Split(rec, output)
		} else {
			err = d.writer.Write(rec, output)
		}
	}
	if err != nil {
		d.fail(report, input, err)
		return
	}

	report.Converted++
	d.logger.Info("converted",
		slog.String("input", input),
		slog.String("output", output),
		slog.Int("channels", rec.Channels()),
		slog.Int("samples", rec.Samples()),
	)
}

func (d *Dispatcher) fail(report *Report, input string, err error) {
	report.Failures = append(report.Failures, Failure{Path: input, Err: err})
	d.logger.Error("conversion failed", slog.String("input", input), slog.Any("error", err))
}
