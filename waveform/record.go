// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package waveform defines the normalized multi-channel waveform record every
// source format is converted into.
package waveform

import (
	"fmt"
	"math"
	"time"
)

// Record is one normalized multi-channel waveform.
type Record struct {
	SampleRate float64     // Samples per second, may be non-integral
	Tracings   [][]float64 // Channel major samples, NaN marks a missing sample
	LeadNames  []string    // Channel labels, aligned with Tracings
	Dimensions []string    // Physical units, aligned with Tracings
	StartTime  time.Time   // Start of the recording, zero if unknown
}

// New builds a record and validates it.
func New(sampleRate float64, tracings [][]float64, leadNames, dimensions []string) (*Record, error) {
	rec := &Record{
		SampleRate: sampleRate,
		Tracings:   tracings,
		LeadNames:  leadNames,
		Dimensions: dimensions,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate checks the record invariants. A violation is reported as ErrFormat
// since it means the source could not be reconciled with a valid record.
func (r *Record) Validate() error {
	if math.IsNaN(r.SampleRate) || math.IsInf(r.SampleRate, 0) || r.SampleRate <= 0 {
		return fmt.Errorf("%w: invalid sample rate %v", ErrFormat, r.SampleRate)
	}

	channels := len(r.Tracings)
	if channels == 0 {
		return fmt.Errorf("%w: no channels", ErrFormat)
	}
	if len(r.LeadNames) != channels || len(r.Dimensions) != channels {
		return fmt.Errorf("%w: %d channels but %d lead names and %d dimensions",
			ErrFormat, channels, len(r.LeadNames), len(r.Dimensions))
	}

	samples := len(r.Tracings[0])
	if samples == 0 {
		return fmt.Errorf("%w: no samples", ErrFormat)
	}
	for i, tracing := range r.Tracings {
		if len(tracing) != samples {
			return fmt.Errorf("%w: channel %d has %d samples, expected %d", ErrFormat, i, len(tracing), samples)
		}
	}

	for i, dim := range r.Dimensions {
		if dim == "" {
			return fmt.Errorf("%w: channel %d (%s) has an unresolved dimension", ErrFormat, i, r.LeadNames[i])
		}
	}

	return nil
}

// Channels returns the number of channels.
func (r *Record) Channels() int {
	return len(r.Tracings)
}

// Samples returns the number of samples per channel.
func (r *Record) Samples() int {
	if len(r.Tracings) == 0 {
		return 0
	}
	return len(r.Tracings[0])
}

// Duration returns the recording length.
func (r *Record) Duration() time.Duration {
	return time.Duration(float64(r.Samples()) / r.SampleRate * float64(time.Second))
}

// Slice returns a record sharing the header metadata of r with its tracings
// restricted to the sample range [start, end). The start time is advanced
// accordingly when known.
func (r *Record) Slice(start, end int) *Record {
	tracings := make([][]float64, len(r.Tracings))
	for i, tracing := range r.Tracings {
		tracings[i] = tracing[start:end:end]
	}

	startTime := r.StartTime
	if !startTime.IsZero() {
		startTime = startTime.Add(time.Duration(float64(start) / r.SampleRate * float64(time.Second)))
	}

	return &Record{
		SampleRate: r.SampleRate,
		Tracings:   tracings,
		LeadNames:  r.LeadNames,
		Dimensions: r.Dimensions,
		StartTime:  startTime,
	}
}

// PhysicalRange returns the minimum and maximum finite sample across all
// channels. ok is false when no finite sample exists.
func (r *Record) PhysicalRange() (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, tracing := range r.Tracings {
		for _, v := range tracing {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
			ok = true
		}
	}
	return lo, hi, ok
}
