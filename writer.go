// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package waveconv converts biosignal recordings into EDF files, optionally
// splitting long recordings into bounded segments.
package waveconv

import (
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/OpenPSG/waveconv/edf"
	"github.com/OpenPSG/waveconv/waveform"
)

// sampleRateDenominator is the denominator non-integral sample rates are
// rounded to, source rates are commonly twelfths (e.g. 3001/12 Hz).
const sampleRateDenominator = 12

// defaultIdentification fills the patient and recording fields when unset.
const defaultIdentification = "X"

var (
	// baseDurations are data record durations in seconds, one of them makes
	// any multiple of 1/12 Hz an integral sample count.
	baseDurations = []int{1, 2, 3, 4, 6, 12}
	// durationDivisors shorten a record while keeping a terminating decimal
	// duration.
	durationDivisors = []int{1, 2, 4, 5, 8, 10, 20, 25, 40, 50, 100, 125, 200, 250, 500, 1000}
	// defaultStartTime is used when a record carries no usable start time.
	defaultStartTime = time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Writer serializes records to EDF files.
type Writer struct {
	patientID   string
	recordingID string
	logger      *slog.Logger
}

// NewWriter creates a writer using the identification and logger of opts.
func NewWriter(opts Options) *Writer {
	opts = opts.withDefaults()
	return &Writer{
		patientID:   opts.PatientID,
		recordingID: opts.RecordingID,
		logger:      opts.Logger,
	}
}

// Write writes rec to path, appending the .edf extension when missing.
//
// A non-integral sample rate is rounded to the nearest twelfth of a hertz, a
// changed rate is logged as a warning. All channels share one physical range,
// the extremes of the finite samples. No file is left behind on failure.
func (w *Writer) Write(rec *waveform.Record, path string) error {
	if err := rec.Validate(); err != nil {
		return waveform.DataErrorf("invalid record: %v", err)
	}

	rate := correctSampleRate(rec.SampleRate)
	if rate <= 0 {
		return waveform.DataErrorf("sample rate %v Hz rounds to %v Hz", rec.SampleRate, rate)
	}
	if rate != rec.SampleRate {
		w.logger.Warn("sample rate corrected",
			slog.String("path", path),
			slog.Float64("original", rec.SampleRate),
			slog.Float64("corrected", rate),
		)
	}

	lo, hi, ok := rec.PhysicalRange()
	if !ok {
		return waveform.DataErrorf("no finite sample in %d channels", rec.Channels())
	}
	if lo == hi {
		// EDF requires distinct physical bounds.
		lo, hi = lo-1, hi+1
	}

	duration, samplesPerRecord, err := recordLayout(rate, rec.Channels())
	if err != nil {
		return err
	}

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          w.patientID,
		RecordingID:        w.recordingID,
		StartTime:          startTime(rec.StartTime),
		DataRecordDuration: duration,
		SignalCount:        rec.Channels(),
		Signals:            make([]edf.Signal, rec.Channels()),
	}
	for i := range hdr.Signals {
		hdr.Signals[i] = edf.Signal{
			Label:             rec.LeadNames[i],
			PhysicalDimension: rec.Dimensions[i],
			PhysicalMin:       lo,
			PhysicalMax:       hi,
			DigitalMin:        edf.DigitalMin,
			DigitalMax:        edf.DigitalMax,
			SamplesPerRecord:  samplesPerRecord,
		}
	}

	path = EDFPath(path)
	f, err := os.Create(path)
	if err != nil {
		return waveform.IOError(err)
	}

	if err := writeRecords(f, hdr, rec.Tracings); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return waveform.IOError(err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return waveform.IOError(err)
	}

	return nil
}

// EDFPath appends the EDF extension to path unless it already has it.
func EDFPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), edf.Extension) {
		return path
	}
	return path + edf.Extension
}

func writeRecords(f *os.File, hdr edf.Header, tracings [][]float64) error {
	ew, err := edf.Create(f, hdr)
	if err != nil {
		return err
	}

	samplesPerRecord := hdr.Signals[0].SamplesPerRecord
	chunk := make([][]float64, len(tracings))
	for i := range chunk {
		chunk[i] = make([]float64, samplesPerRecord)
	}

	// The final record is padded with missing samples.
	n := len(tracings[0])
	for start := 0; start < n; start += samplesPerRecord {
		end := min(start+samplesPerRecord, n)
		for i, tracing := range tracings {
			copied := copy(chunk[i], tracing[start:end])
			for j := copied; j < samplesPerRecord; j++ {
				chunk[i][j] = math.NaN()
			}
		}
		if err := ew.WriteRecord(chunk); err != nil {
			return err
		}
	}

	return ew.Close()
}

func correctSampleRate(rate float64) float64 {
	if rate == math.Trunc(rate) {
		return rate
	}
	return math.Round(rate*sampleRateDenominator) / sampleRateDenominator
}

// recordLayout picks a data record duration holding an integral number of
// samples, preferring records within the recommended EDF record size.
func recordLayout(rate float64, channels int) (time.Duration, int, error) {
	for _, d := range baseDurations {
		exact := rate * float64(d)
		if math.Abs(exact-math.Round(exact)) > 1e-6 || math.Round(exact) < 1 {
			continue
		}
		samples := int(math.Round(exact))

		divisor := 1
		for _, k := range durationDivisors {
			if samples%k != 0 {
				continue
			}
			divisor = k
			if samples/k*channels*2 <= edf.RecommendedMaxRecordBytes {
				break
			}
		}

		return time.Duration(d) * time.Second / time.Duration(divisor), samples / divisor, nil
	}

	return 0, 0, waveform.DataErrorf("sample rate %v Hz has no integral data record layout", rate)
}

// startTime maps t onto the range representable by EDF headers.
func startTime(t time.Time) time.Time {
	if t.IsZero() || t.Year() < 1985 || t.Year() > 2084 {
		return defaultStartTime
	}
	return t.UTC()
}
