// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package waveconv_test

import (
	"bytes"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenPSG/waveconv"
	"github.com/OpenPSG/waveconv/adapter"
	"github.com/OpenPSG/waveconv/edf"
	"github.com/OpenPSG/waveconv/waveform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sine(n int, rate, freq, amplitude float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/rate)
	}
	return out
}

func readHeader(t *testing.T, path string) edf.Header {
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	er, err := edf.Open(f)
	require.NoError(t, err)
	return er.Header()
}

func TestWriteRoundTrip(t *testing.T) {
	rec, err := waveform.New(250,
		[][]float64{sine(600, 250, 1, 1.5), sine(600, 250, 3, 0.5)},
		[]string{"I", "a very long lead label"},
		[]string{"mV", "uV"})
	require.NoError(t, err)
	rec.Tracings[1][10] = math.NaN()
	rec.StartTime = time.Date(2023, 6, 7, 8, 9, 10, 0, time.UTC)

	path := filepath.Join(t.TempDir(), "ecg")
	w := waveconv.NewWriter(waveconv.Options{PatientID: "P-1", Logger: discardLogger()})
	require.NoError(t, w.Write(rec, path))

	hdr := readHeader(t, path+".edf")
	assert.Equal(t, "P-1", hdr.PatientID)
	assert.Equal(t, "X", hdr.RecordingID)
	assert.Equal(t, rec.StartTime, hdr.StartTime)
	assert.Equal(t, time.Second, hdr.DataRecordDuration)
	assert.Equal(t, 3, hdr.DataRecords)
	lo, hi, ok := rec.PhysicalRange()
	require.True(t, ok)
	for _, signal := range hdr.Signals {
		assert.Equal(t, 250, signal.SamplesPerRecord)
		// One physical range shared by every channel.
		assert.Equal(t, hdr.Signals[0].PhysicalMin, signal.PhysicalMin)
		assert.Equal(t, hdr.Signals[0].PhysicalMax, signal.PhysicalMax)
		assert.LessOrEqual(t, signal.PhysicalMin, lo)
		assert.GreaterOrEqual(t, signal.PhysicalMax, hi)
	}

	got, err := adapter.ReadEDF(path + ".edf")
	require.NoError(t, err)

	assert.Equal(t, 250.0, got.SampleRate)
	assert.Equal(t, []string{"I", "a very long lead"}, got.LeadNames)
	assert.Equal(t, []string{"mV", "uV"}, got.Dimensions)
	require.Equal(t, 600, got.Samples())

	step := 3.0 / (edf.DigitalMax - edf.DigitalMin)
	assert.InDeltaSlice(t, rec.Tracings[0], got.Tracings[0], step)
	for i, v := range rec.Tracings[1] {
		if math.IsNaN(v) {
			assert.True(t, math.IsNaN(got.Tracings[1][i]))
			continue
		}
		assert.InDelta(t, v, got.Tracings[1][i], step)
	}
}

func TestWriteCorrectsSampleRate(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	rec, err := waveform.New(250.08333, [][]float64{sine(100, 250, 2, 1)}, []string{"ECG"}, []string{"mV"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ecg.edf")
	require.NoError(t, waveconv.NewWriter(waveconv.Options{Logger: logger}).Write(rec, path))

	hdr := readHeader(t, path)
	assert.Equal(t, 12*time.Second, hdr.DataRecordDuration)
	assert.Equal(t, 3001, hdr.Signals[0].SamplesPerRecord)
	assert.InDelta(t, 3001.0/12, hdr.SampleRate(0), 1e-9)
	assert.Contains(t, logs.String(), "sample rate corrected")
}

func TestWriteIntegralRateNotLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	rec, err := waveform.New(100, [][]float64{sine(100, 100, 2, 1)}, []string{"ECG"}, []string{"mV"})
	require.NoError(t, err)

	require.NoError(t, waveconv.NewWriter(waveconv.Options{Logger: logger}).Write(rec, filepath.Join(t.TempDir(), "ecg")))
	assert.NotContains(t, logs.String(), "sample rate corrected")
}

func TestWriteRecordLayout(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		channels int
		duration time.Duration
		samples  int
	}{
		{"single channel", 500, 1, time.Second, 500},
		{"shortened to fit", 1000, 40, 500 * time.Millisecond, 500},
		{"half hertz", 0.5, 2, 2 * time.Second, 1},
		{"quarter hertz", 250.25, 1, 4 * time.Second, 1001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracings := make([][]float64, tt.channels)
			leads := make([]string, tt.channels)
			dims := make([]string, tt.channels)
			for i := range tracings {
				tracings[i] = sine(10, tt.rate, 1, 1)
				leads[i] = "ch"
				dims[i] = "mV"
			}
			rec, err := waveform.New(tt.rate, tracings, leads, dims)
			require.NoError(t, err)

			path := filepath.Join(t.TempDir(), "rec.edf")
			require.NoError(t, waveconv.NewWriter(waveconv.Options{Logger: discardLogger()}).Write(rec, path))

			hdr := readHeader(t, path)
			assert.Equal(t, tt.duration, hdr.DataRecordDuration)
			assert.Equal(t, tt.samples, hdr.Signals[0].SamplesPerRecord)
			assert.InDelta(t, tt.rate, hdr.SampleRate(0), 1e-9)
		})
	}
}

func TestWriteDefaultStartTime(t *testing.T) {
	rec, err := waveform.New(10, [][]float64{{1, 2, 3}}, []string{"ECG"}, []string{"mV"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "rec.edf")
	require.NoError(t, waveconv.NewWriter(waveconv.Options{Logger: discardLogger()}).Write(rec, path))

	hdr := readHeader(t, path)
	assert.Equal(t, time.Date(1985, 1, 1, 0, 0, 0, 0, time.UTC), hdr.StartTime)
}

func TestWriteConstantSignal(t *testing.T) {
	rec, err := waveform.New(10, [][]float64{{2, 2, 2, 2}}, []string{"SpO2"}, []string{"%"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "rec.edf")
	require.NoError(t, waveconv.NewWriter(waveconv.Options{Logger: discardLogger()}).Write(rec, path))

	hdr := readHeader(t, path)
	assert.Less(t, hdr.Signals[0].PhysicalMin, 2.0)
	assert.Greater(t, hdr.Signals[0].PhysicalMax, 2.0)

	got, err := adapter.ReadEDF(path)
	require.NoError(t, err)
	step := (hdr.Signals[0].PhysicalMax - hdr.Signals[0].PhysicalMin) / (edf.DigitalMax - edf.DigitalMin)
	assert.InDeltaSlice(t, []float64{2, 2, 2, 2}, got.Tracings[0], step)
}

func TestWriteFlatZero(t *testing.T) {
	rec, err := waveform.New(10, [][]float64{{0, 0, 0}}, []string{"ECG"}, []string{"mV"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "rec.edf")
	require.NoError(t, waveconv.NewWriter(waveconv.Options{Logger: discardLogger()}).Write(rec, path))

	hdr := readHeader(t, path)
	assert.Less(t, hdr.Signals[0].PhysicalMin, hdr.Signals[0].PhysicalMax)

	got, err := adapter.ReadEDF(path)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0, 0}, got.Tracings[0], 1e-4)
}

func TestWriteErrors(t *testing.T) {
	w := waveconv.NewWriter(waveconv.Options{Logger: discardLogger()})

	t.Run("all missing", func(t *testing.T) {
		rec, err := waveform.New(10, [][]float64{{math.NaN(), math.NaN()}}, []string{"ECG"}, []string{"mV"})
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "rec.edf")
		err = w.Write(rec, path)
		assert.ErrorIs(t, err, waveform.ErrData)
		assert.NoFileExists(t, path)
	})

	t.Run("rate rounds to zero", func(t *testing.T) {
		rec, err := waveform.New(0.01, [][]float64{{1}}, []string{"ECG"}, []string{"mV"})
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "rec.edf")
		assert.ErrorIs(t, w.Write(rec, path), waveform.ErrData)
		assert.NoFileExists(t, path)
	})

	t.Run("invalid record", func(t *testing.T) {
		rec := &waveform.Record{SampleRate: 10, Tracings: [][]float64{{1}, {1, 2}}, LeadNames: []string{"a", "b"}, Dimensions: []string{"mV", "mV"}}
		assert.ErrorIs(t, w.Write(rec, filepath.Join(t.TempDir(), "rec")), waveform.ErrData)
	})

	t.Run("unwritable path", func(t *testing.T) {
		rec, err := waveform.New(10, [][]float64{{1}}, []string{"ECG"}, []string{"mV"})
		require.NoError(t, err)

		assert.ErrorIs(t, w.Write(rec, filepath.Join(t.TempDir(), "missing", "rec")), waveform.ErrIO)
	})
}

func TestEDFPath(t *testing.T) {
	assert.Equal(t, "out/rec.edf", waveconv.EDFPath("out/rec"))
	assert.Equal(t, "out/rec.edf", waveconv.EDFPath("out/rec.edf"))
	assert.Equal(t, "out/rec.EDF", waveconv.EDFPath("out/rec.EDF"))
	assert.Equal(t, "out/rec.csv.edf", waveconv.EDFPath("out/rec.csv"))
}
