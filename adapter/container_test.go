// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package adapter_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/parquet-go/parquet-go"
	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"github.com/OpenPSG/waveconv/adapter"
	"github.com/OpenPSG/waveconv/edf"
	"github.com/OpenPSG/waveconv/waveform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecg.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	// Two interleaved channels, only the first one is kept.
	enc := wav.NewEncoder(f, 500, 16, 2, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:   []int{1000, 7, -2000, 7, 500, 7},
		Format: &audio.Format{SampleRate: 500, NumChannels: 2},
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	rec, err := adapter.ReadWAV(path)
	require.NoError(t, err)

	assert.Equal(t, 500.0, rec.SampleRate)
	assert.Equal(t, []string{"ECG"}, rec.LeadNames)
	assert.Equal(t, []string{"mV"}, rec.Dimensions)
	require.Equal(t, 1, rec.Channels())
	require.Equal(t, 3, rec.Samples())
	assert.InDeltaSlice(t, []float64{1, -2, 0.5}, rec.Tracings[0], 1e-9)
}

func TestReadWAVInvalid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "noise.wav", []byte("definitely not RIFF"))

	_, err := adapter.ReadWAV(path)
	assert.ErrorIs(t, err, waveform.ErrFormat)
}

type parquetRow struct {
	Time int64   `parquet:"time,timestamp(microsecond)"`
	ECG  float64 `parquet:"ECG_mV"`
	Resp int32   `parquet:"Resp_uV"`
}

func writeParquet(t *testing.T, rows []parquetRow) string {
	path := filepath.Join(t.TempDir(), "rec.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)

	w := parquet.NewGenericWriter[parquetRow](f)
	_, err = w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	return path
}

func TestReadParquet(t *testing.T) {
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC).UnixMicro()
	path := writeParquet(t, []parquetRow{
		{Time: start, ECG: 0.25, Resp: 10},
		{Time: start + 4000, ECG: 0.5, Resp: 20},
		{Time: start + 8000, ECG: -0.25, Resp: 30},
	})

	rec, err := adapter.ReadParquet(path)
	require.NoError(t, err)

	assert.Equal(t, 250.0, rec.SampleRate)
	assert.Equal(t, []string{"ECG", "Resp"}, rec.LeadNames)
	assert.Equal(t, []string{"mV", "uV"}, rec.Dimensions)
	assert.Equal(t, [][]float64{{0.25, 0.5, -0.25}, {10, 20, 30}}, rec.Tracings)
}

func TestReadParquetPeriodTruncation(t *testing.T) {
	// Only the sub-second part of the spacing counts: 1.5s reads as 0.5s.
	path := writeParquet(t, []parquetRow{{Time: 0}, {Time: 1_500_000}})

	rec, err := adapter.ReadParquet(path)
	require.NoError(t, err)
	assert.Equal(t, 2.0, rec.SampleRate)

	// Whole second spacing leaves no microsecond component.
	path = writeParquet(t, []parquetRow{{Time: 0}, {Time: 2_000_000}})
	_, err = adapter.ReadParquet(path)
	assert.ErrorIs(t, err, waveform.ErrFormat)
}

func TestReadParquetSingleRow(t *testing.T) {
	path := writeParquet(t, []parquetRow{{Time: 0, ECG: 1}})

	_, err := adapter.ReadParquet(path)
	assert.ErrorIs(t, err, waveform.ErrFormat)
}

func TestReadParquetInvalid(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.parquet", []byte("PAR1 but not really"))

	_, err := adapter.ReadParquet(path)
	assert.ErrorIs(t, err, waveform.ErrFormat)
}

func writeNPY(t *testing.T, val any) string {
	path := filepath.Join(t.TempDir(), "dump.npy")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, npyio.Write(f, val))
	require.NoError(t, f.Close())
	return path
}

func TestReadNPY(t *testing.T) {
	s := float64(math.MinInt32)
	path := writeNPY(t, mat.NewDense(2, 5, []float64{
		0, s, 2, s, s,
		s, 10, 20, 30, 40,
	}))

	rec, err := adapter.ReadNPY(path)
	require.NoError(t, err)

	assert.Equal(t, 500.0, rec.SampleRate)
	assert.Equal(t, []string{"ch1", "ch2"}, rec.LeadNames)
	assert.Equal(t, []string{"mV", "mV"}, rec.Dimensions)
	assert.InDeltaSlice(t, []float64{0, 1, 2, 2, 2}, rec.Tracings[0], 1e-9)
	assert.InDeltaSlice(t, []float64{10, 10, 20, 30, 40}, rec.Tracings[1], 1e-9)
}

func TestReadNPYInt32(t *testing.T) {
	path := writeNPY(t, []int32{4, math.MinInt32, 8})

	rec, err := adapter.ReadNPY(path)
	require.NoError(t, err)

	require.Equal(t, 1, rec.Channels())
	assert.InDeltaSlice(t, []float64{4, 6, 8}, rec.Tracings[0], 1e-9)
}

func TestReadNPYAllSentinel(t *testing.T) {
	path := writeNPY(t, []int32{math.MinInt32, math.MinInt32})

	_, err := adapter.ReadNPY(path)
	assert.ErrorIs(t, err, waveform.ErrFormat)
}

func TestReadEDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.edf")
	f, err := os.Create(path)
	require.NoError(t, err)

	start := time.Date(2022, 2, 2, 2, 2, 2, 0, time.UTC)
	signal := edf.Signal{PhysicalDimension: "mV", PhysicalMin: -1, PhysicalMax: 1, DigitalMin: edf.DigitalMin, DigitalMax: edf.DigitalMax, SamplesPerRecord: 3}
	lead1, lead2 := signal, signal
	lead1.Label, lead2.Label = "I", "II"

	ew, err := edf.Create(f, edf.Header{
		Version:            edf.Version0,
		StartTime:          start,
		DataRecordDuration: time.Second,
		SignalCount:        2,
		Signals:            []edf.Signal{lead1, lead2},
	})
	require.NoError(t, err)

	nan := math.NaN()
	require.NoError(t, ew.WriteRecord([][]float64{{0, 0.5, 1}, {-1, nan, 0}}))
	// The second record is padded after one sample.
	require.NoError(t, ew.WriteRecord([][]float64{{-0.5, nan, nan}, {nan, nan, nan}}))
	require.NoError(t, ew.Close())
	require.NoError(t, f.Close())

	rec, err := adapter.ReadEDF(path)
	require.NoError(t, err)

	assert.Equal(t, 3.0, rec.SampleRate)
	assert.Equal(t, []string{"I", "II"}, rec.LeadNames)
	assert.Equal(t, []string{"mV", "mV"}, rec.Dimensions)
	assert.Equal(t, start, rec.StartTime)
	require.Equal(t, 4, rec.Samples())
	assert.InDeltaSlice(t, []float64{0, 0.5, 1, -0.5}, rec.Tracings[0], 1e-4)
	assert.True(t, math.IsNaN(rec.Tracings[1][1]))
	assert.True(t, math.IsNaN(rec.Tracings[1][3]))
}

func TestReadEDFMixedRates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.edf")
	f, err := os.Create(path)
	require.NoError(t, err)

	ew, err := edf.Create(f, edf.Header{
		Version:            edf.Version0,
		DataRecordDuration: time.Second,
		SignalCount:        2,
		Signals: []edf.Signal{
			{Label: "ECG", PhysicalDimension: "mV", PhysicalMax: 1, DigitalMin: edf.DigitalMin, DigitalMax: edf.DigitalMax, SamplesPerRecord: 2},
			{Label: "SpO2", PhysicalDimension: "%", PhysicalMax: 100, DigitalMin: edf.DigitalMin, DigitalMax: edf.DigitalMax, SamplesPerRecord: 1},
		},
	})
	require.NoError(t, err)
	require.NoError(t, ew.WriteRecord([][]float64{{0, 1}, {98}}))
	require.NoError(t, ew.Close())
	require.NoError(t, f.Close())

	_, err = adapter.ReadEDF(path)
	assert.ErrorIs(t, err, waveform.ErrFormat)
}
