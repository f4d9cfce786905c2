// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package adapter

import (
	"errors"
	"io"
	"math"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/OpenPSG/waveconv/waveform"
)

const parquetBatchSize = 1024

// ReadParquet reads a flat parquet file with a timestamp column named time
// and one numeric column per channel named <label>_<unit>.
//
// The sample period is the microsecond component of the difference between
// the first two timestamps. Whole seconds of the difference are discarded,
// so periods of a second or more, or below a microsecond, are rejected.
func ReadParquet(path string) (*waveform.Record, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, waveform.IOError(err)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, waveform.FormatErrorf("%v", err)
	}

	fields := pf.Schema().Fields()
	timeIdx := -1
	var (
		leads      []string
		dimensions []string
		columns    []int
	)
	for i, field := range fields {
		// Column indexes only match field indexes for a flat schema.
		if !field.Leaf() {
			return nil, waveform.FormatErrorf("nested column %q is not supported", field.Name())
		}
		if strings.EqualFold(field.Name(), timeColumn) {
			timeIdx = i
			continue
		}
		if !isNumericKind(field.Type().Kind()) {
			return nil, waveform.FormatErrorf("column %q is not numeric", field.Name())
		}

		label, unit, err := parseChannelName(field.Name())
		if err != nil {
			return nil, err
		}
		leads = append(leads, label)
		dimensions = append(dimensions, unit)
		columns = append(columns, i)
	}
	if timeIdx < 0 {
		return nil, waveform.FormatErrorf("missing %q column", timeColumn)
	}

	unit, err := timestampUnit(fields[timeIdx])
	if err != nil {
		return nil, err
	}

	channelOf := make(map[int]int, len(columns))
	for ch, col := range columns {
		channelOf[col] = ch
	}

	var times []time.Duration
	tracings := make([][]float64, len(columns))
	buf := make([]parquet.Row, parquetBatchSize)
	for _, rg := range pf.RowGroups() {
		if err := readRowGroup(rg, buf, func(row parquet.Row) {
			// Null cells stay missing.
			for ch := range tracings {
				tracings[ch] = append(tracings[ch], math.NaN())
			}
			var ts time.Duration
			for _, v := range row {
				if v.IsNull() {
					continue
				}
				if v.Column() == timeIdx {
					ts = unit(v)
					continue
				}
				if ch, ok := channelOf[v.Column()]; ok {
					tracings[ch][len(tracings[ch])-1] = numericValue(v)
				}
			}
			times = append(times, ts)
		}); err != nil {
			return nil, err
		}
	}

	if len(times) < 2 {
		return nil, waveform.FormatErrorf("need at least two rows to derive the sample rate, got %d", len(times))
	}

	period := ((times[1] - times[0]) % time.Second) / time.Microsecond
	if period <= 0 {
		return nil, waveform.FormatErrorf("timestamps %v and %v give no sub-second microsecond period", times[0], times[1])
	}

	return waveform.New(1e6/float64(period), tracings, leads, dimensions)
}

func readRowGroup(rg parquet.RowGroup, buf []parquet.Row, fn func(parquet.Row)) error {
	rows := rg.Rows()
	defer rows.Close()

	for {
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			fn(row)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return waveform.FormatErrorf("%v", err)
		}
		if n == 0 {
			return nil
		}
	}
}

// timestampUnit returns a conversion from values of the time column to an
// offset. Timestamp columns honour their declared unit, floating point
// columns hold seconds.
func timestampUnit(field parquet.Field) (func(parquet.Value) time.Duration, error) {
	typ := field.Type()
	if lt := typ.LogicalType(); lt != nil && lt.Timestamp != nil {
		scale := time.Nanosecond
		switch {
		case lt.Timestamp.Unit.Millis != nil:
			scale = time.Millisecond
		case lt.Timestamp.Unit.Micros != nil:
			scale = time.Microsecond
		}
		return func(v parquet.Value) time.Duration {
			return time.Duration(v.Int64()) * scale
		}, nil
	}

	switch typ.Kind() {
	case parquet.Float, parquet.Double:
		return func(v parquet.Value) time.Duration {
			return time.Duration(numericValue(v) * float64(time.Second))
		}, nil
	default:
		return nil, waveform.FormatErrorf("column %q is not a timestamp", field.Name())
	}
}

func isNumericKind(kind parquet.Kind) bool {
	switch kind {
	case parquet.Int32, parquet.Int64, parquet.Float, parquet.Double:
		return true
	default:
		return false
	}
}

func numericValue(v parquet.Value) float64 {
	switch v.Kind() {
	case parquet.Int32:
		return float64(v.Int32())
	case parquet.Int64:
		return float64(v.Int64())
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	default:
		return math.NaN()
	}
}
