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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/OpenPSG/waveconv/waveform"
)

// timeColumn names the column holding sample timestamps in seconds.
const timeColumn = "time"

// TSV layout: one value column at a fixed rate.
const (
	tsvValueColumn = "value"
	tsvSampleRate  = 125
	tsvLabel       = "PPG"
	tsvDimension   = "au"
)

// ReadCSV reads comma separated text with a time column and one column per
// channel named <label>_<unit>. The spacing of the first two timestamps
// determines the sample rate.
func ReadCSV(path string) (*waveform.Record, error) {
	header, rows, err := readTable(path, ',')
	if err != nil {
		return nil, err
	}

	timeIdx := columnIndex(header, timeColumn)
	if timeIdx < 0 {
		return nil, waveform.FormatErrorf("missing %q column", timeColumn)
	}
	if len(rows) < 2 {
		return nil, waveform.FormatErrorf("need at least two rows to derive the sample rate, got %d", len(rows))
	}

	t0, err := parseCell(rows[0][timeIdx])
	if err != nil {
		return nil, err
	}
	t1, err := parseCell(rows[1][timeIdx])
	if err != nil {
		return nil, err
	}
	if !(t1 > t0) {
		return nil, waveform.FormatErrorf("timestamps %v and %v are not increasing", t0, t1)
	}

	var (
		leads      []string
		dimensions []string
		columns    []int
	)
	for i, name := range header {
		if i == timeIdx {
			continue
		}
		label, unit, err := parseChannelName(name)
		if err != nil {
			return nil, err
		}
		leads = append(leads, label)
		dimensions = append(dimensions, unit)
		columns = append(columns, i)
	}

	tracings, err := columnsOf(rows, columns)
	if err != nil {
		return nil, err
	}

	return waveform.New(1/(t1-t0), tracings, leads, dimensions)
}

// ReadTSV reads tab separated text with a single value column sampled at a
// fixed rate. Other columns are ignored.
func ReadTSV(path string) (*waveform.Record, error) {
	header, rows, err := readTable(path, '\t')
	if err != nil {
		return nil, err
	}

	idx := columnIndex(header, tsvValueColumn)
	if idx < 0 {
		return nil, waveform.FormatErrorf("missing %q column", tsvValueColumn)
	}

	tracings, err := columnsOf(rows, []int{idx})
	if err != nil {
		return nil, err
	}

	return waveform.New(tsvSampleRate, tracings, []string{tsvLabel}, []string{tsvDimension})
}

// readTable reads a delimited file with a header row.
func readTable(path string, comma rune) ([]string, [][]string, error) {
	f, err := open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = comma
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, waveform.FormatErrorf("empty file")
	}
	if err != nil {
		return nil, nil, tableError(err)
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, tableError(err)
	}

	return header, rows, nil
}

func tableError(err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return waveform.FormatErrorf("%v", err)
	}
	return waveform.IOError(err)
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// columnsOf extracts the given columns of rows as channel major tracings.
func columnsOf(rows [][]string, columns []int) ([][]float64, error) {
	tracings := make([][]float64, len(columns))
	for i := range tracings {
		tracings[i] = make([]float64, len(rows))
	}

	for j, row := range rows {
		for i, col := range columns {
			v, err := parseCell(row[col])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", j+2, err)
			}
			tracings[i][j] = v
		}
	}

	return tracings, nil
}

// parseCell parses a numeric cell, an empty or NaN cell is a missing sample.
func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, waveform.FormatErrorf("invalid number %q", s)
	}
	return v, nil
}
