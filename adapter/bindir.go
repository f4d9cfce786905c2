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
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/OpenPSG/waveconv/waveform"
)

// Per-channel dump layout: little endian int16 samples at a fixed rate.
const (
	binSampleRate = 250
	binDimension  = "uV"
	binSentinel   = math.MinInt16
)

// IsGroupDir reports whether every entry of a directory is a regular file
// with GroupExtension. An empty directory is not a group.
func IsGroupDir(entries []os.DirEntry) bool {
	if len(entries) == 0 {
		return false
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.ToLower(filepath.Ext(entry.Name())) != GroupExtension {
			return false
		}
	}
	return true
}

// ReadBinDir reads a directory holding one sample dump per channel into a
// single record. Channels follow directory listing order and are labelled
// after their file names. Sentinel samples become missing values.
func ReadBinDir(dir string) (*waveform.Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, waveform.IOError(err)
	}
	if !IsGroupDir(entries) {
		return nil, waveform.FormatErrorf("%s does not hold only %s files", dir, GroupExtension)
	}

	var (
		tracings   [][]float64
		leads      []string
		dimensions []string
	)
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		tracing, err := readBinChannel(path)
		if err != nil {
			return nil, err
		}
		if len(tracings) > 0 && len(tracing) != len(tracings[0]) {
			return nil, waveform.FormatErrorf("%s has %d samples, expected %d", entry.Name(), len(tracing), len(tracings[0]))
		}

		tracings = append(tracings, tracing)
		leads = append(leads, stem(path))
		dimensions = append(dimensions, binDimension)
	}

	return waveform.New(binSampleRate, tracings, leads, dimensions)
}

func readBinChannel(path string) ([]float64, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, waveform.IOError(err)
	}
	if len(data)%2 != 0 {
		return nil, waveform.FormatErrorf("%s: odd byte count %d", filepath.Base(path), len(data))
	}

	tracing := make([]float64, len(data)/2)
	for i := range tracing {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		if v == binSentinel {
			tracing[i] = math.NaN()
			continue
		}
		tracing[i] = float64(v)
	}

	return tracing, nil
}
