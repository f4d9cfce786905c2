// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package adapter converts source recordings into waveform records. Each
// supported format is one Func, selected by file extension through a
// Registry.
package adapter

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/OpenPSG/waveconv/waveform"
)

// Func reads the recording at path into a record.
type Func func(path string) (*waveform.Record, error)

// Registry maps a lower case file extension (with the leading dot) to the
// adapter for that format.
type Registry map[string]Func

// GroupExtension marks per-channel sample dumps. A directory holding only
// files with this extension is one recording, read with ReadBinDir.
const GroupExtension = ".bin"

// Default returns the registry of all supported single file formats.
func Default() Registry {
	return Registry{
		".csv":     ReadCSV,
		".tsv":     ReadTSV,
		".txt":     ReadTXT,
		".hea":     ReadWFDB,
		".wav":     ReadWAV,
		".parquet": ReadParquet,
		".edf":     ReadEDF,
		".npy":     ReadNPY,
	}
}

// Lookup returns the adapter registered for the extension of path.
func (r Registry) Lookup(path string) (Func, bool) {
	fn, ok := r[strings.ToLower(filepath.Ext(path))]
	return fn, ok
}

// open opens a source file, mapping failures to waveform.ErrIO.
func open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, waveform.IOError(err)
	}
	return f, nil
}

// units maps recognized unit spellings to their EDF physical dimension.
var units = map[string]string{
	"v":  "V",
	"mv": "mV",
	"uv": "uV",
	"µv": "uV",
	"nv": "nV",
}

// parseChannelName splits a column name of the form <label>_<unit>.
func parseChannelName(name string) (label, unit string, err error) {
	name = strings.TrimSpace(name)
	idx := strings.LastIndex(name, "_")
	if idx <= 0 || idx == len(name)-1 {
		return "", "", waveform.FormatErrorf("column %q has no unit suffix", name)
	}

	unit, ok := units[strings.ToLower(name[idx+1:])]
	if !ok {
		return "", "", waveform.FormatErrorf("column %q has an unrecognized unit suffix %q", name, name[idx+1:])
	}

	return name[:idx], unit, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
