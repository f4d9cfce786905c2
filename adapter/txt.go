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
	"bufio"
	"fmt"
	"strings"

	"github.com/OpenPSG/waveconv/waveform"
)

// Whitespace delimited text layout: three limb leads per row.
const (
	txtSampleRate = 500
	txtDimension  = "mV"
)

var txtLeads = []string{"I", "II", "III"}

// ReadTXT reads whitespace delimited rows of exactly three samples. Blank
// lines are skipped.
func ReadTXT(path string) (*waveform.Record, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tracings := make([][]float64, len(txtLeads))

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != len(txtLeads) {
			return nil, waveform.FormatErrorf("line %d: expected %d columns, got %d", line, len(txtLeads), len(fields))
		}

		for i, field := range fields {
			v, err := parseCell(field)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			tracings[i] = append(tracings[i], v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, waveform.IOError(err)
	}

	dimensions := make([]string, len(txtLeads))
	for i := range dimensions {
		dimensions[i] = txtDimension
	}

	return waveform.New(txtSampleRate, tracings, append([]string(nil), txtLeads...), dimensions)
}
