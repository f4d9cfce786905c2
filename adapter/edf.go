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
	"math"

	"github.com/OpenPSG/waveconv/edf"
	"github.com/OpenPSG/waveconv/waveform"
)

// ReadEDF reads an EDF file back into a record so already converted files
// can be re-emitted. All signals must share one sample rate. Trailing frames
// in which every channel is missing are dropped, they are the padding of the
// last data record.
func ReadEDF(path string) (*waveform.Record, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	er, err := edf.Open(f)
	if err != nil {
		return nil, waveform.FormatErrorf("%v", err)
	}

	hdr := er.Header()
	if hdr.SignalCount == 0 {
		return nil, waveform.FormatErrorf("no signals")
	}

	rate := hdr.SampleRate(0)
	tracings := make([][]float64, hdr.SignalCount)
	leads := make([]string, hdr.SignalCount)
	dimensions := make([]string, hdr.SignalCount)
	for i, signal := range hdr.Signals {
		if signal.SamplesPerRecord != hdr.Signals[0].SamplesPerRecord {
			return nil, waveform.FormatErrorf("signal %q is sampled at %v Hz, expected %v Hz", signal.Label, hdr.SampleRate(i), rate)
		}

		sr, err := er.Signal(i)
		if err != nil {
			return nil, waveform.FormatErrorf("%v", err)
		}
		tracings[i], err = sr.ReadAll()
		if err != nil {
			return nil, waveform.FormatErrorf("signal %q: %v", signal.Label, err)
		}

		leads[i] = signal.Label
		dimensions[i] = signal.PhysicalDimension
	}

	tracings = trimMissingTail(tracings)

	rec, err := waveform.New(rate, tracings, leads, dimensions)
	if err != nil {
		return nil, err
	}
	rec.StartTime = hdr.StartTime
	return rec, nil
}

func trimMissingTail(tracings [][]float64) [][]float64 {
	if len(tracings) == 0 {
		return tracings
	}

	n := len(tracings[0])
	for ; n > 0; n-- {
		missing := true
		for _, tracing := range tracings {
			if !math.IsNaN(tracing[n-1]) {
				missing = false
				break
			}
		}
		if !missing {
			break
		}
	}

	for i := range tracings {
		tracings[i] = tracings[i][:n]
	}
	return tracings
}
