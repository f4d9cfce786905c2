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
	"github.com/go-audio/wav"

	"github.com/OpenPSG/waveconv/waveform"
)

// WAV layout: the first channel carries the signal, stored in microvolts.
const (
	wavScale     = 0.001
	wavLabel     = "ECG"
	wavDimension = "mV"
)

// ReadWAV reads the first channel of a WAV file. Other channels are ignored.
func ReadWAV(path string) (*waveform.Record, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, waveform.FormatErrorf("invalid WAV file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, waveform.FormatErrorf("error reading WAV data: %v", err)
	}

	channels := int(decoder.NumChans)
	if buf.Format != nil && buf.Format.NumChannels > 0 {
		channels = buf.Format.NumChannels
	}
	if channels <= 0 {
		return nil, waveform.FormatErrorf("WAV file declares no channels")
	}

	tracing := make([]float64, len(buf.Data)/channels)
	for i := range tracing {
		tracing[i] = float64(buf.Data[i*channels]) * wavScale
	}

	return waveform.New(float64(decoder.SampleRate), [][]float64{tracing}, []string{wavLabel}, []string{wavDimension})
}
