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
	"fmt"
	"math"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/interp"

	"github.com/OpenPSG/waveconv/waveform"
)

// NumPy dump layout: channels by samples at a fixed rate, with
// math.MinInt32 marking samples to interpolate.
const (
	npySampleRate = 500
	npyDimension  = "mV"
	npySentinel   = math.MinInt32
)

// ReadNPY reads a 1-D or 2-D (channels x samples) numeric array. Sentinel
// samples are linearly interpolated from the surrounding valid samples, edge
// gaps take the nearest valid value.
func ReadNPY(path string) (*waveform.Record, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, waveform.FormatErrorf("%v", err)
	}
	if r.Header.Descr.Fortran {
		return nil, waveform.FormatErrorf("fortran ordered arrays are not supported")
	}

	shape := r.Header.Descr.Shape
	var channels, samples int
	switch len(shape) {
	case 1:
		channels, samples = 1, shape[0]
	case 2:
		channels, samples = shape[0], shape[1]
	default:
		return nil, waveform.FormatErrorf("expected a 1-D or 2-D array, got shape %v", shape)
	}

	data, err := readNPYData(r)
	if err != nil {
		return nil, err
	}
	if len(data) != channels*samples {
		return nil, waveform.FormatErrorf("array holds %d values, shape %v needs %d", len(data), shape, channels*samples)
	}

	tracings := make([][]float64, channels)
	leads := make([]string, channels)
	dimensions := make([]string, channels)
	for i := range tracings {
		tracings[i] = data[i*samples : (i+1)*samples : (i+1)*samples]
		if err := interpolateSentinels(tracings[i]); err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		leads[i] = fmt.Sprintf("ch%d", i+1)
		dimensions[i] = npyDimension
	}

	return waveform.New(npySampleRate, tracings, leads, dimensions)
}

// readNPYData reads the array payload as float64 whatever its numeric dtype.
func readNPYData(r *npyio.Reader) ([]float64, error) {
	dtype := strings.TrimLeft(r.Header.Descr.Type, "<>|=")

	var (
		out []float64
		err error
	)
	switch dtype {
	case "f8":
		err = r.Read(&out)
	case "f4":
		var data []float32
		if err = r.Read(&data); err == nil {
			out = widen(data)
		}
	case "i2":
		var data []int16
		if err = r.Read(&data); err == nil {
			out = widen(data)
		}
	case "i4":
		var data []int32
		if err = r.Read(&data); err == nil {
			out = widen(data)
		}
	case "i8":
		var data []int64
		if err = r.Read(&data); err == nil {
			out = widen(data)
		}
	default:
		return nil, waveform.FormatErrorf("unsupported dtype %q", r.Header.Descr.Type)
	}
	if err != nil {
		return nil, waveform.FormatErrorf("%v", err)
	}

	return out, nil
}

func widen[T int16 | int32 | int64 | float32](data []T) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}

// interpolateSentinels replaces sentinel samples in place.
func interpolateSentinels(tracing []float64) error {
	var xs, ys []float64
	for i, v := range tracing {
		if v != npySentinel {
			xs = append(xs, float64(i))
			ys = append(ys, v)
		}
	}

	switch len(xs) {
	case len(tracing):
		return nil
	case 0:
		return waveform.FormatErrorf("no valid samples to interpolate from")
	case 1:
		for i := range tracing {
			tracing[i] = ys[0]
		}
		return nil
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return waveform.FormatErrorf("%v", err)
	}
	for i, v := range tracing {
		if v == npySentinel {
			tracing[i] = pl.Predict(float64(i))
		}
	}

	return nil
}
