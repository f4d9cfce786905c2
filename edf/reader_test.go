// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf_test

import (
	"bytes"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/OpenPSG/waveconv/edf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildFile assembles a single signal EDF file by hand.
func buildFile(date, clock string, samples []int16) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%-8s%-80s%-80s%-8s%-8s%-8d%-44s%-8d%-8s%-4d", "0", "X", "X", date, clock, 512, "", 1, "1", 1)
	fmt.Fprintf(&b, "%-16s%-80s%-8s%-8s%-8s%-8d%-8d%-80s%-8d%-32s",
		"Flow", "", "L/s", "-10", "10", -32768, 32767, "", len(samples), "")
	for _, s := range samples {
		b.WriteByte(byte(uint16(s)))
		b.WriteByte(byte(uint16(s) >> 8))
	}
	return b.Bytes()
}

func TestReader(t *testing.T) {
	er, err := edf.Open(bytes.NewReader(buildFile("24.12.23", "22.15.01", []int16{-32768, 0, 32767, 16384})))
	require.NoError(t, err)

	// Parse the header
	hdr := er.Header()
	assert.Equal(t, edf.Version0, hdr.Version)
	assert.Equal(t, time.Date(2023, 12, 24, 22, 15, 1, 0, time.UTC), hdr.StartTime)
	assert.Equal(t, 1, hdr.SignalCount)
	assert.Equal(t, "L/s", hdr.Signals[0].PhysicalDimension)
	assert.Equal(t, 4.0, hdr.SampleRate(0))

	sr, err := er.Signal(0)
	require.NoError(t, err)

	samples, err := sr.ReadAll()
	require.NoError(t, err)
	require.Len(t, samples, 4)

	// The full digital range maps onto the physical range.
	assert.InDelta(t, -10.0, samples[0], 0.001)
	assert.InDelta(t, 0.0, samples[1], 0.001)
	assert.InDelta(t, 10.0, samples[2], 0.001)
	assert.InDelta(t, 5.0, samples[3], 0.001)
}

func TestReaderPartialReads(t *testing.T) {
	er, err := edf.Open(bytes.NewReader(buildFile("01.01.85", "00.00.00", []int16{1, 2, 3, 4, 5})))
	require.NoError(t, err)

	sr, err := er.Signal(0)
	require.NoError(t, err)

	first := make([]float64, 2)
	n, err := sr.Read(first)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rest, err := sr.ReadAll()
	require.NoError(t, err)
	assert.Len(t, rest, 3)
	assert.Greater(t, rest[0], first[1])
}

func TestReaderTwoDigitYears(t *testing.T) {
	er, err := edf.Open(bytes.NewReader(buildFile("01.01.84", "00.00.00", []int16{0})))
	require.NoError(t, err)
	assert.Equal(t, 2084, er.Header().StartTime.Year())

	er, err = edf.Open(bytes.NewReader(buildFile("01.01.99", "00.00.00", []int16{0})))
	require.NoError(t, err)
	assert.Equal(t, 1999, er.Header().StartTime.Year())
}

func TestReaderRejectsInvalidHeader(t *testing.T) {
	_, err := edf.Open(bytes.NewReader([]byte("0       short")))
	assert.Error(t, err)

	_, err = edf.Open(bytes.NewReader(buildFile("xx.yy.zz", "00.00.00", []int16{0})))
	assert.Error(t, err)
}

func TestReaderSignalOutOfRange(t *testing.T) {
	er, err := edf.Open(bytes.NewReader(buildFile("01.01.85", "00.00.00", []int16{0})))
	require.NoError(t, err)

	_, err = er.Signal(1)
	assert.Error(t, err)
	_, err = er.Signal(-1)
	assert.Error(t, err)
}

func TestReaderOutOfRangeDigitalIsMissing(t *testing.T) {
	data := buildFile("01.01.85", "00.00.00", []int16{0})
	// Narrow the digital minimum so -32768 falls outside of it.
	copy(data[256+16+80+8+8+8:], fmt.Sprintf("%-8d", -32767))
	binaryOffset := 512
	data[binaryOffset] = 0x00
	data[binaryOffset+1] = 0x80

	er, err := edf.Open(bytes.NewReader(data))
	require.NoError(t, err)

	sr, err := er.Signal(0)
	require.NoError(t, err)

	samples, err := sr.ReadAll()
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.True(t, math.IsNaN(samples[0]))
}
