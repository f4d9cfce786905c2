// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Writer writes EDF files.
type Writer struct {
	w           io.WriteSeeker
	hdr         *Header
	dataRecords int // Number of data records written so far.
}

// Create creates a new EDF writer that writes to the given writer.
//
// The physical bounds of every signal are widened to the nearest values that
// fit the 8 character header field, the widened values are then used to
// quantize samples so that headers and data agree.
func Create(w io.WriteSeeker, hdr Header) (*Writer, error) {
	if hdr.SignalCount != len(hdr.Signals) {
		return nil, fmt.Errorf("signal count %d does not match %d signal headers", hdr.SignalCount, len(hdr.Signals))
	}
	if hdr.DataRecordDuration <= 0 {
		return nil, fmt.Errorf("invalid data record duration: %s", hdr.DataRecordDuration)
	}

	hdr.DataRecords = -1 // Unknown number of data records (at this time).
	hdr.Signals = append([]Signal(nil), hdr.Signals...)
	for i := range hdr.Signals {
		signal := &hdr.Signals[i]
		if signal.SamplesPerRecord <= 0 {
			return nil, fmt.Errorf("signal %d: invalid samples per record: %d", i, signal.SamplesPerRecord)
		}
		signal.PhysicalMin = parseFloat([]byte(formatPhysicalBound(signal.PhysicalMin, false)))
		signal.PhysicalMax = parseFloat([]byte(formatPhysicalBound(signal.PhysicalMax, true)))
	}

	ew := &Writer{w: w, hdr: &hdr}

	// Write the initial header
	if err := ew.writeHeader(); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	return ew, nil
}

// Header returns the header as it is written to the file.
func (ew *Writer) Header() Header {
	hdr := *ew.hdr
	hdr.Signals = append([]Signal(nil), ew.hdr.Signals...)
	return hdr
}

// Close finalizes the EDF file by updating the header with the total number of data records.
func (ew *Writer) Close() error {
	// Finalize the header with the actual number of data records
	ew.hdr.DataRecords = ew.dataRecords
	if err := ew.writeHeader(); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	return nil
}

// WriteRecord writes a single data record to the EDF file. Each signal must
// carry exactly its SamplesPerRecord samples, NaN samples are stored as
// MissingDigital.
func (ew *Writer) WriteRecord(signals [][]float64) error {
	if len(signals) != ew.hdr.SignalCount {
		return fmt.Errorf("expected %d signals, got %d", ew.hdr.SignalCount, len(signals))
	}

	for i, signal := range signals {
		if len(signal) != ew.hdr.Signals[i].SamplesPerRecord {
			return fmt.Errorf("signal %d: expected %d samples, got %d", i, ew.hdr.Signals[i].SamplesPerRecord, len(signal))
		}
	}

	// Seek past the data records already written, the header is rewritten on close.
	if _, err := ew.w.Seek(0, io.SeekEnd); err != nil {
		return err
	}

	writer := bufio.NewWriter(ew.w)

	// Write each signal's data
	buf := make([]byte, 2)
	for i := 0; i < ew.hdr.SignalCount; i++ {
		signal := ew.hdr.Signals[i]
		for _, sample := range signals[i] {
			digitalValue := convertPhysicalToDigital(sample, signal.PhysicalMin, signal.PhysicalMax, signal.DigitalMin, signal.DigitalMax)
			binary.LittleEndian.PutUint16(buf, uint16(digitalValue))
			if _, err := writer.Write(buf); err != nil {
				return err
			}
		}
	}

	// Ensure all data is flushed to the underlying writer
	if err := writer.Flush(); err != nil {
		return err
	}

	ew.dataRecords++
	return nil
}

// writeHeader writes the EDF header at the start of the underlying writer.
func (ew *Writer) writeHeader() error {
	// Rewind to the beginning of the file.
	_, err := ew.w.Seek(0, io.SeekStart)
	if err != nil {
		return err
	}

	writer := bufio.NewWriter(ew.w)
	ew.hdr.HeaderBytes = 256 + (ew.hdr.SignalCount * 256)

	fields := []string{
		fixed(string(ew.hdr.Version), 8),
		fixed(ew.hdr.PatientID, 80),
		fixed(ew.hdr.RecordingID, 80),
		fixed(ew.hdr.StartTime.Format("02.01.06"), 8),
		fixed(ew.hdr.StartTime.Format("15.04.05"), 8),
		fixed(strconv.Itoa(ew.hdr.HeaderBytes), 8),
		fixed("", 44), // Reserved
		fixed(strconv.Itoa(ew.hdr.DataRecords), 8),
		fixed(formatDuration(ew.hdr.DataRecordDuration.Seconds()), 8),
		fixed(strconv.Itoa(ew.hdr.SignalCount), 4),
	}

	for _, field := range fields {
		if _, err := writer.WriteString(field); err != nil {
			return err
		}
	}

	// Signal details are written field by field.
	signalFields := []func(s Signal) string{
		func(s Signal) string { return fixed(s.Label, labelWidth) },
		func(s Signal) string { return fixed(s.TransducerType, 80) },
		func(s Signal) string { return fixed(s.PhysicalDimension, dimensionWidth) },
		func(s Signal) string { return fixed(formatPhysicalBound(s.PhysicalMin, false), 8) },
		func(s Signal) string { return fixed(formatPhysicalBound(s.PhysicalMax, true), 8) },
		func(s Signal) string { return fixed(strconv.Itoa(s.DigitalMin), 8) },
		func(s Signal) string { return fixed(strconv.Itoa(s.DigitalMax), 8) },
		func(s Signal) string { return fixed(s.Prefiltering, 80) },
		func(s Signal) string { return fixed(strconv.Itoa(s.SamplesPerRecord), 8) },
		func(Signal) string { return fixed("", 32) }, // Reserved for future use
	}

	for _, field := range signalFields {
		for _, signal := range ew.hdr.Signals {
			if _, err := writer.WriteString(field(signal)); err != nil {
				return err
			}
		}
	}

	// Ensure all data is flushed to the underlying writer
	return writer.Flush()
}

// convertPhysicalToDigital converts a physical value to a digital value using the calibration factors.
func convertPhysicalToDigital(physical float64, pmin, pmax float64, dmin, dmax int) int16 {
	if math.IsNaN(physical) {
		return MissingDigital
	}
	if pmax == pmin {
		return int16(dmin) // Avoid division by zero
	}
	digital := math.Round(((physical - pmin) * (float64(dmax - dmin)) / (pmax - pmin)) + float64(dmin))
	return int16(max(float64(dmin), min(float64(dmax), digital)))
}

// formatPhysicalBound formats a physical bound with the highest precision that
// fits 8 characters, rounding away from the signal range (up for a maximum).
func formatPhysicalBound(val float64, up bool) string {
	for prec := 6; prec >= 0; prec-- {
		scale := math.Pow10(prec)
		// The epsilon keeps already rounded values stable across calls.
		rounded := math.Floor(val*scale+1e-6) / scale
		if up {
			rounded = math.Ceil(val*scale-1e-6) / scale
		}

		s := strconv.FormatFloat(rounded, 'f', prec, 64)
		if len(s) <= 8 {
			if strings.Contains(s, ".") {
				s = strings.TrimSuffix(strings.TrimRight(s, "0"), ".")
			}
			if s == "-0" {
				s = "0"
			}
			return s
		}
	}

	// Fall back to exponent notation for very large magnitudes.
	exp := math.Floor(math.Log10(math.Abs(val)))
	for prec := 6; prec >= 0; prec-- {
		scale := math.Pow10(prec - int(exp))
		rounded := math.Floor(val*scale+1e-6) / scale
		if up {
			rounded = math.Ceil(val*scale-1e-6) / scale
		}

		if s := strconv.FormatFloat(rounded, 'e', prec, 64); len(s) <= 8 {
			return s
		}
	}

	return strconv.FormatFloat(val, 'e', 0, 64)
}

func formatDuration(seconds float64) string {
	s := strconv.FormatFloat(seconds, 'f', -1, 64)
	if len(s) > 8 {
		s = s[:8]
	}
	return s
}

// fixed left aligns s in a field of the given width, truncating it if needed.
func fixed(s string, width int) string {
	if len(s) > width {
		s = s[:width]
	}
	return fmt.Sprintf("%-*s", width, s)
}
