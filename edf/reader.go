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
	"time"
)

// Reader reads EDF/EDF+ files.
type Reader struct {
	r   io.ReadSeeker
	hdr *Header
}

// Open opens an EDF/EDF+ file for reading.
func Open(r io.ReadSeeker) (*Reader, error) {
	reader := bufio.NewReader(r)

	b := make([]byte, 256)
	if _, err := io.ReadFull(reader, b); err != nil {
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	// Parse fields based on EDF/EDF+ specifications
	hdr := &Header{}
	hdr.Version = Version(strings.TrimSpace(string(b[0:8])))
	hdr.PatientID = strings.TrimSpace(string(b[8:88]))
	hdr.RecordingID = strings.TrimSpace(string(b[88:168]))

	var err error
	hdr.StartTime, err = parseStartTime(strings.TrimSpace(string(b[168:176])), strings.TrimSpace(string(b[176:184])))
	if err != nil {
		return nil, err
	}

	hdr.HeaderBytes, err = strconv.Atoi(strings.TrimSpace(string(b[184:192])))
	if err != nil {
		return nil, fmt.Errorf("error parsing header bytes: %w", err)
	}

	hdr.DataRecords, err = strconv.Atoi(strings.TrimSpace(string(b[236:244])))
	if err != nil {
		return nil, fmt.Errorf("error parsing number of data records: %w", err)
	}

	hdr.DataRecordDuration, err = time.ParseDuration(fmt.Sprintf("%ss", strings.TrimSpace(string(b[244:252]))))
	if err != nil {
		return nil, fmt.Errorf("error parsing data record duration: %w", err)
	}

	hdr.SignalCount, err = strconv.Atoi(strings.TrimSpace(string(b[252:256])))
	if err != nil {
		return nil, fmt.Errorf("error parsing signal count: %w", err)
	}
	if hdr.SignalCount < 0 {
		return nil, fmt.Errorf("invalid signal count: %d", hdr.SignalCount)
	}

	// Signal headers are stored field by field, each field repeated for
	// every signal.
	hdr.Signals = make([]Signal, hdr.SignalCount)
	fields := []struct {
		width int
		set   func(s *Signal, v []byte)
	}{
		{16, func(s *Signal, v []byte) { s.Label = strings.TrimSpace(string(v)) }},
		{80, func(s *Signal, v []byte) { s.TransducerType = strings.TrimSpace(string(v)) }},
		{8, func(s *Signal, v []byte) { s.PhysicalDimension = strings.TrimSpace(string(v)) }},
		{8, func(s *Signal, v []byte) { s.PhysicalMin = parseFloat(v) }},
		{8, func(s *Signal, v []byte) { s.PhysicalMax = parseFloat(v) }},
		{8, func(s *Signal, v []byte) { s.DigitalMin = parseInt(v) }},
		{8, func(s *Signal, v []byte) { s.DigitalMax = parseInt(v) }},
		{80, func(s *Signal, v []byte) { s.Prefiltering = strings.TrimSpace(string(v)) }},
		{8, func(s *Signal, v []byte) { s.SamplesPerRecord = parseInt(v) }},
		{32, func(s *Signal, v []byte) { s.Reserved = strings.TrimSpace(string(v)) }},
	}

	for _, field := range fields {
		b := make([]byte, field.width)
		for i := range hdr.Signals {
			if _, err := io.ReadFull(reader, b); err != nil {
				return nil, fmt.Errorf("error reading signal headers: %w", err)
			}

			field.set(&hdr.Signals[i], b)
		}
	}

	return &Reader{
		r:   r,
		hdr: hdr,
	}, nil
}

// Header returns a copy of the parsed file header.
func (er *Reader) Header() Header {
	hdr := *er.hdr
	hdr.Signals = append([]Signal(nil), er.hdr.Signals...)
	return hdr
}

// SignalReader reads continuous signal data from an EDF/EDF+ file.
type SignalReader struct {
	r                io.ReadSeeker
	hdr              *Header
	signalIndex      int // Index of the signal to read
	currentRecord    int // Current record being processed
	currentSample    int // Current sample in the record
	recordSize       int // Total size of one data record
	signalOffset     int // Byte offset of the signal in a record
	samplesPerRecord int // Number of samples per record for the signal
	buf              []byte
}

// Signal creates a new SignalReader for a specified signal index.
func (er *Reader) Signal(signalIndex int) (*SignalReader, error) {
	if signalIndex < 0 || signalIndex >= len(er.hdr.Signals) {
		return nil, fmt.Errorf("signal index out of range")
	}

	signal := er.hdr.Signals[signalIndex]
	recordSize := 0
	signalOffset := 0
	for i, sig := range er.hdr.Signals {
		if i < signalIndex {
			signalOffset += sig.SamplesPerRecord * 2
		}
		recordSize += sig.SamplesPerRecord * 2
	}

	return &SignalReader{
		r:                er.r,
		hdr:              er.hdr,
		signalIndex:      signalIndex,
		recordSize:       recordSize,
		signalOffset:     signalOffset,
		samplesPerRecord: signal.SamplesPerRecord,
		buf:              make([]byte, signal.SamplesPerRecord*2),
	}, nil
}

// Len returns the total number of samples of the signal.
func (sr *SignalReader) Len() int {
	if sr.hdr.DataRecords < 0 {
		return 0
	}
	return sr.hdr.DataRecords * sr.samplesPerRecord
}

// Read fills the provided float64 slice with the physical values from the signal.
// Digital values outside of the signal's digital range are returned as NaN.
func (sr *SignalReader) Read(data []float64) (int, error) {
	if sr.samplesPerRecord <= 0 {
		return 0, io.EOF
	}

	signal := sr.hdr.Signals[sr.signalIndex]

	n := 0
	for n < len(data) {
		if sr.currentRecord >= sr.hdr.DataRecords {
			return n, io.EOF // End of data records
		}

		// Read the rest of the signal's samples in the current record at once.
		count := min(sr.samplesPerRecord-sr.currentSample, len(data)-n)
		pos := int64(sr.hdr.HeaderBytes) + int64(sr.currentRecord)*int64(sr.recordSize) + int64(sr.signalOffset) + int64(sr.currentSample*2)
		if _, err := sr.r.Seek(pos, io.SeekStart); err != nil {
			return n, fmt.Errorf("error seeking to position: %w", err)
		}

		buf := sr.buf[:count*2]
		if _, err := io.ReadFull(sr.r, buf); err != nil {
			return n, fmt.Errorf("error reading sample data: %w", err)
		}

		for i := 0; i < count; i++ {
			digitalValue := int16(binary.LittleEndian.Uint16(buf[i*2:]))
			data[n] = convertDigitalToPhysical(digitalValue, signal.DigitalMin, signal.DigitalMax, signal.PhysicalMin, signal.PhysicalMax)
			n++
		}

		// Move to the next sample
		sr.currentSample += count
		if sr.currentSample >= sr.samplesPerRecord {
			sr.currentSample = 0
			sr.currentRecord++
		}
	}

	return n, nil
}

// ReadAll reads every remaining sample of the signal.
func (sr *SignalReader) ReadAll() ([]float64, error) {
	remaining := sr.Len() - (sr.currentRecord*sr.samplesPerRecord + sr.currentSample)
	if remaining <= 0 {
		return []float64{}, nil
	}

	data := make([]float64, remaining)
	n, err := sr.Read(data)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return data[:n], nil
}

// parseStartTime parses the EDF start date and time. Two digit years are
// mapped onto 1985-2084 as the standard requires.
func parseStartTime(dateStr, timeStr string) (time.Time, error) {
	startDate, err := time.Parse("02.01.06", dateStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing start date: %w", err)
	}
	startTime, err := time.Parse("15.04.05", timeStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing start time: %w", err)
	}

	year := startDate.Year()
	if year < 1985 {
		year += 100
	}

	return time.Date(year, startDate.Month(), startDate.Day(),
		startTime.Hour(), startTime.Minute(), startTime.Second(), 0, time.UTC), nil
}

// convertDigitalToPhysical converts a digital value from the data record to a physical value using the calibration factors.
func convertDigitalToPhysical(digital int16, dmin, dmax int, pmin, pmax float64) float64 {
	if int(digital) < dmin || int(digital) > dmax {
		return math.NaN()
	}
	if dmax == dmin {
		return pmin // Avoid division by zero
	}
	return pmin + (float64(digital)-float64(dmin))*(pmax-pmin)/float64(dmax-dmin)
}

func parseFloat(b []byte) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0.0
	}
	return f
}

func parseInt(b []byte) int {
	i, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0
	}
	return i
}
