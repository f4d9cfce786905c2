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
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/OpenPSG/waveconv/waveform"
)

// WFDB header defaults.
const (
	wfdbDefaultSampleRate = 250
	wfdbDefaultGain       = 200
	wfdbDefaultUnits      = "mV"
)

// wfdbSignal is one signal specification line of a WFDB header.
type wfdbSignal struct {
	file        string
	format      int
	gain        float64
	baseline    int
	units       string
	description string
}

// wfdbHeader is a parsed WFDB record header.
type wfdbHeader struct {
	name       string
	sampleRate float64
	samples    int // -1 when the header omits it
	startTime  time.Time
	signals    []wfdbSignal
}

// ReadWFDB reads a WFDB record from its .hea header and the signal files it
// references. Signal formats 16, 212 and 80 are supported.
func ReadWFDB(path string) (*waveform.Record, error) {
	hdr, err := readWFDBHeader(path)
	if err != nil {
		return nil, err
	}

	// Signals sharing a file are interleaved frame by frame in it.
	var files []string
	groups := make(map[string][]int)
	for i, sig := range hdr.signals {
		if _, ok := groups[sig.file]; !ok {
			files = append(files, sig.file)
		}
		groups[sig.file] = append(groups[sig.file], i)
	}

	tracings := make([][]float64, len(hdr.signals))
	dir := filepath.Dir(path)
	for _, file := range files {
		idx := groups[file]
		format := hdr.signals[idx[0]].format
		for _, i := range idx[1:] {
			if hdr.signals[i].format != format {
				return nil, waveform.FormatErrorf("signals in %s mix formats %d and %d", file, format, hdr.signals[i].format)
			}
		}

		digital, err := readWFDBSamples(filepath.Join(dir, file), format)
		if err != nil {
			return nil, err
		}

		frames := len(digital) / len(idx)
		if hdr.samples >= 0 {
			if frames < hdr.samples {
				return nil, waveform.FormatErrorf("%s holds %d samples per signal, header declares %d", file, frames, hdr.samples)
			}
			frames = hdr.samples
		}

		invalid := wfdbInvalidSample(format)
		for k, i := range idx {
			sig := hdr.signals[i]
			tracing := make([]float64, frames)
			for j := range tracing {
				d := digital[j*len(idx)+k]
				if d == invalid {
					tracing[j] = math.NaN()
					continue
				}
				tracing[j] = float64(d-sig.baseline) / sig.gain
			}
			tracings[i] = tracing
		}
	}

	leads := make([]string, len(hdr.signals))
	dimensions := make([]string, len(hdr.signals))
	for i, sig := range hdr.signals {
		leads[i] = sig.description
		if leads[i] == "" {
			leads[i] = fmt.Sprintf("sig%d", i)
		}
		dimensions[i] = sig.units
	}

	rec, err := waveform.New(hdr.sampleRate, tracings, leads, dimensions)
	if err != nil {
		return nil, err
	}
	rec.StartTime = hdr.startTime
	return rec, nil
}

func readWFDBHeader(path string) (*wfdbHeader, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, waveform.IOError(err)
	}
	if len(lines) == 0 {
		return nil, waveform.FormatErrorf("empty header")
	}

	hdr, err := parseWFDBRecordLine(lines[0])
	if err != nil {
		return nil, err
	}

	signalLines := lines[1:]
	if len(signalLines) < len(hdr.signals) {
		return nil, waveform.FormatErrorf("header declares %d signals, found %d", len(hdr.signals), len(signalLines))
	}
	for i := range hdr.signals {
		sig, err := parseWFDBSignalLine(signalLines[i])
		if err != nil {
			return nil, fmt.Errorf("signal %d: %w", i, err)
		}
		hdr.signals[i] = sig
	}

	return hdr, nil
}

// parseWFDBRecordLine parses "name[/segments] nsig [fs[/counter[(base)]] [nsamp [time [date]]]]".
func parseWFDBRecordLine(line string) (*wfdbHeader, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, waveform.FormatErrorf("invalid record line %q", line)
	}

	hdr := &wfdbHeader{name: fields[0], sampleRate: wfdbDefaultSampleRate, samples: -1}
	if strings.Contains(hdr.name, "/") {
		return nil, waveform.FormatErrorf("multi-segment record %q is not supported", hdr.name)
	}

	nsig, err := strconv.Atoi(fields[1])
	if err != nil || nsig <= 0 {
		return nil, waveform.FormatErrorf("invalid signal count %q", fields[1])
	}
	hdr.signals = make([]wfdbSignal, nsig)

	if len(fields) > 2 {
		fs := fields[2]
		if i := strings.IndexAny(fs, "/("); i >= 0 {
			fs = fs[:i]
		}
		hdr.sampleRate, err = strconv.ParseFloat(fs, 64)
		if err != nil {
			return nil, waveform.FormatErrorf("invalid sampling frequency %q", fields[2])
		}
	}

	if len(fields) > 3 {
		hdr.samples, err = strconv.Atoi(fields[3])
		if err != nil || hdr.samples < 0 {
			return nil, waveform.FormatErrorf("invalid sample count %q", fields[3])
		}
	}

	if len(fields) > 5 {
		hdr.startTime, err = time.Parse("15:04:05 02/01/2006", fields[4]+" "+fields[5])
		if err != nil {
			return nil, waveform.FormatErrorf("invalid base time %q %q", fields[4], fields[5])
		}
	}

	return hdr, nil
}

// parseWFDBSignalLine parses "file format[xspf][:skew][+offset] [gain[(baseline)][/units] [res [zero [init [cksum [bsize [desc]]]]]]]".
func parseWFDBSignalLine(line string) (wfdbSignal, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return wfdbSignal{}, waveform.FormatErrorf("invalid signal line %q", line)
	}

	sig := wfdbSignal{file: fields[0], gain: wfdbDefaultGain, units: wfdbDefaultUnits}
	if sig.file == "-" || sig.file == "~" {
		return wfdbSignal{}, waveform.FormatErrorf("signal file %q is not supported", sig.file)
	}

	format := fields[1]
	if strings.ContainsAny(format, "x:+") {
		return wfdbSignal{}, waveform.FormatErrorf("signal format modifiers in %q are not supported", format)
	}
	var err error
	sig.format, err = strconv.Atoi(format)
	if err != nil {
		return wfdbSignal{}, waveform.FormatErrorf("invalid signal format %q", format)
	}
	if wfdbInvalidSample(sig.format) == 0 {
		return wfdbSignal{}, waveform.FormatErrorf("unsupported signal format %d", sig.format)
	}

	// The ADC zero (field 5) is the default baseline.
	if len(fields) > 4 {
		sig.baseline, err = strconv.Atoi(fields[4])
		if err != nil {
			return wfdbSignal{}, waveform.FormatErrorf("invalid adc zero %q", fields[4])
		}
	}

	if len(fields) > 2 {
		gain := fields[2]
		if i := strings.Index(gain, "/"); i >= 0 {
			sig.units = gain[i+1:]
			gain = gain[:i]
		}
		if i := strings.Index(gain, "("); i >= 0 {
			sig.baseline, err = strconv.Atoi(strings.TrimSuffix(gain[i+1:], ")"))
			if err != nil {
				return wfdbSignal{}, waveform.FormatErrorf("invalid baseline in %q", fields[2])
			}
			gain = gain[:i]
		}
		g, err := strconv.ParseFloat(gain, 64)
		if err != nil {
			return wfdbSignal{}, waveform.FormatErrorf("invalid gain %q", fields[2])
		}
		if g != 0 {
			sig.gain = g
		}
	}

	if len(fields) > 8 {
		sig.description = strings.Join(fields[8:], " ")
	}

	return sig, nil
}

// wfdbInvalidSample returns the code a format uses for a missing sample, or
// zero for unsupported formats.
func wfdbInvalidSample(format int) int {
	switch format {
	case 16:
		return math.MinInt16
	case 212:
		return -1 << 11
	case 80:
		return math.MinInt8
	default:
		return 0
	}
}

// readWFDBSamples decodes a signal file into its flat stream of digital samples.
func readWFDBSamples(path string, format int) ([]int, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, waveform.IOError(err)
	}

	var samples []int
	switch format {
	case 16:
		samples = make([]int, len(data)/2)
		for i := range samples {
			samples[i] = int(int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8))
		}
	case 212:
		// Two 12 bit samples are packed into every three bytes.
		samples = make([]int, 0, len(data)*2/3)
		for i := 0; i+2 < len(data); i += 3 {
			s0 := int(data[i]) | int(data[i+1]&0x0f)<<8
			s1 := int(data[i+2]) | int(data[i+1]&0xf0)<<4
			samples = append(samples, signExtend12(s0), signExtend12(s1))
		}
	case 80:
		samples = make([]int, len(data))
		for i, b := range data {
			samples[i] = int(b) - 128
		}
	}

	return samples, nil
}

func signExtend12(v int) int {
	if v&0x800 != 0 {
		return v - 0x1000
	}
	return v
}
