// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package waveconv

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/OpenPSG/waveconv/edf"
	"github.com/OpenPSG/waveconv/waveform"
)

// DefaultSegmentDuration is the longest span written to a single file when
// splitting.
const DefaultSegmentDuration = 24 * time.Hour

// Segment is the half open sample range [Start, End).
type Segment struct {
	Start int
	End   int
}

// Len returns the number of samples in the segment.
func (s Segment) Len() int {
	return s.End - s.Start
}

// Segments partitions sampleCount samples into ceil(sampleCount/capacity)
// contiguous segments of near equal length, none longer than capacity.
// Boundaries are evenly spaced over [0, sampleCount] and rounded.
func Segments(sampleCount, capacity int) []Segment {
	capacity = max(capacity, 1)
	parts := (sampleCount + capacity - 1) / capacity
	if parts <= 1 {
		return []Segment{{Start: 0, End: sampleCount}}
	}

	bounds := floats.Span(make([]float64, parts+1), 0, float64(sampleCount))
	segments := make([]Segment, parts)
	for i := range segments {
		segments[i] = Segment{
			Start: int(math.Round(bounds[i])),
			End:   int(math.Round(bounds[i+1])),
		}
	}
	segments[0].Start, segments[parts-1].End = 0, sampleCount

	return segments
}

// Splitter writes records as one or more files no longer than a maximum
// duration each.
type Splitter struct {
	writer      *Writer
	maxDuration time.Duration
}

// NewSplitter creates a splitter writing through w. A non-positive
// maxDuration selects DefaultSegmentDuration.
func NewSplitter(w *Writer, maxDuration time.Duration) *Splitter {
	if maxDuration <= 0 {
		maxDuration = DefaultSegmentDuration
	}
	return &Splitter{writer: w, maxDuration: maxDuration}
}

// Split writes rec to prefix unchanged when it fits in one segment, otherwise
// each segment i is written to prefix_part_i (1-indexed). No part is left
// behind when any of them fails.
func (s *Splitter) Split(rec *waveform.Record, prefix string) error {
	if err := rec.Validate(); err != nil {
		return waveform.DataErrorf("invalid record: %v", err)
	}

	capacity := int(rec.SampleRate * s.maxDuration.Seconds())
	segments := Segments(rec.Samples(), capacity)
	if len(segments) == 1 {
		return s.writer.Write(rec, prefix)
	}

	if strings.EqualFold(filepath.Ext(prefix), edf.Extension) {
		prefix = prefix[:len(prefix)-len(edf.Extension)]
	}

	// A failed part removes the parts written before it.
	var written []string
	for i, seg := range segments {
		path := EDFPath(fmt.Sprintf("%s_part_%d", prefix, i+1))
		if err := s.writer.Write(rec.Slice(seg.Start, seg.End), path); err != nil {
			for _, p := range written {
				_ = os.Remove(p)
			}
			return fmt.Errorf("part %d: %w", i+1, err)
		}
		written = append(written, path)
	}

	return nil
}
