// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package waveform

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is returned when a source file does not match the layout its
	// adapter expects.
	ErrFormat = errors.New("format error")
	// ErrData is returned when a structurally valid record cannot be written.
	ErrData = errors.New("data error")
	// ErrIO is returned on filesystem access failures.
	ErrIO = errors.New("io error")
)

// FormatErrorf returns an ErrFormat error with the given message.
func FormatErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFormat, fmt.Sprintf(format, args...))
}

// DataErrorf returns an ErrData error with the given message.
func DataErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrData, fmt.Sprintf(format, args...))
}

// IOError wraps a filesystem error as ErrIO. A nil err returns nil.
func IOError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}
