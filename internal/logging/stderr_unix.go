//go:build unix

/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package logging

import (
	"os"
	"syscall"
)

// NewStderrLogger builds a logger writing to stderr. If fileOverride is
// non-empty, stderr itself is dup'd onto that file (so panics/backtraces
// still land somewhere useful) and the logger writes to the original
// stderr descriptor instead.
func NewStderrLogger(fileOverride string) (*Logger, error) {
	if fileOverride == "" {
		return New(os.Stderr), nil
	}

	fout, err := os.Create(fileOverride)
	if err != nil {
		return nil, err
	}

	oldstderr, err := syscall.Dup(int(os.Stderr.Fd()))
	if err != nil {
		fout.Close()
		return nil, err
	}
	preserved := os.NewFile(uintptr(oldstderr), "oldstderr")

	if err := syscall.Dup3(int(fout.Fd()), int(os.Stderr.Fd()), 0); err != nil {
		fout.Close()
		preserved.Close()
		return nil, err
	}
	fout.Close()

	return New(preserved), nil
}
