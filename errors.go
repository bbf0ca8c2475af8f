// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"errors"
	"fmt"
)

var (
	// ErrHeaderInvalid reports a directory file whose header fails validation.
	ErrHeaderInvalid = errors.New("invalid vpk header")

	// ErrBufferUnderrun reports a read past the end of a buffer.
	ErrBufferUnderrun = errors.New("buffer underrun")

	// ErrMalformedTree reports a directory tree that violates the
	// extension/directory/filename nesting rules.
	ErrMalformedTree = errors.New("malformed directory tree")

	// ErrPathNotFound is returned when a logical path is not in the tree.
	ErrPathNotFound = errors.New("path not found")

	// ErrIntegrity reports a CRC-32 mismatch on a non-audio file.
	ErrIntegrity = errors.New("checksum mismatch")

	// ErrPrecondition reports an operation attempted in the wrong state,
	// such as reading before the tree has been parsed.
	ErrPrecondition = errors.New("precondition failed")
)

// CopyError is a single failed task of an extraction batch.
type CopyError struct {
	Worker int
	Path   string
	Err    error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("worker %d: copy %s: %v", e.Worker, e.Path, e.Err)
}

func (e *CopyError) Unwrap() error { return e.Err }
