// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"errors"
	"fmt"
)

// VPK format constants
const (
	// Signature is the magic number at the start of every directory file.
	Signature uint32 = 0x55AA1234

	// Version is the only supported directory version (major 2, minor 3).
	Version uint32 = 196610

	// HeaderSize is the size of the directory file header in bytes.
	HeaderSize = 16

	// MaxPartSize is the largest uncompressed size of a single file part.
	MaxPartSize = 1 << 20

	// compressionThreshold is the smallest part that is worth compressing.
	compressionThreshold = 4096

	// filePartSize is the size of one serialized part record.
	filePartSize = 32

	// ArchiveIndexTerminator ends the part list of a directory entry.
	ArchiveIndexTerminator uint16 = 0xFFFF

	// DefaultArchiveIndex is the archive number assigned to packed parts.
	DefaultArchiveIndex uint16 = 999

	// AcachePath is the logical path of the audio asset index.
	AcachePath = "sound/wav.acache"
)

// Header is the 16-byte directory file header.
type Header struct {
	Signature  uint32
	Version    uint32
	TreeLength uint32
	Reserved   uint32

	problems []string
}

// parseHeader decodes the header at the start of b and validates it.
// Validation failures are recorded, not returned; only a short buffer fails.
func parseHeader(b []byte) (*Header, error) {
	r := newBinReader(b)
	h := &Header{
		Signature:  r.Uint32(),
		Version:    r.Uint32(),
		TreeLength: r.Uint32(),
		Reserved:   r.Uint32(),
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h.validate()
	return h, nil
}

func (h *Header) validate() {
	h.problems = h.problems[:0]
	if h.Signature != Signature {
		h.problems = append(h.problems, fmt.Sprintf("invalid signature: 0x%08X, want 0x%08X", h.Signature, Signature))
	}
	if h.Version != Version {
		h.problems = append(h.problems, fmt.Sprintf("unsupported version: %d, want %d", h.Version, Version))
	}
	if h.TreeLength == 0 {
		h.problems = append(h.problems, "invalid tree length: 0")
	}
	if h.Reserved != 0 {
		h.problems = append(h.problems, fmt.Sprintf("reserved field is 0x%08X, want 0", h.Reserved))
	}
}

// Valid reports whether every header field passed validation.
func (h *Header) Valid() bool { return len(h.problems) == 0 }

// Problems returns the recorded validation failures.
func (h *Header) Problems() []string { return h.problems }

// Err returns nil for a valid header, otherwise all problems wrapped in
// ErrHeaderInvalid.
func (h *Header) Err() error {
	if h.Valid() {
		return nil
	}
	errs := make([]error, len(h.problems))
	for i, p := range h.problems {
		errs[i] = errors.New(p)
	}
	return fmt.Errorf("%w: %w", ErrHeaderInvalid, errors.Join(errs...))
}

// newHeader returns a header describing a tree of treeLength bytes.
func newHeader(treeLength int) *Header {
	return &Header{
		Signature:  Signature,
		Version:    Version,
		TreeLength: uint32(treeLength),
	}
}

func (h *Header) appendTo(w *binWriter) {
	w.PutUint32(h.Signature)
	w.PutUint32(h.Version)
	w.PutUint32(h.TreeLength)
	w.PutUint32(h.Reserved)
}
