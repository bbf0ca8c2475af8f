// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"fmt"
	"os"
)

const (
	// camMagic tags every valid CAM record (bytes 00 1A DE C4).
	camMagic uint32 = 0xC4DE1A00

	camEntrySize = 32
)

// CAMEntry is one audio content record of a .cam sidecar. ContentOffset is
// the archive offset of the first part of the asset it describes.
type CAMEntry struct {
	Magic          uint32
	OriginalSize   uint32
	CompressedSize uint32
	SampleRate     uint32 // 24 bits on disk
	Channels       uint8
	SampleCount    uint32
	HeaderSize     uint32
	ContentOffset  uint64
}

// ParseCAM decodes a CAM sidecar. Records without the CAM magic are skipped;
// the sidecar has no record count to resynchronize with otherwise.
func ParseCAM(b []byte) ([]CAMEntry, error) {
	r := newBinReader(b)
	var entries []CAMEntry
	for r.Remaining() > 0 {
		off := r.Tell()
		e := CAMEntry{
			Magic:          r.Uint32(),
			OriginalSize:   r.Uint32(),
			CompressedSize: r.Uint32(),
			SampleRate:     r.Uint24(),
			Channels:       r.Uint8(),
			SampleCount:    r.Uint32(),
			HeaderSize:     r.Uint32(),
			ContentOffset:  r.Uint64(),
		}
		if err := r.Err(); err != nil {
			return entries, fmt.Errorf("read cam record at offset %d: %w", off, err)
		}
		if e.Magic == camMagic {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// ReadCAM reads and decodes the sidecar at path.
func ReadCAM(path string) ([]CAMEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	entries, err := ParseCAM(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// SerializeCAM encodes records back to back.
func SerializeCAM(entries []CAMEntry) []byte {
	w := newBinWriter(len(entries) * camEntrySize)
	for _, e := range entries {
		e.appendTo(w)
	}
	return w.Bytes()
}

func (e CAMEntry) appendTo(w *binWriter) {
	w.PutUint32(e.Magic)
	w.PutUint32(e.OriginalSize)
	w.PutUint32(e.CompressedSize)
	w.PutUint24(e.SampleRate)
	w.PutUint8(e.Channels)
	w.PutUint32(e.SampleCount)
	w.PutUint32(e.HeaderSize)
	w.PutUint64(e.ContentOffset)
}

// camIndex finds CAM records by archive offset.
type camIndex map[uint64]CAMEntry

func newCAMIndex(entries []CAMEntry) camIndex {
	idx := make(camIndex, len(entries))
	for _, e := range entries {
		if _, dup := idx[e.ContentOffset]; !dup {
			idx[e.ContentOffset] = e
		}
	}
	return idx
}
