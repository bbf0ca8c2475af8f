// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"bytes"
	"fmt"
)

const (
	acacheHeaderSize = 12
	acacheEntrySize  = 296
	acacheMaxPath    = 260
)

// AcacheHeader is the fixed header of the audio asset index.
type AcacheHeader struct {
	Version  uint32 // 3 in shipped containers
	Unknown1 uint32
	Unknown2 uint32
}

// AcacheEntry is one audio asset record. The Unknown fields have no known
// meaning and are written back exactly as read.
type AcacheEntry struct {
	Path        string
	BlockCount  uint32 // sample count * channels
	Unknown1    uint16
	Unknown2    uint16
	Channels    uint32
	Unknown3    uint32
	Unknown4    uint32
	HeaderSize  uint8
	SampleDepth uint32 // 24 bits on disk
	Unknown5    uint32
	Unknown6    uint8
	Unknown7    uint32 // 24 bits on disk
	Unknown8    uint32

	offset int
}

// Acache is a parsed audio asset index. The original bytes are kept so that
// serialization only touches the records themselves.
type Acache struct {
	Header  AcacheHeader
	Entries []*AcacheEntry

	raw []byte
}

// ParseAcache decodes an audio asset index. Records end at the first empty
// path or when less than a whole record remains.
func ParseAcache(b []byte) (*Acache, error) {
	r := newBinReader(b)
	a := &Acache{raw: bytes.Clone(b)}
	a.Header = AcacheHeader{
		Version:  r.Uint32(),
		Unknown1: r.Uint32(),
		Unknown2: r.Uint32(),
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read acache header: %w", err)
	}

	for r.Remaining() >= acacheEntrySize {
		e := &AcacheEntry{offset: r.Tell()}
		e.Path = r.FixedString(acacheMaxPath)
		if e.Path == "" {
			break
		}
		e.BlockCount = r.Uint32()
		e.Unknown1 = r.Uint16()
		e.Unknown2 = r.Uint16()
		e.Channels = r.Uint32()
		e.Unknown3 = r.Uint32()
		e.Unknown4 = r.Uint32()
		e.HeaderSize = r.Uint8()
		e.SampleDepth = r.Uint24()
		e.Unknown5 = r.Uint32()
		e.Unknown6 = r.Uint8()
		e.Unknown7 = r.Uint24()
		e.Unknown8 = r.Uint32()
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("read acache record at offset %d: %w", e.offset, err)
		}
		a.Entries = append(a.Entries, e)
	}
	return a, nil
}

// Find returns the record for a logical path.
func (a *Acache) Find(path string) (*AcacheEntry, bool) {
	for _, e := range a.Entries {
		if e.Path == path {
			return e, true
		}
	}
	return nil, false
}

// Bytes re-encodes every record in place over the originally parsed buffer.
func (a *Acache) Bytes() ([]byte, error) {
	w := &binWriter{buf: bytes.Clone(a.raw)}
	w.Seek(0)
	w.PutUint32(a.Header.Version)
	w.PutUint32(a.Header.Unknown1)
	w.PutUint32(a.Header.Unknown2)

	for _, e := range a.Entries {
		if len(e.Path) > acacheMaxPath {
			return nil, fmt.Errorf("acache path %q is longer than %d bytes", e.Path, acacheMaxPath)
		}
		w.Seek(e.offset)
		w.PutFixedString(e.Path, acacheMaxPath)
		w.PutUint32(e.BlockCount)
		w.PutUint16(e.Unknown1)
		w.PutUint16(e.Unknown2)
		w.PutUint32(e.Channels)
		w.PutUint32(e.Unknown3)
		w.PutUint32(e.Unknown4)
		w.PutUint8(e.HeaderSize)
		w.PutUint24(e.SampleDepth)
		w.PutUint32(e.Unknown5)
		w.PutUint8(e.Unknown6)
		w.PutUint24(e.Unknown7)
		w.PutUint32(e.Unknown8)
	}
	return w.Bytes(), nil
}
