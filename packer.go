// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"os"
	"slices"
)

// packEntry is a directory entry together with the stored bytes of each of
// its parts, before archive placement.
type packEntry struct {
	entry  *DirEntry
	stored [][]byte
	audio  *audioCapture
}

// Packer builds a new container from logical files. A Packer is not safe
// for concurrent use.
type Packer struct {
	opts    options
	entries []*packEntry
	index   map[string]int
}

// NewPacker returns an empty packer.
func NewPacker(opts ...Option) *Packer {
	return &Packer{
		opts:  buildOptions(opts),
		index: make(map[string]int),
	}
}

// Len returns the number of logical files added.
func (p *Packer) Len() int { return len(p.entries) }

// Paths returns the logical paths added, in insertion order.
func (p *Packer) Paths() []string {
	paths := make([]string, len(p.entries))
	for i, pe := range p.entries {
		paths[i] = pe.entry.Path
	}
	return paths
}

// AddFile packs the file at srcPath under a logical path.
func (p *Packer) AddFile(srcPath, path string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read file %s: %w", srcPath, err)
	}
	return p.AddBuffer(data, path)
}

// AddFileMultiple packs one source file under several logical paths. The
// stored parts are shared when the container is written.
func (p *Packer) AddFileMultiple(srcPath string, paths ...string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("read file %s: %w", srcPath, err)
	}
	for _, path := range paths {
		if err := p.AddBuffer(data, path); err != nil {
			return err
		}
	}
	return nil
}

// AddBuffer packs data under a logical path, replacing any file already
// added under the same path. Wav files have their metadata captured and
// their header stripped. data is not retained.
func (p *Packer) AddBuffer(data []byte, path string) error {
	path = normalizePath(path)
	if path == "" {
		return errors.New("empty logical path")
	}
	e := newDirEntry(path)
	e.CRC = checksum(data)
	pe := &packEntry{entry: e}

	if e.IsAudio() {
		switch c, ok := captureWav(data); {
		case isStrippedWav(data):
			p.opts.logger.Warn("wav header already stripped, no cam record captured", "path", path)
		case !ok:
			p.opts.logger.Warn("wav shorter than its header, no cam record captured", "path", path, "size", len(data))
		default:
			pe.audio = &c
			data = stripWav(data)
		}
	}

	flags := loadFlagsFor(e.ext)
	for off := 0; off < len(data); off += MaxPartSize {
		chunk := data[off:min(off+MaxPartSize, len(data))]
		stored, err := p.storePart(e.ext, chunk)
		if err != nil {
			return fmt.Errorf("pack %s part %d: %w", path, len(e.Parts), err)
		}
		pe.stored = append(pe.stored, stored)
		e.Parts = append(e.Parts, FilePart{
			LoadFlags:          flags,
			TextureFlags:       TextureNone,
			CompressedLength:   uint64(len(stored)),
			UncompressedLength: uint64(len(chunk)),
		})
	}

	if i, ok := p.index[path]; ok {
		p.entries[i] = pe
	} else {
		p.index[path] = len(p.entries)
		p.entries = append(p.entries, pe)
	}
	p.opts.logger.Debug("packed file", "path", path, "size", len(data), "parts", len(e.Parts))
	return nil
}

// storePart returns the bytes to write for one part: compressed when that
// is a candidate and it shrinks the part, otherwise a copy of chunk.
func (p *Packer) storePart(ext string, chunk []byte) ([]byte, error) {
	if shouldCompress(ext, len(chunk)) {
		out, err := p.opts.codec.Compress(chunk)
		switch {
		case errors.Is(err, ErrIncompressible):
		case err != nil:
			return nil, fmt.Errorf("%s compress: %w", p.opts.codec.Name(), err)
		case len(out) < len(chunk):
			return out, nil
		}
	}
	return bytes.Clone(chunk), nil
}

// Remove drops a logical file. It reports whether the path was present.
func (p *Packer) Remove(path string) bool {
	path = normalizePath(path)
	i, ok := p.index[path]
	if !ok {
		return false
	}
	p.entries = slices.Delete(p.entries, i, i+1)
	p.reindex()
	return true
}

func (p *Packer) reindex() {
	clear(p.index)
	for i, pe := range p.entries {
		p.index[pe.entry.Path] = i
	}
}

// captured returns the captured audio metadata for a path, if any.
func (p *Packer) captured(path string) (*audioCapture, bool) {
	i, ok := p.index[path]
	if !ok || p.entries[i].audio == nil {
		return nil, false
	}
	return p.entries[i].audio, true
}

// sorted returns the entries ordered by extension then directory. The sort
// is stable so insertion order holds within a directory.
func (p *Packer) sorted() []*packEntry {
	out := slices.Clone(p.entries)
	slices.SortStableFunc(out, func(a, b *packEntry) int {
		return cmp.Or(
			cmp.Compare(a.entry.ext, b.entry.ext),
			cmp.Compare(a.entry.dir, b.entry.dir),
		)
	})
	return out
}

// Write sorts the entries and writes the directory file at dirPath, its
// archive and, when audio was packed, the archive's CAM sidecar.
func (p *Packer) Write(dirPath string) (*WriteResult, error) {
	if !isDirFileName(dirPath) {
		return nil, fmt.Errorf("%w: output %s does not end in %q", ErrPrecondition, dirPath, dirSuffix)
	}
	ordered := p.sorted()
	archive, hits := p.placeParts(ordered)

	dirEntries := make([]*DirEntry, len(ordered))
	for i, pe := range ordered {
		dirEntries[i] = pe.entry
	}
	return p.writeContainer(dirPath, dirEntries, archive, nil, camRecords(ordered), hits)
}

// placeParts assigns every part an archive offset in the order given,
// reusing the placement of byte-identical parts, and returns the archive
// body and the number of parts that were deduplicated.
func (p *Packer) placeParts(ordered []*packEntry) ([]byte, int) {
	var size int
	for _, pe := range ordered {
		for _, b := range pe.stored {
			size += len(b)
		}
	}
	archive := make([]byte, 0, size)
	dedup := newDedupTable()

	for _, pe := range ordered {
		for i, b := range pe.stored {
			part := &pe.entry.Parts[i]
			if pl, ok := dedup.lookup(b); ok {
				part.ArchiveIndex = pl.archiveIndex
				part.Offset = pl.offset
				continue
			}
			part.ArchiveIndex = p.opts.archiveIndex
			part.Offset = uint64(len(archive))
			dedup.record(b, part.ArchiveIndex, part.Offset)
			archive = append(archive, b...)
		}
	}
	return archive, dedup.hits
}

// camRecords returns one CAM record per captured wav, in the order given,
// keyed by the offset of the wav's first part.
func camRecords(ordered []*packEntry) []CAMEntry {
	var cams []CAMEntry
	for _, pe := range ordered {
		if pe.audio == nil || len(pe.entry.Parts) == 0 {
			continue
		}
		cams = append(cams, pe.audio.camEntry(pe.entry.Parts[0].Offset))
	}
	return cams
}
