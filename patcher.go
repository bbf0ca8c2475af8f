// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"fmt"
	"slices"
)

// Patcher packs new and replacement files on top of an existing container.
// Replaced and added entries are merged into the existing tree order and
// their parts are written to a new archive; untouched entries keep
// referencing their original archives.
type Patcher struct {
	*Packer

	base     *Reader
	baseline []*DirEntry
	dirData  []byte
	acache   *Acache
}

// NewPatcher opens the container at dirPath as the patch baseline and loads
// its audio asset index, if it has one.
func NewPatcher(dirPath string, opts ...Option) (*Patcher, error) {
	r, err := Open(dirPath, opts...)
	if err != nil {
		return nil, err
	}
	if err := r.ReadTree(); err != nil {
		r.Close()
		return nil, fmt.Errorf("read baseline tree: %w", err)
	}

	dirData, err := r.dirData()
	if err != nil {
		r.Close()
		return nil, err
	}

	p := &Patcher{
		Packer:   NewPacker(opts...),
		base:     r,
		baseline: slices.Clone(r.Tree().Entries()),
		dirData:  dirData,
	}

	if r.HasFile(AcachePath) {
		b, err := r.ReadFile(AcachePath)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("read %s: %w", AcachePath, err)
		}
		if p.acache, err = ParseAcache(b); err != nil {
			r.Close()
			return nil, fmt.Errorf("parse %s: %w", AcachePath, err)
		}
		p.opts.logger.Debug("loaded acache", "records", len(p.acache.Entries))
	}
	return p, nil
}

// Baseline returns the reader of the container being patched.
func (p *Patcher) Baseline() *Reader { return p.base }

// Acache returns the audio asset index of the baseline, or nil.
func (p *Patcher) Acache() *Acache { return p.acache }

// Remove drops a logical file from both the pending files and the
// baseline. It reports whether the path was present in either.
func (p *Patcher) Remove(path string) bool {
	removed := p.Packer.Remove(path)
	path = normalizePath(path)
	if i := slices.IndexFunc(p.baseline, func(e *DirEntry) bool { return e.Path == path }); i >= 0 {
		p.baseline = slices.Delete(p.baseline, i, i+1)
		removed = true
	}
	return removed
}

// Write writes the patched container to dirPath. The new parts go to the
// archive selected by WithArchiveIndex, which the baseline must not use.
// Without WithArchiveIndex the archive is 999 when the baseline leaves it
// free, otherwise the number after the highest one the baseline uses.
// Bytes stored after the baseline tree are carried over unchanged.
func (p *Patcher) Write(dirPath string) (*WriteResult, error) {
	if !isDirFileName(dirPath) {
		return nil, fmt.Errorf("%w: output %s does not end in %q", ErrPrecondition, dirPath, dirSuffix)
	}
	if !p.opts.indexSet {
		p.opts.archiveIndex = freeArchiveIndex(p.baseline)
		p.opts.logger.Debug("selected patch archive", "index", p.opts.archiveIndex)
	}
	for _, e := range p.baseline {
		for _, part := range e.Parts {
			if part.ArchiveIndex == p.opts.archiveIndex {
				return nil, fmt.Errorf("%w: baseline entry %s already uses archive %03d", ErrPrecondition, e.Path, p.opts.archiveIndex)
			}
		}
	}

	if err := p.updateAcache(); err != nil {
		return nil, err
	}

	ordered := p.sorted()
	archive, hits := p.placeParts(ordered)

	added := make([]*DirEntry, len(ordered))
	packed := make(map[*DirEntry]*packEntry, len(ordered))
	for i, pe := range ordered {
		added[i] = pe.entry
		packed[pe.entry] = pe
	}
	merged := mergeEntries(p.baseline, added)

	var audio []*packEntry
	for _, e := range merged {
		if pe, ok := packed[e]; ok {
			audio = append(audio, pe)
		}
	}
	return p.writeContainer(dirPath, merged, archive, p.dirData, camRecords(audio), hits)
}

// freeArchiveIndex picks the archive number for a patch over baseline.
func freeArchiveIndex(baseline []*DirEntry) uint16 {
	used := make(map[uint16]bool)
	var highest uint16
	for _, e := range baseline {
		for _, part := range e.Parts {
			if part.ArchiveIndex == ArchiveIndexDir {
				continue
			}
			used[part.ArchiveIndex] = true
			highest = max(highest, part.ArchiveIndex)
		}
	}
	if !used[DefaultArchiveIndex] {
		return DefaultArchiveIndex
	}
	if highest+1 < ArchiveIndexDir {
		return highest + 1
	}
	var i uint16
	for used[i] {
		i++
	}
	return i
}

// updateAcache copies the captured metadata of every replaced wav into its
// audio asset record and repacks the index when anything changed.
func (p *Patcher) updateAcache() error {
	if p.acache == nil {
		return nil
	}
	var changed int
	for _, e := range p.baseline {
		if !e.IsAudio() {
			continue
		}
		c, ok := p.captured(e.Path)
		if !ok {
			continue
		}
		rec, ok := p.acache.Find(e.Path)
		if !ok {
			p.opts.logger.Debug("replaced wav has no acache record", "path", e.Path)
			continue
		}
		rec.BlockCount = c.SampleCount * uint32(c.Channels)
		rec.Channels = uint32(c.Channels)
		rec.SampleDepth = uint32(c.SampleDepth)
		changed++
	}
	if changed == 0 {
		return nil
	}

	b, err := p.acache.Bytes()
	if err != nil {
		return fmt.Errorf("encode %s: %w", AcachePath, err)
	}
	if err := p.AddBuffer(b, AcachePath); err != nil {
		return err
	}
	p.opts.logger.Info("updated acache", "records", changed)
	return nil
}

// mergeEntries merges added into baseline. An added entry replaces the
// baseline entry with the same path in place; otherwise it goes after the
// last entry with the same extension and directory, then after the last
// entry with the same extension, then at the end. This keeps every
// extension and directory group contiguous.
func mergeEntries(baseline, added []*DirEntry) []*DirEntry {
	out := slices.Clone(baseline)
	for _, e := range added {
		if i := slices.IndexFunc(out, func(b *DirEntry) bool { return b.Path == e.Path }); i >= 0 {
			out[i] = e
			continue
		}
		i := lastIndexFunc(out, func(b *DirEntry) bool { return b.ext == e.ext && b.dir == e.dir })
		if i < 0 {
			i = lastIndexFunc(out, func(b *DirEntry) bool { return b.ext == e.ext })
		}
		if i < 0 {
			out = append(out, e)
			continue
		}
		out = slices.Insert(out, i+1, e)
	}
	return out
}

func lastIndexFunc[E any](s []E, f func(E) bool) int {
	for i := len(s) - 1; i >= 0; i-- {
		if f(s[i]) {
			return i
		}
	}
	return -1
}

// Close closes the baseline container.
func (p *Patcher) Close() error {
	return p.base.Close()
}
