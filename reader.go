// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ArchiveIndexDir marks parts stored in the directory file after the tree.
const ArchiveIndexDir uint16 = 0x7FFF

// Reader reads files out of a container. A Reader is not safe for
// concurrent use; open one per goroutine.
type Reader struct {
	path     string
	opts     options
	header   *Header
	tree     *Tree
	problems []string

	handles map[string]*os.File
	cams    map[string]camIndex
}

// Open opens the directory file at path and reads its header. Header
// problems are recorded rather than returned; check Valid before reading.
func Open(path string, opts ...Option) (*Reader, error) {
	r := &Reader{
		path:    filepath.Clean(path),
		opts:    buildOptions(opts),
		handles: make(map[string]*os.File),
		cams:    make(map[string]camIndex),
	}
	if !isDirFileName(r.path) {
		r.problems = append(r.problems, fmt.Sprintf("not a %q file: %s", dirSuffix, filepath.Base(r.path)))
	}

	f, err := r.handle(r.path)
	if err != nil {
		return nil, fmt.Errorf("open directory file: %w", err)
	}

	var buf [HeaderSize]byte
	if n, err := f.ReadAt(buf[:], 0); err != nil {
		r.Close()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read header of %s: %w: got %d of %d bytes", r.path, ErrBufferUnderrun, n, HeaderSize)
		}
		return nil, fmt.Errorf("read header of %s: %w", r.path, err)
	}
	r.header, _ = parseHeader(buf[:])
	return r, nil
}

// Path returns the directory file path.
func (r *Reader) Path() string { return r.path }

// Header returns the parsed header.
func (r *Reader) Header() *Header { return r.header }

// Valid reports whether the container passed every check so far.
func (r *Reader) Valid() bool {
	return len(r.problems) == 0 && r.header.Valid()
}

// Problems returns every recorded container and header problem.
func (r *Reader) Problems() []string {
	return append(append([]string(nil), r.problems...), r.header.Problems()...)
}

func (r *Reader) invalidErr() error {
	return fmt.Errorf("%w: container %s is invalid: %s", ErrPrecondition, r.path, strings.Join(r.Problems(), "; "))
}

// ReadTree parses the directory tree. It must be called before any file is
// read.
func (r *Reader) ReadTree() error {
	if !r.Valid() {
		return r.invalidErr()
	}
	b, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read directory file: %w", err)
	}
	end := HeaderSize + int(r.header.TreeLength)
	if end > len(b) {
		return fmt.Errorf("%w: tree length %d exceeds directory file size %d", ErrMalformedTree, r.header.TreeLength, len(b))
	}
	tree, err := parseTree(b, end)
	if err != nil {
		return fmt.Errorf("%s: %w", r.path, err)
	}
	r.tree = tree
	r.opts.logger.Debug("read vpk tree", "path", r.path, "files", tree.Len())
	return nil
}

// Tree returns the parsed tree, or nil before ReadTree.
func (r *Reader) Tree() *Tree { return r.tree }

// Files returns every logical path in tree order.
func (r *Reader) Files() []string {
	if r.tree == nil {
		return nil
	}
	return r.tree.Paths()
}

// Entry returns the directory entry for a logical path.
func (r *Reader) Entry(path string) (*DirEntry, bool) {
	if r.tree == nil {
		return nil, false
	}
	return r.tree.Lookup(path)
}

// HasFile reports whether the tree contains a logical path.
func (r *Reader) HasFile(path string) bool {
	_, ok := r.Entry(path)
	return ok
}

// ReadFile returns the contents of a logical path. It returns
// ErrPathNotFound when the path is not in the tree.
func (r *Reader) ReadFile(path string) ([]byte, error) {
	return r.ReadFileContext(context.Background(), path)
}

// ReadFileContext is ReadFile with a context for the optional transcoder.
func (r *Reader) ReadFileContext(ctx context.Context, path string) ([]byte, error) {
	if !r.Valid() {
		return nil, r.invalidErr()
	}
	if r.tree == nil {
		return nil, fmt.Errorf("%w: tree of %s has not been read", ErrPrecondition, r.path)
	}
	e, ok := r.tree.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	for i, part := range e.Parts {
		if err := checkPart(e.Path, i, part); err != nil {
			return nil, err
		}
	}

	data := make([]byte, 0, e.Size())
	if len(e.Preload) > 0 {
		preload, err := r.readAt(r.path, e.PreloadOffset, len(e.Preload))
		if err != nil {
			return nil, fmt.Errorf("read preload of %s: %w", e.Path, err)
		}
		data = append(data, preload...)
	}

	var cam *CAMEntry
	for i, part := range e.Parts {
		b, archive, err := r.readPart(part)
		if err != nil {
			return nil, fmt.Errorf("read %s part %d: %w", e.Path, i, err)
		}
		data = append(data, b...)

		if i == 0 && e.IsAudio() && r.opts.patchAudio {
			cam, err = r.lookupCAM(archive, part.Offset)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", e.Path, err)
			}
		}
	}

	if e.IsAudio() {
		if cam == nil {
			return data, nil
		}
		data = r.rebuildAudio(e.Path, data, *cam)
		if r.opts.transcoder != nil {
			out, err := r.opts.transcoder.Transcode(ctx, data, int(cam.Channels))
			if err != nil {
				return nil, fmt.Errorf("transcode %s: %w", e.Path, err)
			}
			data = out
		}
		return data, nil
	}

	if r.opts.verifyChecksum {
		if got := checksum(data); got != e.CRC {
			return nil, fmt.Errorf("%w: %s: crc32 0x%08X, expected 0x%08X", ErrIntegrity, e.Path, got, e.CRC)
		}
	}
	return data, nil
}

// ExtractFile writes the contents of a logical path to destPath, creating
// parent directories as needed.
func (r *Reader) ExtractFile(path, destPath string) error {
	return r.ExtractFileContext(context.Background(), path, destPath)
}

// ExtractFileContext is ExtractFile with a context for the optional
// transcoder.
func (r *Reader) ExtractFileContext(ctx context.Context, path, destPath string) error {
	data, err := r.ReadFileContext(ctx, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(destPath, data, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Close closes every file handle the reader opened.
func (r *Reader) Close() error {
	var errs []error
	for path, f := range r.handles {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", path, err))
		}
	}
	clear(r.handles)
	return errors.Join(errs...)
}

// dirData returns the bytes stored after the tree in the directory file.
func (r *Reader) dirData() ([]byte, error) {
	f, err := r.handle(r.path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", r.path, err)
	}
	start := int64(HeaderSize) + int64(r.header.TreeLength)
	if fi.Size() <= start {
		return nil, nil
	}
	b := make([]byte, fi.Size()-start)
	if _, err := f.ReadAt(b, start); err != nil {
		return nil, fmt.Errorf("read %s after tree: %w", r.path, err)
	}
	return b, nil
}

// checkPart rejects part records whose lengths no packer produces.
func checkPart(path string, i int, part FilePart) error {
	if part.CompressedLength > MaxPartSize || part.UncompressedLength > MaxPartSize {
		return fmt.Errorf("%w: %s part %d: length %d (%d uncompressed) at offset %d exceeds %d",
			ErrMalformedTree, path, i, part.CompressedLength, part.UncompressedLength, part.Offset, MaxPartSize)
	}
	return nil
}

// readPart reads and decompresses one part, returning the archive path it
// came from.
func (r *Reader) readPart(part FilePart) ([]byte, string, error) {
	archive := r.path
	offset := int64(part.Offset)
	if part.ArchiveIndex == ArchiveIndexDir {
		offset += HeaderSize + int64(r.header.TreeLength)
	} else {
		archive = archivePath(r.path, part.ArchiveIndex)
	}

	raw, err := r.readAt(archive, offset, int(part.CompressedLength))
	if err != nil {
		return nil, archive, err
	}
	if !part.Compressed() {
		return raw, archive, nil
	}
	b, err := r.opts.codec.Decompress(raw, int(part.UncompressedLength))
	if err != nil {
		return nil, archive, fmt.Errorf("%s at offset %d: %w", archive, part.Offset, err)
	}
	return b, archive, nil
}

// readAt reads exactly n bytes at off from the file at path.
func (r *Reader) readAt(path string, off int64, n int) ([]byte, error) {
	if off < 0 || n < 0 {
		return nil, fmt.Errorf("%w: %s: read %d bytes at offset %d", ErrBufferUnderrun, path, n, off)
	}
	f, err := r.handle(path)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if got, err := f.ReadAt(buf, off); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s: read %d bytes at offset %d, got %d", ErrBufferUnderrun, path, n, off, got)
		}
		return nil, fmt.Errorf("read %s at offset %d: %w", path, off, err)
	}
	return buf, nil
}

// handle returns the cached read handle for path, opening it on first use.
func (r *Reader) handle(path string) (*os.File, error) {
	if f, ok := r.handles[path]; ok {
		return f, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r.handles[path] = f
	return f, nil
}

// lookupCAM returns the CAM record of the archive at contentOffset, loading
// the sidecar on first use. A missing sidecar yields no record.
func (r *Reader) lookupCAM(archive string, contentOffset uint64) (*CAMEntry, error) {
	idx, ok := r.cams[archive]
	if !ok {
		entries, err := ReadCAM(camPath(archive))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read cam: %w", err)
		}
		idx = newCAMIndex(entries)
		r.cams[archive] = idx
		r.opts.logger.Debug("loaded cam sidecar", "archive", archive, "records", len(idx))
	}
	e, ok := idx[contentOffset]
	if !ok {
		r.opts.logger.Debug("no cam record", "archive", archive, "offset", contentOffset)
		return nil, nil
	}
	return &e, nil
}

// rebuildAudio restores the header of a stored wav. The CAM window is
// authoritative; the pad scan is only compared against it.
func (r *Reader) rebuildAudio(path string, stored []byte, cam CAMEntry) []byte {
	padStart, padEnd := padWindow(stored)
	camStart, camEnd := camWindow(stored, cam)
	if padStart != camStart || padEnd != camEnd {
		r.opts.logger.Debug("wav pad scan disagrees with cam record",
			"path", path,
			"pad_start", padStart, "pad_end", padEnd,
			"cam_start", camStart, "cam_end", camEnd)
	}
	return rebuildWav(stored, cam)
}
