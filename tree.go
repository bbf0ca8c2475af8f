// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"fmt"
	"strings"
)

// noName marks a root directory, a missing extension or an empty base name.
const noName = " "

// DirEntry describes one logical file in the directory tree.
type DirEntry struct {
	Path string
	CRC  uint32

	// PreloadOffset is the absolute offset of the preload bytes in the
	// directory file. It is only meaningful for parsed entries.
	PreloadOffset int64
	Preload       []byte
	Parts         []FilePart

	ext, dir, name string
}

// newDirEntry returns an entry for a logical path with its tree key split out.
func newDirEntry(path string) *DirEntry {
	e := &DirEntry{Path: path}
	e.ext, e.dir, e.name = splitPath(path)
	return e
}

// Extension returns the tree extension key (" " when absent).
func (e *DirEntry) Extension() string { return e.ext }

// Directory returns the tree directory key (" " for the root).
func (e *DirEntry) Directory() string { return e.dir }

// PreloadBytes is the count of payload bytes stored inline in the tree.
func (e *DirEntry) PreloadBytes() int { return len(e.Preload) }

// Size returns the logical file size.
func (e *DirEntry) Size() uint64 {
	n := uint64(len(e.Preload))
	for _, p := range e.Parts {
		n += p.UncompressedLength
	}
	return n
}

// IsAudio reports whether the entry is stored headerless with a CAM record.
func (e *DirEntry) IsAudio() bool { return e.ext == "wav" }

// normalizePath converts a logical path to the forward-slash form used in the
// tree.
func normalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	return strings.TrimPrefix(path, "/")
}

// splitPath splits a logical path into its tree extension, directory and
// name keys.
func splitPath(path string) (ext, dir, name string) {
	dir, base := noName, path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		dir, base = path[:i], path[i+1:]
		if dir == "" {
			dir = noName
		}
	}
	ext, name = noName, base
	if i := strings.LastIndex(base, "."); i >= 0 && i < len(base)-1 {
		ext, name = base[i+1:], base[:i]
	}
	if name == "" {
		name = noName
	}
	return ext, dir, name
}

// joinPath is the inverse of splitPath.
func joinPath(ext, dir, name string) string {
	path := name
	if path == noName {
		path = ""
	}
	if ext != noName {
		path += "." + ext
	}
	if dir != noName {
		path = dir + "/" + path
	}
	return path
}

// DirGroup is every entry sharing one directory within an extension.
type DirGroup struct {
	Directory string
	Entries   []*DirEntry
}

// ExtGroup is every entry sharing one extension, grouped by directory.
type ExtGroup struct {
	Extension   string
	Directories []DirGroup
}

// Tree is a parsed directory tree.
type Tree struct {
	entries []*DirEntry
	byPath  map[string]*DirEntry
	groups  []ExtGroup
}

// Entries returns every entry in tree order.
func (t *Tree) Entries() []*DirEntry { return t.entries }

// Groups returns the entries grouped by extension then directory, in tree
// order.
func (t *Tree) Groups() []ExtGroup { return t.groups }

// Len returns the number of files in the tree.
func (t *Tree) Len() int { return len(t.entries) }

// Lookup returns the entry for a logical path.
func (t *Tree) Lookup(path string) (*DirEntry, bool) {
	e, ok := t.byPath[normalizePath(path)]
	return e, ok
}

// Paths returns every logical path in tree order.
func (t *Tree) Paths() []string {
	paths := make([]string, len(t.entries))
	for i, e := range t.entries {
		paths[i] = e.Path
	}
	return paths
}

// ParseTree parses the header and directory tree of a directory file.
func ParseTree(dirFile []byte) (*Tree, error) {
	h, err := parseHeader(dirFile)
	if err != nil {
		return nil, err
	}
	limit := len(dirFile)
	if end := HeaderSize + int(h.TreeLength); h.TreeLength != 0 && end < limit {
		limit = end
	}
	return parseTree(dirFile, limit)
}

// parseTree walks the nested extension, directory and filename string table
// starting right after the header and stopping at limit.
func parseTree(dirFile []byte, limit int) (*Tree, error) {
	r := newBinReaderAt(dirFile, HeaderSize, limit)
	t := &Tree{byPath: make(map[string]*DirEntry)}

	malformed := func(what string, off int) error {
		return fmt.Errorf("%w: %s at offset %d: %w", ErrMalformedTree, what, off, r.Err())
	}

	for {
		off := r.Tell()
		ext := r.CString()
		if r.Err() != nil {
			return nil, malformed("read extension", off)
		}
		if ext == "" {
			break
		}
		eg := ExtGroup{Extension: ext}

		for {
			off := r.Tell()
			dir := r.CString()
			if r.Err() != nil {
				return nil, malformed("read directory", off)
			}
			if dir == "" {
				break
			}
			dg := DirGroup{Directory: dir}

			for {
				off := r.Tell()
				name := r.CString()
				if r.Err() != nil {
					return nil, malformed("read filename", off)
				}
				if name == "" {
					break
				}

				e, err := readDirEntry(r, ext, dir, name)
				if err != nil {
					return nil, fmt.Errorf("%w: entry %q at offset %d: %w", ErrMalformedTree, joinPath(ext, dir, name), off, err)
				}
				t.entries = append(t.entries, e)
				t.byPath[e.Path] = e
				dg.Entries = append(dg.Entries, e)
			}
			eg.Directories = append(eg.Directories, dg)
		}
		t.groups = append(t.groups, eg)
	}
	return t, nil
}

// readDirEntry reads the fixed entry fields, the part list and any preload
// bytes that follow it.
func readDirEntry(r *binReader, ext, dir, name string) (*DirEntry, error) {
	e := &DirEntry{
		Path: joinPath(ext, dir, name),
		ext:  ext,
		dir:  dir,
		name: name,
	}
	e.CRC = r.Uint32()
	preloadBytes := int(r.Uint16())
	for {
		part, ok := readFilePart(r)
		if !ok {
			break
		}
		e.Parts = append(e.Parts, part)
	}
	if preloadBytes > 0 {
		e.PreloadOffset = int64(r.Tell())
		e.Preload = r.Bytes(preloadBytes)
	}
	return e, r.Err()
}

// SerializeTree encodes entries as a directory tree in the given order.
// Entries sharing an extension, and within it a directory, must be
// contiguous.
func SerializeTree(entries []*DirEntry) ([]byte, error) {
	size := 3
	for _, e := range entries {
		size += len(e.ext) + len(e.dir) + len(e.name) + 3 + 12 + len(e.Parts)*filePartSize + len(e.Preload)
	}
	w := newBinWriter(size)

	seenExt := make(map[string]bool)
	seenDir := make(map[string]bool)
	var lastExt, lastDir string

	for _, e := range entries {
		if e.ext == "" || e.dir == "" || e.name == "" {
			return nil, fmt.Errorf("%w: entry %q has an empty tree key", ErrMalformedTree, e.Path)
		}
		if len(e.Preload) > 0xFFFF {
			return nil, fmt.Errorf("%w: entry %q preload of %d bytes exceeds %d", ErrMalformedTree, e.Path, len(e.Preload), 0xFFFF)
		}

		newExt := e.ext != lastExt
		newDir := newExt || e.dir != lastDir

		switch {
		case newExt && lastExt != "":
			w.PutUint16(0) // end filenames and directories
		case newDir && lastDir != "":
			w.PutUint8(0) // end filenames
		}

		if newExt {
			if seenExt[e.ext] {
				return nil, fmt.Errorf("%w: extension %q is not contiguous (at %q)", ErrMalformedTree, e.ext, e.Path)
			}
			seenExt[e.ext] = true
			clear(seenDir)
			w.PutCString(e.ext)
			lastExt = e.ext
		}
		if newDir {
			if seenDir[e.dir] {
				return nil, fmt.Errorf("%w: directory %q is not contiguous within %q (at %q)", ErrMalformedTree, e.dir, e.ext, e.Path)
			}
			seenDir[e.dir] = true
			w.PutCString(e.dir)
			lastDir = e.dir
		}

		w.PutCString(e.name)
		w.PutUint32(e.CRC)
		w.PutUint16(uint16(len(e.Preload)))
		for _, p := range e.Parts {
			p.appendTo(w)
		}
		w.PutUint16(ArchiveIndexTerminator)
		w.PutBytes(e.Preload)
	}

	w.PutUint24(0)
	return w.Bytes(), nil
}
