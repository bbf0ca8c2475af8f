// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteResult describes the files produced by a Packer or Patcher write.
type WriteResult struct {
	DirPath     string
	ArchivePath string
	CAMPath     string // empty when no audio was packed
	Files       int
	TreeLength  int
	ArchiveSize int64
	DedupHits   int
}

// writeContainer serializes the tree for entries and writes the archive,
// the CAM sidecar and finally the directory file. dirData is appended to the
// directory file after the tree; parts in archive ArchiveIndexDir point
// into it.
func (p *Packer) writeContainer(dirPath string, entries []*DirEntry, archive, dirData []byte, cams []CAMEntry, dedupHits int) (*WriteResult, error) {
	tree, err := SerializeTree(entries)
	if err != nil {
		return nil, fmt.Errorf("serialize tree: %w", err)
	}

	w := newBinWriter(HeaderSize + len(tree) + len(dirData))
	newHeader(len(tree)).appendTo(w)
	w.Write(tree)
	w.Write(dirData)

	res := &WriteResult{
		DirPath:     dirPath,
		ArchivePath: archivePath(dirPath, p.opts.archiveIndex),
		Files:       len(entries),
		TreeLength:  len(tree),
		ArchiveSize: int64(len(archive)),
		DedupHits:   dedupHits,
	}

	if err := writeFileAtomic(res.ArchivePath, archive); err != nil {
		return nil, fmt.Errorf("write archive: %w", err)
	}

	// A sidecar left over from an earlier write would describe offsets the
	// new archive no longer has.
	cam := camPath(res.ArchivePath)
	if len(cams) > 0 {
		if err := writeFileAtomic(cam, SerializeCAM(cams)); err != nil {
			return nil, fmt.Errorf("write cam: %w", err)
		}
		res.CAMPath = cam
	} else if err := os.Remove(cam); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale cam: %w", err)
	}

	if err := writeFileAtomic(dirPath, w.Bytes()); err != nil {
		return nil, fmt.Errorf("write directory file: %w", err)
	}

	p.opts.logger.Info("wrote vpk",
		"dir", res.DirPath,
		"archive", res.ArchivePath,
		"files", res.Files,
		"archive_size", res.ArchiveSize,
		"dedup_hits", res.DedupHits,
		"cam_records", len(cams))
	return res, nil
}

// writeFileAtomic writes data to a temp file next to path and moves it into
// place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "vpk_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		if err := copyFile(tmpPath, path); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("save %s: %w", path, err)
		}
		os.Remove(tmpPath)
	}
	return nil
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
