// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"
)

func benchFiles(b *testing.B, unique bool) map[string][]byte {
	b.Helper()
	shared := bytes.Repeat([]byte("global function Bench_Init\n"), 1024)
	files := make(map[string][]byte)
	for i := range 50 {
		data := shared
		if unique {
			data = append(bytes.Clone(shared), fmt.Sprintf("// %d\n", i)...)
		}
		files[fmt.Sprintf("scripts/vscripts/bench_%02d.nut", i)] = data
	}
	return files
}

func benchPack(b *testing.B, files map[string][]byte) {
	dir := b.TempDir()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p := NewPacker()
		for path, data := range files {
			if err := p.AddBuffer(data, path); err != nil {
				b.Fatal(err)
			}
		}
		if _, err := p.Write(filepath.Join(dir, testDirName)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkPack benchmarks packing 50 distinct compressible files.
func BenchmarkPack(b *testing.B) {
	benchPack(b, benchFiles(b, true))
}

// BenchmarkPackDedup benchmarks packing 50 identical files, all but one of
// which are deduplicated.
func BenchmarkPackDedup(b *testing.B) {
	benchPack(b, benchFiles(b, false))
}

// BenchmarkReadFile benchmarks reading one compressed file with checksum
// verification.
func BenchmarkReadFile(b *testing.B) {
	files := benchFiles(b, true)
	p := NewPacker()
	for path, data := range files {
		if err := p.AddBuffer(data, path); err != nil {
			b.Fatal(err)
		}
	}
	dirPath := filepath.Join(b.TempDir(), testDirName)
	if _, err := p.Write(dirPath); err != nil {
		b.Fatal(err)
	}

	r, err := Open(dirPath)
	if err != nil {
		b.Fatal(err)
	}
	defer r.Close()
	if err := r.ReadTree(); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.ReadFile("scripts/vscripts/bench_07.nut"); err != nil {
			b.Fatal(err)
		}
	}
}
