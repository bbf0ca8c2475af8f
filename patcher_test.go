// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"testing"
)

func TestMergeEntries(t *testing.T) {
	a := testEntry("scripts/a.txt", 1)
	b := testEntry("scripts/b.txt", 2)
	c := testEntry("cfg/c.txt", 3)
	d := testEntry("vscripts/d.nut", 4)
	baseline := []*DirEntry{a, b, c, d}

	replaced := testEntry("scripts/b.txt", 20)
	added := []*DirEntry{
		replaced,
		testEntry("scripts/e.txt", 5), // same extension and directory
		testEntry("new/f.txt", 6),     // same extension only
		testEntry("sound/g.wav", 7),   // nothing alike
	}

	merged := mergeEntries(baseline, added)

	var got []string
	for _, e := range merged {
		got = append(got, e.Path)
	}
	want := []string{"scripts/a.txt", "scripts/b.txt", "scripts/e.txt", "cfg/c.txt", "new/f.txt", "vscripts/d.nut", "sound/g.wav"}
	if !slices.Equal(got, want) {
		t.Errorf("merged order:\n got %q\nwant %q", got, want)
	}
	if merged[1] != replaced {
		t.Error("replaced entry was not swapped in place")
	}
	if len(baseline) != 4 || baseline[1] != b {
		t.Error("baseline slice was modified")
	}
	if _, err := SerializeTree(merged); err != nil {
		t.Errorf("merged tree is not serializable: %v", err)
	}
}

func TestPatchReplaceAddRemove(t *testing.T) {
	dirPath := packFiles(t, map[string][]byte{
		"scripts/a.txt": []byte("a"),
		"scripts/b.txt": []byte("b"),
		"cfg/c.cfg":     []byte("c"),
		"scripts/d.txt": []byte("d"),
	}, WithArchiveIndex(0))

	var before []string
	for _, p := range openTree(t, dirPath).Files() {
		if p != "scripts/b.txt" && p != "cfg/c.cfg" {
			before = append(before, p)
		}
	}

	p, err := NewPatcher(dirPath)
	if err != nil {
		t.Fatalf("new patcher: %v", err)
	}
	defer p.Close()
	if p.Acache() != nil {
		t.Error("acache loaded for a container without one")
	}

	if err := p.AddBuffer([]byte("b, patched"), "scripts/b.txt"); err != nil {
		t.Fatal(err)
	}
	if err := p.AddBuffer([]byte("new"), "scripts/new.txt"); err != nil {
		t.Fatal(err)
	}
	if !p.Remove("cfg/c.cfg") {
		t.Error("baseline entry not removed")
	}
	res, err := p.Write(dirPath)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.Files != 4 {
		t.Errorf("wrote %d files, want 4", res.Files)
	}

	r := openTree(t, dirPath)
	if r.HasFile("cfg/c.cfg") {
		t.Error("removed file still present")
	}

	want := map[string]struct {
		data  string
		index uint16
	}{
		"scripts/a.txt":   {"a", 0},
		"scripts/b.txt":   {"b, patched", DefaultArchiveIndex},
		"scripts/d.txt":   {"d", 0},
		"scripts/new.txt": {"new", DefaultArchiveIndex},
	}
	for path, w := range want {
		e, ok := r.Entry(path)
		if !ok {
			t.Errorf("%s: missing", path)
			continue
		}
		if e.Parts[0].ArchiveIndex != w.index {
			t.Errorf("%s: archive %d, want %d", path, e.Parts[0].ArchiveIndex, w.index)
		}
		got, err := r.ReadFile(path)
		if err != nil || string(got) != w.data {
			t.Errorf("%s: read %q, %v", path, got, err)
		}
	}

	// Untouched entries keep their relative order.
	var after []string
	for _, path := range r.Files() {
		if slices.Contains(before, path) {
			after = append(after, path)
		}
	}
	if !slices.Equal(after, before) {
		t.Errorf("unmodified order changed: %q, want %q", after, before)
	}
}

func TestPatchArchiveIndexConflict(t *testing.T) {
	dirPath := packFiles(t, map[string][]byte{"scripts/a.txt": []byte("a")})

	p, err := NewPatcher(dirPath, WithArchiveIndex(DefaultArchiveIndex))
	if err != nil {
		t.Fatalf("new patcher: %v", err)
	}
	defer p.Close()
	if err := p.AddBuffer([]byte("b"), "scripts/b.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Write(dirPath); !errors.Is(err, ErrPrecondition) {
		t.Errorf("got %v, want ErrPrecondition", err)
	}
}

func TestPatchSelectsFreeArchive(t *testing.T) {
	dirPath := packFiles(t, map[string][]byte{"scripts/a.txt": []byte("a")})

	for i, want := range []uint16{1000, 1001} {
		p, err := NewPatcher(dirPath)
		if err != nil {
			t.Fatalf("new patcher: %v", err)
		}
		path := fmt.Sprintf("scripts/patch%d.txt", i)
		if err := p.AddBuffer([]byte(path), path); err != nil {
			t.Fatal(err)
		}
		res, err := p.Write(dirPath)
		p.Close()
		if err != nil {
			t.Fatalf("patch %d: %v", i, err)
		}
		if res.ArchivePath != archivePath(dirPath, want) {
			t.Errorf("patch %d wrote %s, want archive %d", i, res.ArchivePath, want)
		}
	}

	r := openTree(t, dirPath)
	for _, path := range []string{"scripts/a.txt", "scripts/patch0.txt", "scripts/patch1.txt"} {
		if _, err := r.ReadFile(path); err != nil {
			t.Errorf("%s: %v", path, err)
		}
	}
}

func TestFreeArchiveIndex(t *testing.T) {
	in := func(indexes ...uint16) []*DirEntry {
		var parts []FilePart
		for _, i := range indexes {
			parts = append(parts, FilePart{ArchiveIndex: i})
		}
		return []*DirEntry{testEntry("a/b.txt", 0, parts...)}
	}
	tests := []struct {
		name     string
		baseline []*DirEntry
		want     uint16
	}{
		{"empty", nil, DefaultArchiveIndex},
		{"default free", in(0, 1, 2), DefaultArchiveIndex},
		{"default used", in(0, DefaultArchiveIndex), DefaultArchiveIndex + 1},
		{"directory parts ignored", in(DefaultArchiveIndex, ArchiveIndexDir), DefaultArchiveIndex + 1},
		{"highest reserved", in(0, DefaultArchiveIndex, ArchiveIndexDir-1), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := freeArchiveIndex(tt.baseline); got != tt.want {
				t.Errorf("freeArchiveIndex = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPatchKeepsDirectoryData(t *testing.T) {
	dirPath, want := inlineContainer(t, "inline_dir.vpk", nil)

	p, err := NewPatcher(dirPath)
	if err != nil {
		t.Fatalf("new patcher: %v", err)
	}
	defer p.Close()
	if err := p.AddBuffer([]byte("added"), "cfg/zzz_added.cfg"); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(filepath.Dir(dirPath), "patched_dir.vpk")
	if _, err := p.Write(out); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := openTree(t, out)
	got, err := r.ReadFile("cfg/inline.cfg")
	if err != nil {
		t.Fatalf("read untouched entry: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("read %q, want %q", got, want)
	}
	if got, err := r.ReadFile("cfg/zzz_added.cfg"); err != nil || string(got) != "added" {
		t.Errorf("added entry: %q, %v", got, err)
	}
}

func TestPatchUpdatesAcache(t *testing.T) {
	dirPath := packFiles(t, map[string][]byte{
		AcachePath:              testAcache(),
		"sound/weapons/hit.wav": testWav(48000, 1, 2000),
		"sound/ui/click.wav":    testWav(44100, 1, 400),
	}, WithArchiveIndex(0))

	p, err := NewPatcher(dirPath)
	if err != nil {
		t.Fatalf("new patcher: %v", err)
	}
	defer p.Close()
	if p.Acache() == nil || len(p.Acache().Entries) != 2 {
		t.Fatal("baseline acache not loaded")
	}

	wav := testWav(22050, 2, 3000)
	if err := p.AddBuffer(wav, "sound/weapons/hit.wav"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Write(dirPath); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := openTree(t, dirPath)
	e, _ := r.Entry(AcachePath)
	if e.Parts[0].ArchiveIndex != DefaultArchiveIndex {
		t.Error("acache was not repacked into the patch archive")
	}
	b, err := r.ReadFile(AcachePath)
	if err != nil {
		t.Fatalf("read acache: %v", err)
	}
	a, err := ParseAcache(b)
	if err != nil {
		t.Fatalf("parse acache: %v", err)
	}

	hit, _ := a.Find("sound/weapons/hit.wav")
	if hit.BlockCount != 1500 || hit.Channels != 2 || hit.SampleDepth != 16 {
		t.Errorf("hit.wav record = %d blocks, %d channels, %d bits; want 1500, 2, 16",
			hit.BlockCount, hit.Channels, hit.SampleDepth)
	}
	if click, _ := a.Find("sound/ui/click.wav"); click.BlockCount != 200 {
		t.Errorf("untouched record changed: block count %d", click.BlockCount)
	}

	got, err := r.ReadFile("sound/weapons/hit.wav")
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	if !bytes.Equal(got, wav) {
		t.Error("patched wav differs from the replacement")
	}
	if got, err := r.ReadFile("sound/ui/click.wav"); err != nil || !bytes.Equal(got, testWav(44100, 1, 400)) {
		t.Errorf("baseline wav not intact: %v", err)
	}
}

func TestPatchWithoutAcacheChangesLeavesIt(t *testing.T) {
	dirPath := packFiles(t, map[string][]byte{
		AcachePath:      testAcache(),
		"scripts/a.txt": []byte("a"),
	}, WithArchiveIndex(0))

	p, err := NewPatcher(dirPath)
	if err != nil {
		t.Fatalf("new patcher: %v", err)
	}
	defer p.Close()
	if err := p.AddBuffer([]byte("a2"), "scripts/a.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Write(dirPath); err != nil {
		t.Fatalf("write: %v", err)
	}

	e, _ := openTree(t, dirPath).Entry(AcachePath)
	if e.Parts[0].ArchiveIndex != 0 {
		t.Errorf("acache moved to archive %d", e.Parts[0].ArchiveIndex)
	}
}
