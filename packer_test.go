// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

const testDirName = "englishclient_mp_test.bsp.pak000_dir.vpk"

func randomBytes(t testing.TB, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatal(err)
	}
	return b
}

// packFiles packs files into a new container and returns its directory
// file path.
func packFiles(t *testing.T, files map[string][]byte, opts ...Option) string {
	t.Helper()
	p := NewPacker(opts...)
	for path, data := range files {
		if err := p.AddBuffer(data, path); err != nil {
			t.Fatalf("add %s: %v", path, err)
		}
	}
	dirPath := filepath.Join(t.TempDir(), testDirName)
	if _, err := p.Write(dirPath); err != nil {
		t.Fatalf("write: %v", err)
	}
	return dirPath
}

func openTree(t *testing.T, dirPath string, opts ...Option) *Reader {
	t.Helper()
	r, err := Open(dirPath, opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	if err := r.ReadTree(); err != nil {
		t.Fatalf("read tree: %v", err)
	}
	return r
}

func TestPackAndRead(t *testing.T) {
	files := map[string][]byte{
		"scripts/vscripts/base.nut": []byte("untyped\nglobal function Base_Init\n"),
		"scripts/weapons/rifle.txt": bytes.Repeat([]byte("\"damage\" \"25\"\n"), 2048),
		"models/weapons/rifle.mdl":  randomBytes(t, 10_000),
		"resource/empty.res":        {},
	}

	for _, codec := range []Codec{ZstdCodec{}, LZ4Codec{}, StoreCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			dirPath := packFiles(t, files, WithCodec(codec))
			r := openTree(t, dirPath, WithCodec(codec))

			if !r.Valid() {
				t.Fatalf("container invalid: %v", r.Problems())
			}
			if r.Tree().Len() != len(files) {
				t.Fatalf("tree has %d files, want %d", r.Tree().Len(), len(files))
			}
			for path, want := range files {
				got, err := r.ReadFile(path)
				if err != nil {
					t.Fatalf("read %s: %v", path, err)
				}
				if !bytes.Equal(got, want) {
					t.Errorf("%s: content mismatch (%d bytes, want %d)", path, len(got), len(want))
				}
				e, _ := r.Entry(path)
				if e.CRC != checksum(got) {
					t.Errorf("%s: crc 0x%08X, want 0x%08X", path, e.CRC, checksum(got))
				}
			}

			if !r.HasFile("scripts\\vscripts\\base.nut") {
				t.Error("HasFile with backslashes failed")
			}
			if r.HasFile("scripts/missing.nut") {
				t.Error("HasFile found a missing path")
			}
		})
	}
}

func TestPackCompressesLargeParts(t *testing.T) {
	text := bytes.Repeat([]byte("compressible "), 1000)
	dirPath := packFiles(t, map[string][]byte{
		"cfg/big.cfg":   text,
		"cfg/small.cfg": text[:100],
	})
	r := openTree(t, dirPath)

	big, _ := r.Entry("cfg/big.cfg")
	if !big.Parts[0].Compressed() {
		t.Error("large compressible part stored raw")
	}
	small, _ := r.Entry("cfg/small.cfg")
	if small.Parts[0].Compressed() {
		t.Error("part below the threshold was compressed")
	}
}

func TestPackSplitsParts(t *testing.T) {
	data := randomBytes(t, MaxPartSize+MaxPartSize/2)
	dirPath := packFiles(t, map[string][]byte{"maps/big.bsp": data})
	r := openTree(t, dirPath)

	e, ok := r.Entry("maps/big.bsp")
	if !ok {
		t.Fatal("entry not found")
	}
	if len(e.Parts) != 2 {
		t.Fatalf("got %d parts, want 2", len(e.Parts))
	}
	if e.Parts[0].UncompressedLength != 1048576 {
		t.Errorf("first part = %d bytes, want 1048576", e.Parts[0].UncompressedLength)
	}
	if e.Parts[1].UncompressedLength != uint64(len(data)-MaxPartSize) {
		t.Errorf("second part = %d bytes, want %d", e.Parts[1].UncompressedLength, len(data)-MaxPartSize)
	}

	got, err := r.ReadFile("maps/big.bsp")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("split file does not reassemble")
	}
}

func TestPackDeduplicates(t *testing.T) {
	shared := randomBytes(t, 5000)
	p := NewPacker()
	for _, path := range []string{"materials/a.vmt", "materials/b.vmt"} {
		if err := p.AddBuffer(shared, path); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.AddBuffer([]byte("unique"), "materials/c.vmt"); err != nil {
		t.Fatal(err)
	}

	dirPath := filepath.Join(t.TempDir(), testDirName)
	res, err := p.Write(dirPath)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if res.DedupHits != 1 {
		t.Errorf("dedup hits = %d, want 1", res.DedupHits)
	}
	if res.ArchiveSize != int64(len(shared)+len("unique")) {
		t.Errorf("archive size = %d, want %d", res.ArchiveSize, len(shared)+len("unique"))
	}

	r := openTree(t, dirPath)
	a, _ := r.Entry("materials/a.vmt")
	b, _ := r.Entry("materials/b.vmt")
	if a.Parts[0].Offset != b.Parts[0].Offset || a.Parts[0].ArchiveIndex != b.Parts[0].ArchiveIndex {
		t.Errorf("duplicate parts not shared: %+v vs %+v", a.Parts[0], b.Parts[0])
	}
	for _, path := range []string{"materials/a.vmt", "materials/b.vmt"} {
		got, err := r.ReadFile(path)
		if err != nil || !bytes.Equal(got, shared) {
			t.Errorf("%s: read back failed: %v", path, err)
		}
	}
}

func TestPackAudioRoundTrip(t *testing.T) {
	wav := testWav(48000, 2, 4000)
	dirPath := packFiles(t, map[string][]byte{
		"sound/weapons/hit.wav": wav,
		"scripts/sound.txt":     []byte("hit"),
	})

	camFile := camPath(archivePath(dirPath, DefaultArchiveIndex))
	cams, err := ReadCAM(camFile)
	if err != nil {
		t.Fatalf("read cam: %v", err)
	}
	if len(cams) != 1 {
		t.Fatalf("got %d cam records, want 1", len(cams))
	}
	if cams[0].SampleRate != 48000 || cams[0].Channels != 2 || cams[0].SampleCount != 1000 {
		t.Errorf("unexpected cam record: %+v", cams[0])
	}

	r := openTree(t, dirPath)
	e, _ := r.Entry("sound/weapons/hit.wav")
	if e.Parts[0].LoadFlags != LoadVisible|LoadCache {
		t.Errorf("load flags = %v, want VISIBLE|CACHE", DescribeLoadFlags(e.Parts[0].LoadFlags))
	}
	if e.Parts[0].Compressed() {
		t.Error("wav part was compressed")
	}
	if cams[0].ContentOffset != e.Parts[0].Offset {
		t.Errorf("cam offset = %d, want %d", cams[0].ContentOffset, e.Parts[0].Offset)
	}

	got, err := r.ReadFile("sound/weapons/hit.wav")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, wav) {
		t.Error("reconstructed wav differs from the original")
	}

	raw := openTree(t, dirPath, WithAudioReconstruction(false))
	stored, err := raw.ReadFile("sound/weapons/hit.wav")
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if !isStrippedWav(stored) {
		t.Error("stored wav still has its header")
	}
}

func TestPackStrippedWavIsStoredAsIs(t *testing.T) {
	stripped := stripWav(testWav(44100, 1, 100))
	res, err := func() (*WriteResult, error) {
		p := NewPacker()
		if err := p.AddBuffer(stripped, "sound/pre.wav"); err != nil {
			return nil, err
		}
		return p.Write(filepath.Join(t.TempDir(), testDirName))
	}()
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if res.CAMPath != "" {
		t.Errorf("wrote a cam sidecar for an already stripped wav: %s", res.CAMPath)
	}
}

func TestPackSortsByExtensionAndDirectory(t *testing.T) {
	p := NewPacker()
	for _, path := range []string{
		"scripts/b.txt",
		"models/a.mdl",
		"scripts/a.txt",
		"cfg/z.txt",
		"models/sub/c.mdl",
	} {
		if err := p.AddBuffer([]byte(path), path); err != nil {
			t.Fatal(err)
		}
	}
	dirPath := filepath.Join(t.TempDir(), testDirName)
	if _, err := p.Write(dirPath); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := openTree(t, dirPath)
	want := []string{
		"models/a.mdl",
		"models/sub/c.mdl",
		"cfg/z.txt",
		"scripts/b.txt",
		"scripts/a.txt",
	}
	if got := r.Files(); !slices.Equal(got, want) {
		t.Errorf("tree order = %q, want %q", got, want)
	}
}

func TestPackerRemoveAndReplace(t *testing.T) {
	p := NewPacker()
	p.AddBuffer([]byte("one"), "a/one.txt")
	p.AddBuffer([]byte("two"), "a/two.txt")
	p.AddBuffer([]byte("uno"), "a\\one.txt")

	if p.Len() != 2 {
		t.Fatalf("len = %d, want 2", p.Len())
	}
	if !p.Remove("a/two.txt") {
		t.Error("Remove reported a present path as missing")
	}
	if p.Remove("a/two.txt") {
		t.Error("Remove reported a removed path as present")
	}
	if !slices.Equal(p.Paths(), []string{"a/one.txt"}) {
		t.Errorf("paths = %q", p.Paths())
	}

	dirPath := filepath.Join(t.TempDir(), testDirName)
	if _, err := p.Write(dirPath); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := openTree(t, dirPath).ReadFile("a/one.txt")
	if err != nil || string(got) != "uno" {
		t.Errorf("read = %q, %v; want the replacement", got, err)
	}
}

func TestPackerAddFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	if err := os.WriteFile(src, []byte("shared source"), 0644); err != nil {
		t.Fatal(err)
	}

	p := NewPacker()
	if err := p.AddFileMultiple(src, "a/x.txt", "b/y.txt"); err != nil {
		t.Fatalf("add multiple: %v", err)
	}
	if p.Len() != 2 {
		t.Errorf("len = %d, want 2", p.Len())
	}

	err := p.AddFile(filepath.Join(dir, "missing.txt"), "a/z.txt")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("got %v, want fs.ErrNotExist", err)
	}
}

func TestPackerWriteRequiresDirName(t *testing.T) {
	p := NewPacker()
	p.AddBuffer([]byte("x"), "x.txt")
	_, err := p.Write(filepath.Join(t.TempDir(), "client.vpk"))
	if !errors.Is(err, ErrPrecondition) {
		t.Errorf("got %v, want ErrPrecondition", err)
	}
}

func TestPackWritesLanguageFreeArchiveName(t *testing.T) {
	dirPath := packFiles(t, map[string][]byte{"a.txt": []byte("a")})
	want := filepath.Join(filepath.Dir(dirPath), "client_mp_test.bsp.pak000_999.vpk")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("archive not written: %v", err)
	}
	if _, err := os.Stat(camPath(want)); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("cam sidecar written without audio: %v", err)
	}
}
