// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import "fmt"

// LoadFlags are the per-part load bits.
type LoadFlags uint32

const (
	LoadNone          LoadFlags = 0
	LoadVisible       LoadFlags = 1 << 0  // filesystem visibility
	LoadCache         LoadFlags = 1 << 8  // set for assets outside the depot directory
	LoadAcache        LoadFlags = 1 << 10 // set on the audio cache index
	LoadTextureUnk0   LoadFlags = 1 << 18
	LoadTextureUnk1   LoadFlags = 1 << 19
	LoadTextureUnk2   LoadFlags = 1 << 20
	loadFlagsAudio              = LoadVisible | LoadCache
	loadFlagsAcache             = LoadVisible | LoadCache | LoadAcache
	loadFlagsDefault            = LoadVisible
)

// TextureFlags are only meaningful on vtf textures.
type TextureFlags uint16

const (
	TextureNone           TextureFlags = 0
	TextureDefault        TextureFlags = 1 << 3
	TextureEnvironmentMap TextureFlags = 1 << 10
)

// FilePart locates one contiguous, possibly compressed, slice of a file.
type FilePart struct {
	ArchiveIndex       uint16
	LoadFlags          LoadFlags
	TextureFlags       TextureFlags
	Offset             uint64
	CompressedLength   uint64
	UncompressedLength uint64
}

// Compressed reports whether the stored bytes need decompression.
func (p FilePart) Compressed() bool {
	return p.CompressedLength != p.UncompressedLength
}

// readFilePart reads one part record. ok is false when the terminator was
// read, in which case the remaining fields are left unread.
func readFilePart(r *binReader) (part FilePart, ok bool) {
	part.ArchiveIndex = r.Uint16()
	if r.Err() != nil || part.ArchiveIndex == ArchiveIndexTerminator {
		return FilePart{}, false
	}
	part.LoadFlags = LoadFlags(r.Uint32())
	part.TextureFlags = TextureFlags(r.Uint16())
	part.Offset = r.Uint64()
	part.CompressedLength = r.Uint64()
	part.UncompressedLength = r.Uint64()
	return part, r.Err() == nil
}

func (p FilePart) appendTo(w *binWriter) {
	w.PutUint16(p.ArchiveIndex)
	w.PutUint32(uint32(p.LoadFlags))
	w.PutUint16(uint16(p.TextureFlags))
	w.PutUint64(p.Offset)
	w.PutUint64(p.CompressedLength)
	w.PutUint64(p.UncompressedLength)
}

// loadFlagsFor picks the load flags the game expects for an extension.
func loadFlagsFor(ext string) LoadFlags {
	switch ext {
	case "wav":
		return loadFlagsAudio
	case "acache":
		return loadFlagsAcache
	default:
		return loadFlagsDefault
	}
}

// Names for flag 1<<index.
var (
	loadFlagNames = [32]string{
		0:  "VISIBLE",
		8:  "CACHE",
		10: "ACACHE_UNK0",
		18: "TEXTURE_UNK0",
		19: "TEXTURE_UNK1",
		20: "TEXTURE_UNK2",
	}
	textureFlagNames = [16]string{
		3:  "DEFAULT",
		10: "ENVIRONMENT_MAP",
	}
)

// DescribeLoadFlags returns a human-readable description of each set bit.
func DescribeLoadFlags(flags LoadFlags) (s []string) {
	for i, name := range loadFlagNames {
		if flags&(LoadFlags(1)<<i) != 0 {
			s = append(s, describeBit(i, name))
		}
	}
	return
}

// DescribeTextureFlags returns a human-readable description of each set bit.
func DescribeTextureFlags(flags TextureFlags) (s []string) {
	for i, name := range textureFlagNames {
		if flags&(TextureFlags(1)<<i) != 0 {
			s = append(s, describeBit(i, name))
		}
	}
	return
}

func describeBit(i int, name string) string {
	if name == "" {
		return fmt.Sprintf("%02d", i)
	}
	return fmt.Sprintf("%02d:%s", i, name)
}
