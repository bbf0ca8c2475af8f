// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

/*
Package vpk provides pure Go support for reading, packing and patching VPK
containers (format version 196610) as used by Titanfall and related Source
engine titles.

A container is a directory file ("..._dir.vpk") holding a 16-byte header
and a tree of extension, directory and file name groups, plus numbered
archive files ("..._000.vpk", "..._999.vpk") holding the file payloads.
Wav files are stored without their header; a ".cam" sidecar next to each
archive keeps the audio metadata needed to rebuild it, and the
"sound/wav.acache" asset indexes every audio file of the container.

# Features

  - Read files with CRC-32 verification and wav header reconstruction
  - Pack new containers with part splitting, compression and deduplication
  - Patch existing containers without rewriting their archives
  - Extract many files concurrently with a pool of workers
  - Pluggable block codecs (zstd, LZ4 or none)

# Basic Usage

Packing a container:

	p := vpk.NewPacker()
	if err := p.AddFile("local/base.txt", "scripts/base.txt"); err != nil {
		log.Fatal(err)
	}
	if _, err := p.Write("out/englishclient_mp_common.bsp.pak000_dir.vpk"); err != nil {
		log.Fatal(err)
	}

Reading a container:

	r, err := vpk.Open("englishclient_mp_common.bsp.pak000_dir.vpk")
	if err != nil {
		log.Fatal(err)
	}
	defer r.Close()

	if err := r.ReadTree(); err != nil {
		log.Fatal(err)
	}
	data, err := r.ReadFile("scripts/base.txt")

Patching a container:

	p, err := vpk.NewPatcher("englishclient_mp_common.bsp.pak000_dir.vpk")
	if err != nil {
		log.Fatal(err)
	}
	defer p.Close()

	p.AddFile("local/hit.wav", "sound/weapons/hit.wav")
	p.Remove("scripts/old.txt")
	_, err = p.Write("englishclient_mp_common.bsp.pak000_dir.vpk")

# Path Conventions

Logical paths use forward slashes. Backslashes are converted and leading
slashes dropped, so "scripts\\base.txt" and "/scripts/base.txt" name the
same file.

# Archive Names

Archive names are derived from the directory file name by removing the
language token and replacing "_dir" with the zero-padded archive index:
"englishclient_mp_common.bsp.pak000_dir.vpk" stores archive 999 as
"client_mp_common.bsp.pak000_999.vpk".

# Limitations

  - No LZHAM codec; containers shipped by the game need a Codec that
    implements it (see [WithCodec])
  - Texture flags are read and written but never derived
  - Everything packed in one write goes to a single archive
*/
package vpk
