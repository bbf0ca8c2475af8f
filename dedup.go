// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"bytes"

	"github.com/zeebo/blake3"
)

// partHash is a keyed BLAKE3 digest of stored part bytes.
type partHash [32]byte

// partDomainKey separates part digests from any other use of BLAKE3. It is
// the ASCII domain name zero-padded to 32 bytes.
var partDomainKey = [32]byte{
	'g', 'o', '-', 'v', 'p', 'k', '.', 'p', 'a', 'r', 't',
}

func hashPart(data []byte) partHash {
	h, err := blake3.NewKeyed(partDomainKey[:])
	if err != nil {
		// Only fails on a key that is not 32 bytes.
		panic("vpk: blake3 keyed hash: " + err.Error())
	}
	h.Write(data)
	var sum partHash
	copy(sum[:], h.Sum(nil))
	return sum
}

// placement is where a part's stored bytes live.
type placement struct {
	archiveIndex uint16
	offset       uint64
	data         []byte
}

// dedupTable maps stored part bytes to the place they were first written.
type dedupTable struct {
	placed map[partHash][]placement
	hits   int
}

func newDedupTable() *dedupTable {
	return &dedupTable{placed: make(map[partHash][]placement)}
}

// lookup returns the placement of identical bytes written earlier.
func (d *dedupTable) lookup(data []byte) (placement, bool) {
	for _, p := range d.placed[hashPart(data)] {
		if bytes.Equal(p.data, data) {
			d.hits++
			return p, true
		}
	}
	return placement{}, false
}

func (d *dedupTable) record(data []byte, archiveIndex uint16, offset uint64) {
	h := hashPart(data)
	d.placed[h] = append(d.placed[h], placement{archiveIndex: archiveIndex, offset: offset, data: data})
}
