// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"bytes"
	"encoding/binary"
)

const (
	wavHeaderSize = 44

	// wavPadByte fills the stripped header of a packed wav.
	wavPadByte = 0xCB

	// wavTrailPadByte pads the tail of a packed wav payload.
	wavTrailPadByte = 0xBC

	defaultSampleRate  = 44100
	defaultChannels    = 1
	reconstructedDepth = 16
)

// audioCapture is the metadata taken from a wav header before stripping.
type audioCapture struct {
	OriginalSize uint32
	SampleRate   uint32
	Channels     uint16
	SampleDepth  uint16
	SampleCount  uint32
	HeaderSize   uint32
}

func (c audioCapture) camEntry(contentOffset uint64) CAMEntry {
	return CAMEntry{
		Magic:          camMagic,
		OriginalSize:   c.OriginalSize,
		CompressedSize: c.OriginalSize,
		SampleRate:     c.SampleRate,
		Channels:       uint8(c.Channels),
		SampleCount:    c.SampleCount,
		HeaderSize:     c.HeaderSize,
		ContentOffset:  contentOffset,
	}
}

// isStrippedWav reports whether the header has already been replaced by pad
// bytes.
func isStrippedWav(data []byte) bool {
	return len(data) >= 4 && binary.LittleEndian.Uint32(data) == 0xCBCBCBCB
}

// captureWav reads the canonical header fields. ok is false when data is too
// short to hold a header.
func captureWav(data []byte) (c audioCapture, ok bool) {
	if len(data) < wavHeaderSize {
		return c, false
	}
	dataLength := binary.LittleEndian.Uint32(data[40:])
	blockAlign := binary.LittleEndian.Uint16(data[32:])
	c = audioCapture{
		OriginalSize: uint32(len(data)),
		SampleRate:   binary.LittleEndian.Uint32(data[24:]),
		Channels:     binary.LittleEndian.Uint16(data[22:]),
		SampleDepth:  binary.LittleEndian.Uint16(data[34:]),
		HeaderSize:   wavHeaderSize,
	}
	if blockAlign != 0 {
		c.SampleCount = dataLength / uint32(blockAlign)
	}
	return c, true
}

// stripWav returns a copy of data with the header overwritten by pad bytes
// and both checksum words zeroed.
func stripWav(data []byte) []byte {
	out := bytes.Clone(data)
	n := min(wavHeaderSize, len(out))
	for i := range n {
		out[i] = wavPadByte
	}
	if n >= 12 {
		binary.LittleEndian.PutUint32(out[4:], 0)
		binary.LittleEndian.PutUint32(out[8:], 0)
	}
	return out
}

// padWindow scans past the leading header pad and the trailing pad and
// returns the half-open window they enclose.
func padWindow(data []byte) (start, end int) {
	start = min(12, len(data))
	for start < len(data) && data[start] == wavPadByte {
		start++
	}
	end = len(data)
	for end > start && data[end-1] == wavTrailPadByte {
		end--
	}
	return start, end
}

// camWindow returns the payload window described by a CAM record, assuming
// 16-bit samples, clamped to data.
func camWindow(data []byte, cam CAMEntry) (start, end int) {
	start = min(int(cam.HeaderSize), len(data))
	end = start + 2*int(cam.SampleCount)*int(cam.Channels)
	end = min(end, len(data))
	return start, end
}

// wavHeader synthesizes a canonical 16-bit PCM header for dataLength bytes.
func wavHeader(sampleRate uint32, channels uint16, dataLength uint32) []byte {
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}
	if channels == 0 {
		channels = defaultChannels
	}
	blockAlign := uint16((reconstructedDepth+7)/8) * channels

	h := make([]byte, 0, wavHeaderSize)
	h = append(h, "RIFF"...)
	h = binary.LittleEndian.AppendUint32(h, dataLength+wavHeaderSize-8)
	h = append(h, "WAVE"...)
	h = append(h, "fmt "...)
	h = binary.LittleEndian.AppendUint32(h, 16)
	h = binary.LittleEndian.AppendUint16(h, 1) // PCM
	h = binary.LittleEndian.AppendUint16(h, channels)
	h = binary.LittleEndian.AppendUint32(h, sampleRate)
	h = binary.LittleEndian.AppendUint32(h, sampleRate*uint32(blockAlign))
	h = binary.LittleEndian.AppendUint16(h, blockAlign)
	h = binary.LittleEndian.AppendUint16(h, reconstructedDepth)
	h = append(h, "data"...)
	h = binary.LittleEndian.AppendUint32(h, dataLength)
	return h
}

// rebuildWav slices the payload window given by cam out of a stored wav and
// prepends a fresh header.
func rebuildWav(stored []byte, cam CAMEntry) []byte {
	start, end := camWindow(stored, cam)
	payload := stored[start:end]
	out := wavHeader(cam.SampleRate, uint16(cam.Channels), uint32(len(payload)))
	return append(out, payload...)
}
