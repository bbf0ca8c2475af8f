// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var (
	// ErrIncompressible is returned by Codec.Compress when the output would
	// not be smaller than the input. The part is then stored raw.
	ErrIncompressible = errors.New("data is incompressible")

	// ErrUnknownCodec is returned by ParseCodec for unrecognized names.
	ErrUnknownCodec = errors.New("unknown codec")
)

// Codec is the block compression collaborator. Decompress must return
// exactly size bytes.
type Codec interface {
	Name() string
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte, size int) ([]byte, error)
}

// ParseCodec returns the codec registered under name.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "zstd", "":
		return ZstdCodec{}, nil
	case "lz4":
		return LZ4Codec{}, nil
	case "none":
		return StoreCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// ZstdCodec compresses parts with zstd at the default level.
type ZstdCodec struct{}

// zstd encoders and decoders are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("vpk: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("vpk: zstd decoder initialization failed: " + err.Error())
	}
}

func (ZstdCodec) Name() string { return "zstd" }

func (ZstdCodec) Compress(src []byte) ([]byte, error) {
	out := zstdEncoder.EncodeAll(src, nil)
	if len(out) >= len(src) {
		return nil, ErrIncompressible
	}
	return out, nil
}

func (ZstdCodec) Decompress(src []byte, size int) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(src, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(out) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
	}
	return out, nil
}

// LZ4Codec compresses parts with LZ4 in block mode.
type LZ4Codec struct{}

func (LZ4Codec) Name() string { return "lz4" }

func (LZ4Codec) Compress(src []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if n == 0 || n >= len(src) {
		return nil, ErrIncompressible
	}
	return dst[:n], nil
}

func (LZ4Codec) Decompress(src []byte, size int) ([]byte, error) {
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if n != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
	}
	return dst, nil
}

// StoreCodec never compresses. It cannot read compressed parts.
type StoreCodec struct{}

func (StoreCodec) Name() string { return "none" }

func (StoreCodec) Compress([]byte) ([]byte, error) { return nil, ErrIncompressible }

func (StoreCodec) Decompress(src []byte, size int) ([]byte, error) {
	return nil, fmt.Errorf("part of %d bytes is compressed to %d bytes but no codec is configured", size, len(src))
}

// compressionExcluded lists extensions stored raw because the engine streams
// them with their own framing.
var compressionExcluded = map[string]bool{
	"wav": true,
	"vtf": true,
}

// shouldCompress reports whether a part of n bytes with extension ext is a
// compression candidate.
func shouldCompress(ext string, n int) bool {
	return n >= compressionThreshold && !compressionExcluded[ext]
}
