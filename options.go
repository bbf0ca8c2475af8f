// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import "log/slog"

type options struct {
	codec          Codec
	logger         *slog.Logger
	archiveIndex   uint16
	indexSet       bool
	patchAudio     bool
	verifyChecksum bool
	transcoder     Transcoder
}

func defaultOptions() options {
	return options{
		codec:          ZstdCodec{},
		logger:         slog.New(slog.DiscardHandler),
		archiveIndex:   DefaultArchiveIndex,
		patchAudio:     true,
		verifyChecksum: true,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a Reader, Packer, Patcher or Copier.
type Option func(*options)

// WithCodec sets the block compression codec. The default is zstd.
func WithCodec(c Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithLogger sets the logger. The default discards all records.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithArchiveIndex sets the archive number newly packed parts are written
// to. A Packer defaults to 999; a Patcher defaults to the first number its
// baseline leaves free (see Patcher.Write).
func WithArchiveIndex(index uint16) Option {
	return func(o *options) {
		o.archiveIndex = index
		o.indexSet = true
	}
}

// WithAudioReconstruction controls whether wav files are returned with a
// rebuilt header. It is on by default.
func WithAudioReconstruction(enabled bool) Option {
	return func(o *options) { o.patchAudio = enabled }
}

// WithChecksumVerification controls CRC-32 checks on non-audio reads. It is
// on by default.
func WithChecksumVerification(enabled bool) Option {
	return func(o *options) { o.verifyChecksum = enabled }
}

// WithTranscoder transcodes reconstructed wav files on read.
func WithTranscoder(t Transcoder) Option {
	return func(o *options) { o.transcoder = t }
}
