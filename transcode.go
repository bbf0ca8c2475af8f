// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Transcoder converts a reconstructed wav into another audio container.
type Transcoder interface {
	Transcode(ctx context.Context, wav []byte, channels int) ([]byte, error)
}

// FFmpegTranscoder pipes audio through an ffmpeg process.
type FFmpegTranscoder struct {
	Path    string // executable, "ffmpeg" when empty
	Format  string // output container, "ogg" when empty
	Bitrate string // audio bitrate, "160k" when empty
}

func (t FFmpegTranscoder) Transcode(ctx context.Context, wav []byte, channels int) ([]byte, error) {
	bin := cmp.Or(t.Path, "ffmpeg")
	format := cmp.Or(t.Format, "ogg")
	bitrate := cmp.Or(t.Bitrate, "160k")
	if channels < 1 {
		channels = defaultChannels
	}

	cmd := exec.CommandContext(ctx, bin,
		"-hide_banner", "-loglevel", "error",
		"-f", "wav", "-i", "pipe:0",
		"-ac", strconv.Itoa(channels),
		"-b:a", bitrate,
		"-f", format, "pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(wav)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg %s: %w: %s", format, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, errors.New("ffmpeg produced no output")
	}
	return stdout.Bytes(), nil
}
