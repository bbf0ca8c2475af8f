// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// vpk inspects, extracts, packs and patches VPK containers.
//
// Usage:
//
//	vpk info    [flags] <dir.vpk>
//	vpk list    [flags] <dir.vpk>
//	vpk extract [flags] <dir.vpk> <outdir> [path...]
//	vpk pack    [flags] <srcdir> <dir.vpk>
//	vpk patch   [flags] <dir.vpk> <srcdir>
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	vpk "github.com/suprsokr/go-vpk"
	"github.com/suprsokr/go-vpk/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type command struct {
	name  string
	usage string
	nargs func(n int) bool
	run   func(env *environment, args []string) error
}

var commands = []command{
	{"info", "<dir.vpk>", exactly(1), runInfo},
	{"list", "<dir.vpk>", exactly(1), runList},
	{"extract", "<dir.vpk> <outdir> [path...]", atLeast(2), runExtract},
	{"pack", "<srcdir> <dir.vpk>", exactly(2), runPack},
	{"patch", "<dir.vpk> <srcdir>", exactly(2), runPatch},
}

func exactly(n int) func(int) bool { return func(got int) bool { return got == n } }
func atLeast(n int) func(int) bool { return func(got int) bool { return got >= n } }

// environment carries what every subcommand needs after flag parsing.
type environment struct {
	cfg    *config.Config
	logger *slog.Logger

	long    bool
	output  string
	removes []string
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage()
		return nil
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	env := &environment{}
	var configPath, logLevel, codec string
	var workers, archiveIndex int
	var noAudio, noVerify, transcode bool

	flagSet := pflag.NewFlagSet("vpk "+cmd.name, pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $"+config.EnvVar+")")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	flagSet.StringVar(&codec, "codec", "", "block codec: zstd, lz4 or none")
	flagSet.IntVarP(&workers, "workers", "j", 0, "extraction workers")
	flagSet.IntVar(&archiveIndex, "archive-index", config.AutoArchiveIndex, "archive index new parts are written to (default: 999 for pack, first free for patch)")
	flagSet.BoolVar(&noAudio, "raw-audio", false, "extract wav files without rebuilding their headers")
	flagSet.BoolVar(&noVerify, "no-verify", false, "skip CRC-32 verification")
	flagSet.BoolVar(&transcode, "transcode", false, "transcode extracted wav files with ffmpeg")
	flagSet.BoolVarP(&env.long, "long", "l", false, "list sizes, parts and checksums")
	flagSet.StringVarP(&env.output, "output", "o", "", "patch output directory file (default: patch in place)")
	flagSet.StringArrayVar(&env.removes, "remove", nil, "logical path to remove when patching (repeatable)")
	flagSet.SetInterspersed(true)

	if err := flagSet.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if !cmd.nargs(flagSet.NArg()) {
		return fmt.Errorf("usage: vpk %s [flags] %s", cmd.name, cmd.usage)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flagSet.Changed("codec") {
		cfg.Codec = codec
	}
	if flagSet.Changed("workers") {
		cfg.Workers = workers
	}
	if flagSet.Changed("archive-index") {
		cfg.ArchiveIndex = archiveIndex
	}
	if noAudio {
		cfg.PatchAudio = false
	}
	if noVerify {
		cfg.VerifyChecksums = false
	}
	if transcode {
		cfg.Transcode.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := cfg.Level()
	env.cfg = cfg
	env.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	return cmd.run(env, flagSet.Args())
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "vpk inspects, extracts, packs and patches VPK containers.")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Usage:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  vpk %-8s [flags] %s\n", c.name, c.usage)
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Run 'vpk <command> --help' for the flags.")
}

// options converts the configuration into library options.
func (env *environment) options() ([]vpk.Option, error) {
	codec, err := vpk.ParseCodec(env.cfg.Codec)
	if err != nil {
		return nil, err
	}
	opts := []vpk.Option{
		vpk.WithCodec(codec),
		vpk.WithLogger(env.logger),
		vpk.WithAudioReconstruction(env.cfg.PatchAudio),
		vpk.WithChecksumVerification(env.cfg.VerifyChecksums),
	}
	if env.cfg.ArchiveIndex != config.AutoArchiveIndex {
		opts = append(opts, vpk.WithArchiveIndex(uint16(env.cfg.ArchiveIndex)))
	}
	if t := env.cfg.Transcode; t.Enabled {
		opts = append(opts, vpk.WithTranscoder(vpk.FFmpegTranscoder{
			Path:    t.FFmpeg,
			Format:  t.Format,
			Bitrate: t.Bitrate,
		}))
	}
	return opts, nil
}

func (env *environment) openReader(path string) (*vpk.Reader, error) {
	opts, err := env.options()
	if err != nil {
		return nil, err
	}
	r, err := vpk.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	if err := r.ReadTree(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

func runInfo(env *environment, args []string) error {
	opts, err := env.options()
	if err != nil {
		return err
	}
	r, err := vpk.Open(args[0], opts...)
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	fmt.Printf("Path:        %s\n", r.Path())
	fmt.Printf("Signature:   0x%08X\n", h.Signature)
	fmt.Printf("Version:     %d\n", h.Version)
	fmt.Printf("Tree length: %s\n", humanize.Bytes(uint64(h.TreeLength)))
	fmt.Printf("Valid:       %t\n", r.Valid())
	for _, p := range r.Problems() {
		fmt.Printf("  problem: %s\n", p)
	}
	if !r.Valid() {
		return nil
	}

	if err := r.ReadTree(); err != nil {
		return err
	}
	var size, stored uint64
	archives := make(map[uint16]int)
	for _, e := range r.Tree().Entries() {
		size += e.Size()
		stored += uint64(len(e.Preload))
		for _, p := range e.Parts {
			stored += p.CompressedLength
			archives[p.ArchiveIndex]++
		}
	}
	fmt.Printf("Files:       %s\n", humanize.Comma(int64(r.Tree().Len())))
	fmt.Printf("Extensions:  %d\n", len(r.Tree().Groups()))
	fmt.Printf("Size:        %s (%s stored)\n", humanize.Bytes(size), humanize.Bytes(stored))
	fmt.Printf("Archives:    %d\n", len(archives))
	return nil
}

func runList(env *environment, args []string) error {
	r, err := env.openReader(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	for _, e := range r.Tree().Entries() {
		if !env.long {
			fmt.Println(e.Path)
			continue
		}
		var flags []string
		if len(e.Parts) > 0 {
			flags = vpk.DescribeLoadFlags(e.Parts[0].LoadFlags)
		}
		fmt.Printf("%10s  %08x  %2d  %-24s  %s\n",
			humanize.Bytes(e.Size()), e.CRC, len(e.Parts), strings.Join(flags, "|"), e.Path)
	}
	return nil
}

func runExtract(env *environment, args []string) error {
	dirPath, outDir, paths := args[0], args[1], args[2:]

	if len(paths) == 0 {
		r, err := env.openReader(dirPath)
		if err != nil {
			return err
		}
		paths = r.Files()
		r.Close()
	}

	opts, err := env.options()
	if err != nil {
		return err
	}
	copier, err := vpk.NewCopier(dirPath, env.cfg.Workers, opts...)
	if err != nil {
		return err
	}
	defer copier.Close()

	copier.OnProgress(func(p vpk.Progress) {
		fmt.Fprintf(os.Stderr, "[%d] %d/%d %s\n", p.Worker, p.Current, p.Total, p.Path)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := copier.Copy(ctx, paths, outDir); err != nil {
		return err
	}
	fmt.Printf("extracted %s files to %s\n", humanize.Comma(int64(len(paths))), outDir)
	return nil
}

// addTree adds every regular file under srcDir, keyed by its slash
// separated path relative to srcDir.
func addTree(srcDir string, add func(src, path string) error) (int, error) {
	var n int
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		n++
		return add(path, filepath.ToSlash(rel))
	})
	return n, err
}

func runPack(env *environment, args []string) error {
	srcDir, dirPath := args[0], args[1]

	opts, err := env.options()
	if err != nil {
		return err
	}
	p := vpk.NewPacker(opts...)
	n, err := addTree(srcDir, p.AddFile)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no files under %s", srcDir)
	}

	res, err := p.Write(dirPath)
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

func runPatch(env *environment, args []string) error {
	dirPath, srcDir := args[0], args[1]

	opts, err := env.options()
	if err != nil {
		return err
	}
	p, err := vpk.NewPatcher(dirPath, opts...)
	if err != nil {
		return err
	}
	defer p.Close()

	if _, err := addTree(srcDir, p.AddFile); err != nil {
		return err
	}
	for _, path := range env.removes {
		if !p.Remove(path) {
			env.logger.Warn("nothing to remove", "path", path)
		}
	}

	out := env.output
	if out == "" {
		out = dirPath
	}
	res, err := p.Write(out)
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

func printResult(res *vpk.WriteResult) {
	fmt.Printf("wrote %s (%s files)\n", res.DirPath, humanize.Comma(int64(res.Files)))
	fmt.Printf("      %s (%s, %d deduplicated parts)\n", res.ArchivePath, humanize.Bytes(uint64(res.ArchiveSize)), res.DedupHits)
	if res.CAMPath != "" {
		fmt.Printf("      %s\n", res.CAMPath)
	}
}
