// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package vpk

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync/atomic"
)

// ErrCopierClosed is returned by Copy after Close.
var ErrCopierClosed = errors.New("copier closed")

// Progress is reported each time a path is handed to a worker.
type Progress struct {
	Worker  int
	Path    string
	Current int // paths dispatched so far, including this one
	Total   int
}

type copyTask struct {
	ctx  context.Context
	path string
	dest string
}

type copyResult struct {
	worker int
	task   copyTask
	err    error
}

type copyWorker struct {
	id     int
	reader *Reader
	tasks  chan copyTask
}

// Copier extracts files from a container with a fixed pool of workers.
// Each worker owns its own Reader. Workers are handed the next queued path
// as soon as they finish the previous one.
type Copier struct {
	opts       options
	workers    []*copyWorker
	results    chan copyResult
	ctx        context.Context
	cancel     context.CancelFunc
	running    atomic.Bool
	onProgress func(Progress)
}

// NewCopier starts workers goroutines, each with a Reader opened on
// dirPath. A count below one uses GOMAXPROCS.
func NewCopier(dirPath string, workers int, opts ...Option) (*Copier, error) {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Copier{
		opts:    buildOptions(opts),
		results: make(chan copyResult, workers),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := range workers {
		r, err := Open(dirPath, opts...)
		if err == nil {
			if err = r.ReadTree(); err != nil {
				r.Close()
			}
		}
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("start worker %d: %w", i, err)
		}
		w := &copyWorker{id: i, reader: r, tasks: make(chan copyTask, 1)}
		c.workers = append(c.workers, w)
		go w.run(c.ctx.Done(), c.results)
	}
	c.opts.logger.Debug("started copier", "path", dirPath, "workers", workers)
	return c, nil
}

func (w *copyWorker) run(done <-chan struct{}, results chan<- copyResult) {
	defer w.reader.Close()
	for {
		select {
		case <-done:
			return
		case t := <-w.tasks:
			results <- copyResult{worker: w.id, task: t, err: w.reader.ExtractFileContext(t.ctx, t.path, t.dest)}
		}
	}
}

// Workers returns the pool size.
func (c *Copier) Workers() int { return len(c.workers) }

// OnProgress registers fn to be called on every dispatch. fn runs on the
// goroutine that called Copy.
func (c *Copier) OnProgress(fn func(Progress)) { c.onProgress = fn }

// Copy extracts every logical path to the same relative location under
// outDir and returns once all dispatched copies finished. Failed copies do
// not stop the batch; they are returned joined as *CopyError values. When
// ctx is cancelled no further paths are dispatched and transcodes in flight
// are interrupted.
func (c *Copier) Copy(ctx context.Context, paths []string, outDir string) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: copy already in progress", ErrPrecondition)
	}
	defer c.running.Store(false)

	if c.ctx.Err() != nil {
		return ErrCopierClosed
	}
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	var errs []error
	tasks := make([]copyTask, 0, len(paths))
	for _, p := range paths {
		dest, err := destPath(outDir, p)
		if err != nil {
			errs = append(errs, &CopyError{Worker: -1, Path: p, Err: err})
			continue
		}
		tasks = append(tasks, copyTask{ctx: taskCtx, path: p, dest: dest})
	}

	var next, inflight int
	dispatch := func(w *copyWorker) {
		if next >= len(tasks) || ctx.Err() != nil || c.ctx.Err() != nil {
			return
		}
		t := tasks[next]
		next++
		inflight++
		w.tasks <- t
		c.opts.logger.Debug("dispatched copy", "worker", w.id, "path", t.path, "current", next, "total", len(tasks))
		if c.onProgress != nil {
			c.onProgress(Progress{Worker: w.id, Path: t.path, Current: next, Total: len(tasks)})
		}
	}

	for _, w := range c.workers {
		dispatch(w)
	}
	for inflight > 0 {
		select {
		case res := <-c.results:
			inflight--
			if res.err != nil {
				c.opts.logger.Warn("copy failed", "worker", res.worker, "path", res.task.path, "error", res.err)
				errs = append(errs, &CopyError{Worker: res.worker, Path: res.task.path, Err: res.err})
			}
			dispatch(c.workers[res.worker])
		case <-c.ctx.Done():
			return errors.Join(append(errs, ErrCopierClosed)...)
		}
	}

	if c.ctx.Err() != nil {
		errs = append(errs, ErrCopierClosed)
	}
	if err := ctx.Err(); err != nil && next < len(tasks) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// destPath maps a logical path under outDir, rejecting paths that would
// land outside it.
func destPath(outDir, path string) (string, error) {
	rel := filepath.FromSlash(normalizePath(path))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("path %q escapes the output directory", path)
	}
	return filepath.Join(outDir, rel), nil
}

// Close stops every worker and interrupts transcodes in flight. Copies in
// flight are abandoned and their destination files may be partial.
func (c *Copier) Close() error {
	c.cancel()
	return nil
}
