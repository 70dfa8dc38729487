// Package engine drives chunk transcription against the checkpoint,
// sequentially by default or with bounded parallelism.
package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hbadr/go-scribe/internal/checkpoint"
	"github.com/hbadr/go-scribe/internal/transcribe"
)

// MaxRecommendedParallel is the recommended upper limit for concurrent
// API requests. Higher values tend to trigger rate limiting.
const MaxRecommendedParallel = 10

// ProgressFunc is called after every durably completed chunk.
type ProgressFunc func(done, total int)

// Runner transcribes the pending chunks of a checkpoint.
//
// Every completed chunk is persisted through the store before the next
// chunk result is accepted, so a crash at any point loses at most the
// chunk in flight.
type Runner struct {
	client   transcribe.Transcriber
	store    *checkpoint.Store
	parallel int
	progress ProgressFunc
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithParallel sets the number of concurrent chunk uploads.
// Values below 1 mean sequential processing.
func WithParallel(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 1 {
			r.parallel = n
		}
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) RunnerOption {
	return func(r *Runner) { r.progress = fn }
}

// NewRunner creates a Runner.
func NewRunner(client transcribe.Transcriber, store *checkpoint.Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		client:   client,
		store:    store,
		parallel: 1,
		progress: func(done, total int) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run transcribes every pending chunk in cp using the given request
// template. Already completed chunks are skipped, which is what makes
// resumed runs cheap. On failure the checkpoint keeps all progress
// recorded so far and the error names the failing chunk.
func (r *Runner) Run(ctx context.Context, cp *checkpoint.Checkpoint, req transcribe.Request) error {
	pending := cp.Pending()
	total := len(cp.Chunks)
	r.progress(cp.Completed(), total)

	if len(pending) == 0 {
		return nil
	}

	if r.parallel <= 1 {
		return r.runSequential(ctx, cp, pending, req, total)
	}
	return r.runParallel(ctx, cp, pending, req, total)
}

func (r *Runner) runSequential(ctx context.Context, cp *checkpoint.Checkpoint, pending []checkpoint.Chunk, req transcribe.Request, total int) error {
	for _, c := range pending {
		resp, err := r.client.Transcribe(ctx, c.Path, req)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", c.Index, err)
		}

		if err := r.store.MarkComplete(cp, c.Index, resp.Text, toMetadata(resp)); err != nil {
			return fmt.Errorf("record chunk %d: %w", c.Index, err)
		}
		r.progress(cp.Completed(), total)
	}
	return nil
}

func (r *Runner) runParallel(ctx context.Context, cp *checkpoint.Checkpoint, pending []checkpoint.Chunk, req transcribe.Request, total int) error {
	// MarkComplete mutates shared checkpoint state and rewrites the
	// file, so completions are serialized even though uploads are not.
	var mu sync.Mutex

	sem := make(chan struct{}, r.parallel)
	g, ctx := errgroup.WithContext(ctx)

	for _, c := range pending {
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() { <-sem }()

			resp, err := r.client.Transcribe(ctx, c.Path, req)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", c.Index, err)
			}

			mu.Lock()
			defer mu.Unlock()
			if err := r.store.MarkComplete(cp, c.Index, resp.Text, toMetadata(resp)); err != nil {
				return fmt.Errorf("record chunk %d: %w", c.Index, err)
			}
			r.progress(cp.Completed(), total)
			return nil
		})
	}

	return g.Wait()
}

// toMetadata converts an API response into checkpoint metadata.
func toMetadata(resp transcribe.Response) *checkpoint.Metadata {
	meta := &checkpoint.Metadata{Raw: resp.Raw}
	for _, seg := range resp.Segments {
		meta.Segments = append(meta.Segments, checkpoint.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}
	return meta
}
