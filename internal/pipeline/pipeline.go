// Package pipeline runs the end-to-end transcription flow: ingest,
// normalize, chunk, transcribe with checkpointing, stitch, post-process.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/hbadr/go-scribe/internal/checkpoint"
	"github.com/hbadr/go-scribe/internal/chunk"
	"github.com/hbadr/go-scribe/internal/engine"
	"github.com/hbadr/go-scribe/internal/export"
	"github.com/hbadr/go-scribe/internal/ingest"
	"github.com/hbadr/go-scribe/internal/lang"
	"github.com/hbadr/go-scribe/internal/media"
	"github.com/hbadr/go-scribe/internal/post"
	"github.com/hbadr/go-scribe/internal/stitch"
	"github.com/hbadr/go-scribe/internal/transcribe"
)

// Ingestion modes for URL inputs.
const (
	// ModeAuto tries captions first and falls back to audio download.
	ModeAuto = "auto"

	// ModeCaptions uses existing captions only; no transcription.
	ModeCaptions = "captions"

	// ModeAudio always downloads and transcribes the audio track.
	ModeAudio = "audio"
)

// Transcript sources reported in Result.
const (
	SourceCaptions      = "captions"
	SourceTranscription = "transcription"
)

// Job describes one transcription run.
type Job struct {
	Input     string // local file path or http(s) URL
	OutputDir string
	WorkRoot  string // scratch root; empty means OutputDir/.scribe

	Language string // ISO 639-1 code or locale
	Model    string
	Prompt   string
	Format   string // an export format name
	Diarize  bool

	ChunkSeconds  float64
	MaxChunkBytes int64

	Glossary    post.Glossary
	LightFormat bool

	Mode     string // URL ingestion mode; empty means ModeAuto
	Resume   bool
	KeepTemp bool
	Parallel int
}

// Result is a finished run.
type Result struct {
	Document export.Document
	Source   string // SourceCaptions or SourceTranscription
	UsedAuto bool   // captions were auto-generated
	Resumed  bool   // progress was restored from a checkpoint
	Chunks   int
	WorkDir  string
}

// Pipeline wires the stages together.
type Pipeline struct {
	normalize normalizer
	cut       cutter
	client    transcribe.Transcriber
	fetch     fetcher
	progress  engine.ProgressFunc
	warn      io.Writer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFetcher enables URL ingestion.
func WithFetcher(f fetcher) Option {
	return func(p *Pipeline) { p.fetch = f }
}

// WithProgress sets the chunk progress callback.
func WithProgress(fn engine.ProgressFunc) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// WithWarnWriter sets the destination for degraded-mode warnings.
func WithWarnWriter(w io.Writer) Option {
	return func(p *Pipeline) { p.warn = w }
}

// New creates a Pipeline. The client may be nil for captions-only use.
func New(n normalizer, c cutter, client transcribe.Transcriber, opts ...Option) *Pipeline {
	p := &Pipeline{
		normalize: n,
		cut:       c,
		client:    client,
		warn:      io.Discard,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the job and returns the finished transcript.
func (p *Pipeline) Run(ctx context.Context, job Job) (Result, error) {
	applyDefaults(&job)

	if ingest.IsURL(job.Input) {
		return p.runURL(ctx, job)
	}

	if _, err := os.Stat(job.Input); err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrInputNotFound, job.Input)
	}
	return p.runLocal(ctx, job, job.Input)
}

func applyDefaults(job *Job) {
	if job.WorkRoot == "" {
		job.WorkRoot = filepath.Join(job.OutputDir, ".scribe")
	}
	if job.Format == "" {
		job.Format = export.FormatText
	}
	if job.ChunkSeconds <= 0 {
		job.ChunkSeconds = chunk.DefaultChunkSeconds
	}
	if job.MaxChunkBytes <= 0 || job.MaxChunkBytes > chunk.MaxUploadBytes {
		job.MaxChunkBytes = chunk.MaxUploadBytes
	}
	if job.Mode == "" {
		job.Mode = ModeAuto
	}
}

// runURL handles remote inputs: captions fast path, then audio.
func (p *Pipeline) runURL(ctx context.Context, job Job) (Result, error) {
	if p.fetch == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrNoDownloader, job.Input)
	}

	if job.Mode != ModeAudio {
		res, err := p.runCaptions(ctx, job)
		if err == nil {
			return res, nil
		}
		if job.Mode == ModeCaptions || !errors.Is(err, ingest.ErrCaptionsUnavailable) {
			return Result{}, err
		}
		fmt.Fprintf(p.warn, "Warning: %v, downloading audio instead\n", err)
	}

	stage := filepath.Join(job.WorkRoot, "download")
	local, err := p.fetch.FetchAudio(ctx, job.Input, stage)
	if err != nil {
		return Result{}, fmt.Errorf("download audio: %w", err)
	}
	return p.runLocal(ctx, job, local)
}

// runCaptions produces a transcript from existing captions, which costs
// no API calls and no audio download.
func (p *Pipeline) runCaptions(ctx context.Context, job Job) (Result, error) {
	destDir, err := os.MkdirTemp(ensureDir(job.WorkRoot), "captions-")
	if err != nil {
		return Result{}, fmt.Errorf("create captions dir: %w", err)
	}
	if !job.KeepTemp {
		defer func() { _ = os.RemoveAll(destDir) }()
	}

	fetched, err := p.fetch.FetchCaptions(ctx, job.Input, lang.BaseCode(job.Language), destDir)
	if err != nil {
		return Result{}, err
	}

	segments := make([]stitch.Segment, 0, len(fetched.Segments))
	var duration float64
	for _, seg := range fetched.Segments {
		segments = append(segments, stitch.Segment{Start: seg.Start, End: seg.End, Text: seg.Text})
		duration = math.Max(duration, seg.End)
	}

	text := post.Clean(fetched.Text, job.Glossary, lang.BaseCode(job.Language), job.LightFormat)
	return Result{
		Document: export.Document{
			Text:     text,
			Language: job.Language,
			Duration: duration,
			Segments: segments,
		},
		Source:   SourceCaptions,
		UsedAuto: fetched.UsedAuto,
		Chunks:   0,
		WorkDir:  destDir,
	}, nil
}

// runLocal transcribes a local file through the chunked API flow.
func (p *Pipeline) runLocal(ctx context.Context, job Job, input string) (Result, error) {
	fp, err := checkpoint.Fingerprint(input)
	if err != nil {
		return Result{}, fmt.Errorf("fingerprint input: %w", err)
	}

	workDir := filepath.Join(job.WorkRoot, "job_"+fp)
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		return Result{}, fmt.Errorf("create work dir: %w", err)
	}
	store := checkpoint.NewStore(filepath.Join(workDir, "checkpoint_"+fp+".json"))

	if !job.Resume {
		if err := store.Discard(); err != nil {
			return Result{}, err
		}
	}

	asset, err := p.normalize.Normalize(ctx, input, workDir)
	if err != nil {
		return Result{}, err
	}

	cp, resumed, err := p.loadOrPlan(ctx, job, input, asset, workDir, store)
	if err != nil {
		return Result{}, err
	}
	if err := store.Save(cp); err != nil {
		return Result{}, err
	}

	req := transcribe.Request{
		Model:    job.Model,
		Language: job.Language,
		Prompt:   job.Prompt,
		Shape:    shapeFor(job.Format),
		Diarize:  job.Diarize,
	}
	runner := engine.NewRunner(p.client, store, engine.WithParallel(job.Parallel), engine.WithProgress(p.progressFunc()))
	if err := runner.Run(ctx, cp, req); err != nil {
		return Result{}, err
	}

	stitched := stitch.Stitch(cp.Chunks, asset.Duration)
	if stitched.Text == "" {
		return Result{}, ErrEmptyTranscript
	}
	text := post.Clean(stitched.Text, job.Glossary, lang.BaseCode(job.Language), job.LightFormat)

	// A resume-enabled run keeps its checkpoint even after success, so
	// re-running the same command stays a cheap no-op.
	if !job.KeepTemp && !job.Resume {
		if err := os.RemoveAll(workDir); err != nil {
			fmt.Fprintf(p.warn, "Warning: could not remove work dir %s: %v\n", workDir, err)
		}
	}

	return Result{
		Document: export.Document{
			Text:     text,
			Language: job.Language,
			Duration: stitched.Duration,
			Segments: stitched.Segments,
		},
		Source:  SourceTranscription,
		Resumed: resumed,
		Chunks:  len(cp.Chunks),
		WorkDir: workDir,
	}, nil
}

func (p *Pipeline) progressFunc() engine.ProgressFunc {
	if p.progress == nil {
		return func(done, total int) {}
	}
	return p.progress
}

// shapeFor maps an output format to the API response shape it needs.
// Subtitle and JSON output need timed segments; plain text does not.
func shapeFor(formatName string) transcribe.Shape {
	if formatName == export.FormatText {
		return transcribe.ShapePlain
	}
	return transcribe.ShapeStructured
}

// loadOrPlan restores the stored checkpoint for a resumed run, or plans
// and cuts a fresh set of chunks. The stored plan is authoritative on
// resume: the planner is not re-run, so completed work survives even
// when chunking knobs changed between runs. A checkpoint that cannot be
// read, or that belongs to another input, is ignored with a warning and
// the run proceeds on a fresh plan.
func (p *Pipeline) loadOrPlan(ctx context.Context, job Job, input string, asset media.Asset, workDir string, store *checkpoint.Store) (*checkpoint.Checkpoint, bool, error) {
	if job.Resume && store.Exists() {
		previous, err := store.Load(input)
		if err != nil {
			fmt.Fprintf(p.warn, "Warning: ignoring checkpoint: %v\n", err)
		} else {
			if err := p.recutMissing(ctx, asset, previous); err != nil {
				return nil, false, err
			}
			return previous, true, nil
		}
	}

	plan := chunk.PlanChunks(asset.Path, asset.Duration, asset.Size, job.ChunkSeconds, job.MaxChunkBytes, workDir)
	plan, err := p.cut.Cut(ctx, asset.Path, asset.Duration, plan)
	if err != nil {
		return nil, false, err
	}
	return checkpoint.New(input, plan), false, nil
}

// recutMissing re-extracts pending chunks whose files were cleaned up
// since the checkpoint was written. Completed chunks carry their
// transcript in the checkpoint and need no file.
func (p *Pipeline) recutMissing(ctx context.Context, asset media.Asset, cp *checkpoint.Checkpoint) error {
	var missing chunk.Plan
	for _, c := range cp.Chunks {
		if c.Transcribed || c.Path == asset.Path {
			continue
		}
		if _, err := os.Stat(c.Path); err == nil {
			continue
		}
		missing = append(missing, chunk.Spec{Index: c.Index, Start: c.Start, Duration: c.Duration, Path: c.Path})
	}
	if len(missing) == 0 {
		return nil
	}

	recut, err := p.cut.Cut(ctx, asset.Path, asset.Duration, missing)
	if err != nil {
		return err
	}
	// The cutter's whole-file degradation only makes sense for a fresh
	// plan; a stored plan must come back intact.
	if len(recut) != len(missing) {
		return fmt.Errorf("chunk %d: %w", missing[0].Index, chunk.ErrCutFailed)
	}
	return nil
}

// ensureDir creates dir if needed and returns it, for use as a
// MkdirTemp parent.
func ensureDir(dir string) string {
	_ = os.MkdirAll(dir, 0o750)
	return dir
}
