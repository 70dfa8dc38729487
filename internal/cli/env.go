package cli

import (
	"context"
	"io"
	"os"

	"github.com/hbadr/go-scribe/internal/chunk"
	"github.com/hbadr/go-scribe/internal/config"
	"github.com/hbadr/go-scribe/internal/engine"
	"github.com/hbadr/go-scribe/internal/ingest"
	"github.com/hbadr/go-scribe/internal/media"
	"github.com/hbadr/go-scribe/internal/pipeline"
	"github.com/hbadr/go-scribe/internal/transcribe"
)

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing commands in isolation.
//
// All fields have production defaults via DefaultEnv(). Tests override
// specific fields using the With* options.
type Env struct {
	// I/O and environment
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string

	// Factories for domain objects
	ToolchainResolver  ToolchainResolver
	ConfigLoader       ConfigLoader
	TranscriberFactory TranscriberFactory
	DownloaderFactory  DownloaderFactory
	PipelineFactory    PipelineFactory
}

// ToolchainResolver locates the ffmpeg and ffprobe binaries.
type ToolchainResolver interface {
	Resolve(ctx context.Context) (media.Tools, error)
	CheckVersion(ctx context.Context, ffmpegPath string)
}

// ConfigLoader loads persistent user configuration.
type ConfigLoader interface {
	Load() (config.Config, error)
}

// TranscriberFactory creates API clients from resolved settings.
type TranscriberFactory interface {
	NewTranscriber(s config.Settings) transcribe.Transcriber
}

// Fetcher downloads remote captions and audio.
type Fetcher interface {
	FetchCaptions(ctx context.Context, url, language, destDir string) (ingest.CaptionsResult, error)
	FetchAudio(ctx context.Context, url, destDir string) (string, error)
}

// DownloaderFactory creates a Fetcher, locating yt-dlp first.
type DownloaderFactory interface {
	NewFetcher() (Fetcher, error)
}

// Runner executes a transcription job end to end.
type Runner interface {
	Run(ctx context.Context, job pipeline.Job) (pipeline.Result, error)
}

// PipelineFactory assembles a Runner from resolved tools and clients.
// fetch may be nil when URL ingestion is not needed.
type PipelineFactory interface {
	NewPipeline(tools media.Tools, client transcribe.Transcriber, fetch Fetcher,
		maxChunkBytes int64, progress engine.ProgressFunc, warn io.Writer) Runner
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStdout sets the stdout writer.
func WithStdout(w io.Writer) EnvOption {
	return func(e *Env) { e.Stdout = w }
}

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) { e.Stderr = w }
}

// WithGetenv sets the environment variable getter.
func WithGetenv(fn func(string) string) EnvOption {
	return func(e *Env) { e.Getenv = fn }
}

// WithToolchainResolver sets the ffmpeg toolchain resolver.
func WithToolchainResolver(r ToolchainResolver) EnvOption {
	return func(e *Env) { e.ToolchainResolver = r }
}

// WithConfigLoader sets the config loader.
func WithConfigLoader(l ConfigLoader) EnvOption {
	return func(e *Env) { e.ConfigLoader = l }
}

// WithTranscriberFactory sets the transcriber factory.
func WithTranscriberFactory(f TranscriberFactory) EnvOption {
	return func(e *Env) { e.TranscriberFactory = f }
}

// WithDownloaderFactory sets the downloader factory.
func WithDownloaderFactory(f DownloaderFactory) EnvOption {
	return func(e *Env) { e.DownloaderFactory = f }
}

// WithPipelineFactory sets the pipeline factory.
func WithPipelineFactory(f PipelineFactory) EnvOption {
	return func(e *Env) { e.PipelineFactory = f }
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stdout:             os.Stdout,
		Stderr:             os.Stderr,
		Getenv:             os.Getenv,
		ToolchainResolver:  &defaultToolchainResolver{},
		ConfigLoader:       &defaultConfigLoader{},
		TranscriberFactory: &defaultTranscriberFactory{},
		DownloaderFactory:  &defaultDownloaderFactory{},
		PipelineFactory:    &defaultPipelineFactory{},
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// ---------------------------------------------------------------------------
// Default implementations - delegate to real packages
// ---------------------------------------------------------------------------

// Compile-time interface verification.
var (
	_ ToolchainResolver  = (*defaultToolchainResolver)(nil)
	_ ConfigLoader       = (*defaultConfigLoader)(nil)
	_ TranscriberFactory = (*defaultTranscriberFactory)(nil)
	_ DownloaderFactory  = (*defaultDownloaderFactory)(nil)
	_ PipelineFactory    = (*defaultPipelineFactory)(nil)
)

type defaultToolchainResolver struct{}

func (defaultToolchainResolver) Resolve(ctx context.Context) (media.Tools, error) {
	return media.NewToolchain().Resolve(ctx)
}

func (defaultToolchainResolver) CheckVersion(ctx context.Context, ffmpegPath string) {
	media.CheckVersion(ctx, ffmpegPath, os.Stderr)
}

type defaultConfigLoader struct{}

func (defaultConfigLoader) Load() (config.Config, error) {
	return config.Load()
}

type defaultTranscriberFactory struct{}

func (defaultTranscriberFactory) NewTranscriber(s config.Settings) transcribe.Transcriber {
	return transcribe.NewOpenAIClient(s.APIKey, s.APIBase, s.RequestTimeout,
		transcribe.WithMaxAttempts(s.MaxRetries),
		transcribe.WithRetryDelays(s.RetryDelay, 0),
	)
}

type defaultDownloaderFactory struct{}

func (defaultDownloaderFactory) NewFetcher() (Fetcher, error) {
	path, err := ingest.Locate()
	if err != nil {
		return nil, err
	}
	return ingest.NewDownloader(path), nil
}

type defaultPipelineFactory struct{}

func (defaultPipelineFactory) NewPipeline(tools media.Tools, client transcribe.Transcriber, fetch Fetcher,
	maxChunkBytes int64, progress engine.ProgressFunc, warn io.Writer) Runner {

	prober := media.NewProber(tools.FFprobe)
	transcoder := media.NewTranscoder(tools.FFmpeg)
	normalizer := media.NewNormalizer(prober, transcoder, maxChunkBytes, media.WithWarnWriter(warn))
	cutter := chunk.NewCutter(tools.FFmpeg, maxChunkBytes, chunk.WithCutWarnWriter(warn))

	opts := []pipeline.Option{
		pipeline.WithProgress(progress),
		pipeline.WithWarnWriter(warn),
	}
	if fetch != nil {
		opts = append(opts, pipeline.WithFetcher(fetch))
	}
	return pipeline.New(normalizer, cutter, client, opts...)
}
