package pipeline

import (
	"context"

	"github.com/hbadr/go-scribe/internal/chunk"
	"github.com/hbadr/go-scribe/internal/ingest"
	"github.com/hbadr/go-scribe/internal/media"
)

// normalizer prepares an input file for chunking.
type normalizer interface {
	Normalize(ctx context.Context, input, workDir string) (media.Asset, error)
}

// cutter materializes a chunk plan into files.
type cutter interface {
	Cut(ctx context.Context, assetPath string, assetDuration float64, plan chunk.Plan) (chunk.Plan, error)
}

// fetcher downloads remote captions and audio.
type fetcher interface {
	FetchCaptions(ctx context.Context, url, language, destDir string) (ingest.CaptionsResult, error)
	FetchAudio(ctx context.Context, url, destDir string) (string, error)
}

// Compile-time interface verification against the real implementations.
var (
	_ normalizer = (*media.Normalizer)(nil)
	_ cutter     = (*chunk.Cutter)(nil)
	_ fetcher    = (*ingest.Downloader)(nil)
)
