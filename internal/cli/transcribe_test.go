package cli_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hbadr/go-scribe/internal/cli"
	"github.com/hbadr/go-scribe/internal/config"
	"github.com/hbadr/go-scribe/internal/engine"
	"github.com/hbadr/go-scribe/internal/export"
	"github.com/hbadr/go-scribe/internal/ingest"
	"github.com/hbadr/go-scribe/internal/lang"
	"github.com/hbadr/go-scribe/internal/media"
	"github.com/hbadr/go-scribe/internal/pipeline"
	"github.com/hbadr/go-scribe/internal/stitch"
	"github.com/hbadr/go-scribe/internal/transcribe"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeResolver struct {
	resolveErr     error
	versionChecked bool
}

func (f *fakeResolver) Resolve(context.Context) (media.Tools, error) {
	if f.resolveErr != nil {
		return media.Tools{}, f.resolveErr
	}
	return media.Tools{FFmpeg: "/fake/ffmpeg", FFprobe: "/fake/ffprobe"}, nil
}

func (f *fakeResolver) CheckVersion(context.Context, string) { f.versionChecked = true }

type fakeConfigLoader struct {
	cfg config.Config
}

func (f *fakeConfigLoader) Load() (config.Config, error) { return f.cfg, nil }

type fakeTranscriberFactory struct {
	created bool
}

func (f *fakeTranscriberFactory) NewTranscriber(config.Settings) transcribe.Transcriber {
	f.created = true
	return nil
}

type fakeFetcher struct{}

func (fakeFetcher) FetchCaptions(context.Context, string, string, string) (ingest.CaptionsResult, error) {
	return ingest.CaptionsResult{}, nil
}

func (fakeFetcher) FetchAudio(context.Context, string, string) (string, error) {
	return "", nil
}

type fakeDownloaderFactory struct {
	err     error
	created bool
}

func (f *fakeDownloaderFactory) NewFetcher() (cli.Fetcher, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = true
	return fakeFetcher{}, nil
}

type fakePipelineFactory struct {
	lastJob   *pipeline.Job
	lastFetch cli.Fetcher
	result    pipeline.Result
	runErr    error
}

func (f *fakePipelineFactory) NewPipeline(_ media.Tools, _ transcribe.Transcriber, fetch cli.Fetcher,
	_ int64, _ engine.ProgressFunc, _ io.Writer) cli.Runner {
	f.lastFetch = fetch
	return &fakeRunner{factory: f}
}

type fakeRunner struct {
	factory *fakePipelineFactory
}

func (r *fakeRunner) Run(_ context.Context, job pipeline.Job) (pipeline.Result, error) {
	r.factory.lastJob = &job
	if r.factory.runErr != nil {
		return pipeline.Result{}, r.factory.runErr
	}
	return r.factory.result, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func successResult() pipeline.Result {
	return pipeline.Result{
		Document: export.Document{
			Text:     "hello world",
			Language: "ar",
			Duration: 754,
			Segments: []stitch.Segment{{Start: 0, End: 2, Text: "hello world"}},
		},
		Source: pipeline.SourceTranscription,
		Chunks: 2,
	}
}

type testEnv struct {
	env      *cli.Env
	resolver *fakeResolver
	factory  *fakePipelineFactory
	download *fakeDownloaderFactory
	stderr   *bytes.Buffer
}

func newTestEnv(t *testing.T, vars map[string]string) *testEnv {
	t.Helper()
	te := &testEnv{
		resolver: &fakeResolver{},
		factory:  &fakePipelineFactory{result: successResult()},
		download: &fakeDownloaderFactory{},
		stderr:   &bytes.Buffer{},
	}
	te.env = cli.NewEnv(
		cli.WithStdout(io.Discard),
		cli.WithStderr(te.stderr),
		cli.WithGetenv(func(key string) string { return vars[key] }),
		cli.WithToolchainResolver(te.resolver),
		cli.WithConfigLoader(&fakeConfigLoader{}),
		cli.WithTranscriberFactory(&fakeTranscriberFactory{}),
		cli.WithDownloaderFactory(te.download),
		cli.WithPipelineFactory(te.factory),
	)
	return te
}

func runTranscribe(te *testEnv, args ...string) error {
	cmd := cli.TranscribeCmd(te.env)
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return cmd.Execute()
}

func writeAudioFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

var withKey = map[string]string{config.EnvAPIKey: "sk-test"}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestTranscribeValidation(t *testing.T) {
	t.Parallel()

	t.Run("missing input file", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, withKey)
		err := runTranscribe(te, "/does/not/exist.mp3")
		if !errors.Is(err, cli.ErrFileNotFound) {
			t.Fatalf("error = %v, want ErrFileNotFound", err)
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, withKey)
		err := runTranscribe(te, writeAudioFile(t, "notes.txt"))
		if !errors.Is(err, cli.ErrUnsupportedFormat) {
			t.Fatalf("error = %v, want ErrUnsupportedFormat", err)
		}
	})

	t.Run("unknown output format", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, withKey)
		err := runTranscribe(te, writeAudioFile(t, "talk.mp3"), "-f", "docx")
		if !errors.Is(err, export.ErrUnknownFormat) {
			t.Fatalf("error = %v, want ErrUnknownFormat", err)
		}
	})

	t.Run("invalid language", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, withKey)
		err := runTranscribe(te, writeAudioFile(t, "talk.mp3"), "-l", "klingon")
		if !errors.Is(err, lang.ErrInvalid) {
			t.Fatalf("error = %v, want lang.ErrInvalid", err)
		}
	})

	t.Run("chunk flags out of range", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, withKey)
		if err := runTranscribe(te, writeAudioFile(t, "talk.mp3"), "--chunk-minutes", "0"); !errors.Is(err, cli.ErrInvalidChunking) {
			t.Fatalf("chunk-minutes error = %v, want ErrInvalidChunking", err)
		}
		if err := runTranscribe(te, writeAudioFile(t, "talk.mp3"), "--max-chunk-mb", "40"); !errors.Is(err, cli.ErrInvalidChunking) {
			t.Fatalf("max-chunk-mb error = %v, want ErrInvalidChunking", err)
		}
	})

	t.Run("missing glossary file", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, withKey)
		err := runTranscribe(te, writeAudioFile(t, "talk.mp3"), "--glossary", "/missing/terms.txt")
		if !errors.Is(err, cli.ErrFileNotFound) {
			t.Fatalf("error = %v, want ErrFileNotFound", err)
		}
	})

	t.Run("missing api key", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, nil)
		err := runTranscribe(te, writeAudioFile(t, "talk.mp3"))
		if !errors.Is(err, cli.ErrAPIKeyMissing) {
			t.Fatalf("error = %v, want ErrAPIKeyMissing", err)
		}
	})

	t.Run("captions flag on a local file", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, withKey)
		err := runTranscribe(te, writeAudioFile(t, "talk.mp3"), "--captions")
		if !errors.Is(err, cli.ErrURLOnlyFlag) {
			t.Fatalf("error = %v, want ErrURLOnlyFlag", err)
		}
	})

	t.Run("captions and audio are mutually exclusive", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, withKey)
		err := runTranscribe(te, "https://example.com/v", "--captions", "--audio")
		if err == nil {
			t.Fatal("expected mutual exclusion error")
		}
	})
}

func TestTranscribeLocal(t *testing.T) {
	t.Parallel()

	t.Run("runs the pipeline and writes output", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, withKey)
		input := writeAudioFile(t, "lecture.mp3")
		outDir := t.TempDir()

		if err := runTranscribe(te, input, "--output-dir", outDir); err != nil {
			t.Fatalf("error = %v", err)
		}

		job := te.factory.lastJob
		if job == nil {
			t.Fatal("pipeline never ran")
		}
		if job.Input != input || job.Language != "ar" || job.Mode != pipeline.ModeAuto {
			t.Errorf("job = %+v", job)
		}
		if job.ChunkSeconds != 300 {
			t.Errorf("ChunkSeconds = %v, want default 300", job.ChunkSeconds)
		}
		if job.MaxChunkBytes != 25*1024*1024 {
			t.Errorf("MaxChunkBytes = %v", job.MaxChunkBytes)
		}
		if !te.resolver.versionChecked {
			t.Error("ffmpeg version never checked")
		}

		out := filepath.Join(outDir, "lecture.txt")
		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("output not written: %v", err)
		}
		if string(data) != "hello world\n" {
			t.Errorf("output = %q", data)
		}
		if !strings.Contains(te.stderr.String(), "12m of audio") {
			t.Errorf("stderr = %q, want the audio length reported", te.stderr.String())
		}
		if !strings.Contains(te.stderr.String(), "(12 bytes)") {
			t.Errorf("stderr = %q, want the output size reported", te.stderr.String())
		}
	})

	t.Run("format flag shapes the output file", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, withKey)
		input := writeAudioFile(t, "lecture.mp3")
		outDir := t.TempDir()

		if err := runTranscribe(te, input, "--output-dir", outDir, "-f", "srt"); err != nil {
			t.Fatalf("error = %v", err)
		}
		data, err := os.ReadFile(filepath.Join(outDir, "lecture.srt"))
		if err != nil {
			t.Fatalf("srt output not written: %v", err)
		}
		if !strings.Contains(string(data), "-->") {
			t.Errorf("output = %q, want srt cues", data)
		}
	})

	t.Run("existing output is never overwritten", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, withKey)
		input := writeAudioFile(t, "lecture.mp3")
		outDir := t.TempDir()
		existing := filepath.Join(outDir, "lecture.txt")
		if err := os.WriteFile(existing, []byte("precious"), 0o644); err != nil {
			t.Fatal(err)
		}

		err := runTranscribe(te, input, "--output-dir", outDir)
		if !errors.Is(err, cli.ErrOutputExists) {
			t.Fatalf("error = %v, want ErrOutputExists", err)
		}
		data, _ := os.ReadFile(existing)
		if string(data) != "precious" {
			t.Errorf("existing file was clobbered: %q", data)
		}
	})

	t.Run("glossary is loaded into the job", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, withKey)
		input := writeAudioFile(t, "lecture.mp3")
		glossary := filepath.Join(t.TempDir(), "terms.txt")
		if err := os.WriteFile(glossary, []byte("k8s => Kubernetes\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		if err := runTranscribe(te, input, "--output-dir", t.TempDir(), "--glossary", glossary); err != nil {
			t.Fatalf("error = %v", err)
		}
		if te.factory.lastJob.Glossary["k8s"] != "Kubernetes" {
			t.Errorf("Glossary = %v", te.factory.lastJob.Glossary)
		}
	})

	t.Run("parallel is clamped", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, withKey)
		input := writeAudioFile(t, "lecture.mp3")

		if err := runTranscribe(te, input, "--output-dir", t.TempDir(), "-p", "50"); err != nil {
			t.Fatalf("error = %v", err)
		}
		if got := te.factory.lastJob.Parallel; got != engine.MaxRecommendedParallel {
			t.Errorf("Parallel = %d, want clamped to %d", got, engine.MaxRecommendedParallel)
		}
	})
}

func TestTranscribeURL(t *testing.T) {
	t.Parallel()

	t.Run("captions mode needs no api key", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, nil)
		te.factory.result = pipeline.Result{
			Document: export.Document{Text: "caption text"},
			Source:   pipeline.SourceCaptions,
			UsedAuto: true,
		}

		err := runTranscribe(te, "https://example.com/v", "--captions", "--output-dir", t.TempDir())
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if te.factory.lastJob.Mode != pipeline.ModeCaptions {
			t.Errorf("Mode = %q", te.factory.lastJob.Mode)
		}
		if !te.download.created {
			t.Error("downloader never created")
		}
		if !strings.Contains(te.stderr.String(), "auto-generated") {
			t.Errorf("stderr = %q, want captions summary", te.stderr.String())
		}
	})

	t.Run("audio mode requires the key", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, nil)
		err := runTranscribe(te, "https://example.com/v", "--audio")
		if !errors.Is(err, cli.ErrAPIKeyMissing) {
			t.Fatalf("error = %v, want ErrAPIKeyMissing", err)
		}
	})

	t.Run("url output gets a default stem", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, withKey)
		outDir := t.TempDir()

		if err := runTranscribe(te, "https://example.com/v", "--output-dir", outDir); err != nil {
			t.Fatalf("error = %v", err)
		}
		if _, err := os.Stat(filepath.Join(outDir, "transcript.txt")); err != nil {
			t.Errorf("default url output missing: %v", err)
		}
	})

	t.Run("yt-dlp missing is a setup error", func(t *testing.T) {
		t.Parallel()
		te := newTestEnv(t, withKey)
		te.download.err = ingest.ErrDownloaderNotFound
		err := runTranscribe(te, "https://example.com/v")
		if !errors.Is(err, ingest.ErrDownloaderNotFound) {
			t.Fatalf("error = %v, want ErrDownloaderNotFound", err)
		}
	})
}
