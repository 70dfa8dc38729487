package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/hbadr/go-scribe/internal/chunk"
	"github.com/hbadr/go-scribe/internal/config"
	"github.com/hbadr/go-scribe/internal/engine"
	"github.com/hbadr/go-scribe/internal/export"
	"github.com/hbadr/go-scribe/internal/format"
	"github.com/hbadr/go-scribe/internal/ingest"
	"github.com/hbadr/go-scribe/internal/lang"
	"github.com/hbadr/go-scribe/internal/media"
	"github.com/hbadr/go-scribe/internal/pipeline"
	"github.com/hbadr/go-scribe/internal/post"
	"github.com/hbadr/go-scribe/internal/transcribe"
)

// DefaultLanguage is assumed when no --language flag is given. The tool
// grew out of transcribing Arabic lectures, hence the default.
const DefaultLanguage = "ar"

// maxChunkMB is the API's per-request upload ceiling in megabytes.
const maxChunkMB = 25

// clampParallel constrains concurrent request count to [1, MaxRecommendedParallel].
func clampParallel(n int) int {
	if n < 1 {
		return 1
	}
	if n > engine.MaxRecommendedParallel {
		return engine.MaxRecommendedParallel
	}
	return n
}

// transcribeFlags holds every flag of the transcribe command.
type transcribeFlags struct {
	output       string
	outputDir    string
	language     string
	model        string
	prompt       string
	format       string
	diarize      bool
	chunkMinutes float64
	maxChunkMB   int
	glossaryPath string
	lightFormat  bool
	resume       bool
	keepTemp     bool
	captionsOnly bool
	audioOnly    bool
	parallel     int
}

// TranscribeCmd creates the transcribe command.
// The env parameter provides injectable dependencies for testing.
func TranscribeCmd(env *Env) *cobra.Command {
	var flags transcribeFlags

	cmd := &cobra.Command{
		Use:   "transcribe <file-or-url>",
		Short: "Transcribe an audio file, video file, or URL",
		Long: `Transcribe long audio or video using OpenAI's transcription API.

Large inputs are converted to WAV, split into chunks under the API's
25 MB upload limit, and transcribed chunk by chunk. Progress is
checkpointed, so an interrupted run can continue with --resume without
paying for finished chunks again.

URLs are handled through yt-dlp: existing captions are used when
available (free and instant), otherwise the audio track is downloaded
and transcribed. Force one behavior with --captions or --audio.`,
		Example: `  scribe transcribe lecture.mp3
  scribe transcribe talk.mp4 -f srt -o talk.srt
  scribe transcribe lecture.mp3 -l ar --glossary terms.txt
  scribe transcribe https://youtube.com/watch?v=abc --captions
  scribe transcribe https://youtube.com/watch?v=abc --audio --diarize
  scribe transcribe lecture.mp3 --resume  # continue an interrupted run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd, env, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Output file path (default: <input>.<format> in the output dir)")
	cmd.Flags().StringVar(&flags.outputDir, "output-dir", "", "Directory for output files (default: config or current dir)")
	cmd.Flags().StringVarP(&flags.language, "language", "l", DefaultLanguage, "Audio language (ISO 639-1 code, e.g. ar, en, pt-BR)")
	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "Transcription model (default: OPENAI_MODEL or whisper-1)")
	cmd.Flags().StringVar(&flags.prompt, "prompt", "", "Context prompt to steer vocabulary")
	cmd.Flags().StringVarP(&flags.format, "format", "f", export.FormatText, "Output format: text, json, srt, vtt")
	cmd.Flags().BoolVar(&flags.diarize, "diarize", false, "Request speaker-aware output when the model supports it")
	cmd.Flags().Float64Var(&flags.chunkMinutes, "chunk-minutes", chunk.DefaultChunkSeconds/60, "Target chunk length in minutes")
	cmd.Flags().IntVar(&flags.maxChunkMB, "max-chunk-mb", maxChunkMB, "Per-chunk upload cap in MB (1-25)")
	cmd.Flags().StringVar(&flags.glossaryPath, "glossary", "", "Glossary file with 'TERM => REPLACEMENT' lines")
	cmd.Flags().BoolVar(&flags.lightFormat, "light-format", false, "Remove stutters and add minimal punctuation to the transcript")
	cmd.Flags().BoolVar(&flags.resume, "resume", false, "Continue from an existing checkpoint")
	cmd.Flags().BoolVar(&flags.keepTemp, "keep-temp", false, "Keep chunk files and checkpoint after a successful run")
	cmd.Flags().BoolVar(&flags.captionsOnly, "captions", false, "URL only: use existing captions, never transcribe")
	cmd.Flags().BoolVar(&flags.audioOnly, "audio", false, "URL only: always download and transcribe the audio track")
	cmd.Flags().IntVarP(&flags.parallel, "parallel", "p", 1, "Max concurrent API requests (1-10)")
	cmd.MarkFlagsMutuallyExclusive("captions", "audio")

	return cmd
}

// runTranscribe executes the transcription pipeline.
// Validation order: input -> format -> language -> chunking -> glossary -> API key
func runTranscribe(cmd *cobra.Command, env *Env, input string, flags transcribeFlags) error {
	ctx := cmd.Context()

	// === VALIDATION (fail-fast) ===

	// 1. Input exists and is a supported kind (URLs are checked later
	// by yt-dlp itself).
	isURL := ingest.IsURL(input)
	if !isURL {
		if _, err := os.Stat(input); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("%w: %s", ErrFileNotFound, input)
			}
			return fmt.Errorf("cannot access input file: %w", err)
		}
		if !media.IsSupported(input) {
			return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(input))
		}
		if flags.captionsOnly || flags.audioOnly {
			return fmt.Errorf("%w: %s is a local file", ErrURLOnlyFlag, input)
		}
	}

	// 2. Output format
	ext, err := export.Extension(flags.format)
	if err != nil {
		return err
	}

	// 3. Language
	if err := lang.Validate(flags.language); err != nil {
		return err
	}

	// 4. Chunking bounds
	if flags.chunkMinutes <= 0 {
		return fmt.Errorf("%w: --chunk-minutes must be positive", ErrInvalidChunking)
	}
	if flags.maxChunkMB < 1 || flags.maxChunkMB > maxChunkMB {
		return fmt.Errorf("%w: --max-chunk-mb must be between 1 and %d", ErrInvalidChunking, maxChunkMB)
	}

	// 5. Glossary. An explicitly named file must exist; LoadGlossary
	// alone would silently treat a typo as an empty glossary.
	var glossary post.Glossary
	if flags.glossaryPath != "" {
		if _, err := os.Stat(flags.glossaryPath); err != nil {
			return fmt.Errorf("%w: glossary %s", ErrFileNotFound, flags.glossaryPath)
		}
		glossary, err = post.LoadGlossary(flags.glossaryPath)
		if err != nil {
			return err
		}
	}

	// 6. Config and settings
	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: failed to load config: %v\n", err)
	}
	settings, err := config.LoadSettings(env.Getenv)
	if err != nil {
		return err
	}
	if flags.model != "" {
		settings.Model = flags.model
	}

	// 7. Ingestion mode
	mode := pipeline.ModeAuto
	switch {
	case flags.captionsOnly:
		mode = pipeline.ModeCaptions
	case flags.audioOnly:
		mode = pipeline.ModeAudio
	}

	// 8. API key. The captions fast path is the one flow that costs no
	// API calls, so only --captions runs without a key.
	needsAPI := !(isURL && mode == pipeline.ModeCaptions)
	if needsAPI && settings.APIKey == "" {
		return fmt.Errorf("%w (set it with: export %s=sk-...)", ErrAPIKeyMissing, config.EnvAPIKey)
	}

	// === SETUP ===

	var tools media.Tools
	if needsAPI {
		// May auto-download ffmpeg on first use.
		tools, err = env.ToolchainResolver.Resolve(ctx)
		if err != nil {
			return err
		}
		env.ToolchainResolver.CheckVersion(ctx, tools.FFmpeg)
	}

	var fetch Fetcher
	if isURL {
		fetch, err = env.DownloaderFactory.NewFetcher()
		if err != nil {
			return err
		}
	}

	// The captions fast path must not require credentials, so the API
	// client is only built when the run needs one.
	var client transcribe.Transcriber
	if needsAPI {
		client = env.TranscriberFactory.NewTranscriber(settings)
	}

	outputDir := flags.outputDir
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}
	if outputDir == "" {
		outputDir = "."
	}

	// === RUN ===

	bar := newProgress(env)
	runner := env.PipelineFactory.NewPipeline(tools, client, fetch,
		int64(flags.maxChunkMB)*1024*1024, bar.update, env.Stderr)

	job := pipeline.Job{
		Input:         input,
		OutputDir:     outputDir,
		Language:      flags.language,
		Model:         settings.Model,
		Prompt:        flags.prompt,
		Format:        flags.format,
		Diarize:       flags.diarize,
		ChunkSeconds:  flags.chunkMinutes * 60,
		MaxChunkBytes: int64(flags.maxChunkMB) * 1024 * 1024,
		Glossary:      glossary,
		LightFormat:   flags.lightFormat,
		Mode:          mode,
		Resume:        flags.resume,
		KeepTemp:      flags.keepTemp,
		Parallel:      clampParallel(flags.parallel),
	}

	result, err := runner.Run(ctx, job)
	bar.finish()
	if err != nil {
		return err
	}

	// === WRITE OUTPUT ===

	outPath := flags.output
	if outPath == "" {
		outPath = filepath.Join(outputDir, defaultStem(input, isURL)+"."+ext)
	}
	if err := writeOutput(outPath, result.Document, flags.format); err != nil {
		return err
	}

	printSummary(env, result, outPath)
	return nil
}

// defaultStem derives the output filename stem from the input.
func defaultStem(input string, isURL bool) string {
	if isURL {
		return "transcript"
	}
	base := filepath.Base(input)
	return export.SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base)))
}

// writeOutput creates the output file with O_EXCL so an existing file
// is never silently overwritten.
func writeOutput(path string, doc export.Document, formatName string) error {
	// #nosec G302 G304 -- user-specified output file with standard permissions
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrOutputExists, path)
		}
		return fmt.Errorf("cannot create output file: %w", err)
	}

	writeErr := func() error {
		defer func() { _ = f.Close() }()
		return export.Write(f, doc, formatName)
	}()
	if writeErr != nil {
		_ = os.Remove(path)
		return writeErr
	}
	return nil
}

// printSummary reports where the transcript came from and where it went.
func printSummary(env *Env, result pipeline.Result, outPath string) {
	length := time.Duration(result.Document.Duration * float64(time.Second))

	switch result.Source {
	case pipeline.SourceCaptions:
		kind := "manual"
		if result.UsedAuto {
			kind = "auto-generated"
		}
		fmt.Fprintf(env.Stderr, "Used %s captions (%s), no transcription needed\n",
			kind, format.Duration(length))
	default:
		if result.Resumed {
			fmt.Fprintf(env.Stderr, "Resumed from checkpoint, %d chunks, %s of audio\n",
				result.Chunks, format.DurationHuman(length))
		} else {
			fmt.Fprintf(env.Stderr, "Transcribed %d chunks, %s of audio\n",
				result.Chunks, format.DurationHuman(length))
		}
	}

	done := color.New(color.FgGreen)
	if info, err := os.Stat(outPath); err == nil {
		done.Fprintf(env.Stderr, "Done: %s (%s)\n", outPath, format.Size(info.Size()))
	} else {
		done.Fprintf(env.Stderr, "Done: %s\n", outPath)
	}
}

// progress wraps the progress bar so the callback can lazily create it
// once the chunk count is known.
type progress struct {
	env *Env
	bar *progressbar.ProgressBar
}

func newProgress(env *Env) *progress {
	return &progress{env: env}
}

func (p *progress) update(done, total int) {
	if total <= 1 {
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.env.Stderr),
			progressbar.OptionSetDescription("Transcribing"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = p.bar.Set(done)
}

func (p *progress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
