package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hbadr/go-scribe/internal/cli"
	"github.com/hbadr/go-scribe/internal/export"
	"github.com/hbadr/go-scribe/internal/ingest"
	"github.com/hbadr/go-scribe/internal/lang"
	"github.com/hbadr/go-scribe/internal/media"
	"github.com/hbadr/go-scribe/internal/pipeline"
	"github.com/hbadr/go-scribe/internal/transcribe"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes.
const (
	ExitOK            = 0
	ExitGeneral       = 1
	ExitUsage         = 2
	ExitSetup         = 3
	ExitValidation    = 4
	ExitTranscription = 5
	ExitInterrupt     = 130
)

func main() {
	// Load .env file if present (ignore error if missing).
	_ = godotenv.Load()

	// Context with signal cancellation.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Create the CLI environment with production defaults.
	env := cli.DefaultEnv()

	// Root command.
	rootCmd := &cobra.Command{
		Use:     "scribe",
		Short:   "Transcribe long audio, video, and URLs with checkpointed chunking",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	// Subcommands.
	rootCmd.AddCommand(cli.TranscribeCmd(env))
	rootCmd.AddCommand(cli.ConfigCmd(env))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps errors to exit codes.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	// Interrupt.
	if errors.Is(err, context.Canceled) {
		return ExitInterrupt
	}

	// Usage errors (ExitUsage = 2): Cobra flag/arg parsing errors.
	if isCobraUsageError(err) {
		return ExitUsage
	}

	// Setup errors (ExitSetup = 3): missing tools or credentials.
	if errors.Is(err, media.ErrToolNotFound) || errors.Is(err, media.ErrUnsupportedPlatform) ||
		errors.Is(err, media.ErrChecksumMismatch) || errors.Is(err, media.ErrDownloadFailed) ||
		errors.Is(err, cli.ErrAPIKeyMissing) || errors.Is(err, ingest.ErrDownloaderNotFound) ||
		errors.Is(err, pipeline.ErrNoDownloader) {
		return ExitSetup
	}

	// Validation errors (ExitValidation = 4): bad input before any API work.
	if errors.Is(err, cli.ErrFileNotFound) || errors.Is(err, cli.ErrUnsupportedFormat) ||
		errors.Is(err, cli.ErrOutputExists) || errors.Is(err, cli.ErrInvalidChunking) ||
		errors.Is(err, cli.ErrURLOnlyFlag) ||
		errors.Is(err, lang.ErrInvalid) || errors.Is(err, export.ErrUnknownFormat) ||
		errors.Is(err, pipeline.ErrInputNotFound) || errors.Is(err, media.ErrUnsupportedSource) {
		return ExitValidation
	}

	// Transcription errors (ExitTranscription = 5): the API run failed.
	if errors.Is(err, transcribe.ErrRateLimit) || errors.Is(err, transcribe.ErrQuotaExceeded) ||
		errors.Is(err, transcribe.ErrTimeout) || errors.Is(err, transcribe.ErrAuthFailed) ||
		errors.Is(err, transcribe.ErrServer) || errors.Is(err, transcribe.ErrAPI) ||
		errors.Is(err, transcribe.ErrTransport) || errors.Is(err, ingest.ErrCaptionsUnavailable) {
		return ExitTranscription
	}

	return ExitGeneral
}

// cobraUsageErrorPatterns contains error message substrings that indicate
// Cobra usage errors. Cobra doesn't expose typed errors, so string
// matching is the only reliable approach.
var cobraUsageErrorPatterns = []string{
	"required flag",
	"unknown flag",
	"unknown shorthand",
	"flag needs an argument",
	"invalid argument",
	"if any flags in the group",
	"accepts ",
	"requires at least",
	"requires at most",
}

// isCobraUsageError checks if an error is a Cobra usage/parsing error.
func isCobraUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range cobraUsageErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
