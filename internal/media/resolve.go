package media

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// FFmpeg version and download configuration.
// Binaries from github.com/eugeneware/ffmpeg-static release b6.1.1.
const (
	ffmpegVersion = "6.1.1"

	binaryExtWindows = ".exe"

	// downloadTimeout is the maximum time allowed for downloading ffmpeg.
	// Binary is ~20-30MB compressed, allowing for slow connections.
	downloadTimeout = 10 * time.Minute

	// versionFileName stores the installed version for upgrade detection.
	versionFileName = ".version"

	installDirPerm = 0750
)

// Environment variables for custom tool paths.
const (
	envFFmpegPath  = "FFMPEG_PATH"
	envFFprobePath = "FFPROBE_PATH"
)

// defaultHTTPClient is a dedicated HTTP client for tool downloads with explicit timeouts.
var defaultHTTPClient = &http.Client{
	Timeout: downloadTimeout,
	Transport: &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	},
}

// binaryInfo contains download metadata for ffmpeg.
type binaryInfo struct {
	URL    string // Download URL (gzipped binary)
	SHA256 string // Expected checksum of the gzipped file
}

const downloadBaseURL = "https://github.com/eugeneware/ffmpeg-static/releases/download/b6.1.1"

// getPlatformInfo returns download information for the given platform.
func getPlatformInfo(goos, goarch string) (binaryInfo, bool) {
	platforms := map[string]binaryInfo{
		"darwin-arm64": {
			URL:    downloadBaseURL + "/ffmpeg-darwin-arm64.gz",
			SHA256: "8923876afa8db5585022d7860ec7e589af192f441c56793971276d450ed3bbfa",
		},
		"darwin-amd64": {
			URL:    downloadBaseURL + "/ffmpeg-darwin-x64.gz",
			SHA256: "5d8fb6f280c428d0e82cd5ee68215f0734d64f88e37dcc9e082f818c9e5025f0",
		},
		"linux-amd64": {
			URL:    downloadBaseURL + "/ffmpeg-linux-x64.gz",
			SHA256: "bfe8a8fc511530457b528c48d77b5737527b504a3797a9bc4866aeca69c2dffa",
		},
		"windows-amd64": {
			URL:    downloadBaseURL + "/ffmpeg-win32-x64.gz",
			SHA256: "8883a3dffbd0a16cf4ef95206ea05283f78908dbfb118f73c83f4951dcc06d77",
		},
	}
	info, ok := platforms[goos+"-"+goarch]
	return info, ok
}

// Tools holds the resolved binary paths.
// FFprobe may be empty when only ffmpeg could be located; duration
// probing then degrades to the WAV-header fallback.
type Tools struct {
	FFmpeg  string
	FFprobe string
}

// ---------------------------------------------------------------------------
// Toolchain - testable tool resolution with dependency injection
// ---------------------------------------------------------------------------

// Toolchain finds and optionally downloads the ffmpeg tools.
type Toolchain struct {
	reader       fileReader
	writer       fileWriter
	http         httpDoer
	env          envProvider
	stderr       io.Writer
	goos         string
	goarch       string
	platformInfo *binaryInfo // Override for testing; nil uses getPlatformInfo
}

// ToolchainOption configures a Toolchain.
type ToolchainOption func(*Toolchain)

// WithFileReader sets the file reader implementation.
func WithFileReader(r fileReader) ToolchainOption {
	return func(tc *Toolchain) { tc.reader = r }
}

// WithFileWriter sets the file writer implementation.
func WithFileWriter(w fileWriter) ToolchainOption {
	return func(tc *Toolchain) { tc.writer = w }
}

// WithHTTPClient sets the HTTP client implementation.
func WithHTTPClient(c httpDoer) ToolchainOption {
	return func(tc *Toolchain) { tc.http = c }
}

// WithEnvProvider sets the environment provider implementation.
func WithEnvProvider(e envProvider) ToolchainOption {
	return func(tc *Toolchain) { tc.env = e }
}

// WithStderr sets the writer for status messages.
func WithStderr(w io.Writer) ToolchainOption {
	return func(tc *Toolchain) { tc.stderr = w }
}

// WithPlatform sets the target platform (for testing cross-platform behavior).
func WithPlatform(goos, goarch string) ToolchainOption {
	return func(tc *Toolchain) {
		tc.goos = goos
		tc.goarch = goarch
	}
}

// WithPlatformInfo overrides the platform download info (for testing downloads).
func WithPlatformInfo(info binaryInfo) ToolchainOption {
	return func(tc *Toolchain) { tc.platformInfo = &info }
}

// NewToolchain creates a Toolchain with the given options.
// Uses production defaults if no options are provided.
func NewToolchain(opts ...ToolchainOption) *Toolchain {
	tc := &Toolchain{
		reader: osFileReader{},
		writer: osFileWriter{},
		http:   defaultHTTPClient,
		env:    osEnvProvider{},
		stderr: os.Stderr,
		goos:   runtime.GOOS,
		goarch: runtime.GOARCH,
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// Resolve locates ffmpeg using the following precedence:
//  1. FFMPEG_PATH environment variable (error if set but invalid)
//  2. ~/.go-scribe/bin/ffmpeg (installed by us)
//  3. System PATH
//  4. Auto-download if nothing found
//
// ffprobe is then located via FFPROBE_PATH, the system PATH, or as a
// sibling of the resolved ffmpeg binary. A missing ffprobe is not fatal.
func (tc *Toolchain) Resolve(ctx context.Context) (Tools, error) {
	ffmpeg, err := tc.resolveFFmpeg(ctx)
	if err != nil {
		return Tools{}, err
	}

	tools := Tools{FFmpeg: ffmpeg, FFprobe: tc.resolveFFprobe(ffmpeg)}
	if tools.FFprobe == "" {
		fmt.Fprintln(tc.stderr, "Warning: ffprobe not found, duration detection will be degraded")
	}
	return tools, nil
}

func (tc *Toolchain) resolveFFmpeg(ctx context.Context) (string, error) {
	// 1. Check FFMPEG_PATH environment variable
	if envPath := tc.env.Getenv(envFFmpegPath); envPath != "" {
		if _, err := tc.reader.Stat(envPath); err != nil {
			return "", fmt.Errorf("%w: %s is set to %q but binary not found (unset to enable auto-download)",
				ErrToolNotFound, envFFmpegPath, envPath)
		}
		return envPath, nil
	}

	// 2. Check our install directory
	installed, err := tc.isInstalled()
	if err != nil {
		return "", err
	}
	if installed {
		path, _ := tc.installedPath()
		return path, nil
	}

	// 3. Check system PATH
	if path, err := tc.env.LookPath("ffmpeg"); err == nil {
		return path, nil
	}

	// 4. Auto-download
	fmt.Fprintln(tc.stderr, "ffmpeg not found, downloading...")
	if err := tc.downloadAndInstall(ctx); err != nil {
		return "", fmt.Errorf("%w: auto-download failed: %v\n\n%s",
			ErrToolNotFound, err, tc.manualInstallInstructions())
	}

	path, _ := tc.installedPath()
	return path, nil
}

func (tc *Toolchain) resolveFFprobe(ffmpegPath string) string {
	if envPath := tc.env.Getenv(envFFprobePath); envPath != "" {
		if _, err := tc.reader.Stat(envPath); err == nil {
			return envPath
		}
	}

	if path, err := tc.env.LookPath("ffprobe"); err == nil {
		return path
	}

	// Distributions that ship ffmpeg ship ffprobe next to it.
	name := "ffprobe"
	if tc.goos == "windows" {
		name += binaryExtWindows
	}
	sibling := filepath.Join(filepath.Dir(ffmpegPath), name)
	if _, err := tc.reader.Stat(sibling); err == nil {
		return sibling
	}

	return ""
}

// installDir returns the directory where ffmpeg is installed.
func (tc *Toolchain) installDir() (string, error) {
	home, err := tc.env.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".go-scribe", "bin"), nil
}

// installedPath returns the path where ffmpeg would be installed.
func (tc *Toolchain) installedPath() (string, error) {
	dir, err := tc.installDir()
	if err != nil {
		return "", err
	}

	name := "ffmpeg"
	if tc.goos == "windows" {
		name += binaryExtWindows
	}

	return filepath.Join(dir, name), nil
}

// isInstalled checks if ffmpeg is already installed at the expected location.
// Note: There is a TOCTOU race between Stat and ReadFile, but this is acceptable
// because the worst case is a redundant download, which is idempotent.
func (tc *Toolchain) isInstalled() (bool, error) {
	ffmpegPath, err := tc.installedPath()
	if err != nil {
		return false, err
	}

	if _, err := tc.reader.Stat(ffmpegPath); os.IsNotExist(err) {
		return false, nil
	}

	// Check version file matches current version
	dir, _ := tc.installDir()
	versionPath := filepath.Join(dir, versionFileName)
	data, err := tc.reader.ReadFile(versionPath)
	if err != nil {
		return false, nil // Version file missing = needs reinstall
	}
	if string(data) != ffmpegVersion {
		return false, nil // Version mismatch = needs upgrade
	}

	return true, nil
}

// downloadAndInstall downloads and installs ffmpeg.
func (tc *Toolchain) downloadAndInstall(ctx context.Context) error {
	var info binaryInfo
	if tc.platformInfo != nil {
		info = *tc.platformInfo
	} else {
		var ok bool
		info, ok = getPlatformInfo(tc.goos, tc.goarch)
		if !ok {
			return fmt.Errorf("%w: %s-%s (supported: darwin-arm64, darwin-amd64, linux-amd64, windows-amd64)",
				ErrUnsupportedPlatform, tc.goos, tc.goarch)
		}
	}

	dir, err := tc.installDir()
	if err != nil {
		return err
	}

	if err := tc.writer.MkdirAll(dir, installDirPerm); err != nil {
		return fmt.Errorf("cannot create install directory %s: %w", dir, err)
	}

	destPath, err := tc.installedPath()
	if err != nil {
		return err
	}

	if err := tc.downloadBinary(ctx, info, destPath); err != nil {
		_ = tc.writer.Remove(destPath) // Cleanup on failure
		return fmt.Errorf("download ffmpeg: %w", err)
	}

	versionPath := filepath.Join(dir, versionFileName)
	if err := tc.writer.WriteFile(versionPath, []byte(ffmpegVersion), 0644); err != nil {
		return fmt.Errorf("write version file: %w", err)
	}

	return nil
}

// downloadBinary downloads, verifies, and extracts ffmpeg.
func (tc *Toolchain) downloadBinary(ctx context.Context, info binaryInfo, destPath string) error {
	dir := filepath.Dir(destPath)
	tempFile, err := tc.writer.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("cannot create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	tempFileClosed := false

	defer func() {
		if !tempFileClosed {
			_ = tempFile.Close()
		}
		_ = tc.writer.Remove(tempPath)
	}()

	// Download - timeout is enforced by defaultHTTPClient.Timeout
	if err := tc.downloadToFile(ctx, info.URL, tempFile); err != nil {
		return err
	}

	// Close to flush writes before checksum
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	tempFileClosed = true

	if err := verifyChecksum(tempPath, info.SHA256); err != nil {
		return err
	}

	if err := decompressGzip(tempPath, destPath); err != nil {
		return err
	}

	// Make executable on Unix
	if tc.goos != "windows" {
		if err := tc.writer.Chmod(destPath, 0755); err != nil {
			return fmt.Errorf("make binary executable: %w", err)
		}
	}

	return nil
}

// downloadToFile downloads a URL to an open file.
func (tc *Toolchain) downloadToFile(ctx context.Context, url string, dest *os.File) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %v", ErrDownloadFailed, err)
	}

	resp, err := tc.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d from %s", ErrDownloadFailed, resp.StatusCode, url)
	}

	if _, err = io.Copy(dest, resp.Body); err != nil {
		return fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	return nil
}

// manualInstallInstructions returns platform-specific instructions.
func (tc *Toolchain) manualInstallInstructions() string {
	switch tc.goos {
	case "darwin":
		return `To install FFmpeg manually:
  brew install ffmpeg

Or download from https://evermeet.cx/ffmpeg/

Or set FFMPEG_PATH environment variable to your ffmpeg binary.`
	case "linux":
		return `To install FFmpeg manually:
  Ubuntu/Debian: sudo apt install ffmpeg
  Fedora:        sudo dnf install ffmpeg
  Arch:          sudo pacman -S ffmpeg

Or set FFMPEG_PATH environment variable to your ffmpeg binary.`
	case "windows":
		return `To install FFmpeg manually:
  winget install ffmpeg

Or download from https://www.gyan.dev/ffmpeg/builds/

Or set FFMPEG_PATH environment variable to your ffmpeg.exe.`
	default:
		return `To install FFmpeg manually, download from https://ffmpeg.org/download.html
Or set FFMPEG_PATH environment variable to your ffmpeg binary.`
	}
}

// ---------------------------------------------------------------------------
// Pure helper functions
// These functions use os package directly rather than injected dependencies.
// They operate on internal temp files only and are tested with t.TempDir.
// ---------------------------------------------------------------------------

// verifyChecksum computes the SHA256 of a file and compares to expected.
func verifyChecksum(filePath, expectedSHA256 string) error {
	f, err := os.Open(filePath) // #nosec G304 -- filePath is internal temp file
	if err != nil {
		return fmt.Errorf("cannot open file for checksum: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("compute checksum: %w", err)
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if actual != expectedSHA256 {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expectedSHA256, actual)
	}

	return nil
}

// maxDecompressedSize caps extraction to guard against decompression bombs.
// FFmpeg binary is ~80MB uncompressed; 200MB provides safety margin.
const maxDecompressedSize = 200 * 1024 * 1024

// decompressGzip decompresses a gzip file to a destination path atomically.
func decompressGzip(gzPath, destPath string) error {
	gzFile, err := os.Open(gzPath) // #nosec G304 -- gzPath is internal temp file
	if err != nil {
		return fmt.Errorf("cannot open gzip file: %w", err)
	}
	defer func() { _ = gzFile.Close() }()

	gzReader, err := gzip.NewReader(gzFile)
	if err != nil {
		return fmt.Errorf("invalid gzip file: %w", err)
	}
	defer func() { _ = gzReader.Close() }()

	dir := filepath.Dir(destPath)
	tempFile, err := os.CreateTemp(dir, ".extract-*")
	if err != nil {
		return fmt.Errorf("cannot create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		_ = tempFile.Close()
		if !success {
			_ = os.Remove(tempPath)
		}
	}()

	limitedReader := io.LimitReader(gzReader, maxDecompressedSize)
	written, err := io.Copy(tempFile, limitedReader)
	if err != nil {
		return fmt.Errorf("decompression failed: %w", err)
	}
	if written >= maxDecompressedSize {
		return fmt.Errorf("decompression failed: file exceeds %d bytes limit", maxDecompressedSize)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tempPath, destPath); err != nil {
		return fmt.Errorf("install binary: %w", err)
	}

	success = true
	return nil
}

// CheckVersion warns on stderr when the resolved ffmpeg is older than
// the minimum supported major version. Failure to parse is ignored.
func CheckVersion(ctx context.Context, ffmpegPath string, stderr io.Writer) {
	const minMajor = 4

	stdout, errout, err := (osRunner{}).Run(ctx, ffmpegPath, "-version")
	out := stdout
	if strings.TrimSpace(out) == "" {
		out = errout
	}
	if err != nil && out == "" {
		return
	}

	lines := strings.Split(out, "\n")
	if len(lines) == 0 || lines[0] == "" {
		return
	}

	var major int
	if _, err := fmt.Sscanf(lines[0], "ffmpeg version %d", &major); err != nil {
		if _, err := fmt.Sscanf(lines[0], "ffmpeg version n%d", &major); err != nil {
			return
		}
	}

	if major < minMajor {
		fmt.Fprintf(stderr, "Warning: ffmpeg version %d detected, version %d+ recommended\n", major, minMajor)
	}
}
