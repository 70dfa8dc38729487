package chunk

// Export internal types for testing.
// This file is only compiled during tests (suffix _test.go).

// CommandRunner exports commandRunner interface for testing.
type CommandRunner = commandRunner

// FormatSeconds exports formatSeconds for testing.
var FormatSeconds = formatSeconds
