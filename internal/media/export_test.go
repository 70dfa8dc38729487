package media

// Export internal types for testing.
// This file is only compiled during tests (suffix _test.go).

// CommandRunner exports commandRunner interface for testing.
type CommandRunner = commandRunner

// FileReader exports fileReader interface for testing.
type FileReader = fileReader

// EnvProvider exports envProvider interface for testing.
type EnvProvider = envProvider

// Tail exports tail for testing.
var Tail = tail
