package ingest

// Test-only aliases so black-box tests can inject fakes.
type CommandRunner = commandRunner

var LastLine = lastLine
