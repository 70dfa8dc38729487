package chunk

import (
	"bytes"
	"context"
	"os/exec"
)

// commandRunner abstracts external process execution.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// Compile-time interface verification.
var _ commandRunner = osRunner{}

// osRunner implements commandRunner using os/exec.
type osRunner struct{}

func (osRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- binary path comes from internal resolution

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
