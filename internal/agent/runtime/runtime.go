// Package runtime abstracts the project sandbox: spawning the agent process
// inside a project, capturing one-shot command output, and enumerating
// projects. The coordinator consumes it as an opaque capability.
package runtime

import (
	"context"
	"io"
)

// Process is a handle on a spawned command with attached stdio pipes.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader

	// Wait reaps the process after it exits.
	Wait() error

	// Kill terminates the process.
	Kill() error
}

// Runtime spawns commands inside project sandboxes.
type Runtime interface {
	// SpawnAgent starts command inside the named project and hands over the
	// process with its stdio pipes. Failure is fatal to starting an agent
	// session for that project.
	SpawnAgent(ctx context.Context, project, command string) (Process, error)

	// Capture runs command inside the named project and returns its
	// combined output.
	Capture(ctx context.Context, project, command string) (string, error)

	// ListProjects returns the known project names in stable order.
	ListProjects(ctx context.Context) ([]string, error)
}
