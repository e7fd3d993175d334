package runtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/thalassa-ai/thalassa/internal/common/logger"
)

// LocalRuntime runs project commands directly on the host, one directory per
// project under a configured root.
type LocalRuntime struct {
	root   string
	logger *logger.Logger
}

// NewLocalRuntime creates a runtime rooted at the given projects directory.
func NewLocalRuntime(root string, log *logger.Logger) (*LocalRuntime, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("projects root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("projects root %s is not a directory", root)
	}

	return &LocalRuntime{
		root:   root,
		logger: log.WithFields(zap.String("component", "local-runtime")),
	}, nil
}

type localProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
}

func (p *localProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *localProcess) Stdout() io.Reader     { return p.stdout }
func (p *localProcess) Wait() error           { return p.cmd.Wait() }

func (p *localProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// projectDir resolves a project name to its directory, rejecting names that
// would escape the root.
func (r *LocalRuntime) projectDir(project string) (string, error) {
	if project == "" || project != filepath.Base(project) {
		return "", fmt.Errorf("invalid project name %q", project)
	}
	dir := filepath.Join(r.root, project)
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("project %s: %w", project, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project %s is not a directory", project)
	}
	return dir, nil
}

// SpawnAgent starts command inside the project directory with stdio pipes
// attached for the protocol connection. Stderr passes through to the
// daemon's stderr so agent diagnostics stay visible.
func (r *LocalRuntime) SpawnAgent(ctx context.Context, project, command string) (Process, error) {
	dir, err := r.projectDir(project)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %q in %s: %w", command, project, err)
	}

	r.logger.Info("spawned agent process",
		zap.String("project", project),
		zap.String("command", command),
		zap.Int("pid", cmd.Process.Pid))

	return &localProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// Capture runs command inside the project directory and returns its combined
// output.
func (r *LocalRuntime) Capture(ctx context.Context, project, command string) (string, error) {
	dir, err := r.projectDir(project)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("run %q in %s: %w", command, project, err)
	}
	return string(out), nil
}

// ListProjects returns the project directory names under the root, sorted.
func (r *LocalRuntime) ListProjects(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

var _ Runtime = (*LocalRuntime)(nil)
