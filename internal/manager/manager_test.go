package manager

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thalassa-ai/thalassa/internal/agent/bridge"
	"github.com/thalassa-ai/thalassa/internal/agent/runtime"
	"github.com/thalassa-ai/thalassa/internal/common/logger"
	"github.com/thalassa-ai/thalassa/internal/events/bus"
	"github.com/thalassa-ai/thalassa/pkg/acp/jsonrpc"
)

type stubProcess struct {
	stdin  io.WriteCloser
	stdout io.Reader
}

func (p *stubProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *stubProcess) Stdout() io.Reader     { return p.stdout }
func (p *stubProcess) Wait() error           { return nil }
func (p *stubProcess) Kill() error           { return nil }

// stubRuntime answers every protocol call with a canned session result and
// counts spawns so tests can assert idempotency.
type stubRuntime struct {
	mu       sync.Mutex
	spawns   int
	spawnErr error
	projects []string
	captured string
}

func (r *stubRuntime) spawnCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spawns
}

func (r *stubRuntime) SpawnAgent(ctx context.Context, project, command string) (runtime.Process, error) {
	r.mu.Lock()
	r.spawns++
	err := r.spawnErr
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	go func() {
		scanner := bufio.NewScanner(stdinR)
		for scanner.Scan() {
			var req jsonrpc.Request
			if json.Unmarshal(scanner.Bytes(), &req) != nil || req.ID == nil {
				continue
			}
			resp := jsonrpc.Response{
				JSONRPC: jsonrpc.Version,
				ID:      req.ID,
				Result:  json.RawMessage(`{"sessionId":"s1"}`),
			}
			data, _ := json.Marshal(&resp)
			if _, err := stdoutW.Write(append(data, '\n')); err != nil {
				return
			}
		}
	}()
	return &stubProcess{stdin: stdinW, stdout: stdoutR}, nil
}

func (r *stubRuntime) Capture(ctx context.Context, project, command string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captured = command
	return "ok\n", nil
}

func (r *stubRuntime) ListProjects(ctx context.Context) ([]string, error) {
	return r.projects, nil
}

func newTestManager(t *testing.T, rt *stubRuntime) (*Manager, *bus.MemoryEventBus) {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	eventBus := bus.NewMemoryEventBus(log)
	t.Cleanup(eventBus.Close)
	return New(eventBus, rt, bridge.Config{AgentCommand: "stub-agent"}, log), eventBus
}

func TestStartAgentSessionIsIdempotent(t *testing.T) {
	rt := &stubRuntime{}
	m, _ := newTestManager(t, rt)
	ctx := context.Background()

	first, err := m.StartAgentSession(ctx, "alpha")
	require.NoError(t, err)
	second, err := m.StartAgentSession(ctx, "alpha")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, rt.spawnCount())
	assert.Equal(t, []string{"alpha"}, m.ActiveProjects())
}

func TestStartAgentSessionSeparateProjects(t *testing.T) {
	rt := &stubRuntime{}
	m, _ := newTestManager(t, rt)
	ctx := context.Background()

	a, err := m.StartAgentSession(ctx, "alpha")
	require.NoError(t, err)
	b, err := m.StartAgentSession(ctx, "beta")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, rt.spawnCount())

	got, ok := m.Session("beta")
	require.True(t, ok)
	assert.Same(t, b, got)
}

func TestLaunchProjectFailureNotifies(t *testing.T) {
	rt := &stubRuntime{spawnErr: errors.New("no such binary")}
	m, eventBus := newTestManager(t, rt)

	sub, err := eventBus.Subscribe()
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.Error(t, m.LaunchProject(context.Background(), "alpha"))

	select {
	case event := <-sub.Events():
		require.Equal(t, bus.EventSystemNotification, event.Type)
		assert.Equal(t, bus.LevelError, event.Notify.Level)
		assert.Contains(t, event.Notify.Message, "alpha")
	case <-time.After(2 * time.Second):
		t.Fatal("no failure notification on the bus")
	}

	_, ok := m.Session("alpha")
	assert.False(t, ok)
}

func TestExecCommand(t *testing.T) {
	rt := &stubRuntime{}
	m, _ := newTestManager(t, rt)

	out, err := m.ExecCommand(context.Background(), "alpha", "git status")
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)
	assert.Equal(t, "git status", rt.captured)
}

func TestListProjects(t *testing.T) {
	rt := &stubRuntime{projects: []string{"alpha", "beta"}}
	m, _ := newTestManager(t, rt)

	got, err := m.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, got)
}
