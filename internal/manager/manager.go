// Package manager owns the set of live agent bridges, one per project, and
// exposes the project-level operations the front-ends call.
package manager

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/thalassa-ai/thalassa/internal/agent/bridge"
	"github.com/thalassa-ai/thalassa/internal/agent/runtime"
	"github.com/thalassa-ai/thalassa/internal/common/logger"
	"github.com/thalassa-ai/thalassa/internal/events/bus"
)

// Manager tracks one bridge per project. Bridges are started on demand and
// live until the process exits.
type Manager struct {
	eventBus bus.EventBus
	rt       runtime.Runtime
	cfg      bridge.Config
	logger   *logger.Logger

	mu       sync.Mutex
	sessions map[string]*bridge.Session
}

func New(eventBus bus.EventBus, rt runtime.Runtime, cfg bridge.Config, log *logger.Logger) *Manager {
	return &Manager{
		eventBus: eventBus,
		rt:       rt,
		cfg:      cfg,
		logger:   log.WithFields(zap.String("component", "manager")),
		sessions: make(map[string]*bridge.Session),
	}
}

// StartAgentSession starts a bridge for the project if one is not already
// running. Starting twice for the same project returns the existing bridge.
func (m *Manager) StartAgentSession(ctx context.Context, project string) (*bridge.Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[project]; ok {
		m.mu.Unlock()
		m.logger.Debug("agent session already running", zap.String("project", project))
		return s, nil
	}
	m.mu.Unlock()

	s := bridge.New(project, m.eventBus, m.rt, m.cfg, m.logger)
	if err := s.Start(ctx); err != nil {
		return nil, fmt.Errorf("start agent session for %s: %w", project, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[project]; ok {
		// Lost the race to a concurrent start. The extra agent process is
		// orphaned until shutdown; acceptable for now.
		m.logger.Warn("duplicate agent session start", zap.String("project", project))
		return existing, nil
	}
	m.sessions[project] = s
	return s, nil
}

// Session returns the running bridge for the project, if any.
func (m *Manager) Session(project string) (*bridge.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[project]
	return s, ok
}

// ActiveProjects returns the projects with a running bridge.
func (m *Manager) ActiveProjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		out = append(out, name)
	}
	return out
}

// LaunchProject starts the project's agent session and announces the result
// on the bus so every connected front-end sees it.
func (m *Manager) LaunchProject(ctx context.Context, project string) error {
	s, err := m.StartAgentSession(ctx, project)
	if err != nil {
		notify := bus.NewNotificationEvent(bus.LevelError,
			fmt.Sprintf("Failed to launch %s: %v", project, err), nil)
		if pubErr := m.eventBus.Publish(ctx, notify); pubErr != nil {
			m.logger.Error("failed to publish launch failure", zap.Error(pubErr))
		}
		return err
	}
	m.logger.Info("project launched",
		zap.String("project", project),
		zap.String("bridge_id", s.BridgeID()))
	return nil
}

// ExecCommand runs a one-off shell command inside the project and returns
// its combined output.
func (m *Manager) ExecCommand(ctx context.Context, project, command string) (string, error) {
	m.logger.Info("executing command",
		zap.String("project", project),
		zap.String("command", command))
	out, err := m.rt.Capture(ctx, project, command)
	if err != nil {
		return out, fmt.Errorf("exec in %s: %w", project, err)
	}
	return out, nil
}

// ListProjects returns every project the runtime knows about, running or not.
func (m *Manager) ListProjects(ctx context.Context) ([]string, error) {
	return m.rt.ListProjects(ctx)
}
