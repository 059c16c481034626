package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jwebster45206/arq-village/pkg/activity"
	"github.com/jwebster45206/arq-village/pkg/state"
	"github.com/jwebster45206/arq-village/pkg/world"
)

// MockStorage is a mock implementation of Storage for testing
type MockStorage struct {
	mu         sync.RWMutex
	agent      *state.AgentState
	activity   []activity.Entry // newest first
	credential string
	changes    map[world.Position]world.CellKind
	pingError  error
	saveError  error

	SaveAgentCalls int
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		changes: make(map[world.Position]world.CellKind),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetSaveError makes every write fail with err.
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

// Ping mocks storage ping
func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close mocks storage close
func (m *MockStorage) Close() error {
	return nil
}

// SaveAgent stores a copy of s.
func (m *MockStorage) SaveAgent(ctx context.Context, s *state.AgentState) error {
	if s == nil {
		return errors.New("agent state cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveAgentCalls++
	if m.saveError != nil {
		return m.saveError
	}
	m.agent = s.Clone()
	return nil
}

// LoadAgent returns a copy of the stored agent, or nil.
func (m *MockStorage) LoadAgent(ctx context.Context) (*state.AgentState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.agent == nil {
		return nil, nil
	}
	return m.agent.Clone(), nil
}

func (m *MockStorage) AppendActivity(ctx context.Context, e activity.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	m.activity = append([]activity.Entry{e}, m.activity...)
	if len(m.activity) > ActivityLimit {
		m.activity = m.activity[:ActivityLimit]
	}
	return nil
}

func (m *MockStorage) ListActivity(ctx context.Context, limit int) ([]activity.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.activity) {
		limit = len(m.activity)
	}
	return append([]activity.Entry(nil), m.activity[:limit]...), nil
}

func (m *MockStorage) SaveCredential(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	m.credential = key
	return nil
}

func (m *MockStorage) LoadCredential(ctx context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.credential, nil
}

func (m *MockStorage) AddWorldChange(ctx context.Context, c world.WorldChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	m.changes[world.Position{Row: c.Row, Col: c.Col}] = c.Kind
	return nil
}

func (m *MockStorage) ListWorldChanges(ctx context.Context) ([]world.WorldChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]world.WorldChange, 0, len(m.changes))
	for p, k := range m.changes {
		out = append(out, world.WorldChange{Row: p.Row, Col: p.Col, Kind: k})
	}
	SortChanges(out)
	return out, nil
}

// SortChanges orders changes by row, then column.
func SortChanges(changes []world.WorldChange) {
	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Row != changes[j].Row {
			return changes[i].Row < changes[j].Row
		}
		return changes[i].Col < changes[j].Col
	})
}
