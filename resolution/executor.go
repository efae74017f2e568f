package resolution

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/roundtable/core"
)

// Creation is one side effect recorded by MemoryExecutor.
type Creation struct {
	Key       string
	Type      core.ItemType
	CreatedID string
	Payload   core.Payload
}

// MemoryExecutor is an in-memory core.ItemExecutor for tests and demos. It
// is idempotent per key: a repeated call returns the first created ID.
type MemoryExecutor struct {
	mu        sync.Mutex
	fail      map[core.ItemType]error
	byKey     map[string]string
	creations []Creation
	seq       int
}

// NewMemoryExecutor creates an executor with no scripted failures.
func NewMemoryExecutor() *MemoryExecutor {
	return &MemoryExecutor{
		fail:  make(map[core.ItemType]error),
		byKey: make(map[string]string),
	}
}

// FailOn makes every call for t fail with err until cleared with a nil err.
func (m *MemoryExecutor) FailOn(t core.ItemType, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, t)
		return
	}
	m.fail[t] = err
}

// Creations returns the recorded side effects in call order.
func (m *MemoryExecutor) Creations() []Creation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Creation, len(m.creations))
	copy(out, m.creations)
	return out
}

func (m *MemoryExecutor) create(ctx context.Context, key string, p core.Payload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.fail[p.Kind()]; ok {
		return "", err
	}
	if id, ok := m.byKey[key]; ok {
		return id, nil
	}
	m.seq++
	id := fmt.Sprintf("%s-%d", p.Kind(), m.seq)
	m.byKey[key] = id
	m.creations = append(m.creations, Creation{Key: key, Type: p.Kind(), CreatedID: id, Payload: p})
	return id, nil
}

// CreateMission implements core.ItemExecutor.
func (m *MemoryExecutor) CreateMission(ctx context.Context, key string, p core.MissionPayload) (string, error) {
	return m.create(ctx, key, p)
}

// CreateProject implements core.ItemExecutor.
func (m *MemoryExecutor) CreateProject(ctx context.Context, key string, p core.ProjectPayload) (string, error) {
	return m.create(ctx, key, p)
}

// CreateDocument implements core.ItemExecutor.
func (m *MemoryExecutor) CreateDocument(ctx context.Context, key string, p core.DocumentPayload) (string, error) {
	return m.create(ctx, key, p)
}

// ApplyCRM implements core.ItemExecutor.
func (m *MemoryExecutor) ApplyCRM(ctx context.Context, key string, p core.CRMPayload) (string, error) {
	return m.create(ctx, key, p)
}

// ScheduleFollowUp implements core.ItemExecutor.
func (m *MemoryExecutor) ScheduleFollowUp(ctx context.Context, key string, p core.FollowUpPayload) (string, error) {
	return m.create(ctx, key, p)
}

// ScheduleEvent implements core.ItemExecutor.
func (m *MemoryExecutor) ScheduleEvent(ctx context.Context, key string, p core.EventPayload) (string, error) {
	return m.create(ctx, key, p)
}

// CreateQuote implements core.ItemExecutor.
func (m *MemoryExecutor) CreateQuote(ctx context.Context, key string, p core.QuotePayload) (string, error) {
	return m.create(ctx, key, p)
}
