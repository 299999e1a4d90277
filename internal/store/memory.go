package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/opt"
)

// Memory is an in-process Store.
type Memory struct {
	mu      sync.Mutex
	tasks   map[string]*model.Task
	best    map[string]Record
	metrics map[string]map[string]opt.Metrics

	outbox      map[string]*memNotification
	outboxOrder []string
	dlq         []map[string]any
}

// memNotification augments Notification with scheduling state.
type memNotification struct {
	Notification
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func NewMemory() *Memory {
	return &Memory{
		tasks:   map[string]*model.Task{},
		best:    map[string]Record{},
		metrics: map[string]map[string]opt.Metrics{},
		outbox:  map[string]*memNotification{},
	}
}

func (m *Memory) GetTask(ctx context.Context, id string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

func (m *Memory) PutTask(ctx context.Context, id string, task *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[id] = task
	return nil
}

func (m *Memory) ListProblems(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.tasks))
	for id := range m.tasks {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids, nil
}

func (m *Memory) GetBest(ctx context.Context, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.best[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	r.Solution = r.Solution.Clone()
	return r, nil
}

func (m *Memory) SaveIfBetter(ctx context.Context, id string, sol model.Solution, score int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.best[id]; ok && cur.Score >= score {
		return false, nil
	}
	m.best[id] = Record{ProblemID: id, Solution: sol.Clone(), Score: score, UpdatedAt: time.Now().UTC()}
	return true, nil
}

func (m *Memory) SaveRunMetrics(ctx context.Context, id, mode string, mt opt.Metrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.metrics[id] == nil {
		m.metrics[id] = map[string]opt.Metrics{}
	}
	m.metrics[id][mode] = mt
	return nil
}

func (m *Memory) ListRunMetrics(ctx context.Context, id string) (map[string]opt.Metrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]opt.Metrics{}
	for mode, mt := range m.metrics[id] {
		out[mode] = mt
	}
	return out, nil
}

func (m *Memory) EnqueueNotification(ctx context.Context, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.outbox[id] = &memNotification{
		Notification:  Notification{ID: id, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending"},
		NextAttemptAt: time.Now(),
	}
	m.outboxOrder = append(m.outboxOrder, id)
	return id, nil
}

func (m *Memory) FetchDueNotifications(ctx context.Context, limit int) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []Notification{}
	for _, id := range m.outboxOrder {
		n := m.outbox[id]
		if (n.Status == "pending" || n.Status == "retry") && !n.NextAttemptAt.After(now) {
			out = append(out, n.Notification)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkNotification(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.outbox[id]
	if n == nil {
		return ErrNotFound
	}
	n.Attempts++
	n.ResponseCode = responseCode
	n.LatencyMs = latencyMs
	if success {
		n.Status = "delivered"
		now := time.Now()
		n.DeliveredAt = &now
		return nil
	}
	n.Status = "retry"
	n.LastError = lastError
	if nextAttemptAt != nil {
		n.NextAttemptAt = *nextAttemptAt
	} else {
		n.NextAttemptAt = time.Now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailNotification(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.outbox[id]
	if n == nil {
		return ErrNotFound
	}
	n.Attempts++
	n.Status = "failed"
	n.LastError = lastError
	m.dlq = append(m.dlq, map[string]any{"id": id, "lastError": lastError, "responseCode": responseCode, "latencyMs": latencyMs})
	return nil
}

// DeadLetters lists notifications that exhausted their attempts.
func (m *Memory) DeadLetters() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.dlq...)
}
