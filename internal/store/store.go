package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/opt"
)

var ErrNotFound = errors.New("not found")

// Record is the best known solution of one problem.
type Record struct {
	ProblemID string         `json:"problemId"`
	Solution  model.Solution `json:"solution"`
	Score     int64          `json:"score"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Notification is one queued outbound webhook delivery.
type Notification struct {
	ID        string
	EventType string
	URL       string
	Secret    string
	Payload   []byte
	Status    string
	Attempts  int
}

// Store is the persistence interface used by the API server and the CLI.
type Store interface {
	// Problems
	GetTask(ctx context.Context, id string) (*model.Task, error)
	PutTask(ctx context.Context, id string, task *model.Task) error
	ListProblems(ctx context.Context) ([]string, error)

	// Best solutions. SaveIfBetter only replaces the stored solution when
	// score is strictly higher.
	GetBest(ctx context.Context, id string) (Record, error)
	SaveIfBetter(ctx context.Context, id string, sol model.Solution, score int64) (bool, error)

	// Run metrics
	SaveRunMetrics(ctx context.Context, id, mode string, m opt.Metrics) error
	ListRunMetrics(ctx context.Context, id string) (map[string]opt.Metrics, error)

	// Notification outbox
	EnqueueNotification(ctx context.Context, eventType, url, secret string, payload []byte) (string, error)
	FetchDueNotifications(ctx context.Context, limit int) ([]Notification, error)
	MarkNotification(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailNotification(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
}

// sortIDs orders problem ids numerically when both are numbers.
func sortIDs(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})
}

// Open returns a Postgres store when databaseURL is set, migrating it first,
// a Files store when dataDir is set, and a Memory store otherwise.
func Open(ctx context.Context, databaseURL, dataDir string) (Store, error) {
	switch {
	case strings.TrimSpace(databaseURL) != "":
		p, err := NewPostgres(databaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := p.Migrate(ctx); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		return p, nil
	case dataDir != "":
		f, err := NewFiles(dataDir)
		if err != nil {
			return nil, fmt.Errorf("data dir: %w", err)
		}
		return f, nil
	default:
		return NewMemory(), nil
	}
}
