package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/SlNPacifist/icfpc2023/internal/model"
	"github.com/SlNPacifist/icfpc2023/internal/opt"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the bundled schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	return p.migrateFS(ctx, sub)
}

// MigrateDir applies every *.sql file in dir in lexical order.
func (p *Postgres) MigrateDir(ctx context.Context, dir string) error {
	return p.migrateFS(ctx, os.DirFS(dir))
}

func (p *Postgres) migrateFS(ctx context.Context, fsys fs.FS) error {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return err
		}
		if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
	}
	return nil
}

func (p *Postgres) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT task FROM problems WHERE id=$1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var t model.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("problem %s: %w", id, err)
	}
	return &t, nil
}

func (p *Postgres) PutTask(ctx context.Context, id string, task *model.Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO problems (id, task) VALUES ($1,$2)
		ON CONFLICT (id) DO UPDATE SET task=EXCLUDED.task`, id, raw)
	return err
}

func (p *Postgres) ListProblems(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id FROM problems`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortIDs(ids)
	return ids, nil
}

func (p *Postgres) GetBest(ctx context.Context, id string) (Record, error) {
	rec := Record{ProblemID: id}
	var raw []byte
	err := p.db.QueryRowContext(ctx, `SELECT solution, score, updated_at FROM solutions WHERE problem_id=$1`, id).
		Scan(&raw, &rec.Score, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(raw, &rec.Solution); err != nil {
		return Record{}, fmt.Errorf("solution %s: %w", id, err)
	}
	return rec, nil
}

func (p *Postgres) SaveIfBetter(ctx context.Context, id string, sol model.Solution, score int64) (bool, error) {
	raw, err := json.Marshal(sol)
	if err != nil {
		return false, err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var cur int64
	err = tx.QueryRowContext(ctx, `SELECT score FROM solutions WHERE problem_id=$1 FOR UPDATE`, id).Scan(&cur)
	switch {
	case err == nil && cur >= score:
		return false, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return false, err
	}
	// A concurrent first insert can slip past the row lock; the WHERE keeps it monotonic.
	res, err := tx.ExecContext(ctx, `INSERT INTO solutions (problem_id, solution, score, updated_at) VALUES ($1,$2,$3,now())
		ON CONFLICT (problem_id) DO UPDATE SET solution=EXCLUDED.solution, score=EXCLUDED.score, updated_at=now()
		WHERE solutions.score < EXCLUDED.score`, id, raw, score)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *Postgres) SaveRunMetrics(ctx context.Context, id, mode string, m opt.Metrics) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO run_metrics (problem_id, mode, metrics) VALUES ($1,$2,$3)
		ON CONFLICT (problem_id, mode) DO UPDATE SET metrics=EXCLUDED.metrics, updated_at=now()`, id, mode, raw)
	return err
}

func (p *Postgres) ListRunMetrics(ctx context.Context, id string) (map[string]opt.Metrics, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT mode, metrics FROM run_metrics WHERE problem_id=$1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]opt.Metrics{}
	for rows.Next() {
		var mode string
		var raw []byte
		if err := rows.Scan(&mode, &raw); err != nil {
			return nil, err
		}
		var m opt.Metrics
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		out[mode] = m
	}
	return out, rows.Err()
}

func (p *Postgres) EnqueueNotification(ctx context.Context, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	dk := computeDedupKey(payload)
	_, err := p.db.ExecContext(ctx, `INSERT INTO notifications (id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
		VALUES ($1,$2,$3,$4,$5,'pending',0,now(),$6)
		ON CONFLICT (event_type, url, dedup_key) DO NOTHING`, id, eventType, url, nullIfEmpty(secret), payload, dk)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueNotifications(ctx context.Context, limit int) ([]Notification, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, event_type, url, COALESCE(secret,''), payload, status, attempts
		FROM notifications WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.EventType, &n.URL, &n.Secret, &n.Payload, &n.Status, &n.Attempts); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkNotification(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil {
			t := time.Now().Add(time.Minute)
			nextAttemptAt = &t
		}
		_, err := p.db.ExecContext(ctx, `UPDATE notifications SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3,
			updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`, id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE notifications SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(),
		response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailNotification(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE notifications SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(),
		response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

// computeDedupKey uses the payload's "id" field, falling back to a short hash.
func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
