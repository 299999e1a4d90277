package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/SlNPacifist/icfpc2023/internal/model"
)

// Files keeps problems and best solutions in a data directory:
//
//	<dir>/problems/<id>.json
//	<dir>/solutions/<id>.json
//	<dir>/solutions/<id>.score
//
// Run metrics and the notification outbox stay in memory.
type Files struct {
	*Memory
	dir string
	mu  sync.Mutex
}

func NewFiles(dir string) (*Files, error) {
	for _, sub := range []string{"problems", "solutions"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, err
		}
	}
	return &Files{Memory: NewMemory(), dir: dir}, nil
}

func (f *Files) problemPath(id string) string  { return filepath.Join(f.dir, "problems", id+".json") }
func (f *Files) solutionPath(id string) string { return filepath.Join(f.dir, "solutions", id+".json") }
func (f *Files) scorePath(id string) string    { return filepath.Join(f.dir, "solutions", id+".score") }

func (f *Files) GetTask(ctx context.Context, id string) (*model.Task, error) {
	fh, err := os.Open(f.problemPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return model.ReadTask(fh)
}

func (f *Files) PutTask(ctx context.Context, id string, task *model.Task) error {
	b, err := task.MarshalJSON()
	if err != nil {
		return err
	}
	return writeAtomic(f.problemPath(id), b)
}

func (f *Files) ListProblems(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(f.dir, "problems"))
	if err != nil {
		return nil, err
	}
	ids := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sortIDs(ids)
	return ids, nil
}

// GetBest reads the stored solution. A solution without a score file
// reports math.MinInt64 so that any scored solution replaces it.
func (f *Files) GetBest(ctx context.Context, id string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readBest(id)
}

func (f *Files) readBest(id string) (Record, error) {
	fh, err := os.Open(f.solutionPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	defer fh.Close()
	sol, err := model.ReadSolution(fh)
	if err != nil {
		return Record{}, err
	}
	rec := Record{ProblemID: id, Solution: sol, Score: math.MinInt64}
	if st, err := fh.Stat(); err == nil {
		rec.UpdatedAt = st.ModTime().UTC()
	}
	raw, err := os.ReadFile(f.scorePath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return rec, nil
	}
	if err != nil {
		return Record{}, err
	}
	score, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("score file %s: %w", f.scorePath(id), err)
	}
	rec.Score = score
	return rec, nil
}

func (f *Files) SaveIfBetter(ctx context.Context, id string, sol model.Solution, score int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, err := f.readBest(id)
	switch {
	case err == nil && cur.Score >= score:
		return false, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return false, err
	}
	var buf bytes.Buffer
	if err := model.WriteSolution(&buf, sol); err != nil {
		return false, err
	}
	if err := writeAtomic(f.solutionPath(id), buf.Bytes()); err != nil {
		return false, err
	}
	if err := writeAtomic(f.scorePath(id), []byte(strconv.FormatInt(score, 10))); err != nil {
		return false, err
	}
	return true, nil
}

func writeAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
