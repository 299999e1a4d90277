//go:build postgres_integration

package store

import (
	"os"
	"testing"

	"github.com/SlNPacifist/icfpc2023/internal/geom"
	"github.com/SlNPacifist/icfpc2023/internal/model"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close()
	if err := p.Ping(t.Context()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := p.ListProblems(t.Context()); err != nil {
		t.Fatalf("ListProblems: %v", err)
	}

	id := "it_" + t.Name()
	sol := model.NewSolution([]geom.Point{{X: 15, Y: 15}})
	ok, err := p.SaveIfBetter(t.Context(), id, sol, 10)
	if err != nil {
		t.Fatalf("SaveIfBetter: %v", err)
	}
	ok2, err := p.SaveIfBetter(t.Context(), id, sol, 10)
	if err != nil {
		t.Fatalf("SaveIfBetter: %v", err)
	}
	if ok2 {
		t.Fatalf("equal score must not replace (first ok=%v)", ok)
	}
}
