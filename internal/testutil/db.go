// Package testutil holds shared helpers for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/codr1/Stitchcraft/internal/db"
	"github.com/codr1/Stitchcraft/internal/models"
	"github.com/codr1/Stitchcraft/internal/pattern"
	"github.com/codr1/Stitchcraft/internal/sampler"
	"github.com/codr1/Stitchcraft/internal/thread"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	if n, err := database.Queries.CountPatterns(context.Background()); err != nil || n != 0 {
		t.Fatalf("fresh test db: count = %d, err = %v", n, err)
	}
	return database
}

// SampleDocument returns a small valid DMC pattern document: a 3x2 chart
// using black, white and ecru with backstitch enabled.
func SampleDocument(t *testing.T) pattern.Document {
	t.Helper()

	dmc, err := thread.Lookup(thread.DMC)
	if err != nil {
		t.Fatalf("lookup dmc: %v", err)
	}
	codes := []string{"310", "blanc", "ecru", "ecru", "blanc", "310"}
	threads := make(map[string]models.ThreadColor)
	original := sampler.NewMatrix(3, 2)
	for i, code := range codes {
		th, ok := dmc.Get(code)
		if !ok {
			t.Fatalf("dmc catalog has no %s", code)
		}
		threads[code] = th
		original.Pix[i] = th.RGB
	}

	cells, err := pattern.Assemble(original, codes, pattern.AssembleOptions{Backstitch: true})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	alloc, err := pattern.AllocateSymbols(cells)
	if err != nil {
		t.Fatalf("allocate symbols: %v", err)
	}
	p, err := pattern.New(3, 2, thread.DMC, cells, threads, alloc, true)
	if err != nil {
		t.Fatalf("build pattern: %v", err)
	}
	return pattern.Encode(p)
}
