// Package testutil provides shared test helpers for stores, clocks and fake
// generators.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/dagaz/internal/planner"
	"github.com/starford/dagaz/internal/storage"
)

// Now is the fixed instant used by tests: Saturday 2026-10-17 08:30 UTC.
var Now = time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC)

// Clock returns a clock frozen at Now.
func Clock() func() time.Time {
	return func() time.Time { return Now }
}

// TestStore creates a file-backed provider in a temporary directory.
func TestStore(t *testing.T) *storage.FS {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return store
}

// TestDB creates a temporary SQLite provider that is automatically closed.
func TestDB(t *testing.T) *storage.SQLite {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "dagaz-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SequentialIDs returns an id source yielding ai_1, ai_2, ...
func SequentialIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("ai_%d", n)
	}
}

// Generator is a scripted planner.Generator that records the prompts it sees.
type Generator struct {
	mu      sync.Mutex
	raw     string
	err     error
	prompts []planner.Prompt
}

// StaticGenerator returns a Generator that always answers raw.
func StaticGenerator(raw string) *Generator {
	return &Generator{raw: raw}
}

// FailingGenerator returns a Generator that always fails with err.
func FailingGenerator(err error) *Generator {
	return &Generator{err: err}
}

// Generate implements planner.Generator.
func (g *Generator) Generate(_ context.Context, p planner.Prompt) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, p)
	return g.raw, g.err
}

// Set replaces the scripted answer.
func (g *Generator) Set(raw string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.raw, g.err = raw, err
}

// Prompts returns the prompts received so far.
func (g *Generator) Prompts() []planner.Prompt {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]planner.Prompt(nil), g.prompts...)
}
