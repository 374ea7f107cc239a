package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/dagaz/internal/models"
)

func tempStore(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestFS_SaveAndLoad(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	in := []models.Entity{{ID: "e1", Type: models.TypeEvent, Title: "Standup", Date: "2026-10-19"}}
	if err := s.Save(ctx, "alice", in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, "alice")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Standup" {
		t.Errorf("got %+v", got)
	}
}

func TestFS_LoadMissingIsEmpty(t *testing.T) {
	s := tempStore(t)
	got, err := s.Load(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil", got)
	}
}

func TestFS_DocumentShape(t *testing.T) {
	s := tempStore(t)
	if err := s.Save(context.Background(), "bob", nil); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(s.Root(), "bob.json"))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if string(doc["events"]) != "[]" {
		t.Errorf("events = %s, want []", doc["events"])
	}
}

func TestFS_NoTempFilesLeft(t *testing.T) {
	s := tempStore(t)
	for i := 0; i < 3; i++ {
		if err := s.Save(context.Background(), "carol", []models.Entity{{ID: "x"}}); err != nil {
			t.Fatal(err)
		}
	}
	entries, _ := os.ReadDir(s.Root())
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tmpPrefix) {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
}

func TestFS_RejectsTraversal(t *testing.T) {
	s := tempStore(t)
	for _, user := range []string{"../etc", "a/b", "", ".hidden"} {
		if err := s.Save(context.Background(), user, nil); err == nil {
			t.Errorf("Save(%q) should fail", user)
		}
		if _, err := s.Load(context.Background(), user); err == nil {
			t.Errorf("Load(%q) should fail", user)
		}
	}
}

func TestFS_UserFromPath(t *testing.T) {
	s := tempStore(t)
	tests := map[string]string{
		filepath.Join(s.Root(), "alice.json"):            "alice",
		filepath.Join(s.Root(), tmpPrefix+"123"):         "",
		filepath.Join(s.Root(), "notes.txt"):             "",
		filepath.Join(s.Root(), "sub", "alice.json"):     "",
		filepath.Join(s.Root(), "user@example.com.json"): "user@example.com",
	}
	for path, want := range tests {
		if got := s.userFromPath(path); got != want {
			t.Errorf("userFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open("mongo", t.TempDir()); err == nil {
		t.Error("expected error for unknown driver")
	}
}
