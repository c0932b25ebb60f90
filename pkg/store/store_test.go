package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"
)

// setupTestStore creates a new SQLite database file and a Store for testing.
// It uses t.Cleanup to ensure resources are released.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}
	// A second call must be harmless.
	if err := SetupSchema(db); err != nil {
		t.Fatalf("SetupSchema is not idempotent: %v", err)
	}

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestPutGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	first, err := s.Put(ctx, "hello", "Hi <%= name %>")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if first.Revision == "" || first.ID == 0 || first.Size != len("Hi <%= name %>") {
		t.Fatalf("unexpected info: %+v", first)
	}

	got, err := s.Get(ctx, "hello")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Source != "Hi <%= name %>" || got.Revision != first.Revision {
		t.Errorf("unexpected template: %+v", got)
	}

	t.Run("Unchanged source keeps the revision", func(t *testing.T) {
		again, err := s.Put(ctx, "hello", "Hi <%= name %>")
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if again.Revision != first.Revision {
			t.Errorf("expected revision %s, got %s", first.Revision, again.Revision)
		}
	})

	t.Run("New source creates a revision", func(t *testing.T) {
		second, err := s.Put(ctx, "hello", "Hello <%= name %>")
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if second.Revision == first.Revision || second.ID != first.ID {
			t.Errorf("expected a new revision of the same template, got %+v", second)
		}
		got, err := s.Get(ctx, "hello")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Source != "Hello <%= name %>" || got.Revision != second.Revision {
			t.Errorf("expected the newest revision, got %+v", got)
		}

		history, err := s.History(ctx, "hello")
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		var ids []string
		for _, rev := range history {
			ids = append(ids, rev.ID)
		}
		if diff := cmp.Diff([]string{second.Revision, first.Revision}, ids); diff != "" {
			t.Errorf("history mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("Missing template", func(t *testing.T) {
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := s.History(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Invalid names", func(t *testing.T) {
		for _, name := range []string{"", "a/b", "a@1", "a b"} {
			if _, err := s.Put(ctx, name, "x"); !errors.Is(err, ErrInvalidName) {
				t.Errorf("Put(%q): expected ErrInvalidName, got %v", name, err)
			}
		}
	})
}

func TestListAndDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"b", "a", "c"} {
		if _, err := s.Put(ctx, name, "source of "+name); err != nil {
			t.Fatalf("Put(%q) failed: %v", name, err)
		}
	}
	if _, err := s.Put(ctx, "a", "newer source of a"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	infos, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	var names []string
	for _, info := range infos {
		names = append(names, info.Name)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, names); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
	if infos[0].Size != len("newer source of a") {
		t.Errorf("expected the current revision's size, got %d", infos[0].Size)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.Templates != 2 || stats.Revisions != 2 {
		t.Errorf("expected 2 templates and 2 revisions, got %+v", stats)
	}
}

func TestRecordRender(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	if _, err := s.Put(ctx, "page", "x"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.RecordRender(ctx, "page", 10*time.Millisecond, false); err != nil {
		t.Fatalf("RecordRender failed: %v", err)
	}
	if err := s.RecordRender(ctx, "page", 30*time.Millisecond, true); err != nil {
		t.Fatalf("RecordRender failed: %v", err)
	}
	if err := s.RecordRender(ctx, "missing", time.Millisecond, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	want := RenderStats{
		Renders:       2,
		Failures:      1,
		TotalDuration: 40 * time.Millisecond,
		LastRender:    fixed,
	}
	if diff := cmp.Diff(want, stats.Renders["page"]); diff != "" {
		t.Errorf("render stats mismatch (-want +got):\n%s", diff)
	}
	if avg := stats.Renders["page"].AverageDuration(); avg != 20*time.Millisecond {
		t.Errorf("expected 20ms average, got %v", avg)
	}
}

func TestExportImport(t *testing.T) {
	src := setupTestStore(t)
	ctx := context.Background()
	for name, body := range map[string]string{"one": "1 <%= a %>", "two": "2 <%- b %>"} {
		if _, err := src.Put(ctx, name, body); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := src.Export(ctx, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	exported := buf.String()

	dst := setupTestStore(t)
	if _, err := dst.Put(ctx, "one", "1 <%= a %>"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	changed, err := dst.Import(ctx, bytes.NewBufferString(exported))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if changed != 1 {
		t.Errorf("expected only the missing template to change, got %d", changed)
	}
	got, err := dst.Get(ctx, "two")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Source != "2 <%- b %>" {
		t.Errorf("unexpected imported source %q", got.Source)
	}

	if _, err := dst.Import(ctx, bytes.NewBufferString("{not json")); err == nil {
		t.Error("expected an error for malformed input")
	}
}
