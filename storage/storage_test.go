package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

// newTestStore creates a Store backed by a temporary SQLite database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleDocument(num, agency string) *Document {
	return &Document{
		DocumentNumber:  num,
		Title:           "Air Quality Designations",
		AgencySlug:      agency,
		PublicationDate: "2021-04-29",
		Content:         "This action finalizes designations for several areas.",
		ContentSource:   "primary",
		ContentLength:   54,
	}
}

func TestNew(t *testing.T) {
	t.Run("creates database and tables", func(t *testing.T) {
		s := newTestStore(t)
		if _, err := s.db.Exec("SELECT COUNT(*) FROM documents"); err != nil {
			t.Errorf("documents table missing: %v", err)
		}
		if _, err := s.db.Exec("SELECT COUNT(*) FROM runs"); err != nil {
			t.Errorf("runs table missing: %v", err)
		}
	})

	t.Run("invalid path returns error", func(t *testing.T) {
		_, err := New("/nonexistent/dir/db.sqlite")
		if err == nil {
			t.Fatal("expected error for invalid path, got nil")
		}
	})
}

func TestSaveAndGetDocument(t *testing.T) {
	s := newTestStore(t)

	doc := sampleDocument("2021-08964", "environmental-protection-agency")
	if err := s.SaveDocument(doc); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}

	got, err := s.GetDocument("2021-08964")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got == nil {
		t.Fatal("expected document, got nil")
	}
	if got.Title != doc.Title || got.Content != doc.Content || got.ContentSource != "primary" {
		t.Errorf("got %+v", got)
	}
	if got.FetchedAt.IsZero() {
		t.Error("FetchedAt not populated on save")
	}

	// INSERT OR REPLACE: saving again updates in place.
	doc.Content = "Revised content after a re-fetch of the document."
	doc.ContentSource = "secondary"
	if err := s.SaveDocument(doc); err != nil {
		t.Fatalf("SaveDocument (replace): %v", err)
	}
	got, err = s.GetDocument("2021-08964")
	if err != nil {
		t.Fatalf("GetDocument after replace: %v", err)
	}
	if got.ContentSource != "secondary" {
		t.Errorf("ContentSource = %q, want secondary after replace", got.ContentSource)
	}

	t.Run("not found", func(t *testing.T) {
		got, err := s.GetDocument("2099-99999")
		if err != nil {
			t.Fatalf("GetDocument: %v", err)
		}
		if got != nil {
			t.Errorf("expected nil, got %+v", got)
		}
	})
}

func TestGetDocumentsByAgency(t *testing.T) {
	s := newTestStore(t)

	docs := []*Document{
		{DocumentNumber: "2021-00001", AgencySlug: "epa", PublicationDate: "2021-01-10"},
		{DocumentNumber: "2021-00002", AgencySlug: "epa", PublicationDate: "2021-03-05"},
		{DocumentNumber: "2021-00003", AgencySlug: "fda", PublicationDate: "2021-02-01"},
	}
	for _, d := range docs {
		if err := s.SaveDocument(d); err != nil {
			t.Fatalf("SaveDocument(%s): %v", d.DocumentNumber, err)
		}
	}

	got, err := s.GetDocumentsByAgency("epa", 0)
	if err != nil {
		t.Fatalf("GetDocumentsByAgency: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d documents, want 2", len(got))
	}
	if got[0].DocumentNumber != "2021-00002" {
		t.Errorf("first document = %s, want newest publication first", got[0].DocumentNumber)
	}

	limited, err := s.GetDocumentsByAgency("epa", 1)
	if err != nil {
		t.Fatalf("GetDocumentsByAgency limited: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("got %d documents with limit 1", len(limited))
	}

	count, err := s.CountByAgency("epa")
	if err != nil {
		t.Fatalf("CountByAgency: %v", err)
	}
	if count != 2 {
		t.Errorf("CountByAgency = %d, want 2", count)
	}
}

func TestSaveAndListRuns(t *testing.T) {
	s := newTestStore(t)

	early := time.Now().Add(-time.Hour).UTC()
	runs := []*Run{
		{ID: uuid.NewString(), AgencySlug: "epa", Attempted: 45, Succeeded: 40,
			Failed: 5, StartedAt: early, Elapsed: 90 * time.Second},
		{ID: uuid.NewString(), AgencySlug: "fda", Attempted: 10, Succeeded: 10,
			StartedAt: time.Now().UTC(), Elapsed: 12 * time.Second, Incomplete: true},
	}
	for _, r := range runs {
		if err := s.SaveRun(r); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	got, err := s.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d runs, want 2", len(got))
	}
	if got[0].AgencySlug != "fda" {
		t.Errorf("first run = %s, want newest first", got[0].AgencySlug)
	}
	if !got[0].Incomplete {
		t.Error("Incomplete flag not persisted")
	}
	if got[1].Elapsed != 90*time.Second {
		t.Errorf("Elapsed = %s, want 90s", got[1].Elapsed)
	}
}

func TestCloseAndReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "reopen.db")

	s1, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s1.SaveDocument(sampleDocument("2021-08964", "epa")); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := New(dbPath)
	if err != nil {
		t.Fatalf("New (reopen): %v", err)
	}
	defer s2.Close()

	got, err := s2.GetDocument("2021-08964")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got == nil || got.AgencySlug != "epa" {
		t.Errorf("document did not survive reopen: %+v", got)
	}
}
