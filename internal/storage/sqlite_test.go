package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"sitebuilder/internal/domain"
	"sitebuilder/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// SQLite-backed store tests — real file in a temp dir
// ─────────────────────────────────────────────────────────────

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(storage.Config{
		Driver: storage.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "builder.db"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestContentStore_RoundtripSQLite(t *testing.T) {
	db := openTestDB(t)
	s := storage.NewContentStore(db, zap.NewNop())
	ctx := context.Background()

	content := domain.SectionContent{"title": "Hello", "subtitle": "World", domain.ModelKey: "hero-1"}
	if err := s.SaveContent(ctx, "p", domain.SectionHero, content, 1); err != nil {
		t.Fatal(err)
	}
	// Second write of the same content is a no-op state-wise.
	if err := s.SaveContent(ctx, "p", domain.SectionHero, content, 1); err != nil {
		t.Fatal(err)
	}

	records := s.GetContent(ctx, "p")
	if len(records) != 1 {
		t.Fatalf("sections = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.Key != domain.SectionHero || rec.Order != 1 {
		t.Errorf("record = %+v", rec)
	}
	if rec.Content["title"] != "Hello" || rec.Content.Model() != "hero-1" {
		t.Errorf("content = %v", rec.Content)
	}
}

func TestContentStore_UpdateOrderSQLite(t *testing.T) {
	db := openTestDB(t)
	s := storage.NewContentStore(db, zap.NewNop())
	ctx := context.Background()

	s.SaveContent(ctx, "p", domain.SectionMenu, domain.SectionContent{"a": "1"}, 1)
	s.SaveContent(ctx, "p", domain.SectionHero, domain.SectionContent{"a": "1"}, 2)
	s.SaveContent(ctx, "p", domain.SectionFAQ, domain.SectionContent{"a": "1"}, 3)

	if err := s.UpdateOrder(ctx, "p", []domain.SectionKey{
		domain.SectionMenu, domain.SectionFAQ, domain.SectionHero,
	}); err != nil {
		t.Fatal(err)
	}

	records := s.GetContent(ctx, "p")
	want := []domain.SectionKey{domain.SectionMenu, domain.SectionFAQ, domain.SectionHero}
	for i, rec := range records {
		if rec.Key != want[i] || rec.Order != i+1 {
			t.Fatalf("position %d = %s order %d, want %s order %d", i, rec.Key, rec.Order, want[i], i+1)
		}
	}
}

func TestContentStore_DeleteContentSQLite(t *testing.T) {
	db := openTestDB(t)
	s := storage.NewContentStore(db, zap.NewNop())
	ctx := context.Background()

	s.SaveContent(ctx, "p", domain.SectionAbout, domain.SectionContent{"body": "x", "title": "y"}, 1)
	if err := s.DeleteContent(ctx, "p", domain.SectionAbout); err != nil {
		t.Fatal(err)
	}
	if got := len(s.GetContent(ctx, "p")); got != 0 {
		t.Errorf("sections = %d, want 0", got)
	}
}

func TestContentStore_FingerprintAndChangedSinceSQLite(t *testing.T) {
	db := openTestDB(t)
	s := storage.NewContentStore(db, zap.NewNop())
	ctx := context.Background()

	before := s.ContentFingerprint(ctx, "p")
	past := time.Now().UTC().Add(-time.Minute)

	s.SaveContent(ctx, "p", domain.SectionHero, domain.SectionContent{"title": "Hello"}, 1)

	after := s.ContentFingerprint(ctx, "p")
	if after == "" || after == before {
		t.Errorf("fingerprint did not move: %q → %q", before, after)
	}

	changes, err := s.ContentChangedSince(ctx, "p", past)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 || changes[0].Field != "title" || changes[0].Value != "Hello" {
		t.Fatalf("changes = %v", changes)
	}

	future := time.Now().UTC().Add(time.Minute)
	changes, err = s.ContentChangedSince(ctx, "p", future)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 0 {
		t.Errorf("changes since the future = %v, want none", changes)
	}
}

func TestSettingsStore_RoundtripSQLite(t *testing.T) {
	db := openTestDB(t)
	s := storage.NewSettingsStore(db, zap.NewNop())
	ctx := context.Background()

	if err := s.SaveSettings(ctx, "p", domain.Settings{"plan": "pro", "style_global_text": "#000"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSettings(ctx, "p", domain.Settings{"plan": "starter"}); err != nil {
		t.Fatal(err)
	}

	got := s.GetSettings(ctx, "p")
	if got["plan"] != "starter" || got["style_global_text"] != "#000" {
		t.Errorf("settings = %v", got)
	}
	if fp := s.SettingsFingerprint(ctx, "p"); fp == "" {
		t.Error("fingerprint empty for a populated page")
	}
}

func TestGetContent_UnknownPageSQLite(t *testing.T) {
	db := openTestDB(t)
	s := storage.NewContentStore(db, zap.NewNop())
	if got := s.GetContent(context.Background(), "nope"); len(got) != 0 {
		t.Errorf("records = %v, want none", got)
	}
}
