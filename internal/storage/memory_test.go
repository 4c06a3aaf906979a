package storage_test

import (
	"context"
	"testing"
	"time"

	"sitebuilder/internal/domain"
	"sitebuilder/internal/storage"
)

func TestMemoryStore_SaveContentIsIdempotent(t *testing.T) {
	s := storage.NewMemoryStore()
	ctx := context.Background()
	content := domain.SectionContent{"title": "Hi", "subtitle": "There"}

	s.SaveContent(ctx, "p", domain.SectionHero, content, 1)
	s.SaveContent(ctx, "p", domain.SectionHero, content, 1)

	records := s.GetContent(ctx, "p")
	if len(records) != 1 {
		t.Fatalf("sections = %d, want 1", len(records))
	}
	if len(records[0].Content) != 2 || records[0].Content["title"] != "Hi" {
		t.Errorf("content = %v", records[0].Content)
	}
}

func TestMemoryStore_NegativeOrderKeepsStoredPosition(t *testing.T) {
	s := storage.NewMemoryStore()
	ctx := context.Background()

	s.SaveContent(ctx, "p", domain.SectionHero, domain.SectionContent{"title": "Hi"}, 3)
	s.SaveContent(ctx, "p", domain.SectionHero, domain.SectionContent{"title": "Hi again"}, -1)

	records := s.GetContent(ctx, "p")
	if records[0].Order != 3 {
		t.Errorf("order = %d, want 3 kept", records[0].Order)
	}
	if records[0].Content["title"] != "Hi again" {
		t.Errorf("value not updated: %v", records[0].Content)
	}
}

func TestMemoryStore_GetContentSortsByOrder(t *testing.T) {
	s := storage.NewMemoryStore()
	ctx := context.Background()

	s.SaveContent(ctx, "p", domain.SectionFooter, domain.SectionContent{"a": "1"}, 3)
	s.SaveContent(ctx, "p", domain.SectionMenu, domain.SectionContent{"a": "1"}, 1)
	s.SaveContent(ctx, "p", domain.SectionHero, domain.SectionContent{"a": "1"}, 2)

	records := s.GetContent(ctx, "p")
	want := []domain.SectionKey{domain.SectionMenu, domain.SectionHero, domain.SectionFooter}
	for i, rec := range records {
		if rec.Key != want[i] {
			t.Fatalf("position %d = %s, want %s", i, rec.Key, want[i])
		}
	}
}

func TestMemoryStore_UpdateOrderIsOneBased(t *testing.T) {
	s := storage.NewMemoryStore()
	ctx := context.Background()
	s.SaveContent(ctx, "p", domain.SectionHero, domain.SectionContent{"a": "1"}, 1)
	s.SaveContent(ctx, "p", domain.SectionFAQ, domain.SectionContent{"a": "1"}, 2)

	s.UpdateOrder(ctx, "p", []domain.SectionKey{domain.SectionFAQ, domain.SectionHero})

	records := s.GetContent(ctx, "p")
	if records[0].Key != domain.SectionFAQ || records[0].Order != 1 {
		t.Errorf("first = %s order %d, want faq order 1", records[0].Key, records[0].Order)
	}
	if records[1].Key != domain.SectionHero || records[1].Order != 2 {
		t.Errorf("second = %s order %d, want hero order 2", records[1].Key, records[1].Order)
	}
}

func TestMemoryStore_DeleteContent(t *testing.T) {
	s := storage.NewMemoryStore()
	ctx := context.Background()
	s.SaveContent(ctx, "p", domain.SectionHero, domain.SectionContent{"a": "1"}, 1)

	s.DeleteContent(ctx, "p", domain.SectionHero)

	if got := len(s.GetContent(ctx, "p")); got != 0 {
		t.Errorf("sections = %d, want 0", got)
	}
}

func TestMemoryStore_FingerprintMovesOnWrite(t *testing.T) {
	s := storage.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return base }

	before := s.ContentFingerprint(ctx, "p")
	s.SaveContent(ctx, "p", domain.SectionHero, domain.SectionContent{"a": "1"}, 1)
	after := s.ContentFingerprint(ctx, "p")
	if before == after {
		t.Error("fingerprint must change after a write")
	}

	s.Now = func() time.Time { return base.Add(time.Minute) }
	s.SaveContent(ctx, "p", domain.SectionHero, domain.SectionContent{"a": "2"}, -1)
	if s.ContentFingerprint(ctx, "p") == after {
		t.Error("fingerprint must change after an in-place update")
	}
}

func TestMemoryStore_ContentChangedSince(t *testing.T) {
	s := storage.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Now = func() time.Time { return base }
	s.SaveContent(ctx, "p", domain.SectionHero, domain.SectionContent{"title": "old"}, 1)
	s.Now = func() time.Time { return base.Add(time.Minute) }
	s.SaveContent(ctx, "p", domain.SectionHero, domain.SectionContent{"subtitle": "new"}, -1)

	changes, err := s.ContentChangedSince(ctx, "p", base)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 || changes[0].Field != "subtitle" {
		t.Fatalf("changes = %v, want only the newer field", changes)
	}
}

func TestMemoryStore_FailWrites(t *testing.T) {
	s := storage.NewMemoryStore()
	s.FailWrites = true
	ctx := context.Background()

	if err := s.SaveContent(ctx, "p", domain.SectionHero, domain.SectionContent{"a": "1"}, 1); err == nil {
		t.Error("SaveContent should fail")
	}
	if err := s.SaveSettings(ctx, "p", domain.Settings{"k": "v"}); err == nil {
		t.Error("SaveSettings should fail")
	}
}

func TestMemoryStore_SettingsRoundtrip(t *testing.T) {
	s := storage.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return base }

	s.SaveSettings(ctx, "p", domain.Settings{"plan": "pro"})
	s.Now = func() time.Time { return base.Add(time.Second) }
	s.SaveSettings(ctx, "p", domain.Settings{"style_global_text": "#000"})

	got := s.GetSettings(ctx, "p")
	if got["plan"] != "pro" || got["style_global_text"] != "#000" {
		t.Errorf("settings = %v", got)
	}

	changes, err := s.SettingsChangedSince(ctx, "p", base)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 || changes[0].Field != "style_global_text" {
		t.Errorf("changes = %v", changes)
	}
}
