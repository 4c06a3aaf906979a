package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sitebuilder/internal/domain"
)

// MemoryStore is an in-memory implementation of domain.ContentStore and
// domain.SettingsStore. It backs unit tests and the offline preview
// mode; the semantics (per-field upsert, 1-based stored order, insertion
// tie-break) mirror the SQL stores.
type MemoryStore struct {
	mu       sync.Mutex
	content  map[string]map[domain.SectionKey]*memSection
	settings map[string]map[string]memValue
	seq      int

	// FailWrites makes every write return an error. Test hook for the
	// optimistic-write paths.
	FailWrites bool

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

type memSection struct {
	fields map[string]memValue
	order  int
	seq    int
}

type memValue struct {
	value     string
	updatedAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		content:  make(map[string]map[domain.SectionKey]*memSection),
		settings: make(map[string]map[string]memValue),
	}
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ── ContentStore ───────────────────────────────────────────

func (s *MemoryStore) GetContent(_ context.Context, pageID string) []domain.SectionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	page := s.content[pageID]
	keys := make([]domain.SectionKey, 0, len(page))
	for k := range page {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := page[keys[i]], page[keys[j]]
		if a.order != b.order {
			return a.order < b.order
		}
		return a.seq < b.seq
	})

	out := make([]domain.SectionRecord, 0, len(keys))
	for _, k := range keys {
		sec := page[k]
		content := make(domain.SectionContent, len(sec.fields))
		for f, v := range sec.fields {
			content[f] = v.value
		}
		out = append(out, domain.SectionRecord{Key: k, Content: content, Order: sec.order})
	}
	return out
}

func (s *MemoryStore) SaveContent(_ context.Context, pageID string, key domain.SectionKey, content domain.SectionContent, order int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return fmt.Errorf("memory store: writes disabled")
	}
	page := s.content[pageID]
	if page == nil {
		page = make(map[domain.SectionKey]*memSection)
		s.content[pageID] = page
	}
	sec := page[key]
	if sec == nil {
		s.seq++
		sec = &memSection{fields: make(map[string]memValue), seq: s.seq}
		page[key] = sec
	}
	if order >= 0 {
		sec.order = order
	}
	now := s.now()
	for f, v := range content {
		sec.fields[f] = memValue{value: v, updatedAt: now}
	}
	return nil
}

func (s *MemoryStore) DeleteContent(_ context.Context, pageID string, key domain.SectionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return fmt.Errorf("memory store: writes disabled")
	}
	delete(s.content[pageID], key)
	return nil
}

func (s *MemoryStore) UpdateOrder(_ context.Context, pageID string, keys []domain.SectionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return fmt.Errorf("memory store: writes disabled")
	}
	page := s.content[pageID]
	for i, key := range keys {
		if sec := page[key]; sec != nil {
			sec.order = i + 1
		}
	}
	return nil
}

func (s *MemoryStore) ContentFingerprint(_ context.Context, pageID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	var max time.Time
	for _, sec := range s.content[pageID] {
		for _, v := range sec.fields {
			count++
			if v.updatedAt.After(max) {
				max = v.updatedAt
			}
		}
	}
	return fmt.Sprintf("%d:%s", count, max.Format(time.RFC3339Nano))
}

func (s *MemoryStore) ContentChangedSince(_ context.Context, pageID string, since time.Time) ([]domain.FieldChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changes []domain.FieldChange
	for key, sec := range s.content[pageID] {
		for f, v := range sec.fields {
			if v.updatedAt.After(since) {
				changes = append(changes, domain.FieldChange{
					SectionKey: key,
					Field:      f,
					Value:      v.value,
					UpdatedAt:  v.updatedAt,
				})
			}
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].UpdatedAt.Before(changes[j].UpdatedAt) })
	return changes, nil
}

// ── SettingsStore ──────────────────────────────────────────

func (s *MemoryStore) GetSettings(_ context.Context, pageID string) domain.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := domain.Settings{}
	for k, v := range s.settings[pageID] {
		out[k] = v.value
	}
	return out
}

func (s *MemoryStore) SaveSettings(_ context.Context, pageID string, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWrites {
		return fmt.Errorf("memory store: writes disabled")
	}
	page := s.settings[pageID]
	if page == nil {
		page = make(map[string]memValue)
		s.settings[pageID] = page
	}
	now := s.now()
	for k, v := range settings {
		page[k] = memValue{value: v, updatedAt: now}
	}
	return nil
}

func (s *MemoryStore) SettingsFingerprint(_ context.Context, pageID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	var max time.Time
	for _, v := range s.settings[pageID] {
		count++
		if v.updatedAt.After(max) {
			max = v.updatedAt
		}
	}
	return fmt.Sprintf("%d:%s", count, max.Format(time.RFC3339Nano))
}

func (s *MemoryStore) SettingsChangedSince(_ context.Context, pageID string, since time.Time) ([]domain.FieldChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changes []domain.FieldChange
	for k, v := range s.settings[pageID] {
		if v.updatedAt.After(since) {
			changes = append(changes, domain.FieldChange{Field: k, Value: v.value, UpdatedAt: v.updatedAt})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].UpdatedAt.Before(changes[j].UpdatedAt) })
	return changes, nil
}

var (
	_ domain.ContentStore  = (*MemoryStore)(nil)
	_ domain.SettingsStore = (*MemoryStore)(nil)
)
