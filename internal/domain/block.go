package domain

import (
	"context"
	"strings"
	"time"
)

// ReservedPrefix marks SectionContent fields that belong to the builder
// itself (model id, internal flags). Reserved fields are persisted like
// any other but are excluded from customization checks.
const ReservedPrefix = "_"

// ModelKey is the reserved content field holding the block's layout variant.
const ModelKey = "_model"

// SectionContent is the freeform field set of one section instance.
type SectionContent map[string]string

// Clone returns a deep copy. Duplicating a block clones content verbatim.
func (c SectionContent) Clone() SectionContent {
	out := make(SectionContent, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Customized reports whether the user has edited this section: at least
// one non-reserved field is present with a non-empty value.
func (c SectionContent) Customized() bool {
	for k, v := range c {
		if !strings.HasPrefix(k, ReservedPrefix) && v != "" {
			return true
		}
	}
	return false
}

// Model returns the layout variant stored in the reserved model field.
func (c SectionContent) Model() string {
	return c[ModelKey]
}

// SetModel stores the layout variant in the reserved model field.
func (c SectionContent) SetModel(modelID string) {
	c[ModelKey] = modelID
}

// Block is one section instance placed on a page.
type Block struct {
	ID         string         `json:"id"`
	SectionKey SectionKey     `json:"sectionKey"`
	ModelID    string         `json:"modelId"`
	Order      int            `json:"order"`
	Content    SectionContent `json:"content"`
	IsNew      bool           `json:"isNew"` // transient: drives the entrance animation, never persisted
}

// SectionRecord is one persisted section with its stored position.
type SectionRecord struct {
	Key     SectionKey     `json:"key"`
	Content SectionContent `json:"content"`
	Order   int            `json:"order"`
}

// FieldChange is one externally observed change to a persisted field.
// SectionKey is empty for settings changes.
type FieldChange struct {
	SectionKey SectionKey `json:"sectionKey,omitempty"`
	Field      string     `json:"field"`
	Value      string     `json:"value"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// ContentStore persists per-section content for a page.
//
// The backing store is shared across editing sessions with no distributed
// lock: consistency is eventual, last-write-wins per field. SaveContent is
// at-least-once, not atomic — a failing field upsert aborts the remaining
// fields but already-written ones stay written.
type ContentStore interface {
	// GetContent returns all persisted sections for a page ordered by
	// stored position ascending. Read failures are logged and surfaced as
	// an empty result so callers degrade to "no content yet".
	GetContent(ctx context.Context, pageID string) []SectionRecord

	// SaveContent upserts every field of content keyed by
	// (pageID, key, field). Writing the same content twice yields the same
	// stored state. order < 0 leaves the stored position untouched.
	SaveContent(ctx context.Context, pageID string, key SectionKey, content SectionContent, order int) error

	// DeleteContent removes every persisted field for (pageID, key).
	DeleteContent(ctx context.Context, pageID string, key SectionKey) error

	// UpdateOrder assigns each section key a 1-based position matching its
	// index. Callers must pass the complete set of section keys present on
	// the page; omitted sections keep stale positions.
	UpdateOrder(ctx context.Context, pageID string, keys []SectionKey) error

	// ContentFingerprint returns a cheap change marker for the page's
	// content rows, or "" on failure.
	ContentFingerprint(ctx context.Context, pageID string) string

	// ContentChangedSince returns fields updated after the given instant.
	ContentChangedSince(ctx context.Context, pageID string, since time.Time) ([]FieldChange, error)
}
