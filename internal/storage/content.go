package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"sitebuilder/internal/domain"
)

// ContentStore implements domain.ContentStore over a SQL database.
// One row per (page, section, field); the section's position is
// denormalized onto every row of the section.
type ContentStore struct {
	db     *DB
	logger *zap.Logger
}

// NewContentStore creates a ContentStore.
func NewContentStore(db *DB, logger *zap.Logger) *ContentStore {
	return &ContentStore{db: db, logger: logger}
}

// GetContent returns all persisted sections ordered by stored position
// ascending, ties broken by insertion order. Read failures degrade to an
// empty result so the editor can start from "no content yet".
func (s *ContentStore) GetContent(ctx context.Context, pageID string) []domain.SectionRecord {
	rows, err := s.db.conn.QueryContext(ctx, s.db.rebind(
		`SELECT section_key, field_key, field_value, section_order
		 FROM page_content WHERE page_id = ? ORDER BY section_order ASC`),
		pageID,
	)
	if err != nil {
		s.logger.Warn("get content failed", zap.String("page", pageID), zap.Error(err))
		return nil
	}
	defer rows.Close()

	bySection := make(map[domain.SectionKey]*domain.SectionRecord)
	var order []domain.SectionKey
	for rows.Next() {
		var key domain.SectionKey
		var field, value string
		var pos int
		if err := rows.Scan(&key, &field, &value, &pos); err != nil {
			s.logger.Warn("scan content row failed", zap.String("page", pageID), zap.Error(err))
			return nil
		}
		rec, ok := bySection[key]
		if !ok {
			rec = &domain.SectionRecord{Key: key, Content: domain.SectionContent{}, Order: pos}
			bySection[key] = rec
			order = append(order, key)
		}
		rec.Content[field] = value
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("read content failed", zap.String("page", pageID), zap.Error(err))
		return nil
	}

	out := make([]domain.SectionRecord, 0, len(order))
	for _, key := range order {
		out = append(out, *bySection[key])
	}
	return out
}

// SaveContent upserts every field of content. Fields are written in
// sorted key order; the first failing upsert aborts the remaining fields
// (at-least-once, no rollback of already-written fields).
func (s *ContentStore) SaveContent(ctx context.Context, pageID string, key domain.SectionKey, content domain.SectionContent, order int) error {
	fields := make([]string, 0, len(content))
	for f := range content {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	keyCols := []string{"page_id", "section_key", "field_key"}
	valCols := []string{"field_value", "updated_at"}
	if order >= 0 {
		valCols = append(valCols, "section_order")
	}
	query := s.db.rebind(s.db.upsertSQL("page_content", keyCols, valCols))

	now := time.Now().UTC()
	for _, f := range fields {
		args := []any{pageID, key, f, content[f], now}
		if order >= 0 {
			args = append(args, order)
		}
		if _, err := s.db.conn.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("save content %s/%s.%s: %w", pageID, key, f, err)
		}
	}
	return nil
}

// DeleteContent removes every persisted field for the section.
func (s *ContentStore) DeleteContent(ctx context.Context, pageID string, key domain.SectionKey) error {
	_, err := s.db.conn.ExecContext(ctx, s.db.rebind(
		`DELETE FROM page_content WHERE page_id = ? AND section_key = ?`),
		pageID, key,
	)
	if err != nil {
		return fmt.Errorf("delete content %s/%s: %w", pageID, key, err)
	}
	return nil
}

// UpdateOrder assigns each section key a 1-based position matching its
// index in keys. Must be called with the complete section set.
func (s *ContentStore) UpdateOrder(ctx context.Context, pageID string, keys []domain.SectionKey) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.db.rebind(
		`UPDATE page_content SET section_order = ?, updated_at = ? WHERE page_id = ? AND section_key = ?`))
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, key := range keys {
		if _, err := stmt.ExecContext(ctx, i+1, now, pageID, key); err != nil {
			return fmt.Errorf("update order for %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// ContentFingerprint is a cheap change marker: row count plus the newest
// update instant. "" on failure.
func (s *ContentStore) ContentFingerprint(ctx context.Context, pageID string) string {
	var count int
	var max any
	err := s.db.conn.QueryRowContext(ctx, s.db.rebind(
		`SELECT COUNT(*), MAX(updated_at) FROM page_content WHERE page_id = ?`),
		pageID,
	).Scan(&count, &max)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d:%v", count, max)
}

// ContentChangedSince returns fields updated strictly after since,
// oldest first.
func (s *ContentStore) ContentChangedSince(ctx context.Context, pageID string, since time.Time) ([]domain.FieldChange, error) {
	rows, err := s.db.conn.QueryContext(ctx, s.db.rebind(
		`SELECT section_key, field_key, field_value, updated_at
		 FROM page_content WHERE page_id = ? AND updated_at > ? ORDER BY updated_at ASC`),
		pageID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("content changed since: %w", err)
	}
	defer rows.Close()

	var changes []domain.FieldChange
	for rows.Next() {
		var c domain.FieldChange
		if err := rows.Scan(&c.SectionKey, &c.Field, &c.Value, &c.UpdatedAt); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

var _ domain.ContentStore = (*ContentStore)(nil)
