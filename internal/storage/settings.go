package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"sitebuilder/internal/domain"
)

// SettingsStore implements domain.SettingsStore over a SQL database.
type SettingsStore struct {
	db     *DB
	logger *zap.Logger
}

// NewSettingsStore creates a SettingsStore.
func NewSettingsStore(db *DB, logger *zap.Logger) *SettingsStore {
	return &SettingsStore{db: db, logger: logger}
}

// GetSettings returns all settings for a page. Read failures degrade to
// an empty result.
func (s *SettingsStore) GetSettings(ctx context.Context, pageID string) domain.Settings {
	rows, err := s.db.conn.QueryContext(ctx, s.db.rebind(
		`SELECT setting_key, setting_value FROM page_settings WHERE page_id = ?`),
		pageID,
	)
	if err != nil {
		s.logger.Warn("get settings failed", zap.String("page", pageID), zap.Error(err))
		return domain.Settings{}
	}
	defer rows.Close()

	settings := domain.Settings{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			s.logger.Warn("scan setting failed", zap.String("page", pageID), zap.Error(err))
			return domain.Settings{}
		}
		settings[k] = v
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("read settings failed", zap.String("page", pageID), zap.Error(err))
		return domain.Settings{}
	}
	return settings
}

// SaveSettings upserts every key in sorted order. The first failing
// upsert aborts the remaining keys.
func (s *SettingsStore) SaveSettings(ctx context.Context, pageID string, settings domain.Settings) error {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	query := s.db.rebind(s.db.upsertSQL("page_settings",
		[]string{"page_id", "setting_key"},
		[]string{"setting_value", "updated_at"},
	))
	now := time.Now().UTC()
	for _, k := range keys {
		if _, err := s.db.conn.ExecContext(ctx, query, pageID, k, settings[k], now); err != nil {
			return fmt.Errorf("save setting %s/%s: %w", pageID, k, err)
		}
	}
	return nil
}

// SettingsFingerprint is a cheap change marker, "" on failure.
func (s *SettingsStore) SettingsFingerprint(ctx context.Context, pageID string) string {
	var count int
	var max any
	err := s.db.conn.QueryRowContext(ctx, s.db.rebind(
		`SELECT COUNT(*), MAX(updated_at) FROM page_settings WHERE page_id = ?`),
		pageID,
	).Scan(&count, &max)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d:%v", count, max)
}

// SettingsChangedSince returns keys updated strictly after since.
func (s *SettingsStore) SettingsChangedSince(ctx context.Context, pageID string, since time.Time) ([]domain.FieldChange, error) {
	rows, err := s.db.conn.QueryContext(ctx, s.db.rebind(
		`SELECT setting_key, setting_value, updated_at
		 FROM page_settings WHERE page_id = ? AND updated_at > ? ORDER BY updated_at ASC`),
		pageID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("settings changed since: %w", err)
	}
	defer rows.Close()

	var changes []domain.FieldChange
	for rows.Next() {
		var c domain.FieldChange
		if err := rows.Scan(&c.Field, &c.Value, &c.UpdatedAt); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

var _ domain.SettingsStore = (*SettingsStore)(nil)
