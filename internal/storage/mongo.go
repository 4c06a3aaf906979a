package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"sitebuilder/internal/domain"
)

// MongoStore implements domain.ContentStore and domain.SettingsStore on
// MongoDB, the remote store for shared deployments. One document per
// (page, section, field) and per (page, setting).
type MongoStore struct {
	client   *mongo.Client
	content  *mongo.Collection
	settings *mongo.Collection
	logger   *zap.Logger
}

type contentDoc struct {
	PageID       string    `bson:"page_id"`
	SectionKey   string    `bson:"section_key"`
	FieldKey     string    `bson:"field_key"`
	FieldValue   string    `bson:"field_value"`
	SectionOrder int       `bson:"section_order"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type settingDoc struct {
	PageID       string    `bson:"page_id"`
	SettingKey   string    `bson:"setting_key"`
	SettingValue string    `bson:"setting_value"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// OpenMongo connects to MongoDB and verifies connectivity.
func OpenMongo(ctx context.Context, cfg Config, logger *zap.Logger) (*MongoStore, error) {
	port := cfg.Port
	if port == 0 {
		port = 27017
	}
	var uri string
	if cfg.Username != "" {
		uri = fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.Username, cfg.Password, cfg.Host, port)
	} else {
		uri = fmt.Sprintf("mongodb://%s:%d", cfg.Host, port)
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	return &MongoStore{
		client:   client,
		content:  db.Collection("page_content"),
		settings: db.Collection("page_settings"),
		logger:   logger,
	}, nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// ── ContentStore ───────────────────────────────────────────

func (s *MongoStore) GetContent(ctx context.Context, pageID string) []domain.SectionRecord {
	cursor, err := s.content.Find(ctx, bson.M{"page_id": pageID},
		options.Find().SetSort(bson.D{{Key: "section_order", Value: 1}}))
	if err != nil {
		s.logger.Warn("get content failed", zap.String("page", pageID), zap.Error(err))
		return nil
	}
	defer cursor.Close(ctx)

	bySection := make(map[domain.SectionKey]*domain.SectionRecord)
	var order []domain.SectionKey
	for cursor.Next(ctx) {
		var doc contentDoc
		if err := cursor.Decode(&doc); err != nil {
			s.logger.Warn("decode content doc failed", zap.String("page", pageID), zap.Error(err))
			return nil
		}
		key := domain.SectionKey(doc.SectionKey)
		rec, ok := bySection[key]
		if !ok {
			rec = &domain.SectionRecord{Key: key, Content: domain.SectionContent{}, Order: doc.SectionOrder}
			bySection[key] = rec
			order = append(order, key)
		}
		rec.Content[doc.FieldKey] = doc.FieldValue
	}
	if err := cursor.Err(); err != nil {
		s.logger.Warn("read content failed", zap.String("page", pageID), zap.Error(err))
		return nil
	}

	out := make([]domain.SectionRecord, 0, len(order))
	for _, key := range order {
		out = append(out, *bySection[key])
	}
	return out
}

func (s *MongoStore) SaveContent(ctx context.Context, pageID string, key domain.SectionKey, content domain.SectionContent, order int) error {
	fields := make([]string, 0, len(content))
	for f := range content {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	now := time.Now().UTC()
	for _, f := range fields {
		filter := bson.M{"page_id": pageID, "section_key": string(key), "field_key": f}
		set := bson.M{"field_value": content[f], "updated_at": now}
		if order >= 0 {
			set["section_order"] = order
		}
		_, err := s.content.UpdateOne(ctx, filter,
			bson.M{"$set": set, "$setOnInsert": bson.M{"page_id": pageID, "section_key": string(key), "field_key": f}},
			options.UpdateOne().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("save content %s/%s.%s: %w", pageID, key, f, err)
		}
	}
	return nil
}

func (s *MongoStore) DeleteContent(ctx context.Context, pageID string, key domain.SectionKey) error {
	_, err := s.content.DeleteMany(ctx, bson.M{"page_id": pageID, "section_key": string(key)})
	if err != nil {
		return fmt.Errorf("delete content %s/%s: %w", pageID, key, err)
	}
	return nil
}

func (s *MongoStore) UpdateOrder(ctx context.Context, pageID string, keys []domain.SectionKey) error {
	now := time.Now().UTC()
	for i, key := range keys {
		_, err := s.content.UpdateMany(ctx,
			bson.M{"page_id": pageID, "section_key": string(key)},
			bson.M{"$set": bson.M{"section_order": i + 1, "updated_at": now}})
		if err != nil {
			return fmt.Errorf("update order for %s: %w", key, err)
		}
	}
	return nil
}

func (s *MongoStore) ContentFingerprint(ctx context.Context, pageID string) string {
	return s.fingerprint(ctx, s.content, pageID)
}

func (s *MongoStore) ContentChangedSince(ctx context.Context, pageID string, since time.Time) ([]domain.FieldChange, error) {
	cursor, err := s.content.Find(ctx,
		bson.M{"page_id": pageID, "updated_at": bson.M{"$gt": since}},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("content changed since: %w", err)
	}
	defer cursor.Close(ctx)

	var changes []domain.FieldChange
	for cursor.Next(ctx) {
		var doc contentDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		changes = append(changes, domain.FieldChange{
			SectionKey: domain.SectionKey(doc.SectionKey),
			Field:      doc.FieldKey,
			Value:      doc.FieldValue,
			UpdatedAt:  doc.UpdatedAt,
		})
	}
	return changes, cursor.Err()
}

// ── SettingsStore ──────────────────────────────────────────

func (s *MongoStore) GetSettings(ctx context.Context, pageID string) domain.Settings {
	cursor, err := s.settings.Find(ctx, bson.M{"page_id": pageID})
	if err != nil {
		s.logger.Warn("get settings failed", zap.String("page", pageID), zap.Error(err))
		return domain.Settings{}
	}
	defer cursor.Close(ctx)

	settings := domain.Settings{}
	for cursor.Next(ctx) {
		var doc settingDoc
		if err := cursor.Decode(&doc); err != nil {
			s.logger.Warn("decode setting failed", zap.String("page", pageID), zap.Error(err))
			return domain.Settings{}
		}
		settings[doc.SettingKey] = doc.SettingValue
	}
	if err := cursor.Err(); err != nil {
		s.logger.Warn("read settings failed", zap.String("page", pageID), zap.Error(err))
		return domain.Settings{}
	}
	return settings
}

func (s *MongoStore) SaveSettings(ctx context.Context, pageID string, settings domain.Settings) error {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := time.Now().UTC()
	for _, k := range keys {
		filter := bson.M{"page_id": pageID, "setting_key": k}
		_, err := s.settings.UpdateOne(ctx, filter,
			bson.M{
				"$set":         bson.M{"setting_value": settings[k], "updated_at": now},
				"$setOnInsert": bson.M{"page_id": pageID, "setting_key": k},
			},
			options.UpdateOne().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("save setting %s/%s: %w", pageID, k, err)
		}
	}
	return nil
}

func (s *MongoStore) SettingsFingerprint(ctx context.Context, pageID string) string {
	return s.fingerprint(ctx, s.settings, pageID)
}

func (s *MongoStore) SettingsChangedSince(ctx context.Context, pageID string, since time.Time) ([]domain.FieldChange, error) {
	cursor, err := s.settings.Find(ctx,
		bson.M{"page_id": pageID, "updated_at": bson.M{"$gt": since}},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("settings changed since: %w", err)
	}
	defer cursor.Close(ctx)

	var changes []domain.FieldChange
	for cursor.Next(ctx) {
		var doc settingDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		changes = append(changes, domain.FieldChange{
			Field:     doc.SettingKey,
			Value:     doc.SettingValue,
			UpdatedAt: doc.UpdatedAt,
		})
	}
	return changes, cursor.Err()
}

func (s *MongoStore) fingerprint(ctx context.Context, coll *mongo.Collection, pageID string) string {
	count, err := coll.CountDocuments(ctx, bson.M{"page_id": pageID})
	if err != nil {
		return ""
	}
	var newest struct {
		UpdatedAt time.Time `bson:"updated_at"`
	}
	err = coll.FindOne(ctx, bson.M{"page_id": pageID},
		options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})).Decode(&newest)
	if err != nil && err != mongo.ErrNoDocuments {
		return ""
	}
	return fmt.Sprintf("%d:%s", count, newest.UpdatedAt.Format(time.RFC3339Nano))
}

var (
	_ domain.ContentStore  = (*MongoStore)(nil)
	_ domain.SettingsStore = (*MongoStore)(nil)
)
