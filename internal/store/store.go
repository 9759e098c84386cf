package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// Store persists the translation cache and the per-image run ledger. All
// methods are safe for concurrent use by pipeline workers.
type Store interface {
	// LookupTranslation returns the cached translation for a source text hash
	// and target language, or nil on a miss.
	LookupTranslation(ctx context.Context, contentHash []byte, targetLang string) (*CachedTranslation, error)
	SaveTranslation(ctx context.Context, row CachedTranslation) error
	RecordImage(ctx context.Context, row ImageRecord) error
	Ping(ctx context.Context) error
	Close() error
}

// CachedTranslation is one cached provider response, keyed by the sha256 of
// the source text and the target language.
type CachedTranslation struct {
	ID             int64     `gorm:"primaryKey"`
	ContentHash    []byte    `gorm:"size:32;uniqueIndex:idx_translation_cache_hash_lang"`
	TargetLang     string    `gorm:"size:16;uniqueIndex:idx_translation_cache_hash_lang"`
	SourceLang     string    `gorm:"size:16"`
	OriginalText   string
	TranslatedText string
	ProviderName   string `gorm:"size:64"`
	LatencyMS      int64
	CreatedAt      time.Time
}

func (CachedTranslation) TableName() string { return "translation_cache" }

// ImageRecord is one image-ledger row describing the outcome of a pipeline pass.
type ImageRecord struct {
	ID                int64  `gorm:"primaryKey"`
	ProductID         int64  `gorm:"index"`
	ImageID           int64  `gorm:"index"`
	SourceURL         string
	ContentHash       []byte `gorm:"size:32"`
	Status            string `gorm:"size:32"`
	RegionsDetected   int
	RegionsTranslated int
	RegionsSkipped    int
	Error             string
	ProcessedAt       time.Time
}

func (ImageRecord) TableName() string { return "image_ledger" }

// Ledger statuses.
const (
	StatusTranslated = "translated"
	StatusUnchanged  = "unchanged"
	StatusFailed     = "failed"
)

type gormStore struct {
	db *gorm.DB
}

// Open connects to Postgres, migrates the two tables, and returns the store.
func Open(databaseURL string) (Store, error) {
	dsn := strings.TrimSpace(databaseURL)
	if dsn == "" {
		return nil, fmt.Errorf("database url is required")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&CachedTranslation{}, &ImageRecord{}); err != nil {
		return nil, fmt.Errorf("migrate store tables: %w", err)
	}

	return &gormStore{db: db}, nil
}

func (s *gormStore) LookupTranslation(ctx context.Context, contentHash []byte, targetLang string) (*CachedTranslation, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not initialized")
	}

	var row CachedTranslation
	err := s.db.WithContext(ctx).
		Where("content_hash = ? AND target_lang = ?", contentHash, targetLang).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query translation cache: %w", err)
	}
	return &row, nil
}

func (s *gormStore) SaveTranslation(ctx context.Context, row CachedTranslation) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not initialized")
	}
	if len(row.ContentHash) == 0 || strings.TrimSpace(row.TargetLang) == "" {
		return fmt.Errorf("content hash and target language are required")
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "content_hash"}, {Name: "target_lang"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"source_lang",
				"original_text",
				"translated_text",
				"provider_name",
				"latency_ms",
				"created_at",
			}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert translation cache: %w", err)
	}
	return nil
}

func (s *gormStore) RecordImage(ctx context.Context, row ImageRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not initialized")
	}
	if row.ProcessedAt.IsZero() {
		row.ProcessedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert image ledger row: %w", err)
	}
	return nil
}

func (s *gormStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not initialized")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("unwrap database handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (s *gormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("unwrap database handle: %w", err)
	}
	return sqlDB.Close()
}
