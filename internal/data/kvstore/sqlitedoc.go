package kvstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

type kvDocument struct {
	Collection string         `gorm:"primaryKey;size:128"`
	ID         string         `gorm:"primaryKey;size:64"`
	Doc        datatypes.JSON `gorm:"not null"`
}

func (kvDocument) TableName() string { return "kv_documents" }

type kvSetMember struct {
	Key    string `gorm:"primaryKey;size:256"`
	Member string `gorm:"primaryKey;size:256"`
}

func (kvSetMember) TableName() string { return "kv_set_members" }

type kvCounter struct {
	Key   string `gorm:"primaryKey;size:256"`
	Value int64  `gorm:"not null"`
}

func (kvCounter) TableName() string { return "kv_counters" }

// SQLiteStore is the durable single-file backend: one documents table, one
// set-members table, one counters table.
type SQLiteStore struct {
	log *logger.Logger
	db  *gorm.DB
}

func NewSQLiteStore(log *logger.Logger, path string) (*SQLiteStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if path == "" {
		path = "tracker.db"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if err := db.AutoMigrate(&kvDocument{}, &kvSetMember{}, &kvCounter{}); err != nil {
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &SQLiteStore{
		log: log.With("store", "SQLiteStore"),
		db:  db,
	}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	var row kvDocument
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(row.Doc), nil
}

func (s *SQLiteStore) Put(ctx context.Context, collection, id string, doc []byte) error {
	row := kvDocument{Collection: collection, ID: id, Doc: datatypes.JSON(doc)}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	return s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&kvDocument{}).Error
}

func (s *SQLiteStore) List(ctx context.Context, collection string) (map[string][]byte, error) {
	var rows []kvDocument
	if err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(rows))
	for _, r := range rows {
		out[r.ID] = []byte(r.Doc)
	}
	return out, nil
}

func (s *SQLiteStore) SetAdd(ctx context.Context, key, member string) error {
	_, err := s.SetAddNX(ctx, key, member)
	return err
}

func (s *SQLiteStore) SetAddNX(ctx context.Context, key, member string) (bool, error) {
	res := s.db.WithContext(ctx).Exec(
		"INSERT INTO kv_set_members (key, member) VALUES (?, ?) ON CONFLICT DO NOTHING",
		key, member,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *SQLiteStore) SetRemove(ctx context.Context, key, member string) error {
	return s.db.WithContext(ctx).
		Where("key = ? AND member = ?", key, member).
		Delete(&kvSetMember{}).Error
}

func (s *SQLiteStore) SetContains(ctx context.Context, key, member string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&kvSetMember{}).
		Where("key = ? AND member = ?", key, member).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLiteStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	var members []string
	err := s.db.WithContext(ctx).Model(&kvSetMember{}).
		Where("key = ?", key).
		Pluck("member", &members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (s *SQLiteStore) Incr(ctx context.Context, key string) (int64, error) {
	var next int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			"INSERT INTO kv_counters (key, value) VALUES (?, 1) ON CONFLICT(key) DO UPDATE SET value = value + 1",
			key,
		).Error; err != nil {
			return err
		}
		return tx.Model(&kvCounter{}).
			Where("key = ?", key).
			Pluck("value", &next).Error
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
