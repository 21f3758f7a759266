package storage

import (
	"bytes"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// kvEntry 嵌入式存储的行结构
type kvEntry struct {
	StoreKey string `gorm:"column:store_key;primaryKey;size:255"`
	Value    []byte `gorm:"column:value"`
	Version  int64  `gorm:"column:version;not null;default:1"`
	ExpireAt int64  `gorm:"column:expire_at;index;not null;default:0"` // unix ms, 0 = never
}

func (kvEntry) TableName() string { return "ratelimiter_kv" }

// GormStore embedded persistent store
//
// Same-process callers are serialized by a keyed mutex; the version column
// makes the update conditional so processes sharing one database stay safe.
type GormStore struct {
	db    *gorm.DB
	locks *KeyedMutex
	now   func() time.Time
}

// NewGormStore migrates the kv table
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		return nil, unavailable("migrate", "", err)
	}
	return &GormStore{db: db, locks: NewKeyedMutex(), now: time.Now}, nil
}

func (s *GormStore) expireAt(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.now().Add(ttl).UnixMilli()
}

// load returns nil without error when absent or expired
func (s *GormStore) load(ctx context.Context, key string) (*kvEntry, error) {
	var e kvEntry
	err := s.db.WithContext(ctx).Where("store_key = ?", key).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if e.ExpireAt != 0 && e.ExpireAt <= s.now().UnixMilli() {
		e.Value = nil
		return &e, nil
	}
	return &e, nil
}

func (s *GormStore) Get(ctx context.Context, key string) ([]byte, error) {
	e, err := s.load(ctx, key)
	if err != nil {
		return nil, unavailable("get", key, err)
	}
	if e == nil || e.Value == nil {
		return nil, ErrNotFound
	}
	return e.Value, nil
}

func (s *GormStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	unlock := s.locks.Lock(key)
	defer unlock()

	row := kvEntry{StoreKey: key, Value: value, Version: 1, ExpireAt: s.expireAt(ttl)}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "store_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":     value,
			"expire_at": row.ExpireAt,
			"version":   gorm.Expr("version + 1"),
		}),
	}).Create(&row).Error
	if err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (s *GormStore) CompareAndSet(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (bool, error) {
	unlock := s.locks.Lock(key)
	defer unlock()

	cur, err := s.load(ctx, key)
	if err != nil {
		return false, unavailable("cas", key, err)
	}

	present := cur != nil && cur.Value != nil
	if expected == nil && present {
		return false, nil
	}
	if expected != nil && (!present || !bytes.Equal(cur.Value, expected)) {
		return false, nil
	}

	db := s.db.WithContext(ctx)
	if cur == nil {
		row := kvEntry{StoreKey: key, Value: value, Version: 1, ExpireAt: s.expireAt(ttl)}
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return false, unavailable("cas", key, res.Error)
		}
		return res.RowsAffected == 1, nil
	}

	// 行存在（可能已过期），以版本号为条件更新
	res := db.Model(&kvEntry{}).
		Where("store_key = ? AND version = ?", key, cur.Version).
		Updates(map[string]interface{}{
			"value":     value,
			"version":   cur.Version + 1,
			"expire_at": s.expireAt(ttl),
		})
	if res.Error != nil {
		return false, unavailable("cas", key, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("store_key IN ?", keys).Delete(&kvEntry{}).Error; err != nil {
		return unavailable("delete", keys[0], err)
	}
	return nil
}

// PurgeExpired deletes expired rows, used by the Sweeper
func (s *GormStore) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expire_at > 0 AND expire_at <= ?", s.now().UnixMilli()).
		Delete(&kvEntry{})
	if res.Error != nil {
		return 0, unavailable("purge", "", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		return unavailable("ping", "", err)
	}
	return nil
}

// Close does not close the shared *gorm.DB
func (s *GormStore) Close() error {
	return nil
}
