package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/internal/models"
)

// DatabaseStore implements Store using the primary SQL database. Each rate
// bucket serialises on a locked cache_entries row.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewDatabaseStore constructs a database-backed Store.
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	if db == nil {
		return nil
	}
	return &DatabaseStore{db: db, now: time.Now}
}

// Reserve implements alerting.RateStore.
func (s *DatabaseStore) Reserve(ctx context.Context, key string, now time.Time, windows []alerting.Window) (bool, error) {
	if s == nil {
		return false, errors.New("cache: database store not initialised")
	}

	longest := longestSpan(windows)
	bucket := "rate:" + key
	allowed := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockBucket(tx, bucket, now.Add(longest)); err != nil {
			return err
		}

		if err := tx.Where("bucket_key = ? AND occurred_at <= ?", bucket, now.Add(-longest)).
			Delete(&models.RateEvent{}).Error; err != nil {
			return err
		}

		for _, w := range windows {
			if w.Max <= 0 {
				continue
			}
			var count int64
			if err := tx.Model(&models.RateEvent{}).
				Where("bucket_key = ? AND occurred_at > ?", bucket, now.Add(-w.Span)).
				Count(&count).Error; err != nil {
				return err
			}
			if count >= int64(w.Max) {
				return nil
			}
		}

		allowed = true
		return tx.Create(&models.RateEvent{BucketKey: bucket, OccurredAt: now}).Error
	})
	if err != nil {
		return false, fmt.Errorf("cache: reserve %s: %w", key, err)
	}
	return allowed, nil
}

// lockBucket takes a row lock on the bucket entry, creating it first if needed.
func lockBucket(tx *gorm.DB, bucket string, expires time.Time) error {
	var entry models.CacheEntry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Take(&entry, "cache_key = ?", bucket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		entry = models.CacheEntry{Key: bucket, Value: []byte("bucket"), ExpiresAt: expires}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error; err != nil {
			return err
		}
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&entry, "cache_key = ?", bucket).Error
	}
	if err != nil {
		return err
	}
	if entry.ExpiresAt.Before(expires) {
		return tx.Model(&entry).Update("expires_at", expires).Error
	}
	return nil
}

// Claim implements Store. Expired claims are taken over.
func (s *DatabaseStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s == nil {
		return false, errors.New("cache: database store not initialised")
	}

	now := s.now()
	claimKey := "claim:" + key
	claimed := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.CacheEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&entry, "cache_key = ?", claimKey).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			entry = models.CacheEntry{Key: claimKey, Value: []byte("1"), ExpiresAt: now.Add(ttl)}
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
			if result.Error != nil {
				return result.Error
			}
			claimed = result.RowsAffected == 1
			return nil
		}
		if err != nil {
			return err
		}
		if now.Before(entry.ExpiresAt) {
			return nil
		}
		claimed = true
		return tx.Model(&entry).Update("expires_at", now.Add(ttl)).Error
	})
	if err != nil {
		return false, fmt.Errorf("cache: claim %s: %w", key, err)
	}
	return claimed, nil
}

// Release implements Store.
func (s *DatabaseStore) Release(ctx context.Context, keys ...string) error {
	if s == nil {
		return errors.New("cache: database store not initialised")
	}
	if len(keys) == 0 {
		return nil
	}
	claimKeys := make([]string, len(keys))
	for i, key := range keys {
		claimKeys[i] = "claim:" + key
	}
	return s.db.WithContext(ctx).Where("cache_key IN ?", claimKeys).Delete(&models.CacheEntry{}).Error
}

// Ping implements Store.
func (s *DatabaseStore) Ping(ctx context.Context) error {
	if s == nil {
		return errors.New("cache: database store not initialised")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Prune deletes rate events at or before before and expired entries.
func (s *DatabaseStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	if s == nil {
		return 0, errors.New("cache: database store not initialised")
	}

	events := s.db.WithContext(ctx).Where("occurred_at <= ?", before).Delete(&models.RateEvent{})
	if events.Error != nil {
		return 0, fmt.Errorf("cache: prune rate events: %w", events.Error)
	}
	entries := s.db.WithContext(ctx).Where("expires_at < ?", s.now()).Delete(&models.CacheEntry{})
	if entries.Error != nil {
		return events.RowsAffected, fmt.Errorf("cache: prune entries: %w", entries.Error)
	}
	return events.RowsAffected + entries.RowsAffected, nil
}
