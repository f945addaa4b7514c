package models

import (
	"time"
)

// CacheEntry is a keyed value with an expiry, used for idempotency claims and
// as the lock row of a rate bucket when no Redis is configured.
type CacheEntry struct {
	Key       string `gorm:"column:cache_key;primaryKey;size:256"`
	Value     []byte
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RateEvent is one reserved delivery slot inside a rate bucket.
type RateEvent struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	BucketKey  string    `gorm:"size:256;not null;index:idx_rate_events_bucket_time,priority:1"`
	OccurredAt time.Time `gorm:"not null;index:idx_rate_events_bucket_time,priority:2;index"`
}
