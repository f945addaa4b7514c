package store

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

const deleteBatchSize = 500

// Gorm persists alerting state through GORM. Any driver opened by the
// database package works.
type Gorm struct {
	db  *gorm.DB
	now func() time.Time
}

var _ alerting.Repository = (*Gorm)(nil)

// GormOption customises the repository.
type GormOption func(*Gorm)

// WithGormClock overrides the clock used for read and dismiss timestamps.
func WithGormClock(now func() time.Time) GormOption {
	return func(g *Gorm) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGorm constructs a repository on db.
func NewGorm(db *gorm.DB, opts ...GormOption) (*Gorm, error) {
	if db == nil {
		return nil, errors.New("store: db is required")
	}
	g := &Gorm{db: db, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return alerting.ErrNotFound
	}
	return err
}

func preloadAttempts(db *gorm.DB) *gorm.DB {
	return db.Preload("Attempts", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position ASC")
	})
}

// Create inserts the notification row.
func (g *Gorm) Create(ctx context.Context, n *alerting.Notification) error {
	row, err := notificationToModel(*n)
	if err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	n.ID = row.ID
	n.CreatedAt = row.CreatedAt
	return nil
}

// Get loads the user's notification with its delivery attempts.
func (g *Gorm) Get(ctx context.Context, userID, id string) (*alerting.Notification, error) {
	return g.get(g.db.WithContext(ctx), userID, id)
}

func (g *Gorm) get(db *gorm.DB, userID, id string) (*alerting.Notification, error) {
	var row models.Notification
	err := preloadAttempts(db).
		Where("id = ? AND user_id = ?", id, userID).
		Take(&row).Error
	if err != nil {
		return nil, translate(err)
	}
	n, err := notificationFromModel(row)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// List filters and pages the user's notifications, newest first.
func (g *Gorm) List(ctx context.Context, userID string, filter alerting.ListFilter) ([]alerting.Notification, int64, error) {
	filter = filter.Normalized()

	query := g.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if !filter.IncludeDismissed {
		query = query.Where("is_dismissed = ?", false)
	}
	if filter.Category != nil {
		query = query.Where("category = ?", string(*filter.Category))
	}
	if filter.Priority != nil {
		query = query.Where("priority = ?", string(*filter.Priority))
	}
	if filter.IsRead != nil {
		query = query.Where("is_read = ?", *filter.IsRead)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	var rows []models.Notification
	err := preloadAttempts(query).
		Order("created_at DESC").
		Order("id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	out, err := notificationsFromModels(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ListAll returns every notification for the user.
func (g *Gorm) ListAll(ctx context.Context, userID string) ([]alerting.Notification, error) {
	var rows []models.Notification
	err := preloadAttempts(g.db.WithContext(ctx)).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notificationsFromModels(rows)
}

func notificationsFromModels(rows []models.Notification) ([]alerting.Notification, error) {
	out := make([]alerting.Notification, 0, len(rows))
	for _, row := range rows {
		n, err := notificationFromModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkRead flags the notification read. Repeated calls keep the first read time.
func (g *Gorm) MarkRead(ctx context.Context, userID, id string) (*alerting.Notification, error) {
	return g.mutate(ctx, userID, id, func(row *models.Notification, now time.Time) map[string]any {
		if row.IsRead {
			return nil
		}
		return map[string]any{"is_read": true, "read_at": now}
	})
}

// Dismiss flags the notification dismissed and read.
func (g *Gorm) Dismiss(ctx context.Context, userID, id string) (*alerting.Notification, error) {
	return g.mutate(ctx, userID, id, func(row *models.Notification, now time.Time) map[string]any {
		updates := map[string]any{}
		if !row.IsDismissed {
			updates["is_dismissed"] = true
			updates["dismissed_at"] = now
		}
		if !row.IsRead {
			updates["is_read"] = true
			updates["read_at"] = now
		}
		return updates
	})
}

func (g *Gorm) mutate(ctx context.Context, userID, id string, change func(*models.Notification, time.Time) map[string]any) (*alerting.Notification, error) {
	var out *alerting.Notification
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Notification
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", id, userID).
			Take(&row).Error
		if err != nil {
			return translate(err)
		}
		if updates := change(&row, g.now()); len(updates) > 0 {
			if err := tx.Model(&models.Notification{}).Where("id = ?", row.ID).Updates(updates).Error; err != nil {
				return fmt.Errorf("update notification: %w", err)
			}
		}
		loaded, err := g.get(tx, userID, id)
		if err != nil {
			return err
		}
		out = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkAllRead flags every unread notification owned by the user.
func (g *Gorm) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result := g.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]any{"is_read": true, "read_at": g.now()})
	if result.Error != nil {
		return 0, fmt.Errorf("mark all read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteExpired removes notifications whose expiry has passed, together with
// their delivery attempts.
func (g *Gorm) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var ids []string
	err := g.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("find expired notifications: %w", err)
	}

	var removed int64
	for start := 0; start < len(ids); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("notification_id IN ?", batch).Delete(&models.DeliveryAttempt{}).Error; err != nil {
				return err
			}
			result := tx.Where("id IN ?", batch).Delete(&models.Notification{})
			if result.Error != nil {
				return result.Error
			}
			removed += result.RowsAffected
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("delete expired notifications: %w", err)
		}
	}
	return removed, nil
}
