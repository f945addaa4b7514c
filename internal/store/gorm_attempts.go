package store

import (
	"context"
	"fmt"
	"time"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/internal/models"
)

// SaveAttempts inserts the attempts in one statement, keeping their order.
func (g *Gorm) SaveAttempts(ctx context.Context, attempts []alerting.DeliveryAttempt) ([]alerting.DeliveryAttempt, error) {
	if len(attempts) == 0 {
		return []alerting.DeliveryAttempt{}, nil
	}
	rows := make([]models.DeliveryAttempt, len(attempts))
	for i, attempt := range attempts {
		rows[i] = attemptToModel(attempt, i)
	}
	if err := g.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("save delivery attempts: %w", err)
	}
	out := make([]alerting.DeliveryAttempt, len(rows))
	for i, row := range rows {
		out[i] = attemptFromModel(row)
	}
	return out, nil
}

// UpdateAttempt writes the mutable state of an attempt.
func (g *Gorm) UpdateAttempt(ctx context.Context, attempt alerting.DeliveryAttempt) error {
	result := g.db.WithContext(ctx).
		Model(&models.DeliveryAttempt{}).
		Where("id = ?", attempt.ID).
		Updates(map[string]any{
			"status":       string(attempt.Status),
			"error":        attempt.Error,
			"retry_count":  attempt.RetryCount,
			"next_retry":   attempt.NextRetry,
			"attempted_at": attempt.Timestamp,
		})
	if result.Error != nil {
		return fmt.Errorf("update delivery attempt: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// MySQL reports zero affected rows when nothing changed.
	var count int64
	if err := g.db.WithContext(ctx).Model(&models.DeliveryAttempt{}).Where("id = ?", attempt.ID).Count(&count).Error; err != nil {
		return fmt.Errorf("update delivery attempt: %w", err)
	}
	if count == 0 {
		return alerting.ErrNotFound
	}
	return nil
}

// ListAttempts returns the attempts of the given notifications.
func (g *Gorm) ListAttempts(ctx context.Context, notificationIDs ...string) ([]alerting.DeliveryAttempt, error) {
	if len(notificationIDs) == 0 {
		return []alerting.DeliveryAttempt{}, nil
	}
	var rows []models.DeliveryAttempt
	err := g.db.WithContext(ctx).
		Where("notification_id IN ?", notificationIDs).
		Order("created_at ASC").
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list delivery attempts: %w", err)
	}
	out := make([]alerting.DeliveryAttempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, attemptFromModel(row))
	}
	return out, nil
}

// DueAttempts selects failed attempts whose retry time has arrived and pending
// or sent attempts abandoned before staleBefore.
func (g *Gorm) DueAttempts(ctx context.Context, now, staleBefore time.Time, limit int) ([]alerting.DeliveryAttempt, error) {
	query := g.db.WithContext(ctx).
		Where("(status = ? AND next_retry IS NOT NULL AND next_retry <= ?) OR (status IN ? AND attempted_at < ?)",
			string(alerting.StatusFailed), now,
			[]string{string(alerting.StatusPending), string(alerting.StatusSent)}, staleBefore).
		Order("attempted_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.DeliveryAttempt
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("due delivery attempts: %w", err)
	}
	out := make([]alerting.DeliveryAttempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, attemptFromModel(row))
	}
	return out, nil
}

// CancelRetries clears the retry schedule of every attempt on the notification.
func (g *Gorm) CancelRetries(ctx context.Context, notificationID string) (int64, error) {
	result := g.db.WithContext(ctx).
		Model(&models.DeliveryAttempt{}).
		Where("notification_id = ? AND next_retry IS NOT NULL", notificationID).
		Update("next_retry", nil)
	if result.Error != nil {
		return 0, fmt.Errorf("cancel retries: %w", result.Error)
	}
	return result.RowsAffected, nil
}
