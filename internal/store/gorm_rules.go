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

// CreateRule inserts a rule. Names are unique.
func (g *Gorm) CreateRule(ctx context.Context, rule *alerting.Rule) error {
	row, err := ruleToModel(*rule)
	if err != nil {
		return err
	}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueConstraintError(err) {
			return alerting.ErrDuplicateRule
		}
		return fmt.Errorf("create rule: %w", err)
	}
	rule.ID = row.ID
	rule.CreatedAt = row.CreatedAt
	rule.UpdatedAt = row.UpdatedAt
	return nil
}

// GetRule loads a rule by id.
func (g *Gorm) GetRule(ctx context.Context, id string) (*alerting.Rule, error) {
	var row models.AlertRule
	if err := g.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, translate(err)
	}
	rule, err := ruleFromModel(row)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListRules returns rules in creation order.
func (g *Gorm) ListRules(ctx context.Context, activeOnly bool) ([]alerting.Rule, error) {
	query := g.db.WithContext(ctx).Order("created_at ASC").Order("id ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var rows []models.AlertRule
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	out := make([]alerting.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := ruleFromModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// SetRuleActive toggles a rule and returns it.
func (g *Gorm) SetRuleActive(ctx context.Context, id string, active bool) (*alerting.Rule, error) {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.AlertRule
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&row).Error; err != nil {
			return translate(err)
		}
		return tx.Model(&row).Updates(map[string]any{"is_active": active, "updated_at": g.now()}).Error
	})
	if err != nil {
		if errors.Is(err, alerting.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("set rule active: %w", err)
	}
	return g.GetRule(ctx, id)
}

// DeleteRule removes a rule and its execution history.
func (g *Gorm) DeleteRule(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&models.AlertRule{})
		if result.Error != nil {
			return fmt.Errorf("delete rule: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return alerting.ErrNotFound
		}
		if err := tx.Where("rule_id = ?", id).Delete(&models.RuleExecution{}).Error; err != nil {
			return fmt.Errorf("delete rule executions: %w", err)
		}
		return nil
	})
}

// RecordExecution appends to the execution log.
func (g *Gorm) RecordExecution(ctx context.Context, exec alerting.RuleExecution) error {
	row := models.RuleExecution{
		RuleID:         exec.RuleID,
		UserID:         exec.UserID,
		NotificationID: exec.NotificationID,
		ExecutedAt:     exec.ExecutedAt,
	}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record rule execution: %w", err)
	}
	return nil
}

// LastExecution returns the latest firing of the rule for the user, or nil.
func (g *Gorm) LastExecution(ctx context.Context, ruleID, userID string) (*time.Time, error) {
	var row models.RuleExecution
	err := g.db.WithContext(ctx).
		Where("rule_id = ? AND user_id = ?", ruleID, userID).
		Order("executed_at DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last rule execution: %w", err)
	}
	at := row.ExecutedAt
	return &at, nil
}

// CountExecutionsSince counts firings strictly after since.
func (g *Gorm) CountExecutionsSince(ctx context.Context, ruleID, userID string, since time.Time) (int64, error) {
	var count int64
	err := g.db.WithContext(ctx).
		Model(&models.RuleExecution{}).
		Where("rule_id = ? AND user_id = ? AND executed_at > ?", ruleID, userID, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count rule executions: %w", err)
	}
	return count, nil
}

// DeleteExecutionsBefore prunes the execution log.
func (g *Gorm) DeleteExecutionsBefore(ctx context.Context, before time.Time) (int64, error) {
	result := g.db.WithContext(ctx).Where("executed_at < ?", before).Delete(&models.RuleExecution{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune rule executions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
