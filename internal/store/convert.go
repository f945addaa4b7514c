package store

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/internal/models"
)

func encodeJSON(value any) (datatypes.JSON, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

func decodeJSON(raw datatypes.JSON, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func notificationToModel(n alerting.Notification) (models.Notification, error) {
	row := models.Notification{
		BaseModel: models.BaseModel{ID: n.ID, CreatedAt: n.CreatedAt},
		UserID:    n.UserID,
		Type:      string(n.Type),
		Priority:  string(n.Priority),
		Category:  string(n.Category),
		Title:     n.Title,
		Message:   n.Message,
		Source:    n.Source,
		IsRead:    n.IsRead,
		ExpiresAt: n.ExpiresAt,
	}
	if n.RuleID != "" {
		ruleID := n.RuleID
		row.RuleID = &ruleID
	}

	var err error
	if row.Data, err = encodeJSON(n.Data); err != nil {
		return row, fmt.Errorf("encode data: %w", err)
	}
	if row.Actions, err = encodeJSON(n.Actions); err != nil {
		return row, fmt.Errorf("encode actions: %w", err)
	}
	if row.Channels, err = encodeJSON(n.Channels); err != nil {
		return row, fmt.Errorf("encode channels: %w", err)
	}
	if row.Metadata, err = encodeJSON(n.Metadata); err != nil {
		return row, fmt.Errorf("encode metadata: %w", err)
	}
	return row, nil
}

func notificationFromModel(row models.Notification) (alerting.Notification, error) {
	n := alerting.Notification{
		ID:             row.ID,
		UserID:         row.UserID,
		Type:           alerting.Type(row.Type),
		Priority:       alerting.Priority(row.Priority),
		Category:       alerting.Category(row.Category),
		Title:          row.Title,
		Message:        row.Message,
		Source:         row.Source,
		IsRead:         row.IsRead,
		IsDismissed:    row.IsDismissed,
		CreatedAt:      row.CreatedAt,
		ExpiresAt:      row.ExpiresAt,
		Channels:       []alerting.Channel{},
		DeliveryStatus: make([]alerting.DeliveryAttempt, 0, len(row.Attempts)),
	}
	if row.RuleID != nil {
		n.RuleID = *row.RuleID
	}
	if err := decodeJSON(row.Data, &n.Data); err != nil {
		return n, fmt.Errorf("decode data: %w", err)
	}
	if err := decodeJSON(row.Actions, &n.Actions); err != nil {
		return n, fmt.Errorf("decode actions: %w", err)
	}
	if err := decodeJSON(row.Channels, &n.Channels); err != nil {
		return n, fmt.Errorf("decode channels: %w", err)
	}
	if err := decodeJSON(row.Metadata, &n.Metadata); err != nil {
		return n, fmt.Errorf("decode metadata: %w", err)
	}
	for _, attempt := range row.Attempts {
		n.DeliveryStatus = append(n.DeliveryStatus, attemptFromModel(attempt))
	}
	return n, nil
}

func attemptToModel(a alerting.DeliveryAttempt, position int) models.DeliveryAttempt {
	return models.DeliveryAttempt{
		BaseModel:      models.BaseModel{ID: a.ID},
		NotificationID: a.NotificationID,
		UserID:         a.UserID,
		Channel:        string(a.Channel),
		Status:         string(a.Status),
		Error:          a.Error,
		Position:       position,
		RetryCount:     a.RetryCount,
		NextRetry:      a.NextRetry,
		AttemptedAt:    a.Timestamp,
	}
}

func attemptFromModel(row models.DeliveryAttempt) alerting.DeliveryAttempt {
	return alerting.DeliveryAttempt{
		ID:             row.ID,
		NotificationID: row.NotificationID,
		UserID:         row.UserID,
		Channel:        alerting.Channel(row.Channel),
		Status:         alerting.DeliveryStatus(row.Status),
		Timestamp:      row.AttemptedAt,
		Error:          row.Error,
		RetryCount:     row.RetryCount,
		NextRetry:      row.NextRetry,
	}
}

func ruleToModel(rule alerting.Rule) (models.AlertRule, error) {
	row := models.AlertRule{
		BaseModel:       models.BaseModel{ID: rule.ID, CreatedAt: rule.CreatedAt, UpdatedAt: rule.UpdatedAt},
		Name:            rule.Name,
		Description:     rule.Description,
		IsActive:        rule.IsActive,
		Priority:        string(rule.Priority),
		CooldownMinutes: rule.CooldownMinutes,
		MaxPerDay:       rule.MaxPerDay,
	}
	var err error
	if row.Conditions, err = encodeJSON(rule.Conditions); err != nil {
		return row, fmt.Errorf("encode conditions: %w", err)
	}
	if row.Actions, err = encodeJSON(rule.Actions); err != nil {
		return row, fmt.Errorf("encode actions: %w", err)
	}
	if row.Channels, err = encodeJSON(rule.Channels); err != nil {
		return row, fmt.Errorf("encode channels: %w", err)
	}
	return row, nil
}

func ruleFromModel(row models.AlertRule) (alerting.Rule, error) {
	rule := alerting.Rule{
		ID:              row.ID,
		Name:            row.Name,
		Description:     row.Description,
		IsActive:        row.IsActive,
		Priority:        alerting.Priority(row.Priority),
		CooldownMinutes: row.CooldownMinutes,
		MaxPerDay:       row.MaxPerDay,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	if err := decodeJSON(row.Conditions, &rule.Conditions); err != nil {
		return rule, fmt.Errorf("decode conditions: %w", err)
	}
	if err := decodeJSON(row.Actions, &rule.Actions); err != nil {
		return rule, fmt.Errorf("decode actions: %w", err)
	}
	if err := decodeJSON(row.Channels, &rule.Channels); err != nil {
		return rule, fmt.Errorf("decode channels: %w", err)
	}
	return rule, nil
}
