package alerting

import "time"

// Type identifies the kind of notification produced by the engine.
type Type string

const (
	TypeDealRisk            Type = "deal_risk_alert"
	TypeChurnRisk           Type = "churn_risk_alert"
	TypeNBAPriority         Type = "nba_priority"
	TypeMeetingInsight      Type = "meeting_insight"
	TypeForecastUpdate      Type = "forecast_update"
	TypeCompetitorAlert     Type = "competitor_alert"
	TypeOpportunityDetected Type = "opportunity_detected"
	TypeEngagementDrop      Type = "engagement_drop"
	TypePipelineAnomaly     Type = "pipeline_anomaly"
	TypeTaskReminder        Type = "task_reminder"
	TypeDealClosureRisk     Type = "deal_closure_risk"
	TypeIntegrationUpdate   Type = "integration_update"
	TypeSystemAlert         Type = "system_alert"
)

// Types returns every declared notification type in a stable order.
func Types() []Type {
	return []Type{
		TypeDealRisk,
		TypeChurnRisk,
		TypeNBAPriority,
		TypeMeetingInsight,
		TypeForecastUpdate,
		TypeCompetitorAlert,
		TypeOpportunityDetected,
		TypeEngagementDrop,
		TypePipelineAnomaly,
		TypeTaskReminder,
		TypeDealClosureRisk,
		TypeIntegrationUpdate,
		TypeSystemAlert,
	}
}

// Known reports whether t is one of the declared types.
func (t Type) Known() bool {
	_, ok := t.profile()
	return ok
}

// typeProfile bundles the static attributes attached to a notification type.
type typeProfile struct {
	baseUrgency int
	category    Category
	impact      BusinessImpact
	actions     []Action
	expiresIn   time.Duration
}

var fallbackProfile = typeProfile{
	baseUrgency: 50,
	category:    CategorySystem,
	impact:      ImpactMedium,
}

// profile is the single place mapping a type to its attributes. Adding a Type
// constant without a case here fails TestEveryTypeHasProfile.
func (t Type) profile() (typeProfile, bool) {
	switch t {
	case TypeDealRisk:
		return typeProfile{
			baseUrgency: 85,
			category:    CategorySales,
			impact:      ImpactHigh,
			actions: []Action{
				{ID: "review_deal", Label: "Review deal", Type: ActionPrimary, Action: "open_deal"},
				{ID: "schedule_call", Label: "Schedule call", Type: ActionSecondary, Action: "schedule_call"},
			},
			expiresIn: 72 * time.Hour,
		}, true
	case TypeChurnRisk:
		return typeProfile{
			baseUrgency: 90,
			category:    CategoryCustomerSuccess,
			impact:      ImpactCritical,
			actions: []Action{
				{ID: "open_account", Label: "Open account", Type: ActionPrimary, Action: "open_account"},
				{ID: "start_playbook", Label: "Start retention playbook", Type: ActionSecondary, Action: "start_playbook"},
			},
			expiresIn: 48 * time.Hour,
		}, true
	case TypeNBAPriority:
		return typeProfile{
			baseUrgency: 70,
			category:    CategoryAIInsight,
			impact:      ImpactHigh,
			actions: []Action{
				{ID: "take_action", Label: "Take action", Type: ActionPrimary, Action: "execute_nba"},
			},
			expiresIn: 24 * time.Hour,
		}, true
	case TypeMeetingInsight:
		return typeProfile{
			baseUrgency: 50,
			category:    CategorySales,
			impact:      ImpactMedium,
			actions: []Action{
				{ID: "view_summary", Label: "View summary", Type: ActionPrimary, Action: "open_meeting"},
			},
		}, true
	case TypeForecastUpdate:
		return typeProfile{
			baseUrgency: 45,
			category:    CategoryFinance,
			impact:      ImpactMedium,
			actions: []Action{
				{ID: "view_forecast", Label: "View forecast", Type: ActionPrimary, Action: "open_forecast"},
			},
		}, true
	case TypeCompetitorAlert:
		return typeProfile{
			baseUrgency: 60,
			category:    CategoryMarketing,
			impact:      ImpactMedium,
			actions: []Action{
				{ID: "view_battlecard", Label: "View battlecard", Type: ActionPrimary, Action: "open_battlecard"},
			},
		}, true
	case TypeOpportunityDetected:
		return typeProfile{
			baseUrgency: 55,
			category:    CategorySales,
			impact:      ImpactHigh,
			actions: []Action{
				{ID: "create_opportunity", Label: "Create opportunity", Type: ActionPrimary, Action: "create_opportunity"},
				{ID: "dismiss", Label: "Not relevant", Type: ActionSecondary, Action: "dismiss"},
			},
		}, true
	case TypeEngagementDrop:
		return typeProfile{
			baseUrgency: 65,
			category:    CategoryCustomerSuccess,
			impact:      ImpactHigh,
			actions: []Action{
				{ID: "reach_out", Label: "Reach out", Type: ActionPrimary, Action: "compose_email"},
			},
		}, true
	case TypePipelineAnomaly:
		return typeProfile{
			baseUrgency: 75,
			category:    CategoryOperations,
			impact:      ImpactHigh,
			actions: []Action{
				{ID: "view_pipeline", Label: "View pipeline", Type: ActionPrimary, Action: "open_pipeline"},
			},
		}, true
	case TypeTaskReminder:
		return typeProfile{
			baseUrgency: 40,
			category:    CategoryOperations,
			impact:      ImpactLow,
			actions: []Action{
				{ID: "complete_task", Label: "Mark complete", Type: ActionPrimary, Action: "complete_task"},
				{ID: "snooze", Label: "Snooze", Type: ActionSecondary, Action: "snooze"},
			},
		}, true
	case TypeDealClosureRisk:
		return typeProfile{
			baseUrgency: 85,
			category:    CategorySales,
			impact:      ImpactCritical,
			actions: []Action{
				{ID: "review_deal", Label: "Review deal", Type: ActionPrimary, Action: "open_deal"},
				{ID: "escalate", Label: "Escalate", Type: ActionDanger, Action: "escalate_deal"},
			},
			expiresIn: 24 * time.Hour,
		}, true
	case TypeIntegrationUpdate:
		return typeProfile{
			baseUrgency: 30,
			category:    CategorySystem,
			impact:      ImpactLow,
		}, true
	case TypeSystemAlert:
		return typeProfile{
			baseUrgency: 50,
			category:    CategorySystem,
			impact:      ImpactMedium,
		}, true
	}
	return fallbackProfile, false
}

// Category groups notifications for preference toggles and reporting.
type Category string

const (
	CategorySales           Category = "sales"
	CategoryMarketing       Category = "marketing"
	CategoryCustomerSuccess Category = "customer_success"
	CategoryFinance         Category = "finance"
	CategoryOperations      Category = "operations"
	CategorySystem          Category = "system"
	CategoryAIInsight       Category = "ai_insight"
)

// Categories returns every category in a stable order.
func Categories() []Category {
	return []Category{
		CategorySales,
		CategoryMarketing,
		CategoryCustomerSuccess,
		CategoryFinance,
		CategoryOperations,
		CategorySystem,
		CategoryAIInsight,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Priority ranks how prominently a notification is surfaced.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
	PriorityUrgent   Priority = "urgent"
)

// Rank orders priorities low < medium < high < critical < urgent. Unknown values rank 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	case PriorityUrgent:
		return 5
	}
	return 0
}

// Valid reports whether p is a declared priority.
func (p Priority) Valid() bool { return p.Rank() > 0 }

// Priorities returns every priority from lowest to highest.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical, PriorityUrgent}
}

// Channel is a delivery transport.
type Channel string

const (
	ChannelInApp   Channel = "in_app"
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelChat    Channel = "chat"
	ChannelVoice   Channel = "voice"
	ChannelWebhook Channel = "webhook"
)

// Channels returns every channel in a stable order.
func Channels() []Channel {
	return []Channel{ChannelInApp, ChannelEmail, ChannelSMS, ChannelPush, ChannelChat, ChannelVoice, ChannelWebhook}
}

// Valid reports whether c is a declared channel.
func (c Channel) Valid() bool {
	for _, known := range Channels() {
		if c == known {
			return true
		}
	}
	return false
}

// DeliveryStatus is the state of a single channel delivery.
type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
	StatusBounced   DeliveryStatus = "bounced"
)

// TimeSensitivity describes how soon a notification should be acted on.
type TimeSensitivity string

const (
	SensitivityImmediate TimeSensitivity = "immediate"
	SensitivityHours     TimeSensitivity = "hours"
	SensitivityDays      TimeSensitivity = "days"
	SensitivityWeeks     TimeSensitivity = "weeks"
)

// BusinessImpact is the estimated effect on revenue or customers.
type BusinessImpact string

const (
	ImpactLow      BusinessImpact = "low"
	ImpactMedium   BusinessImpact = "medium"
	ImpactHigh     BusinessImpact = "high"
	ImpactCritical BusinessImpact = "critical"
)

// ActionType styles a suggested action.
type ActionType string

const (
	ActionPrimary   ActionType = "primary"
	ActionSecondary ActionType = "secondary"
	ActionDanger    ActionType = "danger"
)
