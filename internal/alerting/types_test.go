package alerting

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEveryTypeHasProfile(t *testing.T) {
	for _, typ := range Types() {
		profile, ok := typ.profile()
		require.True(t, ok, "type %s has no profile", typ)
		require.True(t, typ.Known())
		require.True(t, profile.category.Valid(), "type %s has invalid category", typ)
		require.Positive(t, profile.baseUrgency)
	}

	profile, ok := Type("mystery").profile()
	require.False(t, ok)
	require.Equal(t, fallbackProfile.baseUrgency, profile.baseUrgency)
	require.Equal(t, CategorySystem, profile.category)
}

func TestTypeProfileAttributes(t *testing.T) {
	deal, _ := TypeDealRisk.profile()
	require.Equal(t, 85, deal.baseUrgency)
	require.Equal(t, CategorySales, deal.category)

	churn, _ := TypeChurnRisk.profile()
	require.Equal(t, 90, churn.baseUrgency)
	require.Equal(t, CategoryCustomerSuccess, churn.category)
}

func TestPriorityRankIsOrdered(t *testing.T) {
	priorities := Priorities()
	for i := 1; i < len(priorities); i++ {
		require.Greater(t, priorities[i].Rank(), priorities[i-1].Rank())
	}
	require.Zero(t, Priority("whenever").Rank())
	require.False(t, Priority("").Valid())
}

func TestEnumValidation(t *testing.T) {
	require.True(t, ChannelWebhook.Valid())
	require.False(t, Channel("pager").Valid())
	require.True(t, CategoryAIInsight.Valid())
	require.False(t, Category("gossip").Valid())
	require.True(t, OpNotIn.Valid())
	require.False(t, Operator("like").Valid())
}

func TestDeliveryAttemptTerminal(t *testing.T) {
	next := time.Now().Add(time.Minute)

	require.False(t, DeliveryAttempt{Status: StatusPending}.Terminal())
	require.False(t, DeliveryAttempt{Status: StatusSent}.Terminal())
	require.True(t, DeliveryAttempt{Status: StatusDelivered}.Terminal())
	require.True(t, DeliveryAttempt{Status: StatusBounced}.Terminal())
	require.False(t, DeliveryAttempt{Status: StatusFailed, NextRetry: &next}.Terminal())
	require.True(t, DeliveryAttempt{Status: StatusFailed}.Terminal())
}

func TestEventValidate(t *testing.T) {
	require.NoError(t, Event{UserID: "u", Type: TypeTaskReminder, Title: "Call back"}.Validate())

	err := Event{Title: string(make([]byte, 201))}.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.ElementsMatch(t, []string{
		"user_id is required",
		"type is required",
		"title must be at most 200 characters",
	}, verr.Problems)

	// Length is counted in characters, not bytes.
	require.NoError(t, Event{UserID: "u", Type: TypeTaskReminder, Title: strings.Repeat("商", 200)}.Validate())
	err = Event{UserID: "u", Type: TypeTaskReminder, Title: strings.Repeat("商", 201)}.Validate()
	require.ErrorAs(t, err, &verr)
	require.Equal(t, []string{"title must be at most 200 characters"}, verr.Problems)

	err = Event{UserID: "u", Type: TypeTaskReminder, Title: "   "}.Validate()
	require.ErrorAs(t, err, &verr)
	require.Equal(t, []string{"title is required"}, verr.Problems)
}

func TestNotificationExpired(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := now

	require.False(t, Notification{}.Expired(now))
	require.True(t, Notification{ExpiresAt: &expires}.Expired(now))
	require.False(t, Notification{ExpiresAt: &expires}.Expired(now.Add(-time.Second)))
}
