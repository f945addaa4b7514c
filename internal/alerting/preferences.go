package alerting

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GlobalPreferencesID is the user id of the shared preference template.
const GlobalPreferencesID = "global"

// Preferences are one user's delivery settings.
type Preferences struct {
	UserID      string            `json:"user_id"`
	Channels    map[Channel]bool  `json:"channels"`
	Categories  map[Category]bool `json:"categories"`
	Types       map[Type]bool     `json:"types"`
	QuietHours  QuietHours        `json:"quiet_hours"`
	Frequency   Frequency         `json:"frequency"`
	AIFiltering AIFiltering       `json:"ai_filtering"`
	Contacts    Contacts          `json:"contacts"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// QuietHours is a daily window in which only top-priority notifications are delivered.
// Start and End use 24h "HH:MM"; a window with Start after End wraps midnight.
type QuietHours struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

// Frequency caps delivery volume. Zero or negative means unlimited.
type Frequency struct {
	MaxPerHour      int    `json:"max_per_hour"`
	MaxPerDay       int    `json:"max_per_day"`
	DigestMode      bool   `json:"digest_mode"`
	DigestFrequency string `json:"digest_frequency"`
}

// AIFiltering drops notifications whose scores fall under the thresholds.
type AIFiltering struct {
	Enabled             bool `json:"enabled"`
	MinRelevanceScore   int  `json:"min_relevance_score"`
	MinUrgencyScore     int  `json:"min_urgency_score"`
	PersonalizedRanking bool `json:"personalized_ranking"`
}

// Contacts hold channel addresses used by senders.
type Contacts struct {
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	WebhookURL     string `json:"webhook_url,omitempty"`
	ChatWebhookURL string `json:"chat_webhook_url,omitempty"`
	PushToken      string `json:"push_token,omitempty"`
}

// DefaultPreferences returns the settings applied on first use.
func DefaultPreferences(userID string) Preferences {
	prefs := Preferences{
		UserID: userID,
		Channels: map[Channel]bool{
			ChannelInApp:   true,
			ChannelEmail:   true,
			ChannelSMS:     false,
			ChannelPush:    false,
			ChannelChat:    false,
			ChannelVoice:   false,
			ChannelWebhook: false,
		},
		Categories: make(map[Category]bool, len(Categories())),
		Types:      make(map[Type]bool, len(Types())),
		QuietHours: QuietHours{
			Enabled:  false,
			Start:    "22:00",
			End:      "08:00",
			Timezone: "UTC",
		},
		Frequency: Frequency{
			MaxPerHour:      10,
			MaxPerDay:       50,
			DigestFrequency: "daily",
		},
		AIFiltering: AIFiltering{
			Enabled:             true,
			MinRelevanceScore:   50,
			MinUrgencyScore:     30,
			PersonalizedRanking: true,
		},
	}
	for _, category := range Categories() {
		prefs.Categories[category] = true
	}
	for _, t := range Types() {
		prefs.Types[t] = true
	}
	return prefs
}

// Clone returns a deep copy of the preference maps.
func (p Preferences) Clone() Preferences {
	out := p
	out.Channels = make(map[Channel]bool, len(p.Channels))
	for k, v := range p.Channels {
		out.Channels[k] = v
	}
	out.Categories = make(map[Category]bool, len(p.Categories))
	for k, v := range p.Categories {
		out.Categories[k] = v
	}
	out.Types = make(map[Type]bool, len(p.Types))
	for k, v := range p.Types {
		out.Types[k] = v
	}
	return out
}

// EnabledChannels returns the enabled channels in declaration order.
func (p Preferences) EnabledChannels() []Channel {
	var out []Channel
	for _, ch := range Channels() {
		if p.Channels[ch] {
			out = append(out, ch)
		}
	}
	return out
}

// PreferencesPatch is a partial update. Nil fields are left unchanged.
type PreferencesPatch struct {
	Channels    map[Channel]bool  `json:"channels,omitempty"`
	Categories  map[Category]bool `json:"categories,omitempty"`
	Types       map[Type]bool     `json:"types,omitempty"`
	QuietHours  *QuietHoursPatch  `json:"quiet_hours,omitempty"`
	Frequency   *FrequencyPatch   `json:"frequency,omitempty"`
	AIFiltering *AIFilteringPatch `json:"ai_filtering,omitempty"`
	Contacts    *ContactsPatch    `json:"contacts,omitempty"`
}

// QuietHoursPatch updates quiet hours fields.
type QuietHoursPatch struct {
	Enabled  *bool   `json:"enabled,omitempty"`
	Start    *string `json:"start,omitempty"`
	End      *string `json:"end,omitempty"`
	Timezone *string `json:"timezone,omitempty"`
}

// FrequencyPatch updates frequency caps.
type FrequencyPatch struct {
	MaxPerHour      *int    `json:"max_per_hour,omitempty"`
	MaxPerDay       *int    `json:"max_per_day,omitempty"`
	DigestMode      *bool   `json:"digest_mode,omitempty"`
	DigestFrequency *string `json:"digest_frequency,omitempty"`
}

// AIFilteringPatch updates score thresholds.
type AIFilteringPatch struct {
	Enabled             *bool `json:"enabled,omitempty"`
	MinRelevanceScore   *int  `json:"min_relevance_score,omitempty"`
	MinUrgencyScore     *int  `json:"min_urgency_score,omitempty"`
	PersonalizedRanking *bool `json:"personalized_ranking,omitempty"`
}

// ContactsPatch updates channel addresses.
type ContactsPatch struct {
	Email          *string `json:"email,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	WebhookURL     *string `json:"webhook_url,omitempty"`
	ChatWebhookURL *string `json:"chat_webhook_url,omitempty"`
	PushToken      *string `json:"push_token,omitempty"`
}

// Apply merges the patch onto p and validates the result.
func (patch PreferencesPatch) Apply(p Preferences) (Preferences, error) {
	out := p.Clone()
	var problems []string

	for ch, enabled := range patch.Channels {
		if !ch.Valid() {
			problems = append(problems, fmt.Sprintf("channel %q is not supported", ch))
			continue
		}
		out.Channels[ch] = enabled
	}
	for category, enabled := range patch.Categories {
		out.Categories[category] = enabled
	}
	for t, enabled := range patch.Types {
		out.Types[t] = enabled
	}

	if q := patch.QuietHours; q != nil {
		setIf(&out.QuietHours.Enabled, q.Enabled)
		setIf(&out.QuietHours.Start, q.Start)
		setIf(&out.QuietHours.End, q.End)
		setIf(&out.QuietHours.Timezone, q.Timezone)
	}
	if f := patch.Frequency; f != nil {
		setIf(&out.Frequency.MaxPerHour, f.MaxPerHour)
		setIf(&out.Frequency.MaxPerDay, f.MaxPerDay)
		setIf(&out.Frequency.DigestMode, f.DigestMode)
		setIf(&out.Frequency.DigestFrequency, f.DigestFrequency)
	}
	if a := patch.AIFiltering; a != nil {
		setIf(&out.AIFiltering.Enabled, a.Enabled)
		setIf(&out.AIFiltering.MinRelevanceScore, a.MinRelevanceScore)
		setIf(&out.AIFiltering.MinUrgencyScore, a.MinUrgencyScore)
		setIf(&out.AIFiltering.PersonalizedRanking, a.PersonalizedRanking)
	}
	if c := patch.Contacts; c != nil {
		setIf(&out.Contacts.Email, c.Email)
		setIf(&out.Contacts.Phone, c.Phone)
		setIf(&out.Contacts.WebhookURL, c.WebhookURL)
		setIf(&out.Contacts.ChatWebhookURL, c.ChatWebhookURL)
		setIf(&out.Contacts.PushToken, c.PushToken)
	}

	if _, err := parseClock(out.QuietHours.Start); err != nil {
		problems = append(problems, "quiet_hours.start: "+err.Error())
	}
	if _, err := parseClock(out.QuietHours.End); err != nil {
		problems = append(problems, "quiet_hours.end: "+err.Error())
	}
	if tz := strings.TrimSpace(out.QuietHours.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			problems = append(problems, fmt.Sprintf("quiet_hours.timezone %q is unknown", tz))
		}
	}
	if out.AIFiltering.MinRelevanceScore < 0 || out.AIFiltering.MinRelevanceScore > 100 {
		problems = append(problems, "ai_filtering.min_relevance_score must be within 0..100")
	}
	if out.AIFiltering.MinUrgencyScore < 0 || out.AIFiltering.MinUrgencyScore > 100 {
		problems = append(problems, "ai_filtering.min_urgency_score must be within 0..100")
	}

	if len(problems) > 0 {
		return p, &ValidationError{Problems: problems}
	}
	return out, nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// FilterReason explains why a notification was withheld from delivery.
type FilterReason string

const (
	ReasonCategoryDisabled FilterReason = "category_disabled"
	ReasonTypeDisabled     FilterReason = "type_disabled"
	ReasonLowRelevance     FilterReason = "low_relevance"
	ReasonLowUrgency       FilterReason = "low_urgency"
	ReasonQuietHours       FilterReason = "quiet_hours"
)

// Decision is the outcome of ShouldDeliver.
type Decision struct {
	Deliver bool
	Reason  FilterReason
}

// ShouldDeliver gates a scored notification against the user's preferences.
// Checks short-circuit in order: category, type, AI thresholds, quiet hours.
// Keys missing from the category and type maps count as enabled.
func ShouldDeliver(n Notification, prefs Preferences, now time.Time) Decision {
	if enabled, ok := prefs.Categories[n.Category]; ok && !enabled {
		return Decision{Reason: ReasonCategoryDisabled}
	}
	if enabled, ok := prefs.Types[n.Type]; ok && !enabled {
		return Decision{Reason: ReasonTypeDisabled}
	}
	if prefs.AIFiltering.Enabled {
		if n.Metadata.RelevanceScore < prefs.AIFiltering.MinRelevanceScore {
			return Decision{Reason: ReasonLowRelevance}
		}
		if n.Metadata.UrgencyScore < prefs.AIFiltering.MinUrgencyScore {
			return Decision{Reason: ReasonLowUrgency}
		}
	}
	if prefs.QuietHours.Enabled && InQuietHours(prefs.QuietHours, now) &&
		n.Priority.Rank() < PriorityCritical.Rank() {
		return Decision{Reason: ReasonQuietHours}
	}
	return Decision{Deliver: true}
}

// InQuietHours reports whether now, in the window's timezone, falls inside the window.
// The start is inclusive and the end exclusive. Unknown timezones evaluate in UTC.
func InQuietHours(q QuietHours, now time.Time) bool {
	start, err := parseClock(q.Start)
	if err != nil {
		return false
	}
	end, err := parseClock(q.End)
	if err != nil {
		return false
	}
	if start == end {
		return false
	}

	loc, err := time.LoadLocation(strings.TrimSpace(q.Timezone))
	if err != nil || strings.TrimSpace(q.Timezone) == "" {
		loc = time.UTC
	}
	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()

	if start < end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

// parseClock converts "HH:MM" to minutes after midnight.
func parseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%q is not in HH:MM form", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("%q has an invalid hour", value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%q has an invalid minute", value)
	}
	return hours*60 + minutes, nil
}
