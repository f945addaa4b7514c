package alerting

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	highValueBonus  = 10
	dueSoonBonus    = 15
	highRiskBonus   = 20
	riskThreshold   = 80
	actionableBase  = 25
	defaultRelevant = 75

	defaultConfidence = 80
)

var highValueThreshold = decimal.NewFromInt(100_000)

// Scores is the urgency/relevance/actionability triple, each within 0..100.
type Scores struct {
	Urgency       int `json:"urgency"`
	Relevance     int `json:"relevance"`
	Actionability int `json:"actionability"`
}

// RelevanceStrategy estimates how relevant a notification is to its recipient.
type RelevanceStrategy interface {
	Relevance(n Notification) int
}

// RelevanceFunc adapts a function to RelevanceStrategy.
type RelevanceFunc func(n Notification) int

// Relevance implements RelevanceStrategy.
func (f RelevanceFunc) Relevance(n Notification) int { return f(n) }

// ConstantRelevance scores every notification the same.
func ConstantRelevance(score int) RelevanceStrategy {
	return RelevanceFunc(func(Notification) int { return score })
}

// Scorer computes scores and the classifications derived from them.
type Scorer struct {
	relevance RelevanceStrategy
	now       func() time.Time
}

// ScorerOption customises a Scorer.
type ScorerOption func(*Scorer)

// WithRelevance injects the relevance strategy.
func WithRelevance(strategy RelevanceStrategy) ScorerOption {
	return func(s *Scorer) {
		if strategy != nil {
			s.relevance = strategy
		}
	}
}

// WithScorerClock overrides the clock used for due-date and expiry checks.
func WithScorerClock(now func() time.Time) ScorerOption {
	return func(s *Scorer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScorer builds a Scorer using a constant relevance of 75 unless overridden.
func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{
		relevance: ConstantRelevance(defaultRelevant),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes the score triple for n.
func (s *Scorer) Score(n Notification) Scores {
	now := s.now()
	return Scores{
		Urgency:       s.urgency(n, now),
		Relevance:     clamp(s.relevance.Relevance(n)),
		Actionability: s.actionability(n, now),
	}
}

// Apply scores n and writes priority and metadata back onto it. Priority from
// urgency overrides whatever priority the rule proposed.
func (s *Scorer) Apply(n *Notification) Scores {
	scores := s.Score(*n)
	profile, _ := n.Type.profile()

	n.Priority = PriorityForUrgency(scores.Urgency)
	n.Metadata.UrgencyScore = scores.Urgency
	n.Metadata.RelevanceScore = scores.Relevance
	n.Metadata.ActionabilityScore = scores.Actionability
	n.Metadata.TimeSensitivity = SensitivityForUrgency(scores.Urgency)
	n.Metadata.BusinessImpact = profile.impact
	n.Metadata.Confidence = confidence(n.Data)
	n.Metadata.RelatedEntities = relatedEntities(n.Data)
	return scores
}

func (s *Scorer) urgency(n Notification, now time.Time) int {
	profile, _ := n.Type.profile()
	score := profile.baseUrgency

	if value, ok := firstDecimal(n.Data, "dealValue", "amount", "value"); ok && value.GreaterThan(highValueThreshold) {
		score += highValueBonus
	}
	if dueWithinDay(n.Data, now) {
		score += dueSoonBonus
	}
	if risk, ok := firstDecimal(n.Data, "riskScore", "churnProbability", "riskProbability"); ok &&
		risk.GreaterThan(decimal.NewFromInt(riskThreshold)) {
		score += highRiskBonus
	}
	return clamp(score)
}

func (s *Scorer) actionability(n Notification, now time.Time) int {
	score := actionableBase
	if len(n.Actions) > 0 {
		score += 30
	}
	if len(n.Data) > 3 {
		score += 20
	}
	if n.ExpiresAt != nil && n.ExpiresAt.Sub(now) <= 24*time.Hour {
		score += 25
	}
	return clamp(score)
}

// PriorityForUrgency maps an urgency score to a priority. It is monotonic.
func PriorityForUrgency(urgency int) Priority {
	switch {
	case urgency >= 90:
		return PriorityUrgent
	case urgency >= 80:
		return PriorityCritical
	case urgency >= 60:
		return PriorityHigh
	case urgency >= 40:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// SensitivityForUrgency maps an urgency score to a time sensitivity bucket.
func SensitivityForUrgency(urgency int) TimeSensitivity {
	switch {
	case urgency >= 90:
		return SensitivityImmediate
	case urgency >= 70:
		return SensitivityHours
	case urgency >= 50:
		return SensitivityDays
	default:
		return SensitivityWeeks
	}
}

func dueWithinDay(data map[string]any, now time.Time) bool {
	if days, ok := firstDecimal(data, "daysUntilDue", "daysToClose"); ok && days.LessThan(decimal.NewFromInt(1)) {
		return true
	}
	for _, key := range []string{"dueDate", "closeDate", "deadline"} {
		raw, ok := data[key].(string)
		if !ok {
			continue
		}
		due, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		if due.Sub(now) < 24*time.Hour {
			return true
		}
	}
	return false
}

func firstDecimal(data map[string]any, keys ...string) (decimal.Decimal, bool) {
	for _, key := range keys {
		raw, ok := data[key]
		if !ok {
			continue
		}
		if d, ok := toDecimal(raw); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	}
	if f, ok := toFloat(v); ok {
		return decimal.NewFromFloat(f), true
	}
	return decimal.Zero, false
}

func confidence(data map[string]any) int {
	raw, ok := data["confidence"]
	if !ok {
		return defaultConfidence
	}
	f, ok := toFloat(raw)
	if !ok {
		return defaultConfidence
	}
	if f > 0 && f <= 1 {
		f *= 100
	}
	return clamp(int(f + 0.5))
}

var entityKeys = []struct {
	key  string
	kind string
}{
	{"companyId", "company"},
	{"contactId", "contact"},
	{"opportunityId", "opportunity"},
	{"dealId", "deal"},
	{"accountId", "account"},
}

func relatedEntities(data map[string]any) []EntityRef {
	var refs []EntityRef
	for _, entry := range entityKeys {
		if id := strings.TrimSpace(stringify(data[entry.key])); id != "" {
			refs = append(refs, EntityRef{Kind: entry.kind, ID: id})
		}
	}
	return refs
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
