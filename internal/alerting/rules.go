package alerting

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Operator compares an event field against a condition value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
)

// Valid reports whether op is supported.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpNotContains, OpGreaterThan, OpLessThan, OpIn, OpNotIn:
		return true
	}
	return false
}

// Join links a condition to the one after it.
type Join string

const (
	JoinAnd Join = "AND"
	JoinOr  Join = "OR"
)

// Condition is a single comparison within a rule. Join applies between this
// condition and the next one; an empty Join means AND.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
	Join     Join     `json:"logical_operator,omitempty" yaml:"logical_operator,omitempty"`
}

// RuleAction is the notification template a rule produces.
type RuleAction struct {
	Type             Type     `json:"type,omitempty" yaml:"type,omitempty"`
	Title            string   `json:"title,omitempty" yaml:"title,omitempty"`
	Message          string   `json:"message,omitempty" yaml:"message,omitempty"`
	Category         Category `json:"category,omitempty" yaml:"category,omitempty"`
	Actions          []Action `json:"actions,omitempty" yaml:"actions,omitempty"`
	ExpiresInMinutes int      `json:"expires_in_minutes,omitempty" yaml:"expires_in_minutes,omitempty"`
}

// Rule is a declarative trigger: when its conditions hold for an event, it
// proposes a notification.
type Rule struct {
	ID              string      `json:"id" yaml:"id,omitempty"`
	Name            string      `json:"name" yaml:"name"`
	Description     string      `json:"description,omitempty" yaml:"description,omitempty"`
	IsActive        bool        `json:"is_active" yaml:"is_active"`
	Conditions      []Condition `json:"conditions" yaml:"conditions"`
	Actions         RuleAction  `json:"actions" yaml:"actions"`
	Priority        Priority    `json:"priority" yaml:"priority"`
	Channels        []Channel   `json:"channels" yaml:"channels"`
	CooldownMinutes int         `json:"cooldown_minutes" yaml:"cooldown_minutes"`
	MaxPerDay       int         `json:"max_per_day" yaml:"max_per_day"`
	CreatedAt       time.Time   `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time   `json:"updated_at" yaml:"-"`
}

// RuleExecution records that a rule produced a notification for a user.
type RuleExecution struct {
	RuleID         string
	UserID         string
	NotificationID string
	ExecutedAt     time.Time
}

// Normalize fills defaults and validates the rule definition.
func (r *Rule) Normalize() error {
	var problems []string

	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		problems = append(problems, "name is required")
	}
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}
	if !r.Priority.Valid() {
		problems = append(problems, fmt.Sprintf("priority %q is not supported", r.Priority))
	}
	for i, cond := range r.Conditions {
		if strings.TrimSpace(cond.Field) == "" {
			problems = append(problems, fmt.Sprintf("conditions[%d].field is required", i))
		}
		if !cond.Operator.Valid() {
			problems = append(problems, fmt.Sprintf("conditions[%d].operator %q is not supported", i, cond.Operator))
		}
		switch Join(strings.ToUpper(string(cond.Join))) {
		case "", JoinAnd, JoinOr:
			r.Conditions[i].Join = Join(strings.ToUpper(string(cond.Join)))
		default:
			problems = append(problems, fmt.Sprintf("conditions[%d].logical_operator %q is not supported", i, cond.Join))
		}
	}
	for _, ch := range r.Channels {
		if !ch.Valid() {
			problems = append(problems, fmt.Sprintf("channel %q is not supported", ch))
		}
	}
	if r.CooldownMinutes < 0 {
		problems = append(problems, "cooldown_minutes must not be negative")
	}
	if r.MaxPerDay < 0 {
		problems = append(problems, "max_per_day must not be negative")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Matches reports whether the rule is active and its conditions hold for the event.
// Conditions fold left to right: acc = acc JOIN next, with no precedence grouping.
func (r Rule) Matches(event Event) bool {
	if !r.IsActive {
		return false
	}
	if len(r.Conditions) == 0 {
		return true
	}

	result := r.Conditions[0].evaluate(event)
	for i := 1; i < len(r.Conditions); i++ {
		next := r.Conditions[i].evaluate(event)
		if r.Conditions[i-1].Join == JoinOr {
			result = result || next
		} else {
			result = result && next
		}
	}
	return result
}

// SelectRule returns the highest priority rule, keeping the earliest on ties.
func SelectRule(candidates []Rule) (Rule, bool) {
	if len(candidates) == 0 {
		return Rule{}, false
	}
	best := candidates[0]
	for _, candidate := range candidates[1:] {
		if candidate.Priority.Rank() > best.Priority.Rank() {
			best = candidate
		}
	}
	return best, true
}

func (c Condition) evaluate(event Event) bool {
	actual, found := event.lookup(c.Field)

	switch c.Operator {
	case OpEquals:
		return found && valuesEqual(actual, c.Value)
	case OpNotEquals:
		return !found || !valuesEqual(actual, c.Value)
	case OpContains:
		return found && contains(actual, c.Value)
	case OpNotContains:
		return !found || !contains(actual, c.Value)
	case OpGreaterThan:
		a, okA := toFloat(actual)
		b, okB := toFloat(c.Value)
		return found && okA && okB && a > b
	case OpLessThan:
		a, okA := toFloat(actual)
		b, okB := toFloat(c.Value)
		return found && okA && okB && a < b
	case OpIn:
		return found && memberOf(actual, c.Value)
	case OpNotIn:
		return !found || !memberOf(actual, c.Value)
	}
	return false
}

// lookup resolves a condition field against the event envelope and then its data,
// following dotted paths into nested objects.
func (e Event) lookup(field string) (any, bool) {
	field = strings.TrimSpace(field)
	switch field {
	case "type":
		return string(e.Type), true
	case "source":
		return e.Source, true
	case "userId", "user_id":
		return e.UserID, true
	case "title":
		return e.Title, true
	case "message":
		return e.Message, true
	}

	path := strings.TrimPrefix(field, "data.")
	var current any = e.Data
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, current != nil
}

func valuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return stringify(a) == stringify(b)
}

func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		return strings.Contains(strings.ToLower(h), strings.ToLower(stringify(needle)))
	case []any:
		for _, item := range h {
			if valuesEqual(item, needle) {
				return true
			}
		}
	case []string:
		for _, item := range h {
			if item == stringify(needle) {
				return true
			}
		}
	}
	return false
}

func memberOf(value, set any) bool {
	switch s := set.(type) {
	case []any:
		for _, item := range s {
			if valuesEqual(value, item) {
				return true
			}
		}
	case []string:
		for _, item := range s {
			if stringify(value) == item {
				return true
			}
		}
	case string:
		for _, item := range strings.Split(s, ",") {
			if stringify(value) == strings.TrimSpace(item) {
				return true
			}
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(v)
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// interpolate replaces {{field}} placeholders with values from the event.
// Unknown placeholders are left untouched.
func interpolate(template string, event Event) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		field := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := event.lookup(field); ok {
			return stringify(value)
		}
		return match
	})
}
