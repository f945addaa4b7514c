package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/internal/database"
	"github.com/charlesng35/salesalert/pkg/logger"
)

// RuleCreator is satisfied by *alerting.Engine.
type RuleCreator interface {
	CreateRule(ctx context.Context, rule alerting.Rule) (*alerting.Rule, error)
}

type rulePack struct {
	Rules []yaml.Node `yaml:"rules"`
}

// LoadRulePack parses a YAML rule pack and returns its rules with the file digest.
// Rules omitting is_active are active.
func LoadRulePack(path string) ([]alerting.Rule, string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("rules: read pack: %w", err)
	}
	sum := sha256.Sum256(content)

	var pack rulePack
	if err := yaml.Unmarshal(content, &pack); err != nil {
		return nil, "", fmt.Errorf("rules: parse pack: %w", err)
	}

	rules := make([]alerting.Rule, 0, len(pack.Rules))
	for i := range pack.Rules {
		node := &pack.Rules[i]
		var rule alerting.Rule
		if err := node.Decode(&rule); err != nil {
			return nil, "", fmt.Errorf("rules: decode rule %d: %w", i, err)
		}
		var flags struct {
			IsActive *bool `yaml:"is_active"`
		}
		if err := node.Decode(&flags); err != nil {
			return nil, "", fmt.Errorf("rules: decode rule %d: %w", i, err)
		}
		rule.IsActive = flags.IsActive == nil || *flags.IsActive
		if err := rule.Normalize(); err != nil {
			return nil, "", fmt.Errorf("rules: rule %d (%s): %w", i, rule.Name, err)
		}
		rules = append(rules, rule)
	}
	return rules, hex.EncodeToString(sum[:]), nil
}

// SyncRulePack creates the pack's rules unless the same pack was already applied.
// Rules whose name already exists are left untouched so edits made through the
// API survive restarts. It returns the number of rules created.
func SyncRulePack(ctx context.Context, db *gorm.DB, creator RuleCreator, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	log := logger.WithModule("rules")

	rules, checksum, err := LoadRulePack(path)
	if err != nil {
		return 0, err
	}

	applied, err := database.GetSystemSetting(ctx, db, database.RulePackChecksumSetting)
	if err != nil {
		return 0, err
	}
	if applied == checksum {
		log.Debug("rule pack unchanged", zap.String("path", path))
		return 0, nil
	}

	created := 0
	for _, rule := range rules {
		if _, err := creator.CreateRule(ctx, rule); err != nil {
			if errors.Is(err, alerting.ErrDuplicateRule) {
				log.Debug("rule already exists", zap.String("name", rule.Name))
				continue
			}
			return created, fmt.Errorf("rules: create %q: %w", rule.Name, err)
		}
		created++
	}

	if err := database.UpsertSystemSetting(ctx, db, database.RulePackChecksumSetting, checksum); err != nil {
		return created, err
	}
	log.Info("rule pack applied", zap.String("path", path), zap.Int("created", created), zap.Int("total", len(rules)))
	return created, nil
}
