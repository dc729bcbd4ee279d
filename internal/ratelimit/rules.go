package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Proton-105/mintwatch/pkg/config"
)

// Rules resolves the configured limits.
type Rules struct {
	perUser   config.RateLimitRule
	whitelist map[string]struct{}
}

func NewRules(cfg config.RateLimitConfig) *Rules {
	whitelist := make(map[string]struct{}, len(cfg.Whitelist))
	for _, id := range cfg.Whitelist {
		if id = strings.TrimSpace(id); id != "" {
			whitelist[id] = struct{}{}
		}
	}

	return &Rules{perUser: cfg.PerUser, whitelist: whitelist}
}

// IsWhitelisted reports whether userID bypasses rate limits.
func (r *Rules) IsWhitelisted(userID string) bool {
	_, ok := r.whitelist[userID]
	return ok
}

// PerUser returns the limit applied to requests naming a user.
func (r *Rules) PerUser() (Rule, error) {
	return parseRule(r.perUser)
}

func parseRule(rule config.RateLimitRule) (Rule, error) {
	if rule.Window == "" {
		return Rule{}, errors.New("window duration is not set")
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return Rule{}, fmt.Errorf("parse window %q: %w", rule.Window, err)
	}
	if window <= 0 || rule.Limit <= 0 {
		return Rule{}, fmt.Errorf("limit %d per %s is not positive", rule.Limit, rule.Window)
	}
	return Rule{Limit: rule.Limit, Window: window}, nil
}
