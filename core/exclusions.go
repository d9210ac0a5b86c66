package core

import (
	"net/url"
	"regexp"
	"strings"

	"bacman/logger"
	"bacman/models"
)

type compiledRule struct {
	rule models.ProbeExclusionRule
	re   *regexp.Regexp
}

// ExclusionFilter decides which intercepted URLs are never handed to the coordinator.
type ExclusionFilter struct {
	rules []compiledRule
}

// NewExclusionFilter compiles the enabled rules. Rules with an invalid regex are dropped.
func NewExclusionFilter(rules []models.ProbeExclusionRule) *ExclusionFilter {
	f := &ExclusionFilter{}
	for _, r := range rules {
		if !r.IsEnabled || strings.TrimSpace(r.Pattern) == "" {
			continue
		}
		cr := compiledRule{rule: r}
		if r.RuleType == models.RuleTypeURLRegex {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				logger.ProxyError("Invalid regex pattern in probe exclusion rule ID %s: %s", r.ID, r.Pattern)
				continue
			}
			cr.re = re
		}
		f.rules = append(f.rules, cr)
	}
	return f
}

// Excluded returns the first matching rule, if any.
func (f *ExclusionFilter) Excluded(u *url.URL) (models.ProbeExclusionRule, bool) {
	if f == nil || u == nil {
		return models.ProbeExclusionRule{}, false
	}
	for _, cr := range f.rules {
		if cr.matches(u) {
			return cr.rule, true
		}
	}
	return models.ProbeExclusionRule{}, false
}

func (cr compiledRule) matches(u *url.URL) bool {
	pattern := cr.rule.Pattern
	switch cr.rule.RuleType {
	case models.RuleTypeFileExtension:
		if !strings.HasPrefix(pattern, ".") {
			pattern = "." + pattern
		}
		return strings.HasSuffix(strings.ToLower(u.Path), strings.ToLower(pattern))
	case models.RuleTypeURLRegex:
		return cr.re != nil && cr.re.MatchString(u.String())
	case models.RuleTypeDomain:
		host := strings.ToLower(u.Hostname())
		pattern = strings.ToLower(pattern)
		if strings.HasPrefix(pattern, "*.") {
			base := strings.TrimPrefix(pattern, "*.")
			return host == base || strings.HasSuffix(host, "."+base)
		}
		return host == pattern
	}
	return false
}
