package services

import (
	"regexp"
	"strconv"
	"strings"
)

// TierParser extracts numeric rank levels from role names such as
// "Magnitude 5.5". Matching ignores case and surrounding whitespace.
type TierParser struct {
	re *regexp.Regexp
}

func NewTierParser(prefix string) *TierParser {
	words := strings.Fields(prefix)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	pattern := `(?i)^\s*` + strings.Join(words, `\s+`) + `\s+(\d+(?:\.\d+)?)\s*$`
	return &TierParser{re: regexp.MustCompile(pattern)}
}

// Parse returns the tier encoded in a single role name.
func (p *TierParser) Parse(role string) (float64, bool) {
	m := p.re.FindStringSubmatch(role)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Highest returns the maximum tier across roles; ok is false when no role
// is a tier role.
func (p *TierParser) Highest(roles []string) (tier float64, ok bool) {
	for _, r := range roles {
		v, matched := p.Parse(r)
		if !matched {
			continue
		}
		if !ok || v > tier {
			tier = v
			ok = true
		}
	}
	return tier, ok
}

func (p *TierParser) HasTier(roles []string) bool {
	_, ok := p.Highest(roles)
	return ok
}
