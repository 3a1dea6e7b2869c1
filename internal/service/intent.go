package service

import (
	"regexp"
	"strings"

	"github.com/aibanking/lending-assistant/internal/utils"
)

// IntentDetector classifies whether a message asks about lending eligibility
// and pulls candidate account numbers out of it. Detection is keyword-based;
// anything that does not match falls through to the RAG path.
type IntentDetector struct {
	keywords      []string
	accountRegexp *regexp.Regexp
	digitsRegexp  *regexp.Regexp
}

// eligibilityKeywords are matched case-insensitively as substrings of the
// lowered message.
var eligibilityKeywords = []string{
	"eligible",
	"eligibility",
	"not getting a limit",
	"loan limit",
	"limit issue",
	"credit limit",
	"why excluded",
	"excluded",
	"exclusion",
	"qualify",
	"qualifies",
	"qualification",
	"disqualified",
	"limit for account",
	"no limit",
}

// NewIntentDetector compiles the keyword set and extraction patterns.
func NewIntentDetector() *IntentDetector {
	return &IntentDetector{
		keywords: eligibilityKeywords,
		// Word-bounded runs of exactly ten digits.
		accountRegexp: regexp.MustCompile(`\b\d{10}\b`),
		digitsRegexp:  regexp.MustCompile(`^\d{10}$`),
	}
}

// Detect reports whether text is an eligibility query, plus the SHA-256 of
// the text for PII-safe logging.
func (d *IntentDetector) Detect(text string) (bool, string) {
	hash := utils.HashText(text)
	lowered := strings.ToLower(text)
	for _, kw := range d.keywords {
		if strings.Contains(lowered, kw) {
			return true, hash
		}
	}
	return false, hash
}

// ExtractAccounts finds all word-bounded ten-digit runs in text, deduplicated
// preserving first-seen order. Empty input yields an empty slice.
func (d *IntentDetector) ExtractAccounts(text string) []string {
	matches := d.accountRegexp.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	accounts := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		accounts = append(accounts, m)
	}
	return accounts
}

// ValidateAccounts partitions candidates into valid and invalid. Valid means
// exactly ten ASCII digits.
func (d *IntentDetector) ValidateAccounts(candidates []string) (valid, invalid []string) {
	valid = make([]string, 0, len(candidates))
	invalid = make([]string, 0)
	for _, c := range candidates {
		if d.digitsRegexp.MatchString(c) {
			valid = append(valid, c)
		} else {
			invalid = append(invalid, c)
		}
	}
	return valid, invalid
}
