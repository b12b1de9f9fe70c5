package collector

import (
	"regexp"
	"strings"
)

// Anonymizer strips emails, usernames, and greeting/sign-off boilerplate
// from ticket text before it's persisted. Person-name redaction (done via
// a named-entity model upstream) is out of scope here -- no NER library
// is wired into a2rchi, so only the pattern-based redactions apply.
type Anonymizer struct {
	emailPattern    *regexp.Regexp
	usernamePattern *regexp.Regexp
	greetings       []*regexp.Regexp
	signoffs        []*regexp.Regexp
}

// NewAnonymizer builds an Anonymizer from configured regular expressions.
func NewAnonymizer(emailPattern, usernamePattern string, greetingPatterns, signoffPatterns []string) (*Anonymizer, error) {
	email, err := regexp.Compile(emailPattern)
	if err != nil {
		return nil, err
	}
	username, err := regexp.Compile(usernamePattern)
	if err != nil {
		return nil, err
	}

	a := &Anonymizer{emailPattern: email, usernamePattern: username}
	for _, p := range greetingPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, err
		}
		a.greetings = append(a.greetings, re)
	}
	for _, p := range signoffPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, err
		}
		a.signoffs = append(a.signoffs, re)
	}
	return a, nil
}

// Anonymize removes email addresses, usernames, and greeting/sign-off
// lines from text.
func (a *Anonymizer) Anonymize(text string) string {
	text = a.emailPattern.ReplaceAllString(text, "")
	text = a.usernamePattern.ReplaceAllString(text, "")

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if matchesAny(a.greetings, trimmed) || matchesAny(a.signoffs, trimmed) {
			continue
		}
		if trimmed != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}
