// Package subject extracts the Jira assignee a chat message is about.
package subject

import (
	"regexp"
	"strings"

	"github.com/ashureev/jira-pulse/internal/domain"
)

// Rule extracts a subject from a message. Extract reports false when the
// rule does not apply.
type Rule struct {
	Name    string
	Extract func(message string) (domain.Subject, bool)
}

// Rule names.
const (
	RuleFullName   = "full-name"
	RuleUsername   = "username"
	RuleAssignedTo = "assigned-to"
)

var (
	fullNamePattern   = regexp.MustCompile(`(?i)\b(?:full name is|name is|call me) ([\w\s]+)`)
	usernamePattern   = regexp.MustCompile(`(?i)\b(?:username is|user is) (\w+)`)
	assignedToPattern = regexp.MustCompile(`(?i)\b(?:get tickets? assigned to|show me tasks for user) ([\w\s]+)`)
)

// DefaultRules returns the built-in rules in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		PatternRule(RuleFullName, fullNamePattern, domain.FullNameSubject),
		PatternRule(RuleUsername, usernamePattern, domain.UsernameSubject),
		PatternRule(RuleAssignedTo, assignedToPattern, byShape),
	}
}

// PatternRule builds a rule from a regexp whose first group captures the name.
// Blank captures are treated as no match.
func PatternRule(name string, re *regexp.Regexp, build func(string) domain.Subject) Rule {
	return Rule{
		Name: name,
		Extract: func(message string) (domain.Subject, bool) {
			m := re.FindStringSubmatch(message)
			if len(m) < 2 {
				return domain.Subject{}, false
			}
			captured := strings.TrimSpace(m[1])
			if captured == "" {
				return domain.Subject{}, false
			}
			return build(captured), true
		},
	}
}

// byShape treats multi-word captures as a display name, single words as a username.
func byShape(captured string) domain.Subject {
	if strings.ContainsAny(captured, " \t\r\n") {
		return domain.FullNameSubject(captured)
	}
	return domain.UsernameSubject(captured)
}

// Resolver applies rules in order; the first match wins.
type Resolver struct {
	rules []Rule
}

// NewResolver creates a resolver. Without rules it uses DefaultRules.
func NewResolver(rules ...Rule) *Resolver {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Resolver{rules: rules}
}

// Resolve returns the subject named in message, if any.
func (r *Resolver) Resolve(message string) (domain.Subject, bool) {
	s, _, ok := r.ResolveRule(message)
	return s, ok
}

// ResolveRule is Resolve plus the name of the rule that matched.
func (r *Resolver) ResolveRule(message string) (domain.Subject, string, bool) {
	for _, rule := range r.rules {
		if s, ok := rule.Extract(message); ok {
			return s, rule.Name, true
		}
	}
	return domain.Subject{}, "", false
}
