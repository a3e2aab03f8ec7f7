package subject

import (
	"regexp"
	"testing"

	"github.com/ashureev/jira-pulse/internal/domain"
)

func TestResolveDefaultRules(t *testing.T) {
	cases := []struct {
		name    string
		message string
		want    domain.Subject
		rule    string
	}{
		{"call me", "call me Alice Smith", domain.FullNameSubject("Alice Smith"), RuleFullName},
		{"name is", "Hi, my name is Bob", domain.FullNameSubject("Bob"), RuleFullName},
		{"full name is", "My full name is Jane Doe", domain.FullNameSubject("Jane Doe"), RuleFullName},
		{"case insensitive", "CALL ME carol", domain.FullNameSubject("carol"), RuleFullName},
		{"username is", "My username is asingh", domain.UsernameSubject("asingh"), RuleUsername},
		{"user is", "the user is jdoe today", domain.UsernameSubject("jdoe"), RuleUsername},
		{"assigned to single word", "get tickets assigned to mkhan", domain.UsernameSubject("mkhan"), RuleAssignedTo},
		{"assigned to singular", "Get ticket assigned to mkhan", domain.UsernameSubject("mkhan"), RuleAssignedTo},
		{"tasks for user full name", "show me tasks for user Priya Patel", domain.FullNameSubject("Priya Patel"), RuleAssignedTo},
	}

	r := NewResolver()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, rule, ok := r.ResolveRule(tc.message)
			if !ok {
				t.Fatalf("expected a match for %q", tc.message)
			}
			if got != tc.want {
				t.Errorf("expected %+v, got %+v", tc.want, got)
			}
			if rule != tc.rule {
				t.Errorf("expected rule %q, got %q", tc.rule, rule)
			}
		})
	}
}

func TestResolveNoMatch(t *testing.T) {
	r := NewResolver()
	for _, msg := range []string{"show my tickets", "what's the risk?", "", "username"} {
		if s, ok := r.Resolve(msg); ok {
			t.Errorf("expected no match for %q, got %+v", msg, s)
		}
	}
}

func TestResolveRejectsBlankCapture(t *testing.T) {
	r := NewResolver()
	if s, ok := r.Resolve("my name is    "); ok {
		t.Fatalf("blank capture must not match, got %+v", s)
	}
}

func TestResolveFirstRuleWins(t *testing.T) {
	r := NewResolver()
	got, rule, ok := r.ResolveRule("call me Dana and my username is dkim")
	if !ok || rule != RuleFullName {
		t.Fatalf("expected full-name rule to win, got %q ok=%v", rule, ok)
	}
	if got.FullName == "" || got.Username != "" {
		t.Fatalf("expected a full-name subject, got %+v", got)
	}
}

func TestCustomRuleOrder(t *testing.T) {
	handle := PatternRule("handle", regexp.MustCompile(`@(\w+)`), domain.UsernameSubject)
	r := NewResolver(append([]Rule{handle}, DefaultRules()...)...)

	got, rule, ok := r.ResolveRule("call me Alice, I'm @alice on jira")
	if !ok || rule != "handle" || got.Username != "alice" {
		t.Fatalf("expected custom rule to take precedence, got %+v %q", got, rule)
	}
}
