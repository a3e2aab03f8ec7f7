// Package intent classifies what a chat message asks for.
package intent

import "strings"

// Intent is the kind of answer a message asks for.
type Intent string

const (
	// Summary asks for an overview of the subject's tickets.
	Summary Intent = "summary"
	// Risk asks for a per-ticket risk assessment on top of the summary.
	Risk Intent = "risk"
)

// IsRisk reports whether the message mentions risk, case-insensitively.
func IsRisk(message string) bool {
	return strings.Contains(strings.ToLower(message), "risk")
}

// Classify returns the intent of message.
func Classify(message string) Intent {
	if IsRisk(message) {
		return Risk
	}
	return Summary
}
