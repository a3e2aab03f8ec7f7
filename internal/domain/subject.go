// Package domain holds the core types shared across the service.
package domain

// Subject is the Jira assignee currently in focus for a conversation.
// At most one of Username and FullName is set.
type Subject struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

// UsernameSubject returns a subject identified by a Jira username.
func UsernameSubject(username string) Subject {
	return Subject{Username: username}
}

// FullNameSubject returns a subject identified by a display name.
func FullNameSubject(fullName string) Subject {
	return Subject{FullName: fullName}
}

// Name returns the value used as the Jira assignee, preferring the full name.
func (s Subject) Name() string {
	if s.FullName != "" {
		return s.FullName
	}
	return s.Username
}

// IsZero reports whether no subject has been resolved yet.
func (s Subject) IsZero() bool {
	return s.Username == "" && s.FullName == ""
}
