package model

import (
	"strings"
	"time"
)

// UserSource identifies where a user record originates.
type UserSource string

const (
	UserSourceLocal  UserSource = "local"
	UserSourceRemote UserSource = "remote"
)

// StubEmailDomain is the reserved domain used for placeholder emails of
// users referenced before their own record was synchronized.
const StubEmailDomain = "remote-unresolved.invalid"

// User is a person known locally, either created locally or mirrored from
// the remote system.
type User struct {
	ID string `json:"id" yaml:"id"`

	// RemoteAccountID is the remote account identifier; nil for purely
	// local users that were never linked.
	RemoteAccountID *string `json:"remote_account_id,omitempty" yaml:"remote_account_id,omitempty"`

	Email       string     `json:"email" yaml:"email"`
	DisplayName string     `json:"display_name" yaml:"display_name"`
	Active      bool       `json:"active" yaml:"active"`
	Source      UserSource `json:"source" yaml:"source"`

	// IsStub marks a placeholder created while resolving a task assignee.
	IsStub bool `json:"is_stub" yaml:"is_stub"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// StubEmail returns the synthetic unique email used for a stub user.
func StubEmail(accountID string) string {
	return accountID + "@" + StubEmailDomain
}

// IsStubEmail reports whether email was synthesized by StubEmail.
func IsStubEmail(email string) bool {
	return strings.HasSuffix(strings.ToLower(email), "@"+StubEmailDomain)
}
