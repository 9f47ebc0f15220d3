// Package issuekey validates the natural keys used by the remote
// project-management system.
package issuekey

import (
	"regexp"
	"strings"
)

// projectKeyPattern matches project keys (e.g., PROJ, AB1).
var projectKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]+$`)

// issueKeyPattern matches a whole issue key (e.g., PROJ-123, ABC-1).
var issueKeyPattern = regexp.MustCompile(`^([A-Z][A-Z0-9_]+)-(\d+)$`)

// ValidProject reports whether key is a well-formed project key.
func ValidProject(key string) bool {
	return projectKeyPattern.MatchString(key)
}

// Valid reports whether key is a well-formed issue key.
func Valid(key string) bool {
	return issueKeyPattern.MatchString(key)
}

// Project returns the project part of an issue key, or "" when key is
// malformed.
func Project(key string) string {
	m := issueKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return ""
	}
	return m[1]
}

// Normalize trims surrounding whitespace. Keys are matched
// case-sensitively, so no case folding happens here.
func Normalize(key string) string {
	return strings.TrimSpace(key)
}
