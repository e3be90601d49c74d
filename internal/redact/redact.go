// Package redact masks sensitive substrings (credentials, URIs embedding
// user info) before they reach logs or error strings (spec.md §7).
package redact

import "regexp"

var (
	credentialPattern = regexp.MustCompile(`(?i)(://)[^/\s:@]+:[^/\s:@]+@`)
	bearerPattern      = regexp.MustCompile(`(?i)(bearer|basic)\s+[A-Za-z0-9._-]+`)
)

// String masks credentials embedded in URIs and bearer/basic auth tokens.
func String(s string) string {
	s = credentialPattern.ReplaceAllString(s, "$1***:***@")
	s = bearerPattern.ReplaceAllString(s, "$1 ***")
	return s
}
