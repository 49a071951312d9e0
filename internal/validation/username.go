// Package validation holds input rules shared by the API and its clients.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var usernameRegex = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)

var reservedUsernames = map[string]struct{}{
	"admin":     {},
	"api":       {},
	"root":      {},
	"system":    {},
	"support":   {},
	"moderator": {},
	"forum":     {},
	"models":    {},
	"billing":   {},
	"null":      {},
	"undefined": {},
}

// NormalizeUsername trims and lowercases a username candidate.
func NormalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateUsername validates username format and reserved names. The input
// is expected to be normalized already.
func ValidateUsername(name string) error {
	if !usernameRegex.MatchString(name) {
		return fmt.Errorf("username must be 3-20 characters and contain only lowercase letters, numbers, and underscores")
	}
	if strings.HasPrefix(name, "_") || strings.HasSuffix(name, "_") {
		return fmt.Errorf("username cannot start or end with an underscore")
	}
	if _, exists := reservedUsernames[name]; exists {
		return fmt.Errorf("username is reserved")
	}
	return nil
}
