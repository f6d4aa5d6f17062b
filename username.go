package goWarden

import (
	"fmt"
	"regexp"
	"strings"
)

// usernamePattern allows alphanumeric segments joined by single '_' or '-'
// separators, starting and ending with a letter or digit.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9]+([_-]?[a-zA-Z0-9]+)*$`)

// reservedTerms are rejected anywhere inside a username, case-insensitive.
// "role" and "group" are reserved because policy subjects use them as
// prefixes; a username containing them could shadow a rule subject.
var reservedTerms = []string{
	"root", "admin", "superuser", "supervisor", "support", "system", "role", "group",
}

// ValidateUsername trims and checks a username against the grammar and the
// reserved-term list, returning the normalized value.
func ValidateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return "", fmt.Errorf("%w: must be alphanumeric with single '-' or '_' separators", ErrInvalidUsername)
	}

	lowered := strings.ToLower(username)
	for _, term := range reservedTerms {
		if strings.Contains(lowered, term) {
			return "", fmt.Errorf("%w: contains a reserved word", ErrInvalidUsername)
		}
	}
	return username, nil
}
