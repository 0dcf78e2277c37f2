package domain

import "regexp"

var accountPattern = regexp.MustCompile(`^[a-z0-9.-]{3,16}$`)

// ValidAccountName reports whether name is a syntactically valid Hive account.
// Existence on chain is not checked.
func ValidAccountName(name string) bool {
	return accountPattern.MatchString(name)
}
