package types

import (
	"regexp"

	"github.com/m-mizutani/goerr/v2"
)

// Category groups memory records, typically one category per conversation
// channel. It becomes part of the key namespace (memory:{category}:{id}),
// so the character set is restricted.
type Category string

var categoryPattern = regexp.MustCompile(`^[a-zA-Z0-9_][a-zA-Z0-9_.-]*$`)

// Validate checks if the Category is usable as a key component
func (c Category) Validate() error {
	if c == "" {
		return goerr.Wrap(ErrInvalidCategory, "category cannot be empty")
	}
	if !categoryPattern.MatchString(string(c)) {
		return goerr.Wrap(ErrInvalidCategory, "category contains invalid characters", goerr.V("category", c))
	}
	return nil
}

// String returns the string representation of Category
func (c Category) String() string {
	return string(c)
}
