package criteriaquery

import (
	"errors"
	"fmt"
)

// ErrInvalidUsage is returned (wrapped) whenever a criteria tree is malformed:
// a predicate with the wrong value arity or type, or an operator outside the
// catalog. It is a programming error and never worth retrying.
var ErrInvalidUsage = errors.New("invalid criteria usage")

// UsageError identifies the entry that could not be compiled.
type UsageError struct {
	Field  string
	Key    OperationKey
	Reason string
}

func (e *UsageError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s: %s", ErrInvalidUsage, e.Key, e.Reason)
	}
	return fmt.Sprintf("%s: %s on field %q: %s", ErrInvalidUsage, e.Key, e.Field, e.Reason)
}

func (e *UsageError) Unwrap() error {
	return ErrInvalidUsage
}

func usageError(field string, key OperationKey, format string, args ...any) error {
	return &UsageError{Field: field, Key: key, Reason: fmt.Sprintf(format, args...)}
}
