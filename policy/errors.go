package policy

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPolicy is returned for an id that is not registered
	ErrUnknownPolicy = errors.New("unknown policy")
)

// Kind names the value type a policy expects
type Kind string

const (
	KindInteger     Kind = "integer"
	KindDecimal     Kind = "decimal"
	KindBoolean     Kind = "boolean"
	KindIntegerList Kind = "list of positive integers"
	KindFormula     Kind = "formula"
	KindTimeList    Kind = "list of times of day"
)

// ParseError reports input that could not be parsed for a policy
type ParseError struct {
	Policy   ID
	Input    string
	Expected Kind
	Err      error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid value %q for %s: expected %s: %v", e.Input, e.Policy, e.Expected, e.Err)
	}
	return fmt.Sprintf("invalid value %q for %s: expected %s", e.Input, e.Policy, e.Expected)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
