package resolver

import (
	"errors"
	"fmt"
)

// Kind classifies a resolution failure
type Kind string

const (
	// KindNotResolvable means the transfer carries nothing to resolve
	KindNotResolvable Kind = "not_resolvable"
	// KindRemote is a transient chain query failure; the caller may retry
	KindRemote Kind = "remote"
)

// Error is returned by Resolve and SubmissionChecker.Check
type Error struct {
	Kind Kind
	ID   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resolve %s (%s): %v", e.ID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a transient failure worth retrying
func IsRetryable(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindRemote
}

func notResolvable(id string, format string, args ...any) *Error {
	return &Error{Kind: KindNotResolvable, ID: id, Err: fmt.Errorf(format, args...)}
}

func remote(id string, err error) *Error {
	return &Error{Kind: KindRemote, ID: id, Err: err}
}
