package simerrors

import "github.com/pkg/errors"

// ExecutionResult is the user-visible outcome of a PTB execution
// (spec.md §7): the raw error is kept for diagnostics, the structured
// form is the contract callers should match on.
type ExecutionResult struct {
	Success                  bool
	Error                    error
	RawError                 string
	FailedCommandIndex       *int
	FailedCommandDescription string
	CommandsSucceeded        int
	ErrorContext             map[string]string
	StateAtFailure           []byte
}

// Classify returns err unchanged together with its raw string
// representation ("" for nil), satisfying the "raw string is preserved for diagnostics, the
// structured form is the contract" propagation policy (spec.md §7).
func Classify(err error) (structured error, raw string) {
	if err == nil {
		return nil, ""
	}
	return err, err.Error()
}

// Wrap attaches contextual information to err using the same wrapping
// convention used throughout the rest of the module.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Wrapf is the formatted variant of Wrap.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}
