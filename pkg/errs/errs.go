// Package errs defines the three error strata used across the step engine:
// input errors (user-facing, surfaced at parse or registration time),
// assertion failures (a test failed, the run continues), and internal
// errors (unexpected states that indicate a bug or an unimplemented path).
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// InputError wraps a user-facing error: a bad step, a bad argument, a bad
// reference. These are recoverable in the sense that the user can fix their
// test file or invocation.
type InputError struct {
	Err error
}

func (e *InputError) Error() string { return e.Err.Error() }
func (e *InputError) Unwrap() error { return e.Err }

// AssertionError wraps a test-level failure. It fails the enclosing test
// but never aborts the run.
type AssertionError struct {
	Err error
}

func (e *AssertionError) Error() string { return e.Err.Error() }
func (e *AssertionError) Unwrap() error { return e.Err }

// InternalError wraps an unexpected condition: a driver protocol mismatch,
// a YAML navigation inconsistency, an unimplemented capability.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string { return e.Err.Error() }
func (e *InternalError) Unwrap() error { return e.Err }

// Input wraps err as an input-stratum error.
func Input(err error) error { return &InputError{Err: err} }

// Inputf creates an input-stratum error from a format string.
func Inputf(format string, a ...any) error {
	return &InputError{Err: fmt.Errorf(format, a...)}
}

// Assertion wraps err as an assertion-stratum error.
func Assertion(err error) error { return &AssertionError{Err: err} }

// Assertionf creates an assertion-stratum error from a format string.
func Assertionf(format string, a ...any) error {
	return &AssertionError{Err: fmt.Errorf(format, a...)}
}

// Internal wraps err as an internal-stratum error.
func Internal(err error) error { return &InternalError{Err: err} }

// Internalf creates an internal-stratum error from a format string.
func Internalf(format string, a ...any) error {
	return &InternalError{Err: fmt.Errorf(format, a...)}
}

// IsInput reports whether err belongs to the input stratum.
func IsInput(err error) bool {
	var e *InputError
	return errors.As(err, &e)
}

// IsAssertion reports whether err belongs to the assertion stratum.
func IsAssertion(err error) bool {
	var e *AssertionError
	return errors.As(err, &e)
}

// IsInternal reports whether err belongs to the internal stratum.
func IsInternal(err error) bool {
	var e *InternalError
	return errors.As(err, &e)
}

// ErrNonexistentStep is returned when a user step matches no registered
// pattern. The orchestrator follows up with did-you-mean suggestions.
var ErrNonexistentStep = errors.New("step was not found")

// NonexistentArgument reports a variable reference with no bound value.
type NonexistentArgument struct {
	Arg string
	Has string
}

func (e *NonexistentArgument) Error() string {
	return fmt.Sprintf("argument %q does not exist, have: %s", e.Arg, e.Has)
}

// IncorrectArgumentType reports a bound value of the wrong JSON type.
type IncorrectArgumentType struct {
	Arg      string
	Was      string
	Expected string
}

func (e *IncorrectArgumentType) Error() string {
	return fmt.Sprintf("argument %q was a %s, expected a %s", e.Arg, e.Was, e.Expected)
}

// ArgumentRequiresValue reports an argument that was bound but empty.
type ArgumentRequiresValue struct {
	Arg string
}

func (e *ArgumentRequiresValue) Error() string {
	return fmt.Sprintf("argument %q requires a value", e.Arg)
}

// UnclosedValue reports a template with an unterminated quote or brace.
type UnclosedValue struct {
	Expected rune
}

func (e *UnclosedValue) Error() string {
	return fmt.Sprintf("value was not closed, expected %c", e.Expected)
}

// InvalidRef reports a ref step pointing at a file that was not loaded.
type InvalidRef struct {
	Input   string
	Closest string
}

func (e *InvalidRef) Error() string {
	return fmt.Sprintf("%q is not a valid reference to another test file.\nclosest match: %s", e.Input, e.Closest)
}

// InvalidPath reports a path that could not be interpreted.
type InvalidPath struct {
	Input string
}

func (e *InvalidPath) Error() string {
	return fmt.Sprintf("%q is not a valid path", e.Input)
}

// DuplicateName reports two test files that share a name.
type DuplicateName struct {
	Name    string
	PathOne string
	PathTwo string
}

func (e *DuplicateName) Error() string {
	return fmt.Sprintf("test name %q is used by both %s and %s", e.Name, e.PathOne, e.PathTwo)
}

// StepRequirementsNotMet reports a step that cannot run in the current
// civilization state, e.g. a browser step before any page was loaded.
type StepRequirementsNotMet struct {
	Reason string
}

func (e *StepRequirementsNotMet) Error() string { return e.Reason }

// StepError reports a step whose body could not be evaluated at all.
type StepError struct {
	Reason string
}

func (e *StepError) Error() string { return e.Reason }

// BrowserJSError is an assertion-level failure raised when JavaScript
// evaluated in the browser reported errors through the harness.
type BrowserJSError struct {
	Msg  string
	Logs string
}

func (e *BrowserJSError) Error() string {
	var b strings.Builder
	b.WriteString("browser JavaScript failed:\n")
	b.WriteString(e.Msg)
	if e.Logs != "" {
		b.WriteString("\nbrowser console:\n")
		b.WriteString(e.Logs)
	}
	return b.String()
}

// ArgsString renders the currently bound argument names for error messages.
func ArgsString[V any](args map[string]V) string {
	if len(args) == 0 {
		return "no arguments"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
