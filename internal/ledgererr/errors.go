// Package ledgererr defines the typed errors returned by the ledger core.
//
// Every rejection carries a Code. Callers match codes with Is or CodeOf,
// both of which see through fmt.Errorf("%w") wrapping.
package ledgererr

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/ledger/internal/ident"
)

// Code categorizes ledger errors.
type Code string

const (
	CodeParseError            Code = "ParseError"
	CodeAlreadyExists         Code = "AlreadyExists"
	CodeNotFound              Code = "NotFound"
	CodeMultipleFound         Code = "MultipleFound"
	CodeNotOwner              Code = "NotOwner"
	CodeNotPermitted          Code = "NotPermitted"
	CodeUnmintable            Code = "Unmintable"
	CodeInvalidPrecision      Code = "InvalidPrecision"
	CodeInvalidValue          Code = "InvalidValue"
	CodeInsufficientFunds     Code = "InsufficientFunds"
	CodeWrongValueType        Code = "WrongValueType"
	CodeTriggerRecursionLimit Code = "TriggerRecursionLimit"
	CodeInvariantViolation    Code = "InvariantViolation"
)

// Error is a typed ledger error.
//
// Entity and ID name the object the error is about, when there is one.
// Details holds extra diagnostics such as the authority of a rejected
// instruction or the balance of an underfunded asset.
type Error struct {
	Code    Code
	Message string
	Entity  string
	ID      string
	Details map[string]string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Entity != "" {
		fmt.Fprintf(&b, " (%s %s)", e.Entity, e.ID)
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.Details[k])
		}
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with the given code and message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// With returns a copy of e with a detail added.
func (e *Error) With(key, value string) *Error {
	cp := *e
	cp.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// CodeOf returns the code of the first ledger error in err's chain.
// Identifier parse failures report CodeParseError. Other errors report "".
func CodeOf(err error) Code {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	var pe *ident.ParseError
	if errors.As(err, &pe) {
		return CodeParseError
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// NotFound reports a missing entity.
func NotFound(entity string, id fmt.Stringer) *Error {
	return &Error{Code: CodeNotFound, Message: entity + " not found", Entity: entity, ID: id.String()}
}

// AlreadyExists reports a duplicate identifier.
func AlreadyExists(entity string, id fmt.Stringer) *Error {
	return &Error{Code: CodeAlreadyExists, Message: entity + " already exists", Entity: entity, ID: id.String()}
}

// NotOwner reports a transfer whose claimed source is not the recorded owner.
func NotOwner(entity string, id fmt.Stringer, owner, claimed ident.AccountID) *Error {
	return &Error{
		Code:    CodeNotOwner,
		Message: "claimed owner does not own " + entity,
		Entity:  entity,
		ID:      id.String(),
		Details: map[string]string{"owner": owner.String(), "claimed": claimed.String()},
	}
}

// NotPermitted reports a failed authorization.
func NotPermitted(authority ident.AccountID, capability, target string) *Error {
	return &Error{
		Code:    CodeNotPermitted,
		Message: fmt.Sprintf("%s may not %s", authority, capability),
		Details: map[string]string{
			"authority":  authority.String(),
			"capability": capability,
			"target":     target,
		},
	}
}

// IsNotFound returns true if err is a NotFound error.
func IsNotFound(err error) bool { return Is(err, CodeNotFound) }

// IsNotPermitted returns true if err is a NotPermitted error.
func IsNotPermitted(err error) bool { return Is(err, CodeNotPermitted) }

// IsTriggerRecursionLimit returns true if err is a TriggerRecursionLimit error.
func IsTriggerRecursionLimit(err error) bool { return Is(err, CodeTriggerRecursionLimit) }
