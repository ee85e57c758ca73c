package module

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a canonical Error.
type Kind int

const (
	KindAlreadyRegistered Kind = iota + 1
	KindExecution
	KindQuery
	KindParse
	KindNotFound
)

// String returns the wire code for the kind.
func (k Kind) String() string {
	switch k {
	case KindAlreadyRegistered:
		return "ALREADY_REGISTERED"
	case KindExecution:
		return "EXECUTION_ERROR"
	case KindQuery:
		return "QUERY_ERROR"
	case KindParse:
		return "PARSE_ERROR"
	case KindNotFound:
		return "NOT_FOUND"
	}
	return "UNKNOWN"
}

// DetailTooManyPayloads is the parse detail reported when an execute or
// query envelope does not carry exactly one module payload.
const DetailTooManyPayloads = "too many module payloads"

// Sentinels matched by (*Error).Is, so callers can use errors.Is on kinds.
var (
	ErrAlreadyRegistered = errors.New("module already registered")
	ErrExecution         = errors.New("module execution failed")
	ErrQuery             = errors.New("module query failed")
	ErrParse             = errors.New("request parse failed")
	ErrNotFound          = errors.New("module not found")
)

// Bridge failures. They travel inside Execution and Query errors.
var (
	ErrDecode = errors.New("failed to decode message")
	ErrEncode = errors.New("failed to encode result")
)

// Error is the canonical error produced by the registry, the bridge and the
// dispatcher. It stays structured inside the process and is only turned
// into a string at the transport boundary.
type Error struct {
	Kind   Kind
	Module string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindAlreadyRegistered:
		return fmt.Sprintf("module %q already registered", e.Module)
	case KindExecution:
		return fmt.Sprintf("error executing module %q: %s", e.Module, e.Detail)
	case KindQuery:
		return fmt.Sprintf("error querying module %q: %s", e.Module, e.Detail)
	case KindParse:
		if e.Detail == "" {
			return "error parsing request"
		}
		return "error parsing request: " + e.Detail
	case KindNotFound:
		return fmt.Sprintf("module %q not found", e.Module)
	default:
		return fmt.Sprintf("module error (kind %d): %s", e.Kind, e.Detail)
	}
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrAlreadyRegistered:
		return e.Kind == KindAlreadyRegistered
	case ErrExecution:
		return e.Kind == KindExecution
	case ErrQuery:
		return e.Kind == KindQuery
	case ErrParse:
		return e.Kind == KindParse
	case ErrNotFound:
		return e.Kind == KindNotFound
	}
	return false
}

// AlreadyRegistered reports a duplicate registration of name.
func AlreadyRegistered(name string) *Error {
	return &Error{Kind: KindAlreadyRegistered, Module: name}
}

// ExecutionError wraps a failed instantiate or execute call on name.
func ExecutionError(name string, err error) *Error {
	return &Error{Kind: KindExecution, Module: name, Detail: detailOf(err), Err: err}
}

// QueryError wraps a failed query call on name.
func QueryError(name string, err error) *Error {
	return &Error{Kind: KindQuery, Module: name, Detail: detailOf(err), Err: err}
}

// ParseError reports a malformed envelope. detail may be empty.
func ParseError(detail string) *Error {
	return &Error{Kind: KindParse, Detail: detail}
}

// NotFound reports that no module is registered under name.
func NotFound(name string) *Error {
	return &Error{Kind: KindNotFound, Module: name}
}

func detailOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
