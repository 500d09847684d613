package xrayclient

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies why a panel operation failed
type ErrorKind int

const (
	// KindTransport means the request could not be completed
	KindTransport ErrorKind = iota + 1
	// KindProtocol means the panel answered but did not report success
	KindProtocol
	// KindAuthentication means no session could be established
	KindAuthentication
	// KindValidation means the call was rejected before reaching the panel
	KindValidation
)

// String returns the name of the kind
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindAuthentication:
		return "authentication"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error represents a failed panel operation
type Error struct {
	Kind      ErrorKind
	Operation string
	Endpoint  string
	Status    int
	Message   string
	Err       error
}

// Error returns the error message
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("x-ui %s error during %s", e.Kind, e.Operation))
	if e.Endpoint != "" {
		sb.WriteString(fmt.Sprintf(" [%s]", e.Endpoint))
	}
	if e.Status != 0 {
		sb.WriteString(fmt.Sprintf(" (status %d)", e.Status))
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil && e.Err.Error() != e.Message {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

func validationError(op string, err error) error {
	return &Error{Kind: KindValidation, Operation: op, Message: err.Error(), Err: err}
}

func notFoundError(op, format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Operation: op, Message: fmt.Sprintf(format, args...) + " not found"}
}
