// Package fault defines the error vocabulary shared by the client, the
// document tooling, and the test scenarios.
//
// Aggregate managers report failures in several shapes: XML-RPC faults,
// transport errors, and structured result codes inside a response envelope.
// The client layer folds all of these into a *Fault with a stable Kind, so
// test assertions can branch on the category of failure instead of matching
// server-specific message strings.
package fault

import (
	"errors"
	"fmt"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Kind is a stable category for programmatic error handling. Callers should
// branch on Kind rather than matching error strings, which vary between
// aggregate manager implementations.
type Kind string

const (
	// KindTransport is a network, TLS, HTTP, or XML-RPC protocol failure:
	// the call never produced a decodable result from the aggregate.
	KindTransport Kind = "Transport"

	// KindProtocol is a response that arrived but could not be decoded into
	// the shape the operation requires.
	KindProtocol Kind = "Protocol"

	// KindVersionFormat is a version-discovery response whose structure is
	// not in any recognized format.
	KindVersionFormat Kind = "VersionFormat"

	// KindBadDescriptor is a resource descriptor the aggregate rejected
	// without saying more precisely why.
	KindBadDescriptor Kind = "BadDescriptor"

	// KindMalformedDocument is a document that is not well-formed markup.
	KindMalformedDocument Kind = "MalformedDocument"

	// KindEmptyDocument is a document with no content at all.
	KindEmptyDocument Kind = "EmptyDocument"

	// KindWrongRole is a well-formed document used in the wrong role, such
	// as a manifest submitted where a request was required.
	KindWrongRole Kind = "WrongRole"

	KindAlreadyExists Kind = "AlreadyExists"
	KindNoSuchSliver  Kind = "NoSuchSliver"
	KindAuthorization Kind = "Authorization"
	KindExpired       Kind = "Expired"
	KindUnavailable   Kind = "Unavailable"
	KindUnsupported   Kind = "Unsupported"
	KindBusy          Kind = "Busy"

	// KindOperation is a failure the aggregate reported without a more
	// specific category.
	KindOperation Kind = "Operation"
)

// Fault is the structured error produced by aggregate manager calls and by
// local document parsing. GeniCode is the result code from the response
// envelope when the aggregate supplied one; calls that fail before or below
// that layer leave it unset.
type Fault struct {
	Kind     Kind
	GeniCode ldvalue.OptionalInt
	Message  string
	Cause    error
}

func (f *Fault) Error() string {
	if f == nil {
		return "<nil>"
	}
	if code, ok := f.GeniCode.Get(); ok {
		return fmt.Sprintf("%s: %s (geni_code %d)", f.Kind, f.Message, code)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Fault) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Cause
}

// New returns a Fault with the given kind and message.
func New(kind Kind, message string) *Fault {
	return &Fault{Kind: kind, Message: message}
}

// Newf is New with fmt.Sprintf formatting.
func Newf(kind Kind, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns a Fault that preserves cause for errors.Is/As chains.
func Wrap(kind Kind, cause error, message string) *Fault {
	return &Fault{Kind: kind, Message: message, Cause: cause}
}

// Wrapf is Wrap with fmt.Sprintf formatting.
func Wrapf(kind Kind, cause error, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithCode returns a copy of the fault carrying the aggregate's result code.
func (f *Fault) WithCode(code int) *Fault {
	f2 := *f
	f2.GeniCode = ldvalue.NewOptionalInt(code)
	return &f2
}

// KindOf returns the Kind of err if it is (or wraps) a *Fault, or "" if not.
func KindOf(err error) Kind {
	var f *Fault
	if !errors.As(err, &f) {
		return ""
	}
	return f.Kind
}

// IsKind reports whether err is (or wraps) a *Fault with the given Kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// CodeOf returns the aggregate result code attached to err, if any.
func CodeOf(err error) ldvalue.OptionalInt {
	var f *Fault
	if !errors.As(err, &f) {
		return ldvalue.OptionalInt{}
	}
	return f.GeniCode
}
