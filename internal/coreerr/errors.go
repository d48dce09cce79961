// Package coreerr defines the closed set of error kinds THE CORE distinguishes
// when deciding whether to retry, surface a SystemError, or let a run outcome
// pass through as non-error control flow.
package coreerr

import "fmt"

// Kind is one of the error categories from the error handling design.
type Kind string

const (
	KindTransientNetwork  Kind = "transient_network"
	KindRemoteProtocol    Kind = "remote_protocol"
	KindToolInvocation    Kind = "tool_invocation"
	KindDeviceError       Kind = "device_error"
	KindConfigurationErr  Kind = "configuration_error"
)

// Error wraps an underlying cause with a Kind so callers can branch with
// errors.As without parsing strings.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func TransientNetwork(op string, err error) *Error { return New(KindTransientNetwork, op, err) }
func RemoteProtocol(op string, err error) *Error   { return New(KindRemoteProtocol, op, err) }
func ToolInvocation(op string, err error) *Error   { return New(KindToolInvocation, op, err) }
func DeviceError(op string, err error) *Error      { return New(KindDeviceError, op, err) }
func Configuration(op string, err error) *Error    { return New(KindConfigurationErr, op, err) }

// IsKind reports whether err (or something it wraps) is a *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == k
}
