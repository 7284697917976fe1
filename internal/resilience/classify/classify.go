// Package classify maps raw failures into a typed ErrorInfo.
package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/vietddude/dashwatch/internal/infra/api"
)

// Kind is the failure taxonomy shared by retry, coordinator and dashboard.
type Kind int

const (
	Unknown Kind = iota
	Connection
	Timeout
	Auth
	ServerFault
)

func (k Kind) String() string {
	switch k {
	case Connection:
		return "connection"
	case Timeout:
		return "timeout"
	case Auth:
		return "auth"
	case ServerFault:
		return "server_fault"
	default:
		return "unknown"
	}
}

// ErrTimeout is raised when an attempt loses its timeout race.
var ErrTimeout = errors.New("operation timed out")

// ErrorInfo describes a classified failure.
type ErrorInfo struct {
	Kind      Kind
	Message   string
	Retryable bool
}

var (
	connectionInfo = ErrorInfo{
		Kind:      Connection,
		Message:   "Cannot reach the server. Check your connection.",
		Retryable: true,
	}
	timeoutInfo = ErrorInfo{
		Kind:      Timeout,
		Message:   "The server took too long to respond.",
		Retryable: true,
	}
	authInfo = ErrorInfo{
		Kind:      Auth,
		Message:   "Your session has expired. Please sign in again.",
		Retryable: false,
	}
	serverInfo = ErrorInfo{
		Kind:      ServerFault,
		Message:   "The server hit an internal error.",
		Retryable: true,
	}
	unknownInfo = ErrorInfo{
		Kind:      Unknown,
		Message:   "Something went wrong while loading data.",
		Retryable: true,
	}
)

// Classify determines the ErrorInfo for a failure. It never panics and
// unclassifiable input, nil and typed-nil errors included, yields Unknown.
func Classify(err error) (info ErrorInfo) {
	if err == nil {
		return unknownInfo
	}
	// Foreign error types may still panic on a nil receiver.
	defer func() {
		if recover() != nil {
			info = unknownInfo
		}
	}()

	var classified *Error
	if errors.As(err, &classified) && classified != nil {
		return classified.Info
	}

	// Timeout signals
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return timeoutInfo
	}

	var trErr *api.TransportError
	if errors.As(err, &trErr) && trErr != nil {
		switch trErr.Code {
		case api.CodeTimeout:
			return timeoutInfo
		case api.CodeConnectionRefused, api.CodeNetwork:
			return connectionInfo
		}
	}

	var statusErr *api.StatusError
	if errors.As(err, &statusErr) && statusErr != nil {
		return classifyStatus(statusErr.Status)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return timeoutInfo
	}

	// No connectivity
	var dnsErr *net.DNSError
	var opErr *net.OpError
	if errors.Is(err, syscall.ECONNREFUSED) || errors.As(err, &dnsErr) || errors.As(err, &opErr) {
		return connectionInfo
	}

	return classifyMessage(err.Error())
}

func classifyStatus(status int) ErrorInfo {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return authInfo
	case status >= http.StatusInternalServerError:
		return serverInfo
	default:
		return unknownInfo
	}
}

// classifyMessage is the compatibility shim for failures that arrive as
// plain text from transports that cannot produce structured errors.
func classifyMessage(msg string) ErrorInfo {
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return timeoutInfo
	case strings.Contains(lower, "network error"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "no such host"):
		return connectionInfo
	}
	return unknownInfo
}

// KindOf is shorthand for Classify(err).Kind.
func KindOf(err error) Kind {
	return Classify(err).Kind
}

// Error carries a failure together with its classification.
type Error struct {
	Info ErrorInfo
	Err  error
}

// Wrap classifies err and attaches the result. A nil err stays nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) && classified != nil {
		return err
	}
	return &Error{Info: Classify(err), Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %v", e.Info.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
