package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/loomworks/loom/internal/model"
)

// Error is a resolution failure carrying one of the fixed resolver error
// codes. Capabilities return it so the resolver can attach the code to the
// variable_resolve_failed diagnostic.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return e.Code + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Errf builds an Error with a formatted cause.
func Errf(code, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the resolver error code from err. Failures that carry no
// explicit code are classified: timeouts and network errors count as
// connect_failed, everything else as unknown.
func CodeOf(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ErrCodeConnectFailed
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return model.ErrCodeConnectFailed
	}
	return model.ErrCodeUnknown
}
