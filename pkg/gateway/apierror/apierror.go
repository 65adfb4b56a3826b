// Package apierror maps internal errors onto HTTP responses.
package apierror

import (
	"context"
	"errors"
	"net/http"

	"github.com/versevox/versevox/pkg/core"
)

// Envelope is the JSON error body for every non-2xx response.
type Envelope struct {
	Error *core.Error `json:"error"`
}

// FromError converts any error into an HTTP status and response envelope.
// Unknown errors become opaque 500s so internals never leak to clients.
func FromError(err error, requestID string) (int, Envelope) {
	if errors.Is(err, context.DeadlineExceeded) {
		e := core.NewAPIError("request timed out")
		e.RequestID = requestID
		return http.StatusGatewayTimeout, Envelope{Error: e}
	}
	if errors.Is(err, context.Canceled) {
		e := core.NewAPIError("request canceled")
		e.RequestID = requestID
		return http.StatusRequestTimeout, Envelope{Error: e}
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		out := *coreErr
		out.RequestID = requestID
		// Provider internals stay in the logs.
		out.ProviderError = nil
		return statusFromType(out.Type), Envelope{Error: &out}
	}

	e := core.NewAPIError("internal error")
	e.RequestID = requestID
	return http.StatusInternalServerError, Envelope{Error: e}
}

func statusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrAuthentication:
		return http.StatusUnauthorized
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrRateLimit:
		return http.StatusTooManyRequests
	case core.ErrProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
