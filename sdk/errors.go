package versevox

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/versevox/versevox/pkg/core"
)

// Error is the canonical API error type returned by the gateway.
type Error = core.Error

const (
	ErrInvalidRequest = core.ErrInvalidRequest
	ErrAuthentication = core.ErrAuthentication
	ErrNotFound       = core.ErrNotFound
	ErrRateLimit      = core.ErrRateLimit
	ErrAPI            = core.ErrAPI
	ErrProvider       = core.ErrProvider
)

// TransportError represents HTTP transport-level failures (DNS, timeouts,
// connection reset, TLS handshake) while talking to the gateway.
//
// Use errors.As to distinguish transport failures from canonical API errors
// (*core.Error).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("transport error during %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// decodeError turns a non-2xx gateway response into a *core.Error. Bodies
// that are not the canonical envelope become opaque API errors carrying the
// status code.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var env struct {
		Error *core.Error `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil && env.Error.Type != "" {
		return env.Error
	}
	return core.NewAPIError(fmt.Sprintf("unexpected status %d from gateway", resp.StatusCode))
}
