package shared

import (
	"errors"

	"github.com/haven-community/haven/internal/platform/httpx"
)

var (
	// ErrNotFound indicates resource not found. It aliases the httpx
	// sentinel so RespondError maps repository misses to 404 directly.
	ErrNotFound = httpx.ErrNotFound
	// ErrHubBanned indicates the principal is banned from the hub.
	ErrHubBanned = errors.New("banned from hub")
	// ErrCSRFTokenMissing occurs when the CSRF token is missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
