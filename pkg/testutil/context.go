package testutil

import (
	"net/http"
	"time"

	id "dplay/pkg/domain"
	"dplay/pkg/requestcontext"
)

// WithCaller injects an authenticated caller identity into the request
// context, simulating what the bearer-token middleware does.
func WithCaller(req *http.Request, caller id.Identity) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), caller))
}

// WithClientMetadata injects client IP and platform label into the request
// context, simulating the request-context middleware.
func WithClientMetadata(req *http.Request, clientIP, platform string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), clientIP, platform))
}

// WithRequestTime pins the request-scoped clock so assertions on stored
// timestamps are deterministic.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
