package middleware

import (
	"fmt"
	"net/http"

	"github.com/Togather-Foundation/rsvp/internal/api/problem"
)

// DefaultMaxBodySize caps JSON request bodies at 1MB.
const DefaultMaxBodySize int64 = 1 << 20

// RequestSize limits request bodies to maxBytes. A declared Content-Length
// over the limit is rejected with 413 immediately; bodies without one are
// wrapped in http.MaxBytesReader and fail when the handler reads too far.
func RequestSize(maxBytes int64, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypePayloadTooLarge, "Request body too large",
					&http.MaxBytesError{Limit: maxBytes}, env,
					problem.WithDetail(fmt.Sprintf("request body must not exceed %d bytes", maxBytes)))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
