package web

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the id of a request through responses and logs.
const RequestIDHeader = "X-Request-ID"

// withRequestID tags every request with an id, reusing the caller's when it
// sent one, and logs the request once it completes.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[Web] %s %s (%s) in %v", r.Method, r.URL.Path, id, time.Since(start))
	})
}
