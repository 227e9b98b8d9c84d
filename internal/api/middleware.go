package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// requestID assigns each request an id so log lines from one M3 exchange can
// be correlated.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("handled request",
			"method", r.Method,
			"path", r.URL.Path,
			"requestId", w.Header().Get(requestIDHeader),
			"duration", time.Since(start))
	})
}

// requireMediaType rejects requests whose Content-Type does not match the
// expected media type with a 415 problem response.
func requireMediaType(mediaType string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contentType := r.Header.Get("Content-Type")
		if contentType != mediaType && !hasMediaTypePrefix(contentType, mediaType) {
			sendProblem(w, r, http.StatusUnsupportedMediaType,
				"Unsupported Media Type", "expected "+mediaType)
			return
		}
		next(w, r)
	}
}

func hasMediaTypePrefix(contentType, mediaType string) bool {
	return len(contentType) > len(mediaType) &&
		contentType[:len(mediaType)] == mediaType &&
		(contentType[len(mediaType)] == ';' || contentType[len(mediaType)] == ' ')
}
