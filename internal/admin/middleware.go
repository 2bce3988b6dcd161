package admin

import (
	"net/http"

	"github.com/google/uuid"

	"mpd-sim/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// requestID tags every request with an ID and a logger carrying it.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		log := s.log.With("request_id", id)
		log.Debug("request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(logging.NewContext(r.Context(), log)))
	})
}
