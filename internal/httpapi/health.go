package httpapi

import "net/http"

// handleHealthz is a liveness probe: if the process can answer HTTP at all,
// it is alive. Grounded on the teacher's doctor command's "is the process
// up" check (cmd/bd/doctor), reduced to its HTTP equivalent.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	httpJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz additionally pings the store, per SPEC_FULL.md §6 ADD.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		httpJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
		return
	}
	httpJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
