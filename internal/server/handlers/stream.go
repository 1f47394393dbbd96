package handlers

import "net/http"

// HandleStream handles GET /api/v1/events/stream.
// In broadcast mode the connection joins the registry; in relay mode it is
// relayed from the upstream origin.
func (h *Handlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	h.stream.ServeHTTP(w, r)
}

// HandleWebSocket handles GET /api/v1/events/ws (broadcast mode only).
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.ws.ServeHTTP(w, r)
}
