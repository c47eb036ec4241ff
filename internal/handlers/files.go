package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// handleServeFile serves uploaded objects from disk. Product images are
// public; model files live under models/ and require a valid signed URL.
func (h *Handler) handleServeFile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		h.writeError(w, http.StatusNotFound, "file not found")
		return
	}

	if strings.HasPrefix(key, "models/") {
		q := r.URL.Query()
		if !h.files.VerifySignedKey(key, q.Get("exp"), q.Get("sig")) {
			h.writeError(w, http.StatusForbidden, "invalid or expired file URL")
			return
		}
	}

	path, err := h.files.Open(key)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "file not found")
		return
	}
	http.ServeFile(w, r, path)
}
