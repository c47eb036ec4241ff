// Package handlers exposes the marketplace over a JSON HTTP API.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gmarroquin/fabmarket/internal/auth"
	"github.com/gmarroquin/fabmarket/internal/models"
	"github.com/gmarroquin/fabmarket/internal/orders"
	"github.com/gmarroquin/fabmarket/internal/products"
	"github.com/gmarroquin/fabmarket/internal/storage"
	"github.com/gmarroquin/fabmarket/internal/store"
)

type Handler struct {
	auth     *auth.Service
	products *products.Service
	orders   *orders.Service
	store    *store.Store
	files    *storage.Disk
	logger   *slog.Logger
}

func New(
	authSvc *auth.Service,
	productsSvc *products.Service,
	ordersSvc *orders.Service,
	st *store.Store,
	files *storage.Disk,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		auth:     authSvc,
		products: productsSvc,
		orders:   ordersSvc,
		store:    st,
		files:    files,
		logger:   logger,
	}
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// respondError maps service error kinds to HTTP statuses.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrUnauthorized):
		h.writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, models.ErrForbidden):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, models.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrConflict):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrUpstream):
		h.writeError(w, http.StatusBadGateway, "upstream service failure")
	default:
		h.logger.Error("internal error", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// currentUser returns the authenticated user or writes a 401.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := auth.UserFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing bearer token")
		return nil, false
	}
	return user, true
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "fabmarket"})
}
