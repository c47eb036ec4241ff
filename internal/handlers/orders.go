package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gmarroquin/fabmarket/internal/models"
	"github.com/gmarroquin/fabmarket/internal/orders"
)

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Items []orders.LineItem `json:"items"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	checkout, err := h.orders.Create(r.Context(), user, req.Items)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, checkout)
}

func (h *Handler) handleCreateCustomOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	quantity := 1
	if raw := r.FormValue("quantity"); raw != "" {
		var err error
		quantity, err = strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "quantity must be an integer")
			return
		}
	}
	file, _, err := r.FormFile("model_file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "model_file is required")
		return
	}
	defer file.Close()
	modelFile, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read model_file")
		return
	}

	checkout, err := h.orders.CreateCustom(r.Context(), user, r.FormValue("name"), r.FormValue("material"), quantity, modelFile)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, checkout)
}

func (h *Handler) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.currentUser(w, r); !ok {
		return
	}
	var req struct {
		GatewayOrderID string `json:"gateway_order_id"`
		PaymentID      string `json:"payment_id"`
		Signature      string `json:"signature"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	confirmed, err := h.orders.VerifyPayment(r.Context(), req.GatewayOrderID, req.PaymentID, req.Signature)
	if err != nil {
		// A bad signature is the caller's problem, not a gateway outage.
		if errors.Is(err, models.ErrUpstream) {
			h.writeError(w, http.StatusBadRequest, "payment verification failed")
			return
		}
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "paid", "orders": confirmed})
}

func (h *Handler) handleMyOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	list, err := h.orders.ListForBuyer(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	order, err := h.orders.Get(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) handleSellerOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	list, err := h.orders.ListForSeller(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}
