package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gmarroquin/fabmarket/internal/products"
	"github.com/gmarroquin/fabmarket/internal/store"
)

// maxUploadBytes bounds multipart request bodies (model files plus images).
const maxUploadBytes = 64 << 20

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	in := products.CreateInput{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Material:    r.FormValue("material"),
	}
	if raw := r.FormValue("royalty_percent"); raw != "" {
		royalty, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "royalty_percent must be a number")
			return
		}
		in.RoyaltyPercent = &royalty
	}
	file, _, err := r.FormFile("model_file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "model_file is required")
		return
	}
	defer file.Close()
	in.ModelFile, err = io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read model_file")
		return
	}

	product, err := h.products.Create(r.Context(), user, in)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) handleAddImage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "image is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	url, err := h.products.AddImage(r.Context(), user, chi.URLParam(r, "id"), header.Filename, data)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]string{"image_url": url})
}

func (h *Handler) handleUpdateVolume(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req struct {
		VolumeCM3 float64 `json:"volume_cm3"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	product, err := h.products.UpdateVolume(r.Context(), user, chi.URLParam(r, "id"), req.VolumeCM3)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) handleSetMaterial(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Material string `json:"material"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	product, err := h.products.SetMaterial(r.Context(), user, chi.URLParam(r, "id"), req.Material)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) handleTogglePublish(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	published, err := h.products.TogglePublish(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"is_published": published})
}

func (h *Handler) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if err := h.products.Delete(r.Context(), user, chi.URLParam(r, "id")); err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleCatalog(w http.ResponseWriter, r *http.Request) {
	filter := store.CatalogFilter{
		Category: r.URL.Query().Get("category"),
		Material: r.URL.Query().Get("material"),
		SellerID: r.URL.Query().Get("seller_id"),
	}
	list, err := h.products.Catalog(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.products.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) handleSellerProducts(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	list, err := h.products.BySeller(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}
