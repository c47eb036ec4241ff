package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gmarroquin/fabmarket/internal/auth"
	"github.com/gmarroquin/fabmarket/internal/models"
	"github.com/gmarroquin/fabmarket/internal/telemetry"
)

// Routes builds the full router: public catalog and file serving,
// authenticated buyer/seller surfaces, and the admin area.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", h.handleHealth)
	r.Handle("/metrics", telemetry.Handler())
	r.Get("/files/*", h.handleServeFile)

	r.Post("/api/auth/register", h.handleRegister)
	r.Post("/api/auth/login", h.handleLogin)

	r.Get("/api/products", h.handleCatalog)
	r.Get("/api/products/{id}", h.handleGetProduct)

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Require)

		r.Get("/api/auth/me", h.handleMe)

		r.Post("/api/products", h.handleCreateProduct)
		r.Post("/api/products/{id}/images", h.handleAddImage)
		r.Put("/api/products/{id}/volume", h.handleUpdateVolume)
		r.Put("/api/products/{id}/material", h.handleSetMaterial)
		r.Put("/api/products/{id}/publish", h.handleTogglePublish)
		r.Delete("/api/products/{id}", h.handleDeleteProduct)

		r.Route("/api/seller", func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleSeller))
			r.Get("/products", h.handleSellerProducts)
			r.Get("/orders", h.handleSellerOrders)
		})

		r.Post("/api/orders", h.handleCreateOrder)
		r.Post("/api/orders/custom", h.handleCreateCustomOrder)
		r.Post("/api/orders/verify-payment", h.handleVerifyPayment)
		r.Get("/api/orders/mine", h.handleMyOrders)
		r.Get("/api/orders/{id}", h.handleGetOrder)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Get("/users", h.handleListUsers)
			r.Get("/sellers", h.handleListSellers)
			r.Get("/orders", h.handleListAllOrders)
			r.Get("/products/pending", h.handlePendingProducts)
			r.Put("/products/{id}/approve", h.handleApproveProduct)
			r.Put("/orders/{id}/status", h.handleSetOrderStatus)
		})
	})

	return r
}
