// Package telemetry exposes Prometheus counters for the marketplace's core
// operations plus the /metrics handler.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProductsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fabmarket_products_created_total",
		Help: "Products created through upload.",
	})

	VolumeExtractionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fabmarket_volume_extraction_failures_total",
		Help: "Uploads where the geometry service failed and the product defaulted to zero volume.",
	})

	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fabmarket_orders_created_total",
		Help: "Tentative orders created (before payment verification).",
	})

	PaymentsVerified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fabmarket_payments_verified_total",
		Help: "Payment verification attempts by result.",
	}, []string{"result"})

	OrdersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fabmarket_orders_expired_total",
		Help: "Pending orders discarded by the expiry sweeper.",
	})
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
