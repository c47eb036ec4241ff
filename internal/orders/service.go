// Package orders is the order composer and status state machine. Orders
// snapshot product prices at creation time and are confirmed only after the
// payment gateway verifies the checkout signature.
package orders

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gmarroquin/fabmarket/internal/geometry"
	"github.com/gmarroquin/fabmarket/internal/models"
	"github.com/gmarroquin/fabmarket/internal/notify"
	"github.com/gmarroquin/fabmarket/internal/payments"
	"github.com/gmarroquin/fabmarket/internal/pricing"
	"github.com/gmarroquin/fabmarket/internal/store"
	"github.com/gmarroquin/fabmarket/internal/telemetry"
)

type Service struct {
	store       *store.Store
	gateway     payments.Gateway
	extractor   geometry.Extractor
	rates       pricing.RateTable
	currency    string
	forwardOnly bool
	pendingTTL  time.Duration
	notifier    *notify.Notifier
	logger      *slog.Logger
}

func NewService(
	st *store.Store,
	gateway payments.Gateway,
	extractor geometry.Extractor,
	rates pricing.RateTable,
	currency string,
	forwardOnly bool,
	pendingTTL time.Duration,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:       st,
		gateway:     gateway,
		extractor:   extractor,
		rates:       rates,
		currency:    currency,
		forwardOnly: forwardOnly,
		pendingTTL:  pendingTTL,
		notifier:    notifier,
		logger:      logger,
	}
}

// LineItem is one cart entry in an order request.
type LineItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Checkout is what the buyer needs to complete payment at the gateway.
type Checkout struct {
	Order          *models.Order `json:"order"`
	GatewayOrderID string        `json:"gateway_order_id"`
	Amount         float64       `json:"amount"`
	Currency       string        `json:"currency"`
}

// Create composes a tentative order from catalog products. Every referenced
// product must currently be published and approved; one bad line rejects
// the whole order before any snapshot is taken. Line prices are frozen
// copies of the products' final prices at this instant.
func (s *Service) Create(ctx context.Context, buyer *models.User, items []LineItem) (*Checkout, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", models.ErrValidation)
	}

	// Validate everything before snapshotting anything.
	snapshots := make([]*models.Product, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: quantity must be >= 1", models.ErrValidation)
		}
		product, err := s.store.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if !product.Purchasable() {
			return nil, fmt.Errorf("product %q is not available: %w", product.Name, models.ErrConflict)
		}
		snapshots = append(snapshots, product)
	}

	lines := make([]models.OrderLine, 0, len(items))
	total := 0.0
	for i, item := range items {
		p := snapshots[i]
		line := models.OrderLine{
			ProductID:   p.ID,
			SellerID:    p.SellerID,
			ProductName: p.Name,
			Material:    p.Material,
			UnitPrice:   p.Price.FinalPrice,
			Quantity:    item.Quantity,
			LineTotal:   p.Price.FinalPrice * float64(item.Quantity),
		}
		lines = append(lines, line)
		total += line.LineTotal
	}
	total = pricing.Round2(total)

	return s.place(ctx, buyer, lines, total)
}

// CreateCustom prices a one-off uploaded file with the same pricing engine
// and places a single-line order for it. No catalog product is created, and
// there is no manual-override fallback: a failed or zero extraction rejects
// the request.
func (s *Service) CreateCustom(ctx context.Context, buyer *models.User, name, rawMaterial string, quantity int, modelFile []byte) (*Checkout, error) {
	material, ok := models.ParseMaterial(rawMaterial)
	if !ok {
		return nil, fmt.Errorf("%w: invalid material %q", models.ErrValidation, rawMaterial)
	}
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be >= 1", models.ErrValidation)
	}
	if len(modelFile) == 0 {
		return nil, fmt.Errorf("%w: model file is required", models.ErrValidation)
	}

	volume, err := s.extractor.ExtractVolume(ctx, modelFile)
	if err != nil {
		return nil, fmt.Errorf("extract custom print volume: %w", err)
	}
	if volume == 0 {
		return nil, fmt.Errorf("%w: model has no measurable volume", models.ErrValidation)
	}

	breakdown, err := pricing.Compute(volume, material, 0, s.rates)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(name) == "" {
		name = "Custom print"
	}

	line := models.OrderLine{
		ProductName: strings.TrimSpace(name),
		Material:    material,
		UnitPrice:   breakdown.FinalPrice,
		Quantity:    quantity,
		LineTotal:   breakdown.FinalPrice * float64(quantity),
	}

	return s.place(ctx, buyer, []models.OrderLine{line}, pricing.Round2(line.LineTotal))
}

func (s *Service) place(ctx context.Context, buyer *models.User, lines []models.OrderLine, total float64) (*Checkout, error) {
	intent, err := s.gateway.CreateIntent(ctx, total, s.currency)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	order := &models.Order{
		BuyerID:        buyer.ID,
		Lines:          lines,
		Total:          total,
		Status:         models.StatusPlaced,
		PaymentState:   models.PaymentPending,
		GatewayOrderID: intent.GatewayOrderID,
	}
	txn := &models.Transaction{
		GatewayOrderID: intent.GatewayOrderID,
		Amount:         total,
		Currency:       s.currency,
		Status:         models.TransactionCreated,
	}

	if err := s.store.CreateOrder(ctx, order, txn); err != nil {
		return nil, err
	}

	telemetry.OrdersCreated.Inc()
	s.logger.Info("order placed pending payment",
		"order_id", order.ID, "buyer_id", buyer.ID,
		"total", total, "gateway_order_id", intent.GatewayOrderID)

	return &Checkout{
		Order:          order,
		GatewayOrderID: intent.GatewayOrderID,
		Amount:         total,
		Currency:       s.currency,
	}, nil
}

// VerifyPayment confirms every pending order behind a gateway order once
// the callback signature checks out. A bad signature leaves the orders
// untouched and pending. A callback that arrives after the sweeper already
// expired the orders confirms nothing and reports ErrConflict.
func (s *Service) VerifyPayment(ctx context.Context, gatewayOrderID, paymentID, signature string) ([]models.Order, error) {
	if err := s.gateway.VerifySignature(gatewayOrderID, paymentID, signature); err != nil {
		telemetry.PaymentsVerified.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("verify payment: %w", err)
	}

	orders, err := s.store.MarkOrdersPaid(ctx, gatewayOrderID, paymentID)
	if err != nil {
		return nil, err
	}

	// Only orders that actually ended up paid count as confirmed; expired
	// ones stay expired and must never trigger confirmation.
	confirmed := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if o.PaymentState == models.PaymentPaid {
			confirmed = append(confirmed, o)
		}
	}
	if len(confirmed) == 0 {
		telemetry.PaymentsVerified.WithLabelValues("expired").Inc()
		s.logger.Warn("payment verified after order expiry", "gateway_order_id", gatewayOrderID)
		return nil, fmt.Errorf("order expired before payment was verified: %w", models.ErrConflict)
	}

	telemetry.PaymentsVerified.WithLabelValues("success").Inc()

	for i := range confirmed {
		order := &confirmed[i]
		s.notifier.OrderConfirmed(ctx, order)
		for _, sellerID := range distinctSellers(order.Lines) {
			s.notifier.SellerNewOrder(ctx, order, sellerID)
		}
		s.logger.Info("payment verified", "order_id", order.ID, "gateway_order_id", gatewayOrderID)
	}

	return confirmed, nil
}

func distinctSellers(lines []models.OrderLine) []string {
	seen := make(map[string]bool)
	sellers := make([]string, 0, 1)
	for _, l := range lines {
		if l.SellerID == "" || seen[l.SellerID] {
			continue
		}
		seen[l.SellerID] = true
		sellers = append(sellers, l.SellerID)
	}
	return sellers
}

// SetStatus moves a confirmed order through the fulfillment stages under
// the configured transition policy.
func (s *Service) SetStatus(ctx context.Context, orderID, rawStatus string) (*models.Order, error) {
	newStatus, ok := models.ParseOrderStatus(rawStatus)
	if !ok {
		return nil, fmt.Errorf("%w: invalid status %q", models.ErrValidation, rawStatus)
	}

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentState != models.PaymentPaid {
		return nil, fmt.Errorf("order has no verified payment: %w", models.ErrConflict)
	}
	if !models.CanTransition(order.Status, newStatus, s.forwardOnly) {
		return nil, fmt.Errorf("cannot move order from %q to %q: %w", order.Status, newStatus, models.ErrConflict)
	}

	if err := s.store.UpdateOrderStatus(ctx, orderID, order.Status, newStatus); err != nil {
		return nil, err
	}
	order.Status = newStatus

	s.notifier.OrderStatusChanged(ctx, order, newStatus)
	s.logger.Info("order status updated", "order_id", orderID, "status", newStatus)

	return order, nil
}

// Get returns an order to its buyer, to a seller with a line in it, or to
// an admin.
func (s *Service) Get(ctx context.Context, caller *models.User, orderID string) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.BuyerID != caller.ID && !order.HasSeller(caller.ID) && caller.Role != models.RoleAdmin {
		return nil, fmt.Errorf("order access denied: %w", models.ErrForbidden)
	}
	return order, nil
}

func (s *Service) ListForBuyer(ctx context.Context, buyerID string) ([]models.Order, error) {
	return s.store.ListOrdersByBuyer(ctx, buyerID)
}

func (s *Service) ListForSeller(ctx context.Context, sellerID string) ([]models.Order, error) {
	return s.store.ListOrdersBySeller(ctx, sellerID)
}

func (s *Service) ListAll(ctx context.Context) ([]models.Order, error) {
	return s.store.ListAllOrders(ctx)
}

// ExpirePending discards tentative orders whose payment verification never
// arrived within the configured TTL.
func (s *Service) ExpirePending(ctx context.Context) (int64, error) {
	expired, err := s.store.ExpirePendingOrders(ctx, time.Now().Add(-s.pendingTTL))
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		telemetry.OrdersExpired.Add(float64(expired))
		s.logger.Info("expired pending orders", "count", expired)
	}
	return expired, nil
}
