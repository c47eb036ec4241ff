// Package notify is the fire-and-forget notification collaborator. Failures
// are logged and swallowed: a lost notification must never roll back the
// order or status mutation that triggered it.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/gmarroquin/fabmarket/internal/models"
)

const (
	EventOrderConfirmed     = "order.confirmed"
	EventOrderStatusChanged = "order.status_changed"
	EventSellerNewOrder     = "order.seller_new"
)

// Event is the wire shape published for every notification.
type Event struct {
	Type      string             `json:"type"`
	OrderID   string             `json:"order_id"`
	BuyerID   string             `json:"buyer_id"`
	SellerID  string             `json:"seller_id,omitempty"`
	Status    models.OrderStatus `json:"status,omitempty"`
	Total     float64            `json:"total,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

type publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Notifier fans marketplace events out to the notification topic. A nil
// publisher turns it into a logger-only no-op, which is how the service
// runs without brokers configured.
type Notifier struct {
	publisher publisher
	logger    *slog.Logger
}

func New(p *Producer, logger *slog.Logger) *Notifier {
	n := &Notifier{logger: logger}
	if p != nil {
		n.publisher = p
	}
	return n
}

func (n *Notifier) OrderConfirmed(ctx context.Context, order *models.Order) {
	n.publish(ctx, Event{
		Type:      EventOrderConfirmed,
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		Status:    order.Status,
		Total:     order.Total,
		Timestamp: time.Now().UTC(),
	})
}

func (n *Notifier) OrderStatusChanged(ctx context.Context, order *models.Order, newStatus models.OrderStatus) {
	n.publish(ctx, Event{
		Type:      EventOrderStatusChanged,
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		Status:    newStatus,
		Timestamp: time.Now().UTC(),
	})
}

func (n *Notifier) SellerNewOrder(ctx context.Context, order *models.Order, sellerID string) {
	n.publish(ctx, Event{
		Type:      EventSellerNewOrder,
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		SellerID:  sellerID,
		Total:     order.Total,
		Timestamp: time.Now().UTC(),
	})
}

func (n *Notifier) publish(ctx context.Context, event Event) {
	if n.publisher == nil {
		n.logger.Info("notification (no broker configured)", "type", event.Type, "order_id", event.OrderID)
		return
	}
	if err := n.publisher.Publish(ctx, event.OrderID, event); err != nil {
		n.logger.Error("failed to publish notification", "error", err, "type", event.Type, "order_id", event.OrderID)
	}
}
