package models

import (
	"time"
)

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// ParseRole validates a user-supplied role string.
func ParseRole(raw string) (Role, bool) {
	switch Role(raw) {
	case RoleBuyer, RoleSeller, RoleAdmin:
		return Role(raw), true
	}
	return "", false
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Material identifies a print material with a fixed per-cm³ rate.
type Material string

const (
	MaterialPLA   Material = "PLA"
	MaterialABS   Material = "ABS"
	MaterialResin Material = "Resin"
)

func ParseMaterial(raw string) (Material, bool) {
	switch Material(raw) {
	case MaterialPLA, MaterialABS, MaterialResin:
		return Material(raw), true
	}
	return "", false
}

// VolumeSource records where a product's volume came from. "none" means the
// extractor failed at upload time and the seller still has to set a volume
// by hand.
type VolumeSource string

const (
	VolumeSourceNone      VolumeSource = "none"
	VolumeSourceExtracted VolumeSource = "extracted"
	VolumeSourceManual    VolumeSource = "manual"
)

// PriceBreakdown is the derived price of one unit of a product. The rate is
// copied in at computation time, so later rate-table edits never reprice
// existing products.
type PriceBreakdown struct {
	VolumeCM3      float64  `json:"volume_cm3"`
	Material       Material `json:"material"`
	RatePerCM3     float64  `json:"rate_per_cm3"`
	BaseCost       float64  `json:"base_cost"`
	PlatformMargin float64  `json:"platform_margin"`
	CreatorRoyalty float64  `json:"creator_royalty"`
	FinalPrice     float64  `json:"final_price"`
}

type Product struct {
	ID             string         `json:"id"`
	SellerID       string         `json:"seller_id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Category       string         `json:"category"`
	Material       Material       `json:"material"`
	RoyaltyPercent float64        `json:"royalty_percent"`
	VolumeSource   VolumeSource   `json:"volume_source"`
	Price          PriceBreakdown `json:"price"`
	ModelFileKey   string         `json:"-"`
	ModelFileURL   string         `json:"model_file_url,omitempty"`
	Images         []string       `json:"images"`
	IsPublished    bool           `json:"is_published"`
	IsApproved     bool           `json:"is_approved"`
	CreatedAt      time.Time      `json:"created_at"`
}

// NeedsVolume reports whether the product is still waiting for a usable
// volume, either because extraction failed or because it produced zero.
func (p *Product) NeedsVolume() bool {
	return p.VolumeSource == VolumeSourceNone || p.Price.VolumeCM3 == 0
}

// Purchasable reports whether the product may be ordered: published,
// approved, and priced from a real volume. A zero-volume product would sell
// at a final price of zero, so it stays out of carts until its volume is set.
func (p *Product) Purchasable() bool {
	return p.IsPublished && p.IsApproved && !p.NeedsVolume()
}

// OrderLine is an immutable snapshot of a product taken at order-creation
// time. ProductID is empty for custom-print lines that never had a catalog
// product behind them.
type OrderLine struct {
	ID          string   `json:"id"`
	ProductID   string   `json:"product_id,omitempty"`
	SellerID    string   `json:"seller_id,omitempty"`
	ProductName string   `json:"product_name"`
	Material    Material `json:"material"`
	UnitPrice   float64  `json:"unit_price"`
	Quantity    int      `json:"quantity"`
	LineTotal   float64  `json:"line_total"`
}

// PaymentState tracks the two-phase order lifecycle: orders are created
// pending, become paid once the gateway signature checks out, and expire if
// the verification callback never arrives.
type PaymentState string

const (
	PaymentPending PaymentState = "pending"
	PaymentPaid    PaymentState = "paid"
	PaymentExpired PaymentState = "expired"
)

type Order struct {
	ID               string       `json:"id"`
	BuyerID          string       `json:"buyer_id"`
	Lines            []OrderLine  `json:"lines"`
	Total            float64      `json:"total"`
	Status           OrderStatus  `json:"status"`
	PaymentState     PaymentState `json:"payment_state"`
	GatewayOrderID   string       `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string       `json:"gateway_payment_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// HasSeller reports whether any line of the order belongs to the given
// seller.
func (o *Order) HasSeller(sellerID string) bool {
	for _, line := range o.Lines {
		if line.SellerID == sellerID {
			return true
		}
	}
	return false
}

// Transaction mirrors one payment-gateway exchange for an order.
type Transaction struct {
	ID               string    `json:"id"`
	OrderID          string    `json:"order_id"`
	GatewayOrderID   string    `json:"gateway_order_id"`
	GatewayPaymentID string    `json:"gateway_payment_id,omitempty"`
	Amount           float64   `json:"amount"`
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

const (
	TransactionCreated   = "created"
	TransactionCompleted = "completed"
	TransactionExpired   = "expired"
)
