// Package payments wraps the payment gateway: intent creation before the
// checkout handshake and signature verification after it. Order
// confirmation is gated strictly on verification succeeding.
package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/gmarroquin/fabmarket/internal/models"
)

// Intent is the gateway-side handle for a payment the buyer is about to
// complete.
type Intent struct {
	GatewayOrderID string
	AmountMinor    int64
	Currency       string
}

type Gateway interface {
	CreateIntent(ctx context.Context, amount float64, currency string) (Intent, error)
	VerifySignature(gatewayOrderID, paymentID, signature string) error
}

// Client is a Razorpay-style gateway client: basic-auth REST order creation
// plus HMAC-SHA256 callback signatures over "<order_id>|<payment_id>".
type Client struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

func NewClient(baseURL, keyID, keySecret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, keyID: keyID, keySecret: keySecret, httpClient: httpClient}
}

type createOrderRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	PaymentCapture int    `json:"payment_capture"`
}

type createOrderResponse struct {
	ID string `json:"id"`
}

func (c *Client) CreateIntent(ctx context.Context, amount float64, currency string) (Intent, error) {
	// The gateway bills in minor units. Round instead of truncating:
	// 161.20 has no exact float representation and truncation would
	// under-bill by a paisa.
	minor := int64(math.Round(amount * 100))

	body, err := json.Marshal(createOrderRequest{Amount: minor, Currency: currency, PaymentCapture: 1})
	if err != nil {
		return Intent{}, fmt.Errorf("encode intent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return Intent{}, fmt.Errorf("build intent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Intent{}, fmt.Errorf("payment gateway unreachable: %w", models.ErrUpstream)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Intent{}, fmt.Errorf("payment gateway returned %d: %w", resp.StatusCode, models.ErrUpstream)
	}

	var out createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Intent{}, fmt.Errorf("decode intent response: %w", models.ErrUpstream)
	}
	if out.ID == "" {
		return Intent{}, fmt.Errorf("payment gateway returned empty order id: %w", models.ErrUpstream)
	}

	return Intent{GatewayOrderID: out.ID, AmountMinor: minor, Currency: currency}, nil
}

// VerifySignature checks the callback signature the gateway computed over
// the order and payment ids. A mismatch wraps models.ErrUpstream; callers
// must not confirm the order.
func (c *Client) VerifySignature(gatewayOrderID, paymentID, signature string) error {
	mac := hmac.New(sha256.New, []byte(c.keySecret))
	_, _ = mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("malformed payment signature: %w", models.ErrUpstream)
	}
	if !hmac.Equal(provided, expected) {
		return fmt.Errorf("payment signature mismatch: %w", models.ErrUpstream)
	}
	return nil
}

// Sign computes the callback signature for an order/payment pair. It exists
// so tests and local gateway stubs can produce valid callbacks.
func Sign(keySecret, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(keySecret))
	_, _ = mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
