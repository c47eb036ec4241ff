package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gmarroquin/fabmarket/internal/auth"
	"github.com/gmarroquin/fabmarket/internal/migrations"
	"github.com/gmarroquin/fabmarket/internal/models"
	"github.com/gmarroquin/fabmarket/internal/notify"
	"github.com/gmarroquin/fabmarket/internal/orders"
	"github.com/gmarroquin/fabmarket/internal/payments"
	"github.com/gmarroquin/fabmarket/internal/pricing"
	"github.com/gmarroquin/fabmarket/internal/products"
	"github.com/gmarroquin/fabmarket/internal/storage"
	"github.com/gmarroquin/fabmarket/internal/store"
)

type fakeExtractor struct {
	volume float64
	err    error
}

func (f *fakeExtractor) ExtractVolume(ctx context.Context, model []byte) (float64, error) {
	return f.volume, f.err
}

type fakeGateway struct {
	intents   int
	verifyErr error
}

func (f *fakeGateway) CreateIntent(ctx context.Context, amount float64, currency string) (payments.Intent, error) {
	f.intents++
	return payments.Intent{
		GatewayOrderID: fmt.Sprintf("order_%d", f.intents),
		AmountMinor:    int64(amount * 100),
		Currency:       currency,
	}, nil
}

func (f *fakeGateway) VerifySignature(gatewayOrderID, paymentID, signature string) error {
	return f.verifyErr
}

type testServer struct {
	srv     *httptest.Server
	gateway *fakeGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	if err := migrations.Up(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	st := store.New(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	authSvc := auth.NewService(st, "test-secret", time.Hour)
	if err := authSvc.EnsureAdmin(context.Background(), "admin@example.com", "admin-password", "Admin"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}

	files := storage.NewDisk(t.TempDir(), "http://localhost:8080", []byte("test-secret"))
	extractor := &fakeExtractor{volume: 10}
	gateway := &fakeGateway{}
	notifier := notify.New(nil, logger)
	rates := pricing.DefaultRates()

	productsSvc := products.NewService(st, files, extractor, rates, 10, time.Hour, logger)
	ordersSvc := orders.NewService(st, gateway, extractor, rates, "INR", true, 30*time.Minute, notifier, logger)

	h := New(authSvc, productsSvc, ordersSvc, st, files, logger)
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, gateway: gateway}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return resp, data
}

func (ts *testServer) register(t *testing.T, email, role string) string {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": "hunter2hunter2",
		"name":     "Test User",
		"role":     role,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d: %s", email, resp.StatusCode, body)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return out.Token
}

func (ts *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", email, resp.StatusCode, body)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return out.Token
}

// uploadProduct posts a multipart product form and returns the decoded
// product response.
func (ts *testServer) uploadProduct(t *testing.T, token, name string) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("name", name)
	_ = w.WriteField("material", "PLA")
	_ = w.WriteField("category", "toys")
	part, err := w.CreateFormFile("model_file", "model.stl")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("solid model"))
	_ = w.Close()

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/api/products", &buf)
	if err != nil {
		t.Fatalf("build upload request: %v", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload product: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload product: status %d: %s", resp.StatusCode, body)
	}

	var product map[string]any
	if err := json.Unmarshal(body, &product); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	return product
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodGet, "/api/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "healthy") {
		t.Errorf("body = %s", body)
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := ts.do(t, http.MethodGet, "/api/auth/me", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}

	resp, _ = ts.do(t, http.MethodGet, "/api/auth/me", "garbage-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", resp.StatusCode)
	}
}

func TestAdminAreaForbiddenForBuyers(t *testing.T) {
	ts := newTestServer(t)
	buyer := ts.register(t, "buyer@example.com", "buyer")

	resp, _ := ts.do(t, http.MethodGet, "/api/admin/users", buyer, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestAdminSelfRegistrationBlocked(t *testing.T) {
	ts := newTestServer(t)
	resp, _ := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "evil@example.com",
		"password": "hunter2hunter2",
		"name":     "Evil",
		"role":     "admin",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

// TestMarketplaceFlow walks the whole lifecycle: seller uploads, admin
// approves, seller publishes, buyer orders and pays, admin advances the
// fulfillment status.
func TestMarketplaceFlow(t *testing.T) {
	ts := newTestServer(t)

	sellerTok := ts.register(t, "seller@example.com", "seller")
	buyerTok := ts.register(t, "buyer@example.com", "buyer")
	adminTok := ts.login(t, "admin@example.com", "admin-password")

	product := ts.uploadProduct(t, sellerTok, "Articulated Dragon")
	productID := product["id"].(string)

	price := product["price"].(map[string]any)
	if price["final_price"].(float64) != 65 {
		t.Errorf("final price = %v, want 65", price["final_price"])
	}

	// Invisible in the catalog until published and approved.
	resp, body := ts.do(t, http.MethodGet, "/api/products", "", nil)
	if resp.StatusCode != http.StatusOK || strings.Contains(string(body), productID) {
		t.Errorf("unapproved product leaked into catalog: %s", body)
	}

	// Buyer cannot order it yet.
	resp, _ = ts.do(t, http.MethodPost, "/api/orders", buyerTok, map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": 1}},
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("ordering hidden product: status = %d, want 409", resp.StatusCode)
	}

	// Admin approves, seller publishes.
	resp, _ = ts.do(t, http.MethodPut, "/api/admin/products/"+productID+"/approve", adminTok, map[string]bool{"approved": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: status = %d", resp.StatusCode)
	}
	resp, _ = ts.do(t, http.MethodPut, "/api/products/"+productID+"/publish", sellerTok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish: status = %d", resp.StatusCode)
	}

	resp, body = ts.do(t, http.MethodGet, "/api/products", "", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), productID) {
		t.Fatalf("published product missing from catalog: %s", body)
	}

	// Buyer places an order.
	resp, body = ts.do(t, http.MethodPost, "/api/orders", buyerTok, map[string]any{
		"items": []map[string]any{{"product_id": productID, "quantity": 2}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create order: status = %d: %s", resp.StatusCode, body)
	}
	var checkout struct {
		Order struct {
			ID string `json:"id"`
		} `json:"order"`
		GatewayOrderID string  `json:"gateway_order_id"`
		Amount         float64 `json:"amount"`
	}
	if err := json.Unmarshal(body, &checkout); err != nil {
		t.Fatalf("decode checkout: %v", err)
	}
	if checkout.Amount != 130 {
		t.Errorf("amount = %v, want 130", checkout.Amount)
	}

	// Status cannot move before payment.
	resp, _ = ts.do(t, http.MethodPut, "/api/admin/orders/"+checkout.Order.ID+"/status", adminTok, map[string]string{"status": "Printing"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status before payment: status = %d, want 409", resp.StatusCode)
	}

	// A bad signature is rejected with 400 and changes nothing.
	ts.gateway.verifyErr = fmt.Errorf("signature mismatch: %w", models.ErrUpstream)
	resp, _ = ts.do(t, http.MethodPost, "/api/orders/verify-payment", buyerTok, map[string]string{
		"gateway_order_id": checkout.GatewayOrderID,
		"payment_id":       "pay_1",
		"signature":        "bad",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad signature: status = %d, want 400", resp.StatusCode)
	}

	ts.gateway.verifyErr = nil
	resp, body = ts.do(t, http.MethodPost, "/api/orders/verify-payment", buyerTok, map[string]string{
		"gateway_order_id": checkout.GatewayOrderID,
		"payment_id":       "pay_1",
		"signature":        "good",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify payment: status = %d: %s", resp.StatusCode, body)
	}

	// Admin advances fulfillment; buyer and seller both see the order.
	resp, _ = ts.do(t, http.MethodPut, "/api/admin/orders/"+checkout.Order.ID+"/status", adminTok, map[string]string{"status": "Printing"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("advance status: status = %d", resp.StatusCode)
	}

	resp, body = ts.do(t, http.MethodGet, "/api/orders/"+checkout.Order.ID, buyerTok, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Printing") {
		t.Errorf("buyer order view: status = %d: %s", resp.StatusCode, body)
	}
	resp, _ = ts.do(t, http.MethodGet, "/api/seller/orders", sellerTok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("seller orders: status = %d", resp.StatusCode)
	}
	resp, _ = ts.do(t, http.MethodGet, "/api/seller/orders", buyerTok, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("buyer on seller route: status = %d, want 403", resp.StatusCode)
	}
}

func TestModelFileRequiresSignedURL(t *testing.T) {
	ts := newTestServer(t)
	sellerTok := ts.register(t, "seller@example.com", "seller")

	product := ts.uploadProduct(t, sellerTok, "Dragon")
	productID := product["id"].(string)

	// The product detail carries a signed model URL.
	resp, body := ts.do(t, http.MethodGet, "/api/products/"+productID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get product: status = %d", resp.StatusCode)
	}
	var detail struct {
		ModelFileURL string `json:"model_file_url"`
	}
	if err := json.Unmarshal(body, &detail); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	signed, err := url.Parse(detail.ModelFileURL)
	if err != nil || signed.Path == "" {
		t.Fatalf("model file url = %q", detail.ModelFileURL)
	}

	// Unsigned access to the model file is refused.
	resp, _ = ts.do(t, http.MethodGet, signed.Path, "", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("unsigned model download: status = %d, want 403", resp.StatusCode)
	}

	// The signed URL works.
	resp, data := ts.do(t, http.MethodGet, signed.Path+"?"+signed.RawQuery, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signed model download: status = %d", resp.StatusCode)
	}
	if string(data) != "solid model" {
		t.Errorf("downloaded bytes = %q", data)
	}
}
