package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gmarroquin/fabmarket/internal/migrations"
	"github.com/gmarroquin/fabmarket/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// An in-memory database exists per connection; keep the pool at one.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	if err := migrations.Up(db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return New(db)
}

func createTestUser(t *testing.T, s *Store, email string, role models.Role) *models.User {
	t.Helper()
	user := &models.User{Email: email, Name: "Test " + email, Role: role, PasswordHash: "x"}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return user
}

func createTestProduct(t *testing.T, s *Store, sellerID string) *models.Product {
	t.Helper()
	p := &models.Product{
		SellerID:       sellerID,
		Name:           "Articulated Dragon",
		Category:       "toys",
		Material:       models.MaterialPLA,
		RoyaltyPercent: 10,
		VolumeSource:   models.VolumeSourceExtracted,
		Price: models.PriceBreakdown{
			VolumeCM3:      10,
			Material:       models.MaterialPLA,
			RatePerCM3:     5,
			BaseCost:       50,
			PlatformMargin: 10,
			CreatorRoyalty: 5,
			FinalPrice:     65,
		},
		ModelFileKey: "models/dragon.stl",
	}
	if err := s.CreateProduct(context.Background(), p); err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func createTestOrder(t *testing.T, s *Store, buyerID, sellerID, gatewayOrderID string, createdAt time.Time) *models.Order {
	t.Helper()
	order := &models.Order{
		BuyerID: buyerID,
		Total:   65,
		Lines: []models.OrderLine{{
			ProductID:   "prod-1",
			SellerID:    sellerID,
			ProductName: "Articulated Dragon",
			Material:    models.MaterialPLA,
			UnitPrice:   65,
			Quantity:    1,
			LineTotal:   65,
		}},
		Status:         models.StatusPlaced,
		PaymentState:   models.PaymentPending,
		GatewayOrderID: gatewayOrderID,
		CreatedAt:      createdAt,
	}
	txn := &models.Transaction{
		GatewayOrderID: gatewayOrderID,
		Amount:         order.Total,
		Currency:       "INR",
		Status:         models.TransactionCreated,
		CreatedAt:      createdAt,
	}
	if err := s.CreateOrder(context.Background(), order, txn); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}
