package store

import (
	"context"
	"errors"
	"testing"

	"github.com/gmarroquin/fabmarket/internal/models"
)

func TestProductRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := createTestUser(t, s, "seller@example.com", models.RoleSeller)
	created := createTestProduct(t, s, seller.ID)

	got, err := s.GetProduct(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.Name != created.Name || got.SellerID != seller.ID {
		t.Errorf("got product %q/%q, want %q/%q", got.Name, got.SellerID, created.Name, seller.ID)
	}
	if got.Price.FinalPrice != 65 {
		t.Errorf("final price = %v, want 65", got.Price.FinalPrice)
	}
	if got.Price.Material != got.Material {
		t.Errorf("breakdown material %q does not mirror product material %q", got.Price.Material, got.Material)
	}
	if len(got.Images) != 0 {
		t.Errorf("expected no images, got %v", got.Images)
	}
}

func TestGetProductNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetProduct(context.Background(), "nope"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListCatalogFiltersUnlisted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := createTestUser(t, s, "seller@example.com", models.RoleSeller)

	// Unpublished, unapproved product must stay out of the catalog.
	createTestProduct(t, s, seller.ID)

	visible := createTestProduct(t, s, seller.ID)
	if _, err := s.TogglePublish(ctx, visible.ID); err != nil {
		t.Fatalf("TogglePublish: %v", err)
	}
	if err := s.SetApproved(ctx, visible.ID, true); err != nil {
		t.Fatalf("SetApproved: %v", err)
	}

	list, err := s.ListCatalog(ctx, CatalogFilter{})
	if err != nil {
		t.Fatalf("ListCatalog: %v", err)
	}
	if len(list) != 1 || list[0].ID != visible.ID {
		t.Fatalf("catalog = %d products, want only the published+approved one", len(list))
	}

	// Material filter.
	list, err = s.ListCatalog(ctx, CatalogFilter{Material: "Resin"})
	if err != nil {
		t.Fatalf("ListCatalog with filter: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("resin filter matched %d PLA products", len(list))
	}
}

func TestRepriceProductPersistsMutation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := createTestUser(t, s, "seller@example.com", models.RoleSeller)
	p := createTestProduct(t, s, seller.ID)

	updated, err := s.RepriceProduct(ctx, p.ID, func(p *models.Product) error {
		p.Price.VolumeCM3 = 20
		p.Price.BaseCost = 100
		p.Price.PlatformMargin = 20
		p.Price.CreatorRoyalty = 10
		p.Price.FinalPrice = 130
		p.VolumeSource = models.VolumeSourceManual
		return nil
	})
	if err != nil {
		t.Fatalf("RepriceProduct: %v", err)
	}
	if updated.Price.FinalPrice != 130 || updated.VolumeSource != models.VolumeSourceManual {
		t.Errorf("mutation not reflected in returned product: %+v", updated.Price)
	}

	got, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.Price.FinalPrice != 130 || got.Price.VolumeCM3 != 20 {
		t.Errorf("mutation not persisted: final=%v volume=%v", got.Price.FinalPrice, got.Price.VolumeCM3)
	}
}

func TestRepriceProductAbortsOnMutateError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := createTestUser(t, s, "seller@example.com", models.RoleSeller)
	p := createTestProduct(t, s, seller.ID)

	wantErr := errors.New("boom")
	if _, err := s.RepriceProduct(ctx, p.ID, func(*models.Product) error {
		return wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("expected mutate error back, got %v", err)
	}

	got, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if got.Price.FinalPrice != 65 {
		t.Errorf("aborted reprice changed the row: final=%v", got.Price.FinalPrice)
	}
}

func TestTogglePublishFlips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := createTestUser(t, s, "seller@example.com", models.RoleSeller)
	p := createTestProduct(t, s, seller.ID)

	on, err := s.TogglePublish(ctx, p.ID)
	if err != nil || !on {
		t.Fatalf("first toggle = %v, %v; want true", on, err)
	}
	off, err := s.TogglePublish(ctx, p.ID)
	if err != nil || off {
		t.Fatalf("second toggle = %v, %v; want false", off, err)
	}
}

func TestSetApprovedUnknownProduct(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetApproved(context.Background(), "nope", true); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProductImagesOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seller := createTestUser(t, s, "seller@example.com", models.RoleSeller)
	p := createTestProduct(t, s, seller.ID)

	for _, url := range []string{"/files/images/a.jpg", "/files/images/b.jpg"} {
		if err := s.AddProductImage(ctx, p.ID, url); err != nil {
			t.Fatalf("AddProductImage: %v", err)
		}
	}

	got, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if len(got.Images) != 2 || got.Images[0] != "/files/images/a.jpg" {
		t.Errorf("images = %v, want insertion order preserved", got.Images)
	}
}
