// Package products is the product record manager: it owns product
// lifecycle, derives prices through the pricing engine and keeps the stored
// breakdown consistent with volume and material changes.
package products

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gmarroquin/fabmarket/internal/geometry"
	"github.com/gmarroquin/fabmarket/internal/models"
	"github.com/gmarroquin/fabmarket/internal/pricing"
	"github.com/gmarroquin/fabmarket/internal/storage"
	"github.com/gmarroquin/fabmarket/internal/store"
	"github.com/gmarroquin/fabmarket/internal/telemetry"
)

type Service struct {
	store          *store.Store
	files          storage.ObjectStore
	extractor      geometry.Extractor
	rates          pricing.RateTable
	defaultRoyalty float64
	modelURLTTL    time.Duration
	logger         *slog.Logger
}

func NewService(
	st *store.Store,
	files storage.ObjectStore,
	extractor geometry.Extractor,
	rates pricing.RateTable,
	defaultRoyalty float64,
	modelURLTTL time.Duration,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:          st,
		files:          files,
		extractor:      extractor,
		rates:          rates,
		defaultRoyalty: defaultRoyalty,
		modelURLTTL:    modelURLTTL,
		logger:         logger,
	}
}

// CreateInput carries the upload form for a new product. RoyaltyPercent nil
// means the platform default applies.
type CreateInput struct {
	Name           string
	Description    string
	Category       string
	Material       string
	RoyaltyPercent *float64
	ModelFile      []byte
}

// Create uploads a product: the model file goes to object storage, the
// geometry service derives a volume, and the pricing engine produces the
// stored breakdown. Extraction failure does not fail the upload: the
// product is created with zero volume and waits for a manual override.
func (s *Service) Create(ctx context.Context, seller *models.User, in CreateInput) (*models.Product, error) {
	if seller.Role != models.RoleSeller {
		return nil, fmt.Errorf("only sellers can upload products: %w", models.ErrForbidden)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", models.ErrValidation)
	}
	material, ok := models.ParseMaterial(in.Material)
	if !ok {
		return nil, fmt.Errorf("%w: invalid material %q", models.ErrValidation, in.Material)
	}
	if len(in.ModelFile) == 0 {
		return nil, fmt.Errorf("%w: model file is required", models.ErrValidation)
	}

	royalty := s.defaultRoyalty
	if in.RoyaltyPercent != nil {
		royalty = *in.RoyaltyPercent
	}

	volume := 0.0
	source := models.VolumeSourceNone
	if v, err := s.extractor.ExtractVolume(ctx, in.ModelFile); err != nil {
		// Availability over precision: the seller fixes the volume later.
		s.logger.Warn("volume extraction failed, product needs manual volume", "error", err)
		telemetry.VolumeExtractionFailures.Inc()
	} else {
		volume = v
		source = models.VolumeSourceExtracted
	}

	breakdown, err := pricing.Compute(volume, material, royalty, s.rates)
	if err != nil {
		return nil, err
	}

	fileKey := "models/" + uuid.New().String() + ".stl"
	if err := s.files.Put(ctx, fileKey, in.ModelFile); err != nil {
		return nil, fmt.Errorf("store model file: %w", err)
	}

	product := &models.Product{
		SellerID:       seller.ID,
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		Category:       in.Category,
		Material:       material,
		RoyaltyPercent: royalty,
		VolumeSource:   source,
		Price:          breakdown,
		ModelFileKey:   fileKey,
		Images:         []string{},
		IsPublished:    false,
		IsApproved:     false,
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, err
	}

	telemetry.ProductsCreated.Inc()
	s.logger.Info("product created",
		"product_id", product.ID, "seller_id", seller.ID,
		"volume_cm3", volume, "needs_volume", product.NeedsVolume())

	return product, nil
}

// UpdateVolume is the manual-override path and the only way an existing
// product's price legitimately changes. The override must be positive;
// zero is the "extraction failed" default, not a settable value.
func (s *Service) UpdateVolume(ctx context.Context, caller *models.User, productID string, volumeCM3 float64) (*models.Product, error) {
	if volumeCM3 <= 0 {
		return nil, fmt.Errorf("%w: volume_cm3 must be > 0, got %v", models.ErrValidation, volumeCM3)
	}

	return s.store.RepriceProduct(ctx, productID, func(p *models.Product) error {
		if p.SellerID != caller.ID {
			return fmt.Errorf("only the owning seller can update volume: %w", models.ErrForbidden)
		}

		breakdown, err := pricing.Compute(volumeCM3, p.Material, p.RoyaltyPercent, s.rates)
		if err != nil {
			return err
		}
		p.Price = breakdown
		p.VolumeSource = models.VolumeSourceManual
		return nil
	})
}

// SetMaterial changes the material and recomputes the breakdown with the
// current volume, so the stored price never reflects a stale rate.
func (s *Service) SetMaterial(ctx context.Context, caller *models.User, productID, rawMaterial string) (*models.Product, error) {
	material, ok := models.ParseMaterial(rawMaterial)
	if !ok {
		return nil, fmt.Errorf("%w: invalid material %q", models.ErrValidation, rawMaterial)
	}

	return s.store.RepriceProduct(ctx, productID, func(p *models.Product) error {
		if p.SellerID != caller.ID {
			return fmt.Errorf("only the owning seller can change material: %w", models.ErrForbidden)
		}

		breakdown, err := pricing.Compute(p.Price.VolumeCM3, material, p.RoyaltyPercent, s.rates)
		if err != nil {
			return err
		}
		p.Material = material
		p.Price = breakdown
		return nil
	})
}

// TogglePublish flips visibility; it never touches price or approval.
func (s *Service) TogglePublish(ctx context.Context, caller *models.User, productID string) (bool, error) {
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return false, err
	}
	if product.SellerID != caller.ID {
		return false, fmt.Errorf("only the owning seller can publish: %w", models.ErrForbidden)
	}

	return s.store.TogglePublish(ctx, productID)
}

// Approve sets the moderation flag. Route middleware already restricts this
// to admins.
func (s *Service) Approve(ctx context.Context, productID string, approved bool) error {
	return s.store.SetApproved(ctx, productID, approved)
}

// Delete removes the product and its stored files. Order lines that
// snapshotted this product stay valid; they are copies, not references.
func (s *Service) Delete(ctx context.Context, caller *models.User, productID string) error {
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if product.SellerID != caller.ID && caller.Role != models.RoleAdmin {
		return fmt.Errorf("only the owning seller or an admin can delete: %w", models.ErrForbidden)
	}

	if err := s.store.DeleteProduct(ctx, productID); err != nil {
		return err
	}

	// File cleanup is best-effort; the record is already gone.
	if product.ModelFileKey != "" {
		if err := s.files.Delete(ctx, product.ModelFileKey); err != nil {
			s.logger.Warn("failed to delete model file", "error", err, "key", product.ModelFileKey)
		}
	}
	return nil
}

// AddImage processes and stores a product image, returning its public URL.
// The first uploaded image becomes the primary catalog image.
func (s *Service) AddImage(ctx context.Context, caller *models.User, productID, filename string, data []byte) (string, error) {
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return "", err
	}
	if product.SellerID != caller.ID {
		return "", fmt.Errorf("only the owning seller can add images: %w", models.ErrForbidden)
	}

	processed, err := storage.ProcessImage(bytes.NewReader(data), filename)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	key := "images/" + uuid.New().String() + ".jpg"
	if err := s.files.Put(ctx, key, processed); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}

	url := s.files.PublicURL(key)
	if err := s.store.AddProductImage(ctx, productID, url); err != nil {
		return "", err
	}
	return url, nil
}

// Get returns a product with a time-limited download URL for its model
// file.
func (s *Service) Get(ctx context.Context, productID string) (*models.Product, error) {
	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.ModelFileKey != "" {
		product.ModelFileURL = s.files.SignedURL(product.ModelFileKey, s.modelURLTTL)
	}
	return product, nil
}

// Catalog lists products visible to buyers.
func (s *Service) Catalog(ctx context.Context, f store.CatalogFilter) ([]models.Product, error) {
	return s.store.ListCatalog(ctx, f)
}

// BySeller lists a seller's own products, published or not.
func (s *Service) BySeller(ctx context.Context, sellerID string) ([]models.Product, error) {
	return s.store.ListProductsBySeller(ctx, sellerID)
}

// PendingApproval lists products awaiting moderation.
func (s *Service) PendingApproval(ctx context.Context) ([]models.Product, error) {
	return s.store.ListPendingApproval(ctx)
}
