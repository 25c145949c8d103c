package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogService serves product reads and agent-side catalog maintenance.
type CatalogService struct {
	store  *store.Store
	logger *zap.Logger
}

func NewCatalogService(store *store.Store) *CatalogService {
	return &CatalogService{store: store, logger: util.GetLogger()}
}

// UploadProductRequest is a new catalog entry. Images are referenced by URL.
type UploadProductRequest struct {
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Price        *decimal.Decimal `json:"price"`
	Stock        *int             `json:"stock"`
	Category     string           `json:"category"`
	ImageURLs    []string         `json:"image_urls"`
	MainImageURL string           `json:"main_image_url"`
	Keywords     string           `json:"keywords"`
	Demanded     bool             `json:"demanded"`
}

type ReplaceDemandedRequest struct {
	OldProductID int64 `json:"old_product_id"`
	NewProductID int64 `json:"new_product_id"`
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	product, err := s.store.GetProductByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return product, nil
}

// ListProducts lists the catalog. Keywords, when given, match any term as a
// substring of the product keywords; category narrows either form.
func (s *CatalogService) ListProducts(ctx context.Context, category, keywords string) ([]models.Product, error) {
	terms := splitTerms(keywords)
	if len(terms) == 0 {
		products, err := s.store.ListProducts(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("failed to list products: %w", err)
		}
		return products, nil
	}

	products, err := s.store.SearchProductsByKeywords(ctx, terms)
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	if category == "" {
		return products, nil
	}

	filtered := make([]models.Product, 0, len(products))
	for _, p := range products {
		if p.Category == category {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

func (s *CatalogService) ListDemanded(ctx context.Context) ([]models.Product, error) {
	products, err := s.store.ListDemandedProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list demanded products: %w", err)
	}
	return products, nil
}

// UploadProduct validates and inserts a new product.
func (s *CatalogService) UploadProduct(ctx context.Context, req *UploadProductRequest) (*models.Product, error) {
	var missing []string
	if strings.TrimSpace(req.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(req.Description) == "" {
		missing = append(missing, "description")
	}
	if req.Price == nil {
		missing = append(missing, "price")
	}
	if req.Stock == nil {
		missing = append(missing, "stock")
	}
	if strings.TrimSpace(req.Category) == "" {
		missing = append(missing, "category")
	}
	if len(req.ImageURLs) == 0 {
		missing = append(missing, "image_urls")
	}
	if strings.TrimSpace(req.MainImageURL) == "" {
		missing = append(missing, "main_image_url")
	}
	if strings.TrimSpace(req.Keywords) == "" {
		missing = append(missing, "keywords")
	}
	if len(missing) > 0 {
		return nil, apperr.New(apperr.CodeValidation, "missing required fields").
			WithDetails(map[string][]string{"missing": missing})
	}
	if req.Price.IsNegative() {
		return nil, apperr.New(apperr.CodeValidation, "price must not be negative")
	}
	if req.Price.Round(2).GreaterThanOrEqual(models.MaxAmount) {
		return nil, apperr.Newf(apperr.CodeValidation, "price must be below %s", models.MaxAmount)
	}
	if *req.Stock < 0 {
		return nil, apperr.New(apperr.CodeValidation, "stock must not be negative")
	}

	product := &models.Product{
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Price:        req.Price.Round(2),
		Stock:        *req.Stock,
		Category:     strings.TrimSpace(req.Category),
		ImageURLs:    models.StringList(req.ImageURLs),
		MainImageURL: req.MainImageURL,
		Demanded:     req.Demanded,
		Keywords:     req.Keywords,
		Status:       models.ProductStatusActive,
	}
	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.logger.Info("Product uploaded", zap.Int64("product_id", product.ID), zap.String("category", product.Category))
	return product, nil
}

// ReplaceDemanded unflags one product and flags another in one transaction.
func (s *CatalogService) ReplaceDemanded(ctx context.Context, req *ReplaceDemandedRequest) error {
	if req.OldProductID <= 0 || req.NewProductID <= 0 {
		return apperr.New(apperr.CodeValidation, "old_product_id and new_product_id are required")
	}

	return s.store.WithTx(ctx, func(tx *store.Store) error {
		if err := tx.SetDemanded(ctx, req.OldProductID, false); err != nil {
			return productWriteError(err, req.OldProductID)
		}
		if err := tx.SetDemanded(ctx, req.NewProductID, true); err != nil {
			return productWriteError(err, req.NewProductID)
		}
		return nil
	})
}

func productWriteError(err error, productID int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.Newf(apperr.CodeNotFound, "product %d not found", productID)
	}
	return fmt.Errorf("failed to update product %d: %w", productID, err)
}

func splitTerms(keywords string) []string {
	return strings.FieldsFunc(keywords, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}
