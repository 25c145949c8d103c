package store

import (
	"context"
	"fmt"
	"strings"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const productColumns = `id, name, description, price, stock, category, image_urls, main_image_url,
	demanded, keywords, status, created_at, updated_at`

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.get(ctx, &product, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts returns every product, optionally restricted to one category.
func (s *Store) ListProducts(ctx context.Context, category string) ([]models.Product, error) {
	products := []models.Product{}
	if category != "" {
		err := s.selectAll(ctx, &products,
			"SELECT "+productColumns+" FROM products WHERE category = $1 ORDER BY id", category)
		return products, err
	}
	err := s.selectAll(ctx, &products, "SELECT "+productColumns+" FROM products ORDER BY id")
	return products, err
}

// SearchProductsByKeywords matches products whose keywords contain any of
// the given terms.
func (s *Store) SearchProductsByKeywords(ctx context.Context, terms []string) ([]models.Product, error) {
	products := []models.Product{}
	if len(terms) == 0 {
		return products, nil
	}

	conds := make([]string, len(terms))
	args := make([]any, len(terms))
	for i, term := range terms {
		conds[i] = fmt.Sprintf("keywords ILIKE $%d", i+1)
		args[i] = "%" + escapeLike(term) + "%"
	}

	query := "SELECT " + productColumns + " FROM products WHERE " + strings.Join(conds, " OR ") + " ORDER BY id"
	err := s.selectAll(ctx, &products, query, args...)
	return products, err
}

// ListDemandedProducts returns the featured products.
func (s *Store) ListDemandedProducts(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	err := s.selectAll(ctx, &products,
		"SELECT "+productColumns+" FROM products WHERE demanded = TRUE ORDER BY id")
	return products, err
}

// CreateProduct inserts a product and fills in its generated fields.
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (name, description, price, stock, category, image_urls, main_image_url, demanded, keywords, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	if p.Status == "" {
		p.Status = models.ProductStatusActive
	}
	return sqlx.GetContext(ctx, s.q, p, query,
		p.Name, p.Description, p.Price, p.Stock, p.Category, p.ImageURLs, p.MainImageURL, p.Demanded, p.Keywords, p.Status)
}

// SetDemanded flips the demanded flag of one product.
func (s *Store) SetDemanded(ctx context.Context, productID int64, demanded bool) error {
	return s.execAffected(ctx,
		"UPDATE products SET demanded = $1, updated_at = NOW() WHERE id = $2", demanded, productID)
}

// GetActiveProductsByIDs fetches price and stock of the active products among ids
// in a single query. Missing or inactive ids are simply absent from the result.
func (s *Store) GetActiveProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In("SELECT "+productColumns+" FROM products WHERE id IN (?) AND status = ?",
		ids, models.ProductStatusActive)
	if err != nil {
		return nil, err
	}
	query = s.q.Rebind(query)

	products := []models.Product{}
	err = s.selectAll(ctx, &products, query, args...)
	return products, err
}

// DecrementStock removes quantity units from a product, never going below
// zero. It reports how many units could not be covered by stock.
func (s *Store) DecrementStock(ctx context.Context, productID int64, quantity int) (shortfall int, err error) {
	var previous int
	err = s.get(ctx, &previous, `
		WITH prev AS (SELECT stock FROM products WHERE id = $2 FOR UPDATE)
		UPDATE products SET stock = GREATEST(products.stock - $1, 0), updated_at = NOW()
		FROM prev WHERE products.id = $2
		RETURNING prev.stock`, quantity, productID)
	if err != nil {
		return 0, err
	}
	if previous < quantity {
		return quantity - previous, nil
	}
	return 0, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
