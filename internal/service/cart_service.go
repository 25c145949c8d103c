package service

import (
	"context"
	"errors"
	"fmt"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"
	"storefront-service/internal/store"
)

// CartService manages per-user cart lines.
type CartService struct {
	store *store.Store
}

func NewCartService(store *store.Store) *CartService {
	return &CartService{store: store}
}

type CartItemRequest struct {
	UserID    int64 `json:"user_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// AddToCart adds quantity units of a product, incrementing an existing line.
func (s *CartService) AddToCart(ctx context.Context, req *CartItemRequest) (*models.CartEntry, error) {
	if req.UserID <= 0 || req.ProductID <= 0 {
		return nil, apperr.New(apperr.CodeValidation, "user_id and product_id are required")
	}
	if req.Quantity <= 0 {
		return nil, apperr.New(apperr.CodeValidation, "quantity must be positive")
	}
	if err := ensureProduct(ctx, s.store, req.ProductID); err != nil {
		return nil, err
	}

	entry, err := s.store.AddCartEntry(ctx, req.UserID, req.ProductID, req.Quantity)
	if store.IsForeignKeyViolation(err) {
		return nil, apperr.New(apperr.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add to cart: %w", err)
	}
	return entry, nil
}

// ListCart returns the cart, empty when the user has none.
func (s *CartService) ListCart(ctx context.Context, userID int64) ([]models.CartLine, error) {
	lines, err := s.store.ListCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart: %w", err)
	}
	return lines, nil
}

func (s *CartService) UpdateQuantity(ctx context.Context, userID, productID int64, quantity int) error {
	if quantity <= 0 {
		return apperr.New(apperr.CodeValidation, "quantity must be positive")
	}
	err := s.store.UpdateCartQuantity(ctx, userID, productID, quantity)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, "cart item not found")
	}
	if err != nil {
		return fmt.Errorf("failed to update cart: %w", err)
	}
	return nil
}

func (s *CartService) RemoveFromCart(ctx context.Context, userID, productID int64) error {
	err := s.store.DeleteCartEntry(ctx, userID, productID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, "cart item not found")
	}
	if err != nil {
		return fmt.Errorf("failed to remove from cart: %w", err)
	}
	return nil
}

// FavoritesService manages per-user favorite products.
type FavoritesService struct {
	store *store.Store
}

func NewFavoritesService(store *store.Store) *FavoritesService {
	return &FavoritesService{store: store}
}

type FavoriteRequest struct {
	UserID    int64 `json:"user_id"`
	ProductID int64 `json:"product_id"`
}

// AddFavorite records a favorite; repeating it is harmless.
func (s *FavoritesService) AddFavorite(ctx context.Context, req *FavoriteRequest) error {
	if req.UserID <= 0 || req.ProductID <= 0 {
		return apperr.New(apperr.CodeValidation, "user_id and product_id are required")
	}
	if err := ensureProduct(ctx, s.store, req.ProductID); err != nil {
		return err
	}

	err := s.store.AddFavorite(ctx, req.UserID, req.ProductID)
	if store.IsForeignKeyViolation(err) {
		return apperr.New(apperr.CodeNotFound, "user not found")
	}
	if err != nil {
		return fmt.Errorf("failed to add favorite: %w", err)
	}
	return nil
}

// ListFavorites returns the favorites, empty when the user has none.
func (s *FavoritesService) ListFavorites(ctx context.Context, userID int64) ([]models.FavoriteLine, error) {
	lines, err := s.store.ListFavorites(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list favorites: %w", err)
	}
	return lines, nil
}

func (s *FavoritesService) RemoveFavorite(ctx context.Context, userID, productID int64) error {
	err := s.store.DeleteFavorite(ctx, userID, productID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, "favorite not found")
	}
	if err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	return nil
}

func ensureProduct(ctx context.Context, st *store.Store, productID int64) error {
	_, err := st.GetProductByID(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, "product not found")
	}
	if err != nil {
		return fmt.Errorf("failed to load product: %w", err)
	}
	return nil
}
