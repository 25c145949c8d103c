package api

import (
	"net/http"

	"storefront-service/internal/service"

	"github.com/gin-gonic/gin"
)

// userAndProduct reads :user_id and :product_id and checks the caller.
func userAndProduct(c *gin.Context) (int64, int64, error) {
	userID, err := paramID(c, "user_id")
	if err != nil {
		return 0, 0, err
	}
	productID, err := paramID(c, "product_id")
	if err != nil {
		return 0, 0, err
	}
	if err := ensureCaller(c, userID); err != nil {
		return 0, 0, err
	}
	return userID, productID, nil
}

func pathUser(c *gin.Context) (int64, error) {
	userID, err := paramID(c, "user_id")
	if err != nil {
		return 0, err
	}
	if err := ensureCaller(c, userID); err != nil {
		return 0, err
	}
	return userID, nil
}

func (h *Handler) addToCart(c *gin.Context) {
	var req service.CartItemRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	if err := ensureCaller(c, req.UserID); err != nil {
		respondError(c, err)
		return
	}

	entry, err := h.svc.Cart.AddToCart(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, gin.H{"message": "added to cart", "item": entry})
}

func (h *Handler) listCart(c *gin.Context) {
	userID, err := pathUser(c)
	if err != nil {
		respondError(c, err)
		return
	}

	lines, err := h.svc.Cart.ListCart(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"items": lines})
}

func (h *Handler) updateCart(c *gin.Context) {
	userID, productID, err := userAndProduct(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := bindJSON(c, &body); err != nil {
		respondError(c, err)
		return
	}

	if err := h.svc.Cart.UpdateQuantity(c.Request.Context(), userID, productID, body.Quantity); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"message": "cart updated"})
}

func (h *Handler) removeFromCart(c *gin.Context) {
	userID, productID, err := userAndProduct(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.svc.Cart.RemoveFromCart(c.Request.Context(), userID, productID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"message": "removed from cart"})
}

func (h *Handler) addFavorite(c *gin.Context) {
	var req service.FavoriteRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	if err := ensureCaller(c, req.UserID); err != nil {
		respondError(c, err)
		return
	}

	if err := h.svc.Favorites.AddFavorite(c.Request.Context(), &req); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, gin.H{"message": "added to favorites"})
}

func (h *Handler) listFavorites(c *gin.Context) {
	userID, err := pathUser(c)
	if err != nil {
		respondError(c, err)
		return
	}

	lines, err := h.svc.Favorites.ListFavorites(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"items": lines})
}

func (h *Handler) removeFavorite(c *gin.Context) {
	userID, productID, err := userAndProduct(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.svc.Favorites.RemoveFavorite(c.Request.Context(), userID, productID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"message": "removed from favorites"})
}
