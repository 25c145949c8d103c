package api

import (
	"net/http"

	"storefront-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) getProduct(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	product, err := h.svc.Catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"product": product})
}

// listProducts handles ?category= and ?keywords= filters.
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.svc.Catalog.ListProducts(c.Request.Context(), c.Query("category"), c.Query("keywords"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"products": products, "count": len(products)})
}

func (h *Handler) listDemanded(c *gin.Context) {
	products, err := h.svc.Catalog.ListDemanded(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"products": products, "count": len(products)})
}

func (h *Handler) uploadProduct(c *gin.Context) {
	var req service.UploadProductRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	product, err := h.svc.Catalog.UploadProduct(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, gin.H{"message": "product uploaded", "product": product})
}

func (h *Handler) replaceDemanded(c *gin.Context) {
	var req service.ReplaceDemandedRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	if err := h.svc.Catalog.ReplaceDemanded(c.Request.Context(), &req); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"message": "demanded product replaced"})
}
