package api

import (
	"net/http"

	"storefront-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createAddress(c *gin.Context) {
	var in service.AddressInput
	if err := bindJSON(c, &in); err != nil {
		respondError(c, err)
		return
	}
	if err := ensureCaller(c, in.UserID); err != nil {
		respondError(c, err)
		return
	}

	address, err := h.svc.Addresses.CreateAddress(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, gin.H{"message": "address saved", "address": address})
}

func (h *Handler) listAddresses(c *gin.Context) {
	userID, err := pathUser(c)
	if err != nil {
		respondError(c, err)
		return
	}

	addresses, err := h.svc.Addresses.ListAddresses(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"addresses": addresses})
}

func (h *Handler) getAddress(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	address, err := h.svc.Addresses.GetAddress(c.Request.Context(), id, callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"address": address})
}

func (h *Handler) updateAddress(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var in service.AddressInput
	if err := bindJSON(c, &in); err != nil {
		respondError(c, err)
		return
	}

	address, err := h.svc.Addresses.UpdateAddress(c.Request.Context(), id, &in, callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"message": "address updated", "address": address})
}

func (h *Handler) deleteAddress(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.svc.Addresses.DeleteAddress(c.Request.Context(), id, callerID(c)); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"message": "address deleted"})
}

func (h *Handler) setDefaultAddress(c *gin.Context) {
	var body struct {
		AddressID int64 `json:"address_id"`
	}
	if err := bindJSON(c, &body); err != nil {
		respondError(c, err)
		return
	}
	if body.AddressID <= 0 {
		respondError(c, badRequest("address_id is required"))
		return
	}

	address, err := h.svc.Addresses.SetDefault(c.Request.Context(), body.AddressID, callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"message": "default address updated", "address": address})
}
