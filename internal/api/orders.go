package api

import (
	"net/http"

	"storefront-service/internal/service"

	"github.com/gin-gonic/gin"
)

type createOrderResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	*service.CreateOrderResponse
}

// createOrder handles checkout for the authenticated customer.
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	req.UserID = currentAccount(c).ID
	h.placeOrder(c, &req)
}

// createOrderPublic takes the user from the body.
func (h *Handler) createOrderPublic(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	if req.UserID <= 0 {
		respondError(c, badRequest("user_id is required"))
		return
	}
	if err := ensureCaller(c, req.UserID); err != nil {
		respondError(c, err)
		return
	}
	h.placeOrder(c, &req)
}

func (h *Handler) placeOrder(c *gin.Context, req *service.CreateOrderRequest) {
	resp, err := h.svc.Orders.CreateOrder(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, createOrderResponse{
		Status:              "success",
		Message:             "order created, awaiting payment",
		CreateOrderResponse: resp,
	})
}

func (h *Handler) confirmPayment(c *gin.Context) {
	var req service.ConfirmPaymentRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	order, err := h.svc.Orders.ConfirmPayment(c.Request.Context(), &req, callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"message": "payment confirmed",
		"order":   order,
	})
}

func (h *Handler) listOrders(c *gin.Context) {
	userID, err := pathUser(c)
	if err != nil {
		respondError(c, err)
		return
	}

	orders, err := h.svc.Orders.ListOrders(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"orders": orders})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}

	order, err := h.svc.Orders.GetOrder(c.Request.Context(), orderID, callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"order": order})
}
