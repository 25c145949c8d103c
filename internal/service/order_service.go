package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"
	"storefront-service/internal/payment"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderNotifier is told about orders that were paid.
type OrderNotifier interface {
	OrderPaid(ctx context.Context, order *models.Order) error
}

// OrderService creates orders and reconciles gateway payments into order state.
type OrderService struct {
	store    *store.Store
	gateway  payment.Gateway
	notifier OrderNotifier
	currency string
	now      func() time.Time
	logger   *zap.Logger
}

// NewOrderService creates a new order service. notifier may be nil.
func NewOrderService(store *store.Store, gateway payment.Gateway, notifier OrderNotifier, currency string) *OrderService {
	return &OrderService{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		currency: currency,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	UserID            int64              `json:"user_id"`
	Items             []OrderItemRequest `json:"items"`
	ShippingAddressID *int64             `json:"shipping_address_id,omitempty"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// OrderLine is a priced line shown on the checkout page.
type OrderLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// CreateOrderResponse carries what the checkout widget needs to collect payment.
type CreateOrderResponse struct {
	OrderID       int64           `json:"order_id"`
	OrderNumber   int64           `json:"order_number"`
	RemoteOrderID string          `json:"remote_order_id"`
	Amount        decimal.Decimal `json:"amount"`
	AmountMinor   int64           `json:"amount_minor"`
	Currency      string          `json:"currency"`
	KeyID         string          `json:"key_id"`
	Items         []OrderLine     `json:"items"`
}

// ConfirmPaymentRequest is the payload of the gateway's client-side callback.
type ConfirmPaymentRequest struct {
	OrderID         int64  `json:"order_id"`
	RemoteOrderID   string `json:"remote_order_id"`
	RemotePaymentID string `json:"remote_payment_id"`
	Signature       string `json:"signature"`
}

// OrderDetail is an order with its frozen line items.
type OrderDetail struct {
	models.Order
	Items []models.OrderItemDetail `json:"items"`
}

// CreateOrder prices the requested items, persists the order and opens the
// matching remote payment order. Either all of it persists or none of it.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder", attribute.Int64("user_id", req.UserID))
	defer span.End()

	items, err := mergeItems(req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}
	if req.UserID <= 0 {
		return nil, apperr.New(apperr.CodeValidation, "user_id is required")
	}

	products, err := s.loadProducts(ctx, items)
	if err != nil {
		return nil, err
	}

	lines, total, err := priceLines(items, products)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_items").Inc()
		return nil, err
	}

	if req.ShippingAddressID != nil {
		if err := s.checkShippingAddress(ctx, req.UserID, *req.ShippingAddressID); err != nil {
			return nil, err
		}
	}

	order := &models.Order{
		UserID:            req.UserID,
		TotalAmount:       total,
		Status:            models.OrderStatusCreated,
		ShippingAddressID: req.ShippingAddressID,
	}
	amountMinor := payment.MinorUnits(total)

	var remote *payment.RemoteOrder
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		number, err := tx.NextOrderNumber(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("failed to allocate order number: %w", err)
		}
		order.OrderNumber = number

		if err := tx.CreateOrder(ctx, order); err != nil {
			if store.IsForeignKeyViolation(err) {
				return apperr.New(apperr.CodeNotFound, "user not found")
			}
			return fmt.Errorf("failed to create order: %w", err)
		}

		for _, line := range lines {
			item := &models.OrderItem{
				OrderID:         order.ID,
				ProductID:       line.ProductID,
				Quantity:        line.Quantity,
				PriceAtPurchase: line.Price,
			}
			if err := tx.CreateOrderItem(ctx, item); err != nil {
				return fmt.Errorf("failed to create order item: %w", err)
			}
		}

		remote, err = s.gateway.CreateOrder(ctx, payment.OrderRequest{
			Amount:   amountMinor,
			Currency: s.currency,
			Receipt:  fmt.Sprintf("order_%d", order.ID),
			Notes: map[string]string{
				"order_id": strconv.FormatInt(order.ID, 10),
				"user_id":  strconv.FormatInt(order.UserID, 10),
			},
		})
		if err != nil {
			return gatewayError(err, "payment gateway rejected order")
		}

		if err := tx.SetRemoteOrderID(ctx, order.ID, remote.ID); err != nil {
			return fmt.Errorf("failed to store remote order id: %w", err)
		}
		order.RemoteOrderID = &remote.ID
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		util.OrdersFailedTotal.WithLabelValues(failureReason(err)).Inc()
		s.logger.Warn("Order creation failed", zap.Int64("user_id", req.UserID), zap.Error(err))
		return nil, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("order_number", order.OrderNumber),
		zap.String("remote_order_id", remote.ID),
		zap.String("total", total.StringFixed(2)))

	return &CreateOrderResponse{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		RemoteOrderID: remote.ID,
		Amount:        total,
		AmountMinor:   amountMinor,
		Currency:      s.currency,
		KeyID:         s.gateway.KeyID(),
		Items:         lines,
	}, nil
}

// ConfirmPayment verifies the gateway callback and marks the order Paid.
// Confirming an order that is already Paid succeeds without changes.
// callerID, when set, must own the order.
func (s *OrderService) ConfirmPayment(ctx context.Context, req *ConfirmPaymentRequest, callerID *int64) (*OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ConfirmPayment", attribute.Int64("order_id", req.OrderID))
	defer span.End()

	if req.OrderID <= 0 || req.RemoteOrderID == "" || req.RemotePaymentID == "" || req.Signature == "" {
		return nil, apperr.New(apperr.CodeValidation, "order_id, remote_order_id, remote_payment_id and signature are required")
	}

	if !s.gateway.VerifySignature(req.RemoteOrderID, req.RemotePaymentID, req.Signature) {
		util.PaymentConfirmationsTotal.WithLabelValues("invalid_signature").Inc()
		s.logger.Warn("Payment signature mismatch",
			zap.Int64("order_id", req.OrderID),
			zap.String("remote_order_id", req.RemoteOrderID))
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid signature")
	}

	var (
		detail      *OrderDetail
		outcome     string
		failedState bool
	)
	err := s.store.WithTx(ctx, func(tx *store.Store) error {
		order, err := tx.GetOrderForUpdate(ctx, req.OrderID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.CodeNotFound, "order not found")
		}
		if err != nil {
			return fmt.Errorf("failed to load order: %w", err)
		}
		if callerID != nil && order.UserID != *callerID {
			return apperr.New(apperr.CodeForbidden, "order belongs to another user")
		}
		if order.RemoteOrderID == nil || *order.RemoteOrderID != req.RemoteOrderID {
			return apperr.New(apperr.CodeValidation, "remote order reference does not match order")
		}

		switch order.Status {
		case models.OrderStatusPaid:
			outcome = "already_paid"
			detail, err = s.orderDetail(ctx, tx, order)
			return err
		case models.OrderStatusFailed:
			return apperr.New(apperr.CodeConflict, "order payment has already failed")
		}

		remote, err := s.gateway.FetchPayment(ctx, req.RemotePaymentID)
		if err != nil {
			return gatewayError(err, "could not verify payment with gateway")
		}
		if remote.OrderID != "" && remote.OrderID != req.RemoteOrderID {
			return apperr.New(apperr.CodeValidation, "payment does not belong to order")
		}

		switch remote.Status {
		case payment.StatusCaptured:
			paidAt := s.now().UTC()
			if err := tx.MarkOrderPaid(ctx, order.ID, req.RemotePaymentID, paidAt); err != nil {
				return fmt.Errorf("failed to mark order paid: %w", err)
			}
			order.Status = models.OrderStatusPaid
			order.PaymentDate = &paidAt
			order.RemotePaymentID = &req.RemotePaymentID

			if err := s.decrementStock(ctx, tx, order.ID); err != nil {
				return err
			}
			outcome = "paid"
		case payment.StatusFailed:
			if err := tx.MarkOrderFailed(ctx, order.ID, req.RemotePaymentID); err != nil {
				return fmt.Errorf("failed to mark order failed: %w", err)
			}
			order.Status = models.OrderStatusFailed
			outcome = "failed"
			failedState = true
		default:
			return apperr.New(apperr.CodePaymentFailed, "payment not captured").
				WithDetails(map[string]string{"payment_status": remote.Status})
		}

		detail, err = s.orderDetail(ctx, tx, order)
		return err
	})
	if err != nil {
		util.RecordError(span, err)
		util.PaymentConfirmationsTotal.WithLabelValues(failureReason(err)).Inc()
		s.logger.Warn("Payment confirmation failed", zap.Int64("order_id", req.OrderID), zap.Error(err))
		return nil, err
	}

	util.PaymentConfirmationsTotal.WithLabelValues(outcome).Inc()

	if failedState {
		util.OrdersFailedTotal.WithLabelValues("payment_failed").Inc()
		s.logger.Warn("Gateway reported payment failed",
			zap.Int64("order_id", req.OrderID),
			zap.String("remote_payment_id", req.RemotePaymentID))
		return nil, apperr.New(apperr.CodePaymentFailed, "payment failed at gateway")
	}

	if outcome == "paid" {
		util.OrdersPaidTotal.Inc()
		s.logger.Info("Order paid",
			zap.Int64("order_id", detail.ID),
			zap.String("remote_payment_id", req.RemotePaymentID))
		if s.notifier != nil {
			if err := s.notifier.OrderPaid(ctx, &detail.Order); err != nil {
				s.logger.Error("Failed to publish order paid notification", zap.Int64("order_id", detail.ID), zap.Error(err))
			}
		}
	}

	return detail, nil
}

// ListOrders returns the user's orders newest first with nested items.
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders", attribute.Int64("user_id", userID))
	defer span.End()

	orders, err := s.store.GetOrdersByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := s.store.GetOrderItemDetails(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list order items: %w", err)
	}

	byOrder := make(map[int64][]models.OrderItemDetail, len(orders))
	for _, item := range items {
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}

	details := make([]OrderDetail, len(orders))
	for i, o := range orders {
		lines := byOrder[o.ID]
		if lines == nil {
			lines = []models.OrderItemDetail{}
		}
		details[i] = OrderDetail{Order: o, Items: lines}
	}
	return details, nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, orderID int64, callerID *int64) (*OrderDetail, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if callerID != nil && order.UserID != *callerID {
		return nil, apperr.New(apperr.CodeForbidden, "order belongs to another user")
	}
	return s.orderDetail(ctx, s.store, order)
}

func (s *OrderService) orderDetail(ctx context.Context, st *store.Store, order *models.Order) (*OrderDetail, error) {
	items, err := st.GetOrderItemDetails(ctx, []int64{order.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	return &OrderDetail{Order: *order, Items: items}, nil
}

// decrementStock removes the paid quantities from the catalog. Stock is only
// checked at order creation, so concurrent checkouts can oversell; the
// shortfall is clamped at zero and reported.
func (s *OrderService) decrementStock(ctx context.Context, tx *store.Store, orderID int64) error {
	items, err := tx.GetOrderItemsByOrderID(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	for _, item := range items {
		shortfall, err := tx.DecrementStock(ctx, item.ProductID, item.Quantity)
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("Paid product no longer in catalog",
				zap.Int64("order_id", orderID),
				zap.Int64("product_id", item.ProductID))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to decrement stock for product %d: %w", item.ProductID, err)
		}
		if shortfall > 0 {
			util.StockOversoldTotal.Add(float64(shortfall))
			s.logger.Warn("Product oversold",
				zap.Int64("order_id", orderID),
				zap.Int64("product_id", item.ProductID),
				zap.Int("shortfall", shortfall))
		}
	}
	return nil
}

func (s *OrderService) loadProducts(ctx context.Context, items []OrderItemRequest) (map[int64]*models.Product, error) {
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ProductID
	}

	products, err := s.store.GetActiveProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	byID := make(map[int64]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		util.OrdersFailedTotal.WithLabelValues("products_unavailable").Inc()
		return nil, apperr.Newf(apperr.CodeNotFound, "products unavailable: %v", missing).
			WithDetails(map[string][]int64{"missing_ids": missing})
	}
	return byID, nil
}

func (s *OrderService) checkShippingAddress(ctx context.Context, userID, addressID int64) error {
	address, err := s.store.GetAddress(ctx, addressID)
	if errors.Is(err, store.ErrNotFound) {
		return apperr.New(apperr.CodeNotFound, "shipping address not found")
	}
	if err != nil {
		return fmt.Errorf("failed to load shipping address: %w", err)
	}
	if address.UserID != userID {
		return apperr.New(apperr.CodeForbidden, "shipping address belongs to another user")
	}
	return nil
}

// mergeItems validates quantities and folds repeated product ids into one
// line, keeping first-seen order.
func mergeItems(items []OrderItemRequest) ([]OrderItemRequest, error) {
	if len(items) == 0 {
		return nil, apperr.New(apperr.CodeValidation, "order must contain at least one item")
	}

	index := make(map[int64]int, len(items))
	merged := make([]OrderItemRequest, 0, len(items))
	for _, item := range items {
		if item.ProductID <= 0 {
			return nil, apperr.New(apperr.CodeValidation, "product_id must be positive")
		}
		if item.Quantity <= 0 {
			return nil, apperr.Newf(apperr.CodeValidation, "quantity for product %d must be positive", item.ProductID)
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

// priceLines checks stock and freezes the current prices into order lines.
func priceLines(items []OrderItemRequest, products map[int64]*models.Product) ([]OrderLine, decimal.Decimal, error) {
	lines := make([]OrderLine, 0, len(items))
	total := decimal.Zero

	for _, item := range items {
		product := products[item.ProductID]
		if item.Quantity > product.Stock {
			return nil, decimal.Zero, apperr.Newf(apperr.CodeConflict, "insufficient stock for product %d", item.ProductID).
				WithDetails(map[string]int64{
					"product_id": item.ProductID,
					"requested":  int64(item.Quantity),
					"available":  int64(product.Stock),
				})
		}

		subtotal := product.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(subtotal)
		lines = append(lines, OrderLine{
			ProductID: item.ProductID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  item.Quantity,
			Subtotal:  subtotal.Round(2),
		})
	}

	total = total.Round(2)
	if !total.IsPositive() {
		return nil, decimal.Zero, apperr.New(apperr.CodeValidation, "order total must be positive")
	}
	if total.GreaterThanOrEqual(models.MaxAmount) {
		return nil, decimal.Zero, apperr.Newf(apperr.CodeValidation, "order total must be below %s", models.MaxAmount)
	}
	return lines, total, nil
}

func gatewayError(err error, message string) error {
	if errors.Is(err, payment.ErrTimeout) {
		return apperr.Wrap(apperr.CodeDependency, err, "payment gateway timed out")
	}
	return apperr.Wrap(apperr.CodeDependency, err, message)
}

func failureReason(err error) string {
	switch apperr.CodeOf(err) {
	case apperr.CodeDependency:
		return "gateway_error"
	case apperr.CodeNotFound:
		return "not_found"
	case apperr.CodeValidation, apperr.CodeForbidden, apperr.CodeConflict:
		return "rejected"
	case apperr.CodePaymentFailed:
		return "not_captured"
	default:
		return "db_error"
	}
}
