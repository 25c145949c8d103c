package broker

import (
	"context"
	"fmt"
	"time"

	"storefront-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Notification event types
const (
	EventTypeOTPRequested = "otp.requested"
	EventTypeOrderPaid    = "order.paid"
)

// BaseEvent is the envelope shared by all notifications.
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

func newBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// OTPRequestedEvent asks the delivery worker to send a one-time code.
type OTPRequestedEvent struct {
	BaseEvent
	AccountKind  models.AccountKind `json:"account_kind"`
	AccountID    int64              `json:"account_id"`
	MobileNumber string             `json:"mobile_number,omitempty"`
	Email        string             `json:"email,omitempty"`
	Code         string             `json:"code"`
	ExpiresAt    time.Time          `json:"expires_at"`
}

type OrderPaidEvent struct {
	BaseEvent
	OrderID         int64           `json:"order_id"`
	UserID          int64           `json:"user_id"`
	OrderNumber     int64           `json:"order_number"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	RemotePaymentID string          `json:"remote_payment_id"`
}

type publisher interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// NotificationPublisher emits customer-facing notifications.
type NotificationPublisher struct {
	producer publisher
}

// NewNotificationPublisher creates a new notification publisher
func NewNotificationPublisher(producer *Producer) *NotificationPublisher {
	return &NotificationPublisher{producer: producer}
}

// SendOTP publishes an OTP delivery request keyed by account.
func (np *NotificationPublisher) SendOTP(ctx context.Context, kind models.AccountKind, account *models.Account, code string, expiresAt time.Time) error {
	event := &OTPRequestedEvent{
		BaseEvent:   newBaseEvent(EventTypeOTPRequested),
		AccountKind: kind,
		AccountID:   account.ID,
		Code:        code,
		ExpiresAt:   expiresAt,
	}
	if account.MobileNumber != nil {
		event.MobileNumber = *account.MobileNumber
	}
	if account.Email != nil {
		event.Email = *account.Email
	}

	key := fmt.Sprintf("%s-%d", kind, account.ID)
	return np.producer.PublishEvent(ctx, key, event)
}

// OrderPaid publishes the payment confirmation of an order.
func (np *NotificationPublisher) OrderPaid(ctx context.Context, order *models.Order) error {
	event := &OrderPaidEvent{
		BaseEvent:   newBaseEvent(EventTypeOrderPaid),
		OrderID:     order.ID,
		UserID:      order.UserID,
		OrderNumber: order.OrderNumber,
		TotalAmount: order.TotalAmount,
	}
	if order.RemotePaymentID != nil {
		event.RemotePaymentID = *order.RemotePaymentID
	}

	key := fmt.Sprintf("order-%d", order.ID)
	return np.producer.PublishEvent(ctx, key, event)
}
