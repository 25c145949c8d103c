package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/shopspring/decimal"
)

// Remote payment states reported by the gateway.
const (
	StatusCaptured   = "captured"
	StatusAuthorized = "authorized"
	StatusFailed     = "failed"
)

// ErrTimeout is returned when the gateway does not answer within the configured timeout.
var ErrTimeout = errors.New("payment gateway timeout")

// OrderRequest describes a remote payment order. Amount is in minor units.
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

type RemoteOrder struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
}

type RemotePayment struct {
	ID      string
	OrderID string
	Status  string
	Amount  int64
}

// Gateway is the payment provider as seen by the order workflow.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*RemoteOrder, error)
	FetchPayment(ctx context.Context, paymentID string) (*RemotePayment, error)
	VerifySignature(remoteOrderID, remotePaymentID, signature string) bool
	KeyID() string
}

// ComputeSignature returns the hex HMAC-SHA256 of "orderID|paymentID" under secret.
func ComputeSignature(secret, remoteOrderID, remotePaymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(remoteOrderID + "|" + remotePaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares signature against the expected value in constant time.
func VerifySignature(secret, remoteOrderID, remotePaymentID, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := ComputeSignature(secret, remoteOrderID, remotePaymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// MinorUnits converts a 2-decimal amount to the smallest currency unit.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}
