package service

import (
	"context"
	"testing"

	"storefront-service/internal/payment"
	"storefront-service/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

const testSecret = "rzp_secret"

func newMockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.NewFromDB(sqlx.NewDb(db, "postgres")), mock
}

var (
	productCols = []string{"id", "name", "description", "price", "stock", "category", "image_urls",
		"main_image_url", "demanded", "keywords", "status", "created_at", "updated_at"}
	orderCols = []string{"order_id", "user_id", "order_number", "order_date", "payment_date", "total_amount",
		"status", "remote_order_id", "remote_payment_id", "shipping_address_id"}
	itemCols       = []string{"order_id", "product_id", "quantity", "price_at_purchase"}
	itemDetailCols = []string{"order_id", "product_id", "quantity", "price_at_purchase", "name", "main_image_url"}
	accountCols    = []string{"id", "name", "email", "mobile_number", "password_hash", "is_verified", "token",
		"token_expiry", "otp_code", "otp_expiry", "created_at"}
	addressCols = []string{"id", "user_id", "full_name", "mobile_number", "pincode", "line1", "line2", "landmark",
		"city", "state", "country", "is_default", "lat", "lon", "created_at", "updated_at"}
)

type fakeGateway struct {
	createReq  payment.OrderRequest
	createErr  error
	remoteID   string
	payment    *payment.RemotePayment
	fetchErr   error
	fetchCalls int
}

func (f *fakeGateway) CreateOrder(_ context.Context, req payment.OrderRequest) (*payment.RemoteOrder, error) {
	f.createReq = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &payment.RemoteOrder{ID: f.remoteID, Amount: req.Amount, Currency: req.Currency, Status: "created"}, nil
}

func (f *fakeGateway) FetchPayment(_ context.Context, _ string) (*payment.RemotePayment, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.payment, nil
}

func (f *fakeGateway) VerifySignature(remoteOrderID, remotePaymentID, signature string) bool {
	return payment.VerifySignature(testSecret, remoteOrderID, remotePaymentID, signature)
}

func (f *fakeGateway) KeyID() string { return "rzp_key" }
