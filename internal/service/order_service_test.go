package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront-service/internal/apperr"
	"storefront-service/internal/models"
	"storefront-service/internal/payment"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	paid []int64
}

func (f *fakeNotifier) OrderPaid(_ context.Context, order *models.Order) error {
	f.paid = append(f.paid, order.ID)
	return nil
}

func expectProducts(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery(`FROM products WHERE id IN`).WillReturnRows(rows)
}

func productRow(rows *sqlmock.Rows, id int64, price string, stock int) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, "Product", "", price, stock, "misc", []byte(`[]`), "p.png", false, "", "active", now, now)
}

func TestCreateOrderPersistsAndOpensRemoteOrder(t *testing.T) {
	st, mock := newMockStore(t)
	gw := &fakeGateway{remoteID: "order_R1"}
	svc := NewOrderService(st, gw, nil, "INR")

	expectProducts(mock, productRow(sqlmock.NewRows(productCols), 3, "150.00", 10))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(order_number\), 0\) \+ 1 FROM orders`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO orders`).
		WithArgs(int64(7), int64(1), sqlmock.AnyArg(), models.OrderStatusCreated, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "order_date"}).AddRow(11, time.Now()))
	mock.ExpectExec(`INSERT INTO order_items`).
		WithArgs(int64(11), int64(3), 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE orders SET remote_order_id = \$1 WHERE order_id = \$2`).
		WithArgs("order_R1", int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	resp, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID: 7,
		Items:  []OrderItemRequest{{ProductID: 3, Quantity: 2}},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(11), resp.OrderID)
	assert.Equal(t, int64(1), resp.OrderNumber)
	assert.Equal(t, "order_R1", resp.RemoteOrderID)
	assert.True(t, decimal.RequireFromString("300.00").Equal(resp.Amount))
	assert.Equal(t, int64(30000), resp.AmountMinor)
	assert.Equal(t, "rzp_key", resp.KeyID)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, 2, resp.Items[0].Quantity)

	assert.Equal(t, int64(30000), gw.createReq.Amount)
	assert.Equal(t, "INR", gw.createReq.Currency)
	assert.Equal(t, "order_11", gw.createReq.Receipt)
	assert.Equal(t, map[string]string{"order_id": "11", "user_id": "7"}, gw.createReq.Notes)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderRollsBackWhenGatewayRejects(t *testing.T) {
	st, mock := newMockStore(t)
	gw := &fakeGateway{createErr: errors.New("BAD_REQUEST_ERROR: amount too small")}
	svc := NewOrderService(st, gw, nil, "INR")

	expectProducts(mock, productRow(sqlmock.NewRows(productCols), 3, "150.00", 10))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(order_number\), 0\) \+ 1 FROM orders`).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(4))
	mock.ExpectQuery(`INSERT INTO orders`).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "order_date"}).AddRow(12, time.Now()))
	mock.ExpectExec(`INSERT INTO order_items`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID: 7,
		Items:  []OrderItemRequest{{ProductID: 3, Quantity: 2}},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeDependency))
	assert.Equal(t, "payment gateway rejected order", apperr.As(err).Message())
	assert.NotContains(t, apperr.As(err).Message(), "BAD_REQUEST_ERROR")
	assert.ErrorContains(t, err, "amount too small")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderGatewayTimeout(t *testing.T) {
	st, mock := newMockStore(t)
	gw := &fakeGateway{createErr: payment.ErrTimeout}
	svc := NewOrderService(st, gw, nil, "INR")

	expectProducts(mock, productRow(sqlmock.NewRows(productCols), 3, "150.00", 10))
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE`).WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO orders`).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "order_date"}).AddRow(13, time.Now()))
	mock.ExpectExec(`INSERT INTO order_items`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID: 7,
		Items:  []OrderItemRequest{{ProductID: 3, Quantity: 1}},
	})
	assert.ErrorIs(t, err, payment.ErrTimeout)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderMissingProductNamesIDs(t *testing.T) {
	st, mock := newMockStore(t)
	gw := &fakeGateway{remoteID: "order_R1"}
	svc := NewOrderService(st, gw, nil, "INR")

	expectProducts(mock, productRow(sqlmock.NewRows(productCols), 3, "150.00", 10))

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID: 7,
		Items:  []OrderItemRequest{{ProductID: 3, Quantity: 1}, {ProductID: 99, Quantity: 1}},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
	assert.Equal(t, map[string][]int64{"missing_ids": {99}}, apperr.As(err).Details())
	assert.Zero(t, gw.createReq.Amount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	st, mock := newMockStore(t)
	svc := NewOrderService(st, &fakeGateway{}, nil, "INR")

	expectProducts(mock, productRow(sqlmock.NewRows(productCols), 3, "150.00", 1))

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		UserID: 7,
		Items:  []OrderItemRequest{{ProductID: 3, Quantity: 2}},
	})
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderRejectsEmptyItems(t *testing.T) {
	st, mock := newMockStore(t)
	svc := NewOrderService(st, &fakeGateway{}, nil, "INR")

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{UserID: 7})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeItemsFoldsDuplicates(t *testing.T) {
	items, err := mergeItems([]OrderItemRequest{
		{ProductID: 2, Quantity: 1},
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []OrderItemRequest{{ProductID: 2, Quantity: 4}, {ProductID: 1, Quantity: 2}}, items)

	_, err = mergeItems([]OrderItemRequest{{ProductID: 1, Quantity: 0}})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestPriceLinesRoundsHalfUp(t *testing.T) {
	products := map[int64]*models.Product{
		1: {ID: 1, Name: "A", Price: decimal.RequireFromString("0.335"), Stock: 10},
		2: {ID: 2, Name: "B", Price: decimal.RequireFromString("10.00"), Stock: 10},
	}

	lines, total, err := priceLines([]OrderItemRequest{{ProductID: 1, Quantity: 1}, {ProductID: 2, Quantity: 3}}, products)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
	assert.Equal(t, "30.34", total.StringFixed(2))
}

func TestPriceLinesRejectsZeroTotal(t *testing.T) {
	products := map[int64]*models.Product{1: {ID: 1, Price: decimal.Zero, Stock: 5}}

	_, _, err := priceLines([]OrderItemRequest{{ProductID: 1, Quantity: 1}}, products)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestPriceLinesRejectsTotalBeyondColumnRange(t *testing.T) {
	products := map[int64]*models.Product{1: {ID: 1, Price: decimal.RequireFromString("99999999.99"), Stock: 5}}

	_, _, err := priceLines([]OrderItemRequest{{ProductID: 1, Quantity: 1}}, products)
	require.NoError(t, err)

	_, _, err = priceLines([]OrderItemRequest{{ProductID: 1, Quantity: 2}}, products)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func expectLockedOrder(mock sqlmock.Sqlmock, status string) {
	mock.ExpectQuery(`FROM orders WHERE order_id = \$1 FOR UPDATE`).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(orderCols).AddRow(
			11, 7, 1, time.Now(), nil, "300.00", status, "order_R1", nil, nil))
}

func expectItemDetails(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`FROM order_items oi`).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(itemDetailCols).AddRow(11, 3, 2, "150.00", "Product", "p.png"))
}

func confirmRequest() *ConfirmPaymentRequest {
	return &ConfirmPaymentRequest{
		OrderID:         11,
		RemoteOrderID:   "order_R1",
		RemotePaymentID: "pay_1",
		Signature:       payment.ComputeSignature(testSecret, "order_R1", "pay_1"),
	}
}

func TestConfirmPaymentMarksOrderPaid(t *testing.T) {
	st, mock := newMockStore(t)
	gw := &fakeGateway{payment: &payment.RemotePayment{ID: "pay_1", OrderID: "order_R1", Status: payment.StatusCaptured}}
	notifier := &fakeNotifier{}
	svc := NewOrderService(st, gw, notifier, "INR")

	mock.ExpectBegin()
	expectLockedOrder(mock, models.OrderStatusCreated)
	mock.ExpectExec(`UPDATE orders SET status = \$1, remote_payment_id = \$2, payment_date = \$3`).
		WithArgs(models.OrderStatusPaid, "pay_1", sqlmock.AnyArg(), int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM order_items WHERE order_id = \$1`).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(itemCols).AddRow(11, 3, 2, "150.00"))
	mock.ExpectQuery(`UPDATE products SET stock = GREATEST`).
		WithArgs(2, int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(10))
	expectItemDetails(mock)
	mock.ExpectCommit()

	detail, err := svc.ConfirmPayment(context.Background(), confirmRequest(), nil)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPaid, detail.Status)
	require.NotNil(t, detail.PaymentDate)
	assert.Equal(t, "pay_1", *detail.RemotePaymentID)
	assert.Len(t, detail.Items, 1)
	assert.Equal(t, []int64{11}, notifier.paid)
	assert.Equal(t, 1, gw.fetchCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmPaymentIsIdempotentForPaidOrder(t *testing.T) {
	st, mock := newMockStore(t)
	gw := &fakeGateway{}
	notifier := &fakeNotifier{}
	svc := NewOrderService(st, gw, notifier, "INR")

	mock.ExpectBegin()
	expectLockedOrder(mock, models.OrderStatusPaid)
	expectItemDetails(mock)
	mock.ExpectCommit()

	detail, err := svc.ConfirmPayment(context.Background(), confirmRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, detail.Status)
	assert.Zero(t, gw.fetchCalls)
	assert.Empty(t, notifier.paid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmPaymentRejectsTamperedSignature(t *testing.T) {
	st, mock := newMockStore(t)
	gw := &fakeGateway{}
	svc := NewOrderService(st, gw, nil, "INR")

	req := confirmRequest()
	req.Signature = payment.ComputeSignature(testSecret, "order_R1", "pay_2")

	_, err := svc.ConfirmPayment(context.Background(), req, nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
	assert.Equal(t, "invalid signature", apperr.As(err).Message())
	assert.Zero(t, gw.fetchCalls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmPaymentRejectsForeignRemoteOrder(t *testing.T) {
	st, mock := newMockStore(t)
	svc := NewOrderService(st, &fakeGateway{}, nil, "INR")

	req := confirmRequest()
	req.RemoteOrderID = "order_OTHER"
	req.Signature = payment.ComputeSignature(testSecret, "order_OTHER", "pay_1")

	mock.ExpectBegin()
	expectLockedOrder(mock, models.OrderStatusCreated)
	mock.ExpectRollback()

	_, err := svc.ConfirmPayment(context.Background(), req, nil)
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmPaymentChecksCaller(t *testing.T) {
	st, mock := newMockStore(t)
	svc := NewOrderService(st, &fakeGateway{}, nil, "INR")

	mock.ExpectBegin()
	expectLockedOrder(mock, models.OrderStatusCreated)
	mock.ExpectRollback()

	other := int64(8)
	_, err := svc.ConfirmPayment(context.Background(), confirmRequest(), &other)
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmPaymentGatewayUnavailableLeavesOrderCreated(t *testing.T) {
	st, mock := newMockStore(t)
	svc := NewOrderService(st, &fakeGateway{fetchErr: errors.New("connection reset")}, nil, "INR")

	mock.ExpectBegin()
	expectLockedOrder(mock, models.OrderStatusCreated)
	mock.ExpectRollback()

	_, err := svc.ConfirmPayment(context.Background(), confirmRequest(), nil)
	assert.True(t, apperr.Is(err, apperr.CodeDependency))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmPaymentNotCaptured(t *testing.T) {
	st, mock := newMockStore(t)
	gw := &fakeGateway{payment: &payment.RemotePayment{ID: "pay_1", OrderID: "order_R1", Status: payment.StatusAuthorized}}
	svc := NewOrderService(st, gw, nil, "INR")

	mock.ExpectBegin()
	expectLockedOrder(mock, models.OrderStatusCreated)
	mock.ExpectRollback()

	_, err := svc.ConfirmPayment(context.Background(), confirmRequest(), nil)
	assert.True(t, apperr.Is(err, apperr.CodePaymentFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmPaymentGatewayReportsFailure(t *testing.T) {
	st, mock := newMockStore(t)
	gw := &fakeGateway{payment: &payment.RemotePayment{ID: "pay_1", OrderID: "order_R1", Status: payment.StatusFailed}}
	svc := NewOrderService(st, gw, nil, "INR")

	mock.ExpectBegin()
	expectLockedOrder(mock, models.OrderStatusCreated)
	mock.ExpectExec(`UPDATE orders SET status = \$1, remote_payment_id = \$2`).
		WithArgs(models.OrderStatusFailed, "pay_1", int64(11), models.OrderStatusPaid).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectItemDetails(mock)
	mock.ExpectCommit()

	_, err := svc.ConfirmPayment(context.Background(), confirmRequest(), nil)
	assert.True(t, apperr.Is(err, apperr.CodePaymentFailed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOrdersNestsItems(t *testing.T) {
	st, mock := newMockStore(t)
	svc := NewOrderService(st, &fakeGateway{}, nil, "INR")
	now := time.Now()

	mock.ExpectQuery(`FROM orders WHERE user_id = \$1 ORDER BY order_date DESC`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow(12, 7, 2, now, nil, "50.00", "Created", "order_R2", nil, nil).
			AddRow(11, 7, 1, now.Add(-time.Hour), now, "300.00", "Paid", "order_R1", "pay_1", nil))
	mock.ExpectQuery(`FROM order_items oi`).
		WithArgs(int64(12), int64(11)).
		WillReturnRows(sqlmock.NewRows(itemDetailCols).AddRow(11, 3, 2, "150.00", "Product", "p.png"))

	orders, err := svc.ListOrders(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, int64(12), orders[0].ID)
	assert.Empty(t, orders[0].Items)
	assert.NotNil(t, orders[0].Items)
	assert.Len(t, orders[1].Items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	svc := NewOrderService(st, &fakeGateway{}, nil, "INR")

	mock.ExpectQuery(`FROM orders WHERE order_id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(orderCols))

	_, err := svc.GetOrder(context.Background(), 5, nil)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}
