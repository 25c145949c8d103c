package payment

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"storefront-service/internal/util"

	razorpay "github.com/razorpay/razorpay-go"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// razorpayAPI is the subset of the SDK client used here.
type razorpayAPI interface {
	CreateOrder(data map[string]interface{}) (map[string]interface{}, error)
	FetchPayment(paymentID string) (map[string]interface{}, error)
}

type sdkClient struct {
	client *razorpay.Client
}

func (c sdkClient) CreateOrder(data map[string]interface{}) (map[string]interface{}, error) {
	return c.client.Order.Create(data, nil)
}

func (c sdkClient) FetchPayment(paymentID string) (map[string]interface{}, error) {
	return c.client.Payment.Fetch(paymentID, nil, nil)
}

// Razorpay is the Gateway backed by the Razorpay orders and payments API.
type Razorpay struct {
	api       razorpayAPI
	keyID     string
	keySecret string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewRazorpay creates a gateway client. Every remote call is bounded by timeout.
func NewRazorpay(keyID, keySecret string, timeout time.Duration) *Razorpay {
	return newRazorpay(sdkClient{client: razorpay.NewClient(keyID, keySecret)}, keyID, keySecret, timeout)
}

func newRazorpay(api razorpayAPI, keyID, keySecret string, timeout time.Duration) *Razorpay {
	return &Razorpay{
		api:       api,
		keyID:     keyID,
		keySecret: keySecret,
		timeout:   timeout,
		logger:    util.GetLogger(),
	}
}

func (r *Razorpay) KeyID() string {
	return r.keyID
}

// CreateOrder registers an auto-capture order with the gateway.
func (r *Razorpay) CreateOrder(ctx context.Context, req OrderRequest) (*RemoteOrder, error) {
	ctx, span := util.StartSpan(ctx, "Razorpay.CreateOrder",
		attribute.String("receipt", req.Receipt),
		attribute.Int64("amount", req.Amount))
	defer span.End()

	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":          req.Amount,
		"currency":        req.Currency,
		"receipt":         req.Receipt,
		"payment_capture": 1,
		"notes":           notes,
	}

	body, err := r.call(ctx, "create_order", func() (map[string]interface{}, error) {
		return r.api.CreateOrder(data)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	order := &RemoteOrder{
		ID:       stringField(body, "id"),
		Amount:   intField(body, "amount"),
		Currency: stringField(body, "currency"),
		Status:   stringField(body, "status"),
	}
	if order.ID == "" {
		err := fmt.Errorf("gateway order response missing id")
		util.RecordError(span, err)
		return nil, err
	}

	r.logger.Info("Remote order created",
		zap.String("remote_order_id", order.ID),
		zap.String("receipt", req.Receipt))
	return order, nil
}

// FetchPayment reads the authoritative state of a payment.
func (r *Razorpay) FetchPayment(ctx context.Context, paymentID string) (*RemotePayment, error) {
	ctx, span := util.StartSpan(ctx, "Razorpay.FetchPayment", attribute.String("payment_id", paymentID))
	defer span.End()

	body, err := r.call(ctx, "fetch_payment", func() (map[string]interface{}, error) {
		return r.api.FetchPayment(paymentID)
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	return &RemotePayment{
		ID:      stringField(body, "id"),
		OrderID: stringField(body, "order_id"),
		Status:  stringField(body, "status"),
		Amount:  intField(body, "amount"),
	}, nil
}

func (r *Razorpay) VerifySignature(remoteOrderID, remotePaymentID, signature string) bool {
	return VerifySignature(r.keySecret, remoteOrderID, remotePaymentID, signature)
}

type callResult struct {
	body map[string]interface{}
	err  error
}

// call runs fn with the gateway timeout. The SDK takes no context, so an
// abandoned call finishes in the background and its result is dropped.
func (r *Razorpay) call(ctx context.Context, operation string, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	start := time.Now()
	defer func() {
		util.PaymentGatewayLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		body, err := fn()
		done <- callResult{body: body, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			r.logger.Error("Gateway call failed", zap.String("operation", operation), zap.Error(res.err))
			return nil, fmt.Errorf("%s: %w", operation, res.err)
		}
		return res.body, nil
	case <-ctx.Done():
		r.logger.Warn("Gateway call timed out", zap.String("operation", operation), zap.Duration("timeout", r.timeout))
		return nil, fmt.Errorf("%s: %w", operation, ErrTimeout)
	}
}

func stringField(body map[string]interface{}, key string) string {
	switch v := body[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// intField reads a JSON number, which the SDK decodes as float64.
func intField(body map[string]interface{}, key string) int64 {
	switch v := body[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}
