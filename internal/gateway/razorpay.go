package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"enrollment-service/config"
	"enrollment-service/internal/util"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client talks to the Razorpay REST API with HTTP basic auth.
type Client struct {
	http   *resty.Client
	keyID  string
	logger *zap.Logger
}

// NewClient builds a Razorpay client from explicit credentials
func NewClient(cfg config.PaymentConfig) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetBasicAuth(cfg.KeyID, cfg.KeySecret).
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(300*time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// orders and refunds are not idempotent; only GETs are retried
			if r == nil || r.Request == nil || r.Request.Method != resty.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		keyID:  cfg.KeyID,
		logger: util.GetLogger(),
	}
}

// KeyID is the public key the checkout widget is opened with
func (c *Client) KeyID() string {
	return c.keyID
}

// CreateOrder creates a remote order
func (c *Client) CreateOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	ctx, span := util.StartSpan(ctx, "Razorpay.CreateOrder")
	defer span.End()

	var order Order
	if err := c.do(ctx, "create_order", resty.MethodPost, "/orders", req, &order); err != nil {
		util.FailSpan(span, err)
		return nil, err
	}

	c.logger.Info("Razorpay order created",
		zap.String("order_id", order.ID),
		zap.Int64("amount", order.Amount),
		zap.String("currency", order.Currency))
	return &order, nil
}

// FetchOrder retrieves an order by id
func (c *Client) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	ctx, span := util.StartSpan(ctx, "Razorpay.FetchOrder")
	defer span.End()

	var order Order
	path := "/orders/" + url.PathEscape(orderID)
	if err := c.do(ctx, "fetch_order", resty.MethodGet, path, nil, &order); err != nil {
		util.FailSpan(span, err)
		return nil, err
	}
	return &order, nil
}

// FetchPayment retrieves a payment by id
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*Payment, error) {
	ctx, span := util.StartSpan(ctx, "Razorpay.FetchPayment")
	defer span.End()

	var payment Payment
	path := "/payments/" + url.PathEscape(paymentID)
	if err := c.do(ctx, "fetch_payment", resty.MethodGet, path, nil, &payment); err != nil {
		util.FailSpan(span, err)
		return nil, err
	}
	return &payment, nil
}

// RefundPayment refunds a captured payment
func (c *Client) RefundPayment(ctx context.Context, paymentID string, req *RefundRequest) (*Refund, error) {
	ctx, span := util.StartSpan(ctx, "Razorpay.RefundPayment")
	defer span.End()

	var refund Refund
	path := "/payments/" + url.PathEscape(paymentID) + "/refund"
	if err := c.do(ctx, "refund_payment", resty.MethodPost, path, req, &refund); err != nil {
		util.FailSpan(span, err)
		return nil, err
	}

	c.logger.Info("Razorpay refund created",
		zap.String("payment_id", paymentID),
		zap.String("refund_id", refund.ID),
		zap.Int64("amount", refund.Amount))
	return &refund, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, result interface{}) error {
	start := time.Now()
	var apiErr errorEnvelope

	req := c.http.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&apiErr)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		util.GatewayRequestLatency.WithLabelValues(op, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("razorpay %s request failed: %w", op, err)
	}

	util.GatewayRequestLatency.WithLabelValues(op, strconv.Itoa(resp.StatusCode())).Observe(time.Since(start).Seconds())

	if resp.IsError() {
		gwErr := &Error{
			StatusCode:  resp.StatusCode(),
			Code:        apiErr.Error.Code,
			Description: apiErr.Error.Description,
		}
		c.logger.Warn("Razorpay request rejected",
			zap.String("operation", op),
			zap.Int("status", gwErr.StatusCode),
			zap.String("code", gwErr.Code),
			zap.String("description", gwErr.Description))
		return gwErr
	}
	return nil
}
