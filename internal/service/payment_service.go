package service

import (
	"context"

	"enrollment-service/internal/gateway"
	"enrollment-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultRefundReason = "Refund requested by admin"

// PaymentService exposes administrative gateway operations
type PaymentService struct {
	gateway PaymentGateway
	logger  *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(gateway PaymentGateway) *PaymentService {
	return &PaymentService{
		gateway: gateway,
		logger:  util.GetLogger(),
	}
}

// GetPayment fetches a payment from the gateway
func (ps *PaymentService) GetPayment(ctx context.Context, paymentID string) (*gateway.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.GetPayment")
	defer span.End()

	if paymentID == "" {
		return nil, newError(KindValidation, "Payment ID is required", nil)
	}

	payment, err := ps.gateway.FetchPayment(ctx, paymentID)
	if err != nil {
		util.FailSpan(span, err)
		ps.logger.Error("Failed to fetch payment", zap.String("payment_id", paymentID), zap.Error(err))
		return nil, upstreamError("Failed to fetch payment details", err)
	}
	return payment, nil
}

// RefundRequest refunds a payment. Amount is in major units; zero refunds
// the whole payment.
type RefundRequest struct {
	PaymentID string  `json:"paymentId"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason"`
}

// Refund passes a refund through to the gateway. Enrollment status is left
// untouched.
func (ps *PaymentService) Refund(ctx context.Context, req *RefundRequest) (*gateway.Refund, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Refund")
	defer span.End()

	if req.PaymentID == "" {
		return nil, newError(KindValidation, "Payment ID is required", nil)
	}
	if req.Amount < 0 {
		return nil, newError(KindValidation, "Refund amount must not be negative", nil)
	}

	reason := req.Reason
	if reason == "" {
		reason = defaultRefundReason
	}

	refund, err := ps.gateway.RefundPayment(ctx, req.PaymentID, &gateway.RefundRequest{
		Amount: toMinorUnits(decimal.NewFromFloat(req.Amount)),
		Notes:  gateway.Notes{"reason": reason},
	})
	if err != nil {
		util.FailSpan(span, err)
		util.RefundsTotal.WithLabelValues("failed").Inc()
		ps.logger.Error("Refund failed", zap.String("payment_id", req.PaymentID), zap.Error(err))
		return nil, upstreamError("Failed to process refund", err)
	}

	util.RefundsTotal.WithLabelValues("processed").Inc()
	ps.logger.Info("Refund processed",
		zap.String("payment_id", req.PaymentID),
		zap.String("refund_id", refund.ID),
		zap.Int64("amount", refund.Amount))
	return refund, nil
}
