package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/and161185/imagify/internal/errs"
	"github.com/and161185/imagify/internal/model"
)

const (
	PaymentSuccessWebhook     = "PAYMENT_SUCCESS_WEBHOOK"
	PaymentFailedWebhook      = "PAYMENT_FAILED_WEBHOOK"
	PaymentUserDroppedWebhook = "PAYMENT_USER_DROPPED_WEBHOOK"
)

// HandleWebhook routes a gateway notification into the same settlement path
// as client verification. The gateway is queried again before crediting, so
// the payload itself is never trusted for the payment status.
func (s *Service) HandleWebhook(ctx context.Context, event model.WebhookEvent) (model.Settlement, error) {
	data := bytes.TrimSpace(event.Data)
	if event.Type == "" || len(data) == 0 || data[0] != '{' {
		return model.Settlement{}, errs.ErrMalformedWebhook
	}

	if event.Type != PaymentSuccessWebhook {
		s.logger.Infow("webhook acknowledged", "type", event.Type)
		return model.Settlement{}, nil
	}

	var payment model.WebhookPaymentData
	if err := json.Unmarshal(data, &payment); err != nil {
		return model.Settlement{}, errs.ErrMalformedWebhook
	}
	orderID := payment.ResolvedOrderID()
	if orderID == "" {
		return model.Settlement{}, errs.ErrMalformedWebhook
	}

	settlement, err := s.VerifyAndSettle(ctx, orderID)
	if errors.Is(err, errs.ErrOrderNotFound) {
		s.logger.Warnw("webhook for unknown order", "order_id", orderID)
		return model.Settlement{OrderID: orderID}, nil
	}
	if err != nil {
		return model.Settlement{}, err
	}

	s.logger.Infow("webhook processed", "order_id", orderID, "paid", settlement.Paid, "credited", settlement.Credited)
	return settlement, nil
}
