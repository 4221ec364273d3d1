package model

import "encoding/json"

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type PayRequest struct {
	PlanID string `json:"planId"`
}

// WebhookEvent is the envelope the gateway posts to the notify URL.
// Data stays raw until the type is known.
type WebhookEvent struct {
	Type      string          `json:"type"`
	EventTime string          `json:"event_time,omitempty"`
	Data      json.RawMessage `json:"data"`
}

type WebhookPaymentData struct {
	OrderID string `json:"order_id"`
	Order   struct {
		OrderID     string  `json:"order_id"`
		OrderAmount float64 `json:"order_amount"`
	} `json:"order"`
	Payment struct {
		CfPaymentID   json.Number `json:"cf_payment_id"`
		PaymentStatus string      `json:"payment_status"`
	} `json:"payment"`
}

// ResolvedOrderID prefers the nested order object and falls back to the flat
// order_id some payload versions carry.
func (d WebhookPaymentData) ResolvedOrderID() string {
	if d.Order.OrderID != "" {
		return d.Order.OrderID
	}
	return d.OrderID
}
