package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/and161185/imagify/internal/errs"
	"github.com/shopspring/decimal"
)

const (
	SandboxURL    = "https://sandbox.cashfree.com/pg"
	ProductionURL = "https://api.cashfree.com/pg"
	APIVersion    = "2022-09-01"
)

type OrderStatus string

const (
	StatusActive     OrderStatus = "ACTIVE"
	StatusPaid       OrderStatus = "PAID"
	StatusExpired    OrderStatus = "EXPIRED"
	StatusTerminated OrderStatus = "TERMINATED"
	// StatusNotFound is reported for ids the gateway has never seen, e.g. an
	// order whose creation call failed.
	StatusNotFound OrderStatus = "NOT_FOUND"
)

type Customer struct {
	ID    string
	Email string
	Phone string
	Name  string
}

type SessionRequest struct {
	OrderID   string
	Amount    decimal.Decimal
	Currency  string
	Customer  Customer
	ReturnURL string
	NotifyURL string
}

type Session struct {
	CfOrderID        string
	PaymentSessionID string
	PaymentLink      string
	Status           OrderStatus
}

type OrderState struct {
	OrderID string
	Status  OrderStatus
	Raw     json.RawMessage
}

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	client       *http.Client
}

func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = SandboxURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(base, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		client:       &http.Client{Timeout: timeout},
	}
}

type createOrderRequest struct {
	OrderAmount     float64         `json:"order_amount"`
	OrderCurrency   string          `json:"order_currency"`
	OrderID         string          `json:"order_id"`
	CustomerDetails customerDetails `json:"customer_details"`
	OrderMeta       orderMeta       `json:"order_meta"`
}

type customerDetails struct {
	CustomerID    string `json:"customer_id"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone"`
	CustomerName  string `json:"customer_name,omitempty"`
}

type orderMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
	NotifyURL string `json:"notify_url,omitempty"`
}

type orderResponse struct {
	CfOrderID        json.Number `json:"cf_order_id"`
	OrderID          string      `json:"order_id"`
	OrderStatus      string      `json:"order_status"`
	PaymentSessionID string      `json:"payment_session_id"`
	PaymentLink      string      `json:"payment_link"`
}

type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
}

func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	body := createOrderRequest{
		OrderAmount:   req.Amount.InexactFloat64(),
		OrderCurrency: req.Currency,
		OrderID:       req.OrderID,
		CustomerDetails: customerDetails{
			CustomerID:    req.Customer.ID,
			CustomerEmail: req.Customer.Email,
			CustomerPhone: req.Customer.Phone,
			CustomerName:  req.Customer.Name,
		},
		OrderMeta: orderMeta{
			ReturnURL: req.ReturnURL,
			NotifyURL: req.NotifyURL,
		},
	}

	var resp orderResponse
	if _, err := c.do(ctx, http.MethodPost, "/orders", body, &resp); err != nil {
		return Session{}, fmt.Errorf("create gateway order %s: %w", req.OrderID, err)
	}
	if resp.PaymentSessionID == "" {
		return Session{}, fmt.Errorf("create gateway order %s: empty payment session: %w", req.OrderID, errs.ErrGatewayRejected)
	}

	return Session{
		CfOrderID:        resp.CfOrderID.String(),
		PaymentSessionID: resp.PaymentSessionID,
		PaymentLink:      resp.PaymentLink,
		Status:           OrderStatus(resp.OrderStatus),
	}, nil
}

func (c *Client) GetStatus(ctx context.Context, orderID string) (OrderState, error) {
	var resp orderResponse
	raw, err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &resp)
	if err != nil {
		var statusErr *statusError
		if errors.As(err, &statusErr) && statusErr.code == http.StatusNotFound {
			return OrderState{OrderID: orderID, Status: StatusNotFound, Raw: raw}, nil
		}
		return OrderState{}, fmt.Errorf("get gateway order %s: %w", orderID, err)
	}

	return OrderState{
		OrderID: orderID,
		Status:  OrderStatus(resp.OrderStatus),
		Raw:     raw,
	}, nil
}

type statusError struct {
	code    int
	message string
	kind    error
}

func (e *statusError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("gateway http status %d: %s", e.code, e.message)
	}
	return fmt.Sprintf("gateway http status %d", e.code)
}

func (e *statusError) Unwrap() error {
	return e.kind
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) (json.RawMessage, error) {
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-version", APIVersion)
	req.Header.Set("x-client-id", c.clientID)
	req.Header.Set("x-client-secret", c.clientSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %v: %w", err, errs.ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %v: %w", err, errs.ErrGatewayUnavailable)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return raw, &statusError{code: resp.StatusCode, message: errorMessage(raw), kind: errs.ErrGatewayUnavailable}
	default:
		return raw, &statusError{code: resp.StatusCode, message: errorMessage(raw), kind: errs.ErrGatewayRejected}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return raw, fmt.Errorf("decode response: %v: %w", err, errs.ErrGatewayRejected)
	}
	return raw, nil
}

func errorMessage(raw []byte) string {
	var e errorResponse
	if err := json.Unmarshal(raw, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(raw))
}
