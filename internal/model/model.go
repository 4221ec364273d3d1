package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

// Only Created -> Paid is ever applied. Failed and Expired are reserved.
const (
	Created OrderStatus = "CREATED"
	Paid    OrderStatus = "PAID"
	Failed  OrderStatus = "FAILED"
	Expired OrderStatus = "EXPIRED"
)

type Plan struct {
	ID          string          `json:"id" yaml:"id"`
	Price       decimal.Decimal `json:"price" yaml:"price"`
	Credits     int64           `json:"credits" yaml:"credits"`
	Description string          `json:"desc" yaml:"desc"`
}

type User struct {
	ID            int
	Name          string
	Email         string
	Phone         string
	CreditBalance int64
	CreatedAt     time.Time
}

type Order struct {
	ID        string
	UserID    int
	PlanID    string
	Amount    decimal.Decimal
	Currency  string
	Status    OrderStatus
	Credits   int64 // recorded when the order is settled
	PaidAt    *time.Time
	CreatedAt time.Time
}

// Checkout is what the client needs to open the hosted checkout widget.
type Checkout struct {
	OrderID          string
	PaymentSessionID string
	PaymentLink      string
	Amount           decimal.Decimal
	Currency         string
}

// Settlement describes the outcome of a verification attempt.
// Paid without Credited means the order had already been settled, either
// earlier or by a concurrent attempt that won the status transition.
type Settlement struct {
	OrderID       string
	Status        OrderStatus
	Paid          bool
	Credited      bool
	Credits       int64
	Balance       int64
	GatewayStatus string
}
