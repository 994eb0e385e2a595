package models

import (
	"math"
	"time"
)

// OrderStatus is the payment state of a one-time order.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
)

// Product is a line item of an order or a payment-link request.
type Product struct {
	Name       string  `json:"name,omitempty" firestore:"name,omitempty"`
	Price      float64 `json:"price" firestore:"price"`
	Quantity   int     `json:"quantity" firestore:"quantity"`
	Subaccount string  `json:"subaccount,omitempty" firestore:"subaccount,omitempty"`
}

// MinorUnits is the line total in the smallest currency unit.
func (p Product) MinorUnits() int64 {
	qty := p.Quantity
	if qty <= 0 {
		qty = 1
	}
	return ToMinorUnits(p.Price * float64(qty))
}

// TransactionData is the provider metadata stored on a settled order.
type TransactionData struct {
	Provider        string `json:"provider" firestore:"provider"`
	ID              string `json:"id" firestore:"id"`
	Amount          int64  `json:"amount" firestore:"amount"`
	Currency        string `json:"currency,omitempty" firestore:"currency,omitempty"`
	Channel         string `json:"channel,omitempty" firestore:"channel,omitempty"`
	GatewayResponse string `json:"gatewayResponse,omitempty" firestore:"gatewayResponse,omitempty"`
}

// Order is a one-time purchase. The document ID doubles as the provider transaction reference.
type Order struct {
	Reference       string           `json:"reference" firestore:"-"`
	TotalAmount     float64          `json:"totalAmount" firestore:"totalPaidAmount"`
	Status          OrderStatus      `json:"status" firestore:"status"`
	Products        []Product        `json:"products,omitempty" firestore:"products,omitempty"`
	UserID          string           `json:"userId,omitempty" firestore:"userId,omitempty"`
	PaidAt          time.Time        `json:"paidAt,omitempty" firestore:"paidAt,omitempty"`
	TransactionData *TransactionData `json:"transactionData,omitempty" firestore:"transactionData,omitempty"`
}

// TotalMinorUnits is the stored total converted to the smallest currency unit.
func (o *Order) TotalMinorUnits() int64 {
	return ToMinorUnits(o.TotalAmount)
}

// IsPaid reports whether the order has been settled.
func (o *Order) IsPaid() bool {
	return o.Status == OrderStatusPaid
}

// ChargeEvent is a provider-neutral charge outcome for a one-time order.
type ChargeEvent struct {
	Reference     string
	Amount        int64
	Succeeded     bool
	CustomerEmail string
	Transaction   TransactionData
}

// ToMinorUnits converts decimal currency units to cents, rounding half away from zero.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
