package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderType string

const (
	OrderTypeTakeaway OrderType = "takeaway"
	OrderTypeDelivery OrderType = "delivery"
	OrderTypeDineIn   OrderType = "dinein"
)

func ParseOrderType(s string) (OrderType, error) {
	switch t := OrderType(strings.TrimSpace(s)); t {
	case OrderTypeTakeaway, OrderTypeDelivery, OrderTypeDineIn:
		return t, nil
	}
	return "", Validation("Invalid orderType %q.", s)
}

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pendingPayment"
	OrderStatusInProgress     OrderStatus = "inProgress"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusOnTheWay       OrderStatus = "onTheWay"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusFailed         OrderStatus = "failed"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment: {OrderStatusInProgress, OrderStatusFailed},
	OrderStatusInProgress:     {OrderStatusCompleted, OrderStatusFailed},
	OrderStatusCompleted:      {OrderStatusOnTheWay, OrderStatusDelivered},
	OrderStatusOnTheWay:       {OrderStatusDelivered},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusFailed
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(strings.TrimSpace(s))
	if _, ok := orderTransitions[st]; ok || st.IsTerminal() {
		return st, nil
	}
	return "", Validation("Invalid order status %q.", s)
}

const ReservationWindow = 10 * time.Minute

var (
	ProduceSurcharge = decimal.NewFromInt(5)
	DeliveryCharge   = decimal.NewFromInt(50)
)

// OrderLine is a frozen cart entry with the price it was sold at.
type OrderLine struct {
	ItemID    string
	Kind      Kind
	Quantity  int
	UnitPrice decimal.Decimal
}

// Order is immutable once created except for Status, PaymentID and
// GatewayOrderRef, which only move forward.
type Order struct {
	ID                   string
	UserID               string
	VendorID             string
	Type                 OrderType
	CollectorName        string
	CollectorPhone       string
	Address              string
	Lines                []OrderLine
	Total                decimal.Decimal
	Status               OrderStatus
	PaymentID            string
	GatewayOrderRef      string
	ReservationExpiresAt time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PriceOrder computes base price plus the produce surcharge (not for dine-in)
// and the delivery charge.
func PriceOrder(lines []OrderLine, orderType OrderType) decimal.Decimal {
	total := decimal.Zero
	produceUnits := 0
	for _, l := range lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		if l.Kind == KindProduce {
			produceUnits += l.Quantity
		}
	}
	if orderType != OrderTypeDineIn {
		total = total.Add(ProduceSurcharge.Mul(decimal.NewFromInt(int64(produceUnits))))
	}
	if orderType == OrderTypeDelivery {
		total = total.Add(DeliveryCharge)
	}
	return total
}
