package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Priority is the swap queue's total order: CRITICAL < URGENT < NORMAL < LOW.
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityUrgent   Priority = 2
	PriorityNormal   Priority = 3
	PriorityLow      Priority = 4
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityUrgent:
		return "urgent"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// OrderType identifies what triggered the order.
type OrderType string

const (
	OrderEntry         OrderType = "entry"
	OrderExitStopLoss  OrderType = "exit_stop_loss"
	OrderExitTrailing  OrderType = "exit_trailing"
	OrderExitScaling   OrderType = "exit_scaling"
	OrderExitMirror    OrderType = "exit_mirror"
	OrderExitManual    OrderType = "exit_manual"
)

// OrderStatus is the lifecycle of a single Order, exclusive-write by the
// swap queue.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderSubmitted OrderStatus = "submitted"
	OrderExecuted  OrderStatus = "executed"
	OrderFailed    OrderStatus = "failed"
	OrderCancelled OrderStatus = "cancelled"
)

// Order is produced by the swap queue. Idempotency for live orders: TxSignature.
// Orders never mutate after reaching a terminal status.
type Order struct {
	ID            string          `json:"id"`
	PositionRef   string          `json:"positionRef,omitempty"`
	Type          OrderType       `json:"type"`
	Mode          PositionMode    `json:"mode"`
	Priority      Priority        `json:"priority"`
	Wallet        string          `json:"wallet"`
	Token         string          `json:"token"`
	AmountToken   decimal.Decimal `json:"amountToken"`
	Fraction      decimal.Decimal `json:"fraction"` // fraction of entry_amount for exits, 1.0 for full exit/entry
	RequestedAt   time.Time       `json:"requestedAt"`
	SubmittedAt   *time.Time      `json:"submittedAt,omitempty"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	Status        OrderStatus     `json:"status"`
	RetryCount    int             `json:"retryCount"`
	MaxRetries    int             `json:"maxRetries"`
	Error         string          `json:"error,omitempty"`
	TxSignature   string          `json:"txSignature,omitempty"`
	FillPrice     decimal.Decimal `json:"fillPrice,omitempty"`
	LevelKey      string          `json:"levelKey,omitempty"` // scaling-out level identifier, empty for other order types
}

// Terminal reports whether the order has reached a status that never mutates
// again.
func (o Order) Terminal() bool {
	return o.Status == OrderExecuted || o.Status == OrderFailed || o.Status == OrderCancelled
}

func (o Order) RetriesExhausted() bool {
	return o.RetryCount >= o.MaxRetries
}

// PriorityFor assigns the fixed priority for each order type:
// mirror-exit = CRITICAL; stop-loss/trailing-stop = URGENT;
// entry = NORMAL; scaling-out = LOW.
func PriorityFor(t OrderType) Priority {
	switch t {
	case OrderExitMirror:
		return PriorityCritical
	case OrderExitStopLoss, OrderExitTrailing:
		return PriorityUrgent
	case OrderExitScaling:
		return PriorityLow
	case OrderEntry:
		return PriorityNormal
	default:
		return PriorityNormal
	}
}
