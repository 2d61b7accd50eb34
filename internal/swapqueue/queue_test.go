package swapqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/walltrack/engine/internal/apperr"
	"github.com/walltrack/engine/pkg/models"
)

type recordingGateway struct {
	mu      sync.Mutex
	orderIDs []string
}

func (g *recordingGateway) Execute(ctx context.Context, order models.Order) (QuoteResult, error) {
	g.mu.Lock()
	g.orderIDs = append(g.orderIDs, order.ID)
	g.mu.Unlock()
	return QuoteResult{TxSignature: "tx-" + order.ID, FillPrice: decimal.Zero}, nil
}

func TestEnqueue_BreakerBlocksNormalOnly(t *testing.T) {
	q := New(&recordingGateway{}, time.Millisecond, func() bool { return true }, nil, zerolog.Nop())

	err := q.Enqueue(&models.Order{ID: "entry", Priority: models.PriorityNormal, MaxRetries: 3})
	if err != apperr.ErrBreakerBlocked {
		t.Fatalf("expected breaker_blocked_entry for NORMAL, got %v", err)
	}

	for _, p := range []models.Priority{models.PriorityCritical, models.PriorityUrgent, models.PriorityLow} {
		if err := q.Enqueue(&models.Order{ID: p.String(), Priority: p, MaxRetries: 3}); err != nil {
			t.Fatalf("expected %s to pass while breaker active, got %v", p, err)
		}
	}
}

func TestPriorityOrdering(t *testing.T) {
	gw := &recordingGateway{}
	var mu sync.Mutex
	var executed []string
	q := New(gw, time.Millisecond, func() bool { return false }, func(o models.Order) {
		mu.Lock()
		executed = append(executed, o.ID)
		mu.Unlock()
	}, zerolog.Nop())

	// Enqueue in reverse priority order.
	q.Enqueue(&models.Order{ID: "low", Priority: models.PriorityLow, MaxRetries: 1})
	q.Enqueue(&models.Order{ID: "normal", Priority: models.PriorityNormal, MaxRetries: 1})
	q.Enqueue(&models.Order{ID: "urgent", Priority: models.PriorityUrgent, MaxRetries: 1})
	q.Enqueue(&models.Order{ID: "critical", Priority: models.PriorityCritical, MaxRetries: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go q.Run(ctx)

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(executed) != 4 {
		t.Fatalf("expected all 4 orders executed, got %v", executed)
	}
	want := []string{"critical", "urgent", "normal", "low"}
	for i, w := range want {
		if executed[i] != w {
			t.Fatalf("expected execution order %v, got %v", want, executed)
		}
	}
}

func TestFIFOWithinPriority(t *testing.T) {
	gw := &recordingGateway{}
	var mu sync.Mutex
	var executed []string
	q := New(gw, time.Millisecond, func() bool { return false }, func(o models.Order) {
		mu.Lock()
		executed = append(executed, o.ID)
		mu.Unlock()
	}, zerolog.Nop())

	q.Enqueue(&models.Order{ID: "first", Priority: models.PriorityNormal, MaxRetries: 1})
	q.Enqueue(&models.Order{ID: "second", Priority: models.PriorityNormal, MaxRetries: 1})
	q.Enqueue(&models.Order{ID: "third", Priority: models.PriorityNormal, MaxRetries: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go q.Run(ctx)

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"first", "second", "third"}
	if len(executed) != 3 {
		t.Fatalf("expected 3 executed, got %v", executed)
	}
	for i, w := range want {
		if executed[i] != w {
			t.Fatalf("expected FIFO order %v, got %v", want, executed)
		}
	}
}
