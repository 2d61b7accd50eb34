package swapqueue

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/walltrack/engine/internal/apperr"
	"github.com/walltrack/engine/pkg/models"
)

// Queue is the single process-wide priority queue. Exactly one worker
// goroutine dequeues and executes.
type Queue struct {
	mu sync.Mutex
	h  priorityHeap
	wake chan struct{}

	limiter *rate.Limiter
	gateway Gateway

	breakerActive func() bool
	onOrderUpdate func(models.Order)

	staleness atomic.Int64 // seconds the oldest queued item has waited

	log zerolog.Logger
}

func New(gateway Gateway, minSpacing time.Duration, breakerActive func() bool, onOrderUpdate func(models.Order), log zerolog.Logger) *Queue {
	q := &Queue{
		h:             make(priorityHeap, 0),
		wake:          make(chan struct{}, 1),
		limiter:       rate.NewLimiter(rate.Every(minSpacing), 1),
		gateway:       gateway,
		breakerActive: breakerActive,
		onOrderUpdate: onOrderUpdate,
		log:           log.With().Str("component", "swapqueue").Logger(),
	}
	heap.Init(&q.h)
	return q
}

// Enqueue adds an order. If the breaker is active, NORMAL (entry) items are
// rejected with breaker_blocked_entry; every other priority passes through
// so exits are never blocked by an active breaker.
func (q *Queue) Enqueue(order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Status == "" {
		order.Status = models.OrderPending
	}

	if order.Priority == models.PriorityNormal && q.breakerActive != nil && q.breakerActive() {
		q.log.Info().Str("order", order.ID).Msg("entry rejected: breaker active")
		return apperr.ErrBreakerBlocked
	}

	q.mu.Lock()
	heap.Push(&q.h, &item{order: order, enqueuedAt: time.Now()})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run dequeues and executes until ctx is cancelled, then drains only
// CRITICAL/URGENT items within shutdownBudget before returning; the rest
// stay in the heap, readable through Remaining.
func (q *Queue) Run(ctx context.Context) {
	for {
		it, ok := q.popBlocking(ctx)
		if !ok {
			q.drainOnShutdown()
			return
		}
		q.execute(ctx, it)
	}
}

func (q *Queue) popBlocking(ctx context.Context) (*item, bool) {
	for {
		q.mu.Lock()
		if q.h.Len() > 0 {
			it := heap.Pop(&q.h).(*item)
			q.updateStaleness()
			q.mu.Unlock()
			return it, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-q.wake:
		}
	}
}

func (q *Queue) execute(ctx context.Context, it *item) {
	order := it.order

	if err := q.limiter.Wait(ctx); err != nil {
		return
	}

	now := time.Now()
	order.SubmittedAt = &now
	order.Status = models.OrderSubmitted

	result, err := q.gateway.Execute(ctx, *order)
	if err != nil {
		order.RetryCount++
		order.Error = err.Error()
		if !order.RetriesExhausted() {
			q.log.Warn().Str("order", order.ID).Int("retry", order.RetryCount).Err(err).Msg("gateway call failed, re-enqueuing")
			order.Status = models.OrderPending
			q.mu.Lock()
			heap.Push(&q.h, &item{order: order, enqueuedAt: time.Now()})
			q.mu.Unlock()
			select {
			case q.wake <- struct{}{}:
			default:
			}
			return
		}
		order.Status = models.OrderFailed
		completedAt := time.Now()
		order.CompletedAt = &completedAt
		q.log.Error().Str("order", order.ID).Err(err).Msg("order failed: retries exhausted")
		if q.onOrderUpdate != nil {
			q.onOrderUpdate(*order)
		}
		return
	}

	completedAt := time.Now()
	order.CompletedAt = &completedAt
	order.Status = models.OrderExecuted
	order.TxSignature = result.TxSignature
	order.FillPrice = result.FillPrice

	if q.onOrderUpdate != nil {
		q.onOrderUpdate(*order)
	}
}

// drainOnShutdown finishes CRITICAL and URGENT items still queued, within a
// bounded time budget; everything else is left in the heap.
func (q *Queue) drainOnShutdown() {
	const shutdownBudget = 5 * time.Second
	deadline := time.Now().Add(shutdownBudget)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	for {
		q.mu.Lock()
		if q.h.Len() == 0 {
			q.mu.Unlock()
			return
		}
		top := q.h[0]
		if top.order.Priority != models.PriorityCritical && top.order.Priority != models.PriorityUrgent {
			q.mu.Unlock()
			return
		}
		it := heap.Pop(&q.h).(*item)
		q.mu.Unlock()

		if time.Now().After(deadline) {
			return
		}
		q.execute(ctx, it)
	}
}

// Remaining returns the orders still queued, including those a shutdown
// leaves behind after draining only CRITICAL/URGENT.
func (q *Queue) Remaining() []models.Order {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.Order, 0, len(q.h))
	for _, it := range q.h {
		out = append(out, *it.order)
	}
	return out
}

func (q *Queue) updateStaleness() {
	if q.h.Len() == 0 {
		q.staleness.Store(0)
		return
	}
	oldest := q.h[0].enqueuedAt
	for _, it := range q.h {
		if it.enqueuedAt.Before(oldest) {
			oldest = it.enqueuedAt
		}
	}
	q.staleness.Store(int64(time.Since(oldest).Seconds()))
}

// StalenessSeconds exposes the staleness metric, as of the last dequeue, so
// starvation of lower-priority items can be observed.
func (q *Queue) StalenessSeconds() int64 {
	return q.staleness.Load()
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}
