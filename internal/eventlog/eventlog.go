// Package eventlog implements the append-only record of signals,
// orders, and breaker transitions. Idempotent reception is enforced with
// ON CONFLICT DO NOTHING keyed on each record's natural identity
// (tx_signature for signals, id for orders and breaker events), a DO NOTHING
// upsert rather than DO UPDATE since these rows are immutable once
// written — except breaker events, whose upsert is DO UPDATE on
// deactivated_at and forced so a later deactivation lands on the same row.
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/walltrack/engine/internal/db"
	"github.com/walltrack/engine/pkg/models"
)

type Log struct {
	store *db.Store
	log   zerolog.Logger
}

func New(store *db.Store, log zerolog.Logger) *Log {
	return &Log{store: store, log: log.With().Str("component", "eventlog").Logger()}
}

// RecordSignal persists a received swap event, returning whether the row
// was newly inserted. Re-delivery of the same tx_signature (provider
// retries, webhook replays) hits ON CONFLICT DO NOTHING and reports false,
// so the caller can skip any downstream effect that isn't itself idempotent.
func (l *Log) RecordSignal(ctx context.Context, event models.SwapEvent) (bool, error) {
	tag, err := l.store.Pool.Exec(ctx,
		`INSERT INTO signals (tx_signature, wallet, token, direction, amount_token, amount_sol, slot, ts, raw_payload)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (tx_signature) DO NOTHING`,
		event.TxSignature, event.Wallet, event.Token, event.Direction,
		event.AmountToken, event.AmountSOL, event.Slot, event.Timestamp, event.RawPayload)
	if err != nil {
		return false, fmt.Errorf("eventlog: record signal: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordOrder persists an order's terminal status. Called once per order,
// at its executed/failed/cancelled outcome (internal/swapqueue only invokes
// its onOrderUpdate callback on a terminal status).
func (l *Log) RecordOrder(ctx context.Context, order models.Order) error {
	_, err := l.store.Pool.Exec(ctx,
		`INSERT INTO orders (id, position_ref, type, mode, priority, wallet, token, amount_token, fraction,
		  requested_at, submitted_at, completed_at, status, retry_count, max_retries, error, tx_signature, fill_price)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		 ON CONFLICT (id) DO NOTHING`,
		order.ID, nullableString(order.PositionRef), order.Type, order.Mode, order.Priority,
		order.Wallet, order.Token, order.AmountToken, order.Fraction,
		order.RequestedAt, order.SubmittedAt, order.CompletedAt, order.Status,
		order.RetryCount, order.MaxRetries, order.Error, nullableString(order.TxSignature), order.FillPrice)
	if err != nil {
		return fmt.Errorf("eventlog: record order: %w", err)
	}
	return nil
}

// RecordBreakerEvent persists an activation or a later deactivation of the
// same event id. Activation inserts the row; deactivation overwrites its
// deactivated_at and forced columns — the one exception to pure append-only, since the
// pair is one logical event observed at two points in time.
func (l *Log) RecordBreakerEvent(ctx context.Context, event models.BreakerEvent) error {
	metrics, err := json.Marshal(event.MetricsSnapshot)
	if err != nil {
		return fmt.Errorf("eventlog: marshal breaker metrics: %w", err)
	}
	thresholds, err := json.Marshal(event.ThresholdsSnapshot)
	if err != nil {
		return fmt.Errorf("eventlog: marshal breaker thresholds: %w", err)
	}

	_, err = l.store.Pool.Exec(ctx,
		`INSERT INTO breaker_events (id, activated_at, reason, metrics_snapshot, thresholds_snapshot, forced, deactivated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (id) DO UPDATE SET deactivated_at = EXCLUDED.deactivated_at, forced = EXCLUDED.forced`,
		event.ID, event.ActivatedAt, event.Reason, metrics, thresholds, event.Forced, event.DeactivatedAt)
	if err != nil {
		return fmt.Errorf("eventlog: record breaker event: %w", err)
	}
	return nil
}

// SignalsByWallet queries signals for wallet within [since, until), ordered
// oldest first, using the (wallet, ts) index.
func (l *Log) SignalsByWallet(ctx context.Context, wallet string, since, until time.Time) ([]models.SwapEvent, error) {
	rows, err := l.store.Pool.Query(ctx,
		`SELECT tx_signature, wallet, token, direction, amount_token, amount_sol, slot, ts
		 FROM signals WHERE wallet = $1 AND ts >= $2 AND ts < $3 ORDER BY ts ASC`,
		wallet, since, until)
	if err != nil {
		return nil, fmt.Errorf("eventlog: query signals by wallet: %w", err)
	}
	defer rows.Close()

	var out []models.SwapEvent
	for rows.Next() {
		var e models.SwapEvent
		if err := rows.Scan(&e.TxSignature, &e.Wallet, &e.Token, &e.Direction, &e.AmountToken, &e.AmountSOL, &e.Slot, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("eventlog: scan signal: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// OrdersByPosition queries every order recorded against a position.
func (l *Log) OrdersByPosition(ctx context.Context, positionID string) ([]models.Order, error) {
	rows, err := l.store.Pool.Query(ctx,
		`SELECT id, position_ref, type, mode, priority, wallet, token, amount_token, fraction,
		  requested_at, submitted_at, completed_at, status, retry_count, max_retries, error, tx_signature, fill_price
		 FROM orders WHERE position_ref = $1 ORDER BY requested_at ASC`,
		positionID)
	if err != nil {
		return nil, fmt.Errorf("eventlog: query orders by position: %w", err)
	}
	defer rows.Close()

	var out []models.Order
	for rows.Next() {
		var o models.Order
		var positionRef *string
		var txSig *string
		if err := rows.Scan(&o.ID, &positionRef, &o.Type, &o.Mode, &o.Priority, &o.Wallet, &o.Token,
			&o.AmountToken, &o.Fraction, &o.RequestedAt, &o.SubmittedAt, &o.CompletedAt, &o.Status,
			&o.RetryCount, &o.MaxRetries, &o.Error, &txSig, &o.FillPrice); err != nil {
			return nil, fmt.Errorf("eventlog: scan order: %w", err)
		}
		if positionRef != nil {
			o.PositionRef = *positionRef
		}
		if txSig != nil {
			o.TxSignature = *txSig
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
