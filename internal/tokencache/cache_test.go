package tokencache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/walltrack/engine/pkg/models"
)

type fakeProvider struct {
	name  string
	rec   models.TokenRecord
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Fetch(ctx context.Context, address string) (models.TokenRecord, error) {
	f.calls++
	if f.err != nil {
		return models.TokenRecord{}, f.err
	}
	rec := f.rec
	rec.Address = address
	return rec, nil
}

func TestGet_PrimarySucceeds(t *testing.T) {
	primary := &fakeProvider{name: "primary", rec: models.TokenRecord{PriceUSD: decimal.NewFromInt(1)}}
	fallback := &fakeProvider{name: "fallback"}
	s := New(primary, fallback, zerolog.Nop())

	rec := s.Get(context.Background(), "T")
	if rec.Source != "primary" {
		t.Fatalf("expected primary source, got %s", rec.Source)
	}
	if fallback.calls != 0 {
		t.Fatal("fallback should not be called when primary succeeds")
	}
}

func TestGet_FallsThroughToFallback(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("boom")}
	fallback := &fakeProvider{name: "fallback", rec: models.TokenRecord{PriceUSD: decimal.NewFromInt(2)}}
	s := New(primary, fallback, zerolog.Nop())

	rec := s.Get(context.Background(), "T")
	if rec.Source != "fallback" {
		t.Fatalf("expected fallback source, got %s", rec.Source)
	}
}

func TestGet_NeutralWhenAllFail(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("boom")}
	fallback := &fakeProvider{name: "fallback", err: errors.New("boom")}
	s := New(primary, fallback, zerolog.Nop())

	rec := s.Get(context.Background(), "T")
	if rec.Source != "neutral" {
		t.Fatalf("expected neutral source, got %s", rec.Source)
	}
}

func TestGet_ServesFreshCacheWithoutCallingProviders(t *testing.T) {
	primary := &fakeProvider{name: "primary", rec: models.TokenRecord{PriceUSD: decimal.NewFromInt(1)}}
	fallback := &fakeProvider{name: "fallback"}
	s := New(primary, fallback, zerolog.Nop())

	s.store(models.TokenRecord{Address: "T", Source: "primary", FetchedAt: time.Now(), TTLSeconds: 300})

	rec := s.Get(context.Background(), "T")
	if rec.Source != "primary" || primary.calls != 0 {
		t.Fatalf("expected cached record served without provider call, got %+v calls=%d", rec, primary.calls)
	}
}
