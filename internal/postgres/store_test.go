package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"gastos/internal/core"
	"gastos/internal/records"

	"github.com/shopspring/decimal"
)

// These tests need a disposable database; set GASTOS_TEST_DATABASE_URL to run them.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("GASTOS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("GASTOS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, url, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.pool.Exec(ctx, `TRUNCATE records, deliveries, chat_binding`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_FetchRecordsInclusiveRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p, _ := core.MonthOf(2024, 2, time.UTC)

	for _, r := range []core.Record{
		{ID: "in-start", Category: core.CategoryFood, Amount: decimal.NewFromInt(10), CreatedAt: p.Start},
		{ID: "in-end", Category: core.CategoryHome, Amount: decimal.RequireFromString("2.5"), CreatedAt: p.End},
		{ID: "out", Category: core.CategoryHome, Amount: decimal.NewFromInt(1), CreatedAt: p.End.Add(time.Millisecond)},
	} {
		if err := s.AddRecord(ctx, r); err != nil {
			t.Fatalf("AddRecord: %v", err)
		}
	}

	got, err := s.FetchRecords(ctx, p.Start, p.End)
	if err != nil {
		t.Fatalf("FetchRecords: %v", err)
	}
	if len(got) != 2 || got[0].ID != "in-start" || got[1].ID != "in-end" {
		t.Fatalf("unexpected records: %+v", got)
	}
	if !got[1].Amount.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("Amount = %s", got[1].Amount)
	}
}

func TestStore_LedgerAndBinding(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.LastDelivery(ctx, "2024-02"); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.MarkDelivered(ctx, core.DeliveryMark{PeriodKey: "2024-02", State: "delivered", DeliveredAt: time.Now()}); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if ok, err := records.Delivered(ctx, s, "2024-02"); err != nil || !ok {
		t.Fatalf("Delivered = %v, %v", ok, err)
	}

	if err := s.SaveChatBinding(ctx, core.ChatBinding{ChatID: 99, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("SaveChatBinding: %v", err)
	}
	b, err := s.ChatBinding(ctx)
	if err != nil || b.ChatID != 99 {
		t.Fatalf("ChatBinding = %+v, %v", b, err)
	}
}

func TestStore_ClaimDelivery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	claim := core.DeliveryMark{PeriodKey: "2024-03", State: core.MarkStateClaimed, RunID: "r1", DeliveredAt: time.Now()}

	ok, err := s.ClaimDelivery(ctx, claim)
	if err != nil || !ok {
		t.Fatalf("first ClaimDelivery = %v, %v; want true", ok, err)
	}
	claim.RunID = "r2"
	if ok, err := s.ClaimDelivery(ctx, claim); err != nil || ok {
		t.Fatalf("second ClaimDelivery = %v, %v; want false", ok, err)
	}
	if delivered, err := records.Delivered(ctx, s, "2024-03"); err != nil || delivered {
		t.Fatalf("Delivered with a pending claim = %v, %v; want false", delivered, err)
	}

	// Only the holder can release, and only while the mark is still a claim.
	if err := s.ReleaseDelivery(ctx, "2024-03", "r2"); err != nil {
		t.Fatalf("ReleaseDelivery(r2): %v", err)
	}
	if m, err := s.LastDelivery(ctx, "2024-03"); err != nil || m.RunID != "r1" {
		t.Fatalf("claim after foreign release = %+v, %v", m, err)
	}
	if err := s.ReleaseDelivery(ctx, "2024-03", "r1"); err != nil {
		t.Fatalf("ReleaseDelivery(r1): %v", err)
	}
	if _, err := s.LastDelivery(ctx, "2024-03"); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after release, got %v", err)
	}

	if err := s.MarkDelivered(ctx, core.DeliveryMark{PeriodKey: "2024-03", State: "delivered", RunID: "r3", DeliveredAt: time.Now()}); err != nil {
		t.Fatalf("MarkDelivered: %v", err)
	}
	if err := s.ReleaseDelivery(ctx, "2024-03", "r3"); err != nil {
		t.Fatalf("ReleaseDelivery(r3): %v", err)
	}
	if delivered, err := records.Delivered(ctx, s, "2024-03"); err != nil || !delivered {
		t.Fatalf("a delivery mark must survive release: %v, %v", delivered, err)
	}
	if ok, err := s.ClaimDelivery(ctx, claim); err != nil || ok {
		t.Fatalf("ClaimDelivery over a delivery = %v, %v; want false", ok, err)
	}
}
