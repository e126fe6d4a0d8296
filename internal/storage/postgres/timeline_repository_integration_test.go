package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	timelineRepo := NewTimelineRepository(store)

	createdAt := time.Now().UTC().Add(-time.Minute).Round(time.Microsecond)
	orderID := "timeline-order"

	// Нулевое время заполняется автоматически.
	if err := timelineRepo.Append(domain.TimelineEvent{
		OrderID: orderID,
		Type:    domain.TimelineOrderCreated,
		Reason:  "created",
	}); err != nil {
		t.Fatalf("append timeline event with zero occurred: %v", err)
	}

	ctx := context.Background()
	err := store.WithinTx(ctx, func(tx domain.Tx) error {
		return tx.Timeline().Append(ctx, domain.TimelineEvent{
			OrderID:  orderID,
			Type:     domain.TimelineOrderPaid,
			Reason:   "paid",
			Actor:    "seller-1",
			Occurred: createdAt.Add(-10 * time.Second),
		})
	})
	if err != nil {
		t.Fatalf("append timeline event in tx: %v", err)
	}

	events, err := timelineRepo.List(orderID)
	if err != nil {
		t.Fatalf("list timeline events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 timeline events, got %d", len(events))
	}
	if events[0].Type != domain.TimelineOrderPaid || events[0].Actor != "seller-1" {
		t.Fatalf("events should be sorted by occurred asc: %+v", events)
	}
}

func TestTimelineRepository_PostgresUnknownOrder(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	timelineRepo := NewTimelineRepository(store)

	events, err := timelineRepo.List("missing-order")
	if err != nil {
		t.Fatalf("list for missing order should not fail: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events for missing order, got %d", len(events))
	}
}
