package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"cratebench/internal/models"
)

func TestEventLogService_List_NormalizesFilter(t *testing.T) {
	repo := &memEventRepo{}
	loc := time.FixedZone("CET", 3600)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, typ := range []string{models.EventSessionStart, models.EventOT, models.EventSessionEnd} {
		_ = repo.Append(context.Background(), models.CrateEvent{
			EventID:    string(rune('a' + i)),
			OccurredAt: base.Add(time.Duration(i) * time.Hour),
			Type:       typ,
		})
	}

	svc := NewEventLogService(repo)

	// Type filter is trimmed and uppercased; times are converted to UTC.
	got, err := svc.List(context.Background(), LogFilter{
		From: base.In(loc),
		To:   base.Add(3 * time.Hour).In(loc),
		Type: "  ot_event ",
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].Type != models.EventOT {
		t.Fatalf("filtered events = %+v", got)
	}

	// No filter returns everything.
	got, err = svc.List(context.Background(), LogFilter{})
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("all events = %d, want 3", len(got))
	}
}

func TestEventLogService_List_RejectsInvertedRange(t *testing.T) {
	svc := NewEventLogService(&memEventRepo{})
	now := time.Now()
	_, err := svc.List(context.Background(), LogFilter{From: now, To: now.Add(-time.Hour)})
	if !errors.Is(err, errInvalidTimeRange) {
		t.Fatalf("expected errInvalidTimeRange, got %v", err)
	}
}
