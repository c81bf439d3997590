package store

import (
	"context"
	"os"
	"testing"

	"brokerly.dev/event"
	"brokerly.dev/filter"
)

func openTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "brokerly-store-*")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	ctx := context.Background()
	s, err := Open(ctx, dir)
	if err != nil {
		os.RemoveAll(dir)
		t.Fatalf("Open: %v", err)
	}
	if err = s.OpenReadPool(1, 2); err != nil {
		s.Close()
		os.RemoveAll(dir)
		t.Fatalf("OpenReadPool: %v", err)
	}
	return s, func() {
		s.Close()
		os.RemoveAll(dir)
	}
}

func testEvent(t *testing.T, content string, createdAt int64, kind event.Kind) *event.E {
	t.Helper()
	e := &event.E{
		Pubkey:    make([]byte, 32),
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      event.Tags{},
		Content:   content,
	}
	e.Pubkey[0] = 0xbb
	e.Id = e.ComputeID()
	e.Sig = make([]byte, 64)
	return e
}

func TestSaveAndQueryRoundTrip(t *testing.T) {
	s, cleanup := openTestStore(t)
	defer cleanup()

	e := testEvent(t, "hello", 1000, 1)
	outcome, err := s.SaveEvent(e)
	if err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}
	if outcome != WriteSaved {
		t.Fatalf("expected WriteSaved, got %v", outcome)
	}

	sub := &filter.Subscription{SubID: "s1", Filters: []*filter.F{{Kinds: []event.Kind{1}}}}
	rows := make(chan Row, 8)
	if err = s.QueryRows(context.Background(), sub, rows); err != nil {
		t.Fatalf("QueryRows: %v", err)
	}
	var got []Row
	for r := range rows {
		got = append(got, r)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	if got[0].Event.Content != "hello" {
		t.Fatalf("Content = %q, want hello", got[0].Event.Content)
	}
}

func TestSaveEventDuplicateIsIgnored(t *testing.T) {
	s, cleanup := openTestStore(t)
	defer cleanup()

	e := testEvent(t, "hi", 1000, 1)
	if _, err := s.SaveEvent(e); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}
	outcome, err := s.SaveEvent(e)
	if err != nil {
		t.Fatalf("SaveEvent (duplicate): %v", err)
	}
	if outcome != WriteDuplicate {
		t.Fatalf("expected WriteDuplicate, got %v", outcome)
	}
}

func TestReplaceableEventHidesOlder(t *testing.T) {
	s, cleanup := openTestStore(t)
	defer cleanup()

	older := testEvent(t, "old profile", 1000, 0)
	if _, err := s.SaveEvent(older); err != nil {
		t.Fatalf("SaveEvent(older): %v", err)
	}
	newer := testEvent(t, "new profile", 2000, 0)
	if _, err := s.SaveEvent(newer); err != nil {
		t.Fatalf("SaveEvent(newer): %v", err)
	}

	sub := &filter.Subscription{SubID: "s1", Filters: []*filter.F{{Kinds: []event.Kind{0}}}}
	rows := make(chan Row, 8)
	if err := s.QueryRows(context.Background(), sub, rows); err != nil {
		t.Fatalf("QueryRows: %v", err)
	}
	var got []Row
	for r := range rows {
		got = append(got, r)
	}
	if len(got) != 1 {
		t.Fatalf("expected only the newest replaceable event, got %d rows", len(got))
	}
	if got[0].Event.Content != "new profile" {
		t.Fatalf("Content = %q, want new profile", got[0].Event.Content)
	}
}

func TestQueryRowsRespectsCancellation(t *testing.T) {
	s, cleanup := openTestStore(t)
	defer cleanup()

	for i := int64(0); i < 5; i++ {
		e := testEvent(t, "x", 1000+i, 1)
		e.Pubkey[1] = byte(i)
		e.Id = e.ComputeID()
		if _, err := s.SaveEvent(e); err != nil {
			t.Fatalf("SaveEvent: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sub := &filter.Subscription{SubID: "s1", Filters: []*filter.F{{Kinds: []event.Kind{1}}}}
	rows := make(chan Row, 8)
	// A pre-cancelled context must never panic or deadlock; QueryRows
	// closes rows either way.
	_ = s.QueryRows(ctx, sub, rows)
	for range rows {
	}
}
