package broker

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/frand"

	"brokerly.dev/event"
	"brokerly.dev/filter"
	"brokerly.dev/signer"
	"brokerly.dev/store"
)

// visibleIDs runs sub against the read pool and returns the ids of every
// non-hidden event it matches.
func visibleIDs(t *testing.T, s *store.Store, sub *filter.Subscription) map[string]bool {
	t.Helper()
	rows := make(chan store.Row, 16)
	go func() {
		if err := s.QueryRows(context.Background(), sub, rows); err != nil {
			t.Errorf("QueryRows: %v", err)
		}
	}()
	ids := map[string]bool{}
	for r := range rows {
		ids[r.Event.IDHex()] = true
	}
	return ids
}

func openTestStore(t *testing.T) (*store.Store, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "brokerly-writer-*")
	require.NoError(t, err)
	ctx := context.Background()
	s, err := store.Open(ctx, dir)
	if err != nil {
		os.RemoveAll(dir)
		require.NoError(t, err)
	}
	if err = s.OpenReadPool(1, 2); err != nil {
		s.Close()
		os.RemoveAll(dir)
		require.NoError(t, err)
	}
	return s, func() {
		s.Close()
		os.RemoveAll(dir)
	}
}

func testEvent(pubkeyByte byte, content string, createdAt int64, kind event.Kind) *event.E {
	e := &event.E{
		Pubkey:    make([]byte, 32),
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      event.Tags{},
		Content:   content,
		Sig:       make([]byte, 64),
	}
	e.Pubkey[0] = pubkeyByte
	e.Id = e.ComputeID()
	return e
}

// randomContent returns n random printable bytes, used where a test needs
// content that can't collide with another test's fixture.
func randomContent(n int) string {
	return string(frand.Bytes(n))
}

func newTestWriter(s *store.Store) *Writer {
	bus := NewBus(DefaultBacklog)
	in := make(chan Submission, 8)
	w := NewWriter(s, bus, signer.New(nil), in)
	return w
}

func submit(t *testing.T, w *Writer, e *event.E) Notice {
	t.Helper()
	nc := make(chan Notice, 1)
	w.process(context.Background(), Submission{Event: e, Notice: nc})
	select {
	case n := <-nc:
		return n
	default:
		t.Fatalf("expected a notice, got none")
		return Notice{}
	}
}

func TestWriterSavesNewEvent(t *testing.T) {
	s, cleanup := openTestStore(t)
	defer cleanup()
	w := newTestWriter(s)

	n := submit(t, w, testEvent(1, randomContent(16), 100, 1))
	assert.Equal(t, NoticeSaved, n.Kind, n.Message)
}

func TestWriterRejectsDuplicate(t *testing.T) {
	s, cleanup := openTestStore(t)
	defer cleanup()
	w := newTestWriter(s)

	e := testEvent(1, "hi", 100, 1)
	submit(t, w, e)
	n := submit(t, w, e)
	assert.Equal(t, NoticeDuplicate, n.Kind)
}

func TestWriterRejectsUnlistedAuthor(t *testing.T) {
	s, cleanup := openTestStore(t)
	defer cleanup()
	w := newTestWriter(s)
	w.Allowlist = map[string]struct{}{"deadbeef": {}}

	n := submit(t, w, testEvent(2, "hi", 100, 1))
	assert.Equal(t, NoticeBlocked, n.Kind)
}

func TestWriterRejectsInvalidEvent(t *testing.T) {
	s, cleanup := openTestStore(t)
	defer cleanup()
	w := newTestWriter(s)

	e := testEvent(1, "hi", 100, 1)
	e.Id[0] ^= 0xff
	n := submit(t, w, e)
	assert.Equal(t, NoticeInvalid, n.Kind)
}

func TestWriterEphemeralEventIsPublishedNotPersisted(t *testing.T) {
	s, cleanup := openTestStore(t)
	defer cleanup()
	w := newTestWriter(s)
	_, ch := w.Bus.Subscribe()

	e := testEvent(1, "hi", 100, 20001)
	n := submit(t, w, e)
	assert.Equal(t, NoticeSaved, n.Kind)

	select {
	case got := <-ch:
		assert.Same(t, e, got)
	case <-time.After(time.Second):
		t.Fatalf("expected the ephemeral event to reach the bus")
	}

	_, err := s.EventRowID(e.IDHex())
	assert.Error(t, err, "expected ephemeral event not to be persisted")
}

func TestWriterReplaceableEventHidesOlder(t *testing.T) {
	s, cleanup := openTestStore(t)
	defer cleanup()
	w := newTestWriter(s)

	older := testEvent(1, "old", 100, 3)
	newer := testEvent(1, "new", 200, 3)
	submit(t, w, older)
	submit(t, w, newer)

	sub := &filter.Subscription{SubID: "t", Filters: []*filter.F{{}}}
	visible := visibleIDs(t, s, sub)
	assert.False(t, visible[older.IDHex()], "expected the older replaceable event to be hidden")
	assert.True(t, visible[newer.IDHex()], "expected the newer replaceable event to remain visible")
}

// TestWriterReplaceableEventArrivingOutOfOrderStaysHidden covers the case
// where the newer replaceable event is already stored when an older one
// for the same (author, kind) arrives afterward: the late arrival must
// itself end up hidden rather than sitting visible next to the real
// latest.
func TestWriterReplaceableEventArrivingOutOfOrderStaysHidden(t *testing.T) {
	s, cleanup := openTestStore(t)
	defer cleanup()
	w := newTestWriter(s)

	newer := testEvent(1, "new", 200, 3)
	older := testEvent(1, "old", 100, 3)
	submit(t, w, newer)
	submit(t, w, older)

	sub := &filter.Subscription{SubID: "t", Filters: []*filter.F{{}}}
	visible := visibleIDs(t, s, sub)
	assert.False(t, visible[older.IDHex()], "expected the late-arriving older event to be hidden")
	assert.True(t, visible[newer.IDHex()], "expected the already-stored newer event to remain visible")
}

func TestWriterIdentityGateAppliesToMetadataEvents(t *testing.T) {
	s, cleanup := openTestStore(t)
	defer cleanup()
	w := newTestWriter(s)
	w.IdentityEnforced = true

	n := submit(t, w, testEvent(1, "profile", 100, 0))
	assert.Equal(t, NoticeBlocked, n.Kind, "expected a first-time metadata event to be rejected until verified")
}
