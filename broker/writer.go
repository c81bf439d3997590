package broker

import (
	"database/sql"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"brokerly.dev/event"
	"brokerly.dev/identity"
	"brokerly.dev/signer"
	"brokerly.dev/store"
	"brokerly.dev/utils/chk"
	"brokerly.dev/utils/context"
	"brokerly.dev/utils/log"
)

var (
	errUnverifiedAuthor = errors.New("author has no valid identity verification")
	errNoVerification   = errors.New("author has no identity verification record")
)

// Submission is one inbound EVENT command, paired with the channel its
// outcome Notice is delivered on (the Connection Handler owns that
// channel and forwards the Notice to the client).
type Submission struct {
	Event  *event.E
	Notice chan<- Notice
}

// Writer is the relay's single-writer ingest pipeline: one goroutine
// consumes Submissions serially, so SQLite only ever sees one write
// transaction at a time. It authorizes, validates, gates on identity,
// persists, publishes, and rate-limits, in that fixed order.
type Writer struct {
	Store    *store.Store
	Bus      *Bus
	Signer   *signer.Validator
	Limiter  *rate.Limiter
	In       chan Submission

	// Allowlist restricts publishing to these hex pubkeys. A nil/empty
	// map means unrestricted.
	Allowlist map[string]struct{}

	// IdentityEnforced rejects authors that have no nip05 verification
	// record, or whose latest one does not satisfy IdentityPolicy.
	IdentityEnforced bool
	IdentityPolicy   identity.Policy
	// MetadataOut receives a copy of every kind:0 event, best-effort, for
	// the identity verifier to consume. May be nil when identity
	// verification is inactive.
	MetadataOut chan<- *event.E

	written      int
	lastRateWarn time.Time
}

// NewWriter builds a Writer reading Submissions from in.
func NewWriter(s *store.Store, bus *Bus, v *signer.Validator, in chan Submission) *Writer {
	return &Writer{Store: s, Bus: bus, Signer: v, In: in}
}

// Run processes Submissions until In is closed or ctx is cancelled.
func (w *Writer) Run(ctx context.T) {
	for {
		select {
		case <-ctx.Done():
			return
		case sub, ok := <-w.In:
			if !ok {
				return
			}
			w.process(ctx, sub)
		}
	}
}

func (w *Writer) process(ctx context.T, sub Submission) {
	e := sub.Event
	idHex := e.IDHex()

	// Step 1: authorization.
	if len(w.Allowlist) > 0 {
		if _, ok := w.Allowlist[e.PubkeyHex()]; !ok {
			w.reply(sub, blockedNotice(idHex, "author not permitted to publish"))
			return
		}
	}

	// Validation runs ahead of persistence regardless of kind.
	if err := w.Signer.Validate(e); err != nil {
		w.reply(sub, invalidNotice(idHex, err.Error()))
		return
	}

	// Step 2: metadata fan-out, best-effort and non-blocking. Runs ahead
	// of the identity gate below so the verifier sees this profile event
	// even though the gate itself still judges the author's existing
	// verification record, not this submission.
	if e.Kind.IsMetadata() && w.MetadataOut != nil {
		select {
		case w.MetadataOut <- e:
		default:
			log.W.F("identity verifier channel full, dropping metadata event %s", idHex)
		}
	}

	// Step 3: identity gate. Applies uniformly to every submission,
	// including the author's own metadata events — a first-time
	// metadata event is fanned out to the verifier above but still
	// rejected here until a verification row exists for its author.
	if w.IdentityEnforced {
		if err := w.checkIdentity(e); err != nil {
			w.reply(sub, blockedNotice(idHex, err.Error()))
			return
		}
	}

	// Step 4: ephemeral shortcut — publish without persisting.
	if e.Kind.IsEphemeral() {
		w.Bus.Publish(e)
		w.reply(sub, savedNotice(idHex))
		return
	}

	// Step 5: persist.
	outcome, err := w.Store.SaveEvent(e)
	if chk.E(err) {
		w.reply(sub, errorNotice(idHex, "could not persist event"))
		return
	}
	if outcome == store.WriteDuplicate {
		w.reply(sub, duplicateNotice(idHex))
		return
	}

	// Step 6: publish.
	w.Bus.Publish(e)
	w.reply(sub, savedNotice(idHex))

	// Step 7: optimize trigger.
	w.written++
	if w.written%store.EventCountOptimizeTrigger == 0 {
		go w.Store.Optimize()
	}

	// Step 8: rate limiting. Only events that were actually written
	// count against the quota; throttling sleeps the single Writer
	// goroutine rather than dropping the event that triggered it, so
	// submissions queue up in In instead of being silently lost.
	w.throttle()
}

// checkIdentity looks up the author's most recently verified nip05
// identifier and applies IdentityPolicy. An author with no verification
// record at all is rejected distinctly from one whose record has
// expired or failed too often.
func (w *Writer) checkIdentity(e *event.E) error {
	verifiedAt, failedAt, failureCount, err := w.Store.LatestVerification(e.PubkeyHex())
	if errors.Is(err, sql.ErrNoRows) {
		return errNoVerification
	}
	if err != nil {
		return errUnverifiedAuthor
	}
	var vAt, fAt *int64
	if verifiedAt.Valid {
		vAt = &verifiedAt.Int64
	}
	if failedAt.Valid {
		fAt = &failedAt.Int64
	}
	if !identity.IsValid(vAt, fAt, failureCount, w.IdentityPolicy, time.Now()) {
		return errUnverifiedAuthor
	}
	return nil
}

// throttle sleeps the Writer goroutine long enough to stay under the
// configured rate. A nil Limiter means rate limiting is disabled.
func (w *Writer) throttle() {
	if w.Limiter == nil {
		return
	}
	r := w.Limiter.Reserve()
	if !r.OK() {
		return
	}
	delay := r.Delay()
	if delay <= 0 {
		return
	}
	if time.Since(w.lastRateWarn) > 10*time.Second {
		log.W.F("rate limit reached for event creation (sleeping %v, suppressing further messages for 10s)", delay)
		w.lastRateWarn = time.Now()
	}
	time.Sleep(delay)
}

func (w *Writer) reply(sub Submission, n Notice) {
	if sub.Notice == nil {
		return
	}
	select {
	case sub.Notice <- n:
	default:
	}
}
