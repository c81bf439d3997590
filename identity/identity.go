// Package identity is the relay's NIP-05-style asynchronous identity
// checker: it consumes kind:0 (profile metadata) events, resolves the
// author's "nip05" identifier against the identifier's domain, and
// records the outcome so the Writer's identity gate can decide whether
// to accept future events from that author. The verifier never blocks
// event ingest — it is fed a copy of metadata events over a channel and
// runs independently.
package identity

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"brokerly.dev/event"
	"brokerly.dev/store"
	"brokerly.dev/utils/chk"
	"brokerly.dev/utils/context"
	"brokerly.dev/utils/log"
)

// Policy governs when a recorded verification is still considered valid
// by the Writer's identity gate.
type Policy struct {
	// MaxAge is how long a successful verification remains valid before
	// it must be re-checked. Zero means verifications never expire.
	MaxAge time.Duration
	// MaxFailures is how many consecutive lookup failures are tolerated
	// before the author is treated as unverified.
	MaxFailures int
}

// IsValid reports whether a stored verification record still satisfies
// policy, given the current time.
func IsValid(verifiedAt, failedAt *int64, failureCount int, policy Policy, now time.Time) bool {
	if policy.MaxFailures > 0 && failureCount > policy.MaxFailures {
		return false
	}
	if verifiedAt == nil {
		return false
	}
	if policy.MaxAge > 0 {
		age := now.Sub(time.Unix(*verifiedAt, 0))
		if age > policy.MaxAge {
			return false
		}
	}
	return true
}

// profileMetadata is the subset of a kind:0 event's content this
// verifier cares about.
type profileMetadata struct {
	NIP05 string `json:"nip05"`
}

// wellKnown is the NIP-05 well-known response shape: a map of local part
// to hex pubkey.
type wellKnown struct {
	Names map[string]string `json:"names"`
}

// Verifier consumes metadata events from In and records verification
// outcomes in the Store.
type Verifier struct {
	Store  *store.Store
	Client *http.Client
	In     event.C
}

// New creates a Verifier reading from in.
func New(s *store.Store, in event.C) *Verifier {
	return &Verifier{Store: s, Client: &http.Client{Timeout: 5 * time.Second}, In: in}
}

// Run drains In until it closes or ctx is cancelled, verifying each
// metadata event's nip05 identifier as it arrives.
func (v *Verifier) Run(ctx context.T) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-v.In:
			if !ok {
				return
			}
			v.verify(ctx, e)
		}
	}
}

func (v *Verifier) verify(ctx context.T, e *event.E) {
	var md profileMetadata
	if err := json.Unmarshal([]byte(e.Content), &md); err != nil || md.NIP05 == "" {
		return
	}
	name, domain, ok := splitNIP05(md.NIP05)
	if !ok {
		return
	}

	now := time.Now().Unix()
	rowID, err := v.Store.EventRowID(e.IDHex())
	if chk.E(err) {
		return
	}

	// A failure keeps the author's last successful verification time and
	// extends the consecutive-failure count, so Policy.MaxFailures decides
	// when the author stops counting as verified.
	var prevVerifiedAt *int64
	failures := 1
	if pv, _, pc, perr := v.Store.LatestVerification(e.PubkeyHex()); perr == nil {
		if pv.Valid {
			prevVerifiedAt = &pv.Int64
		}
		failures = pc + 1
	}

	pubkeyHex, lookupErr := v.lookup(ctx, domain, name)
	if lookupErr != nil {
		log.W.F("nip05 lookup failed for %s: %v", md.NIP05, lookupErr)
		failedAt := now
		if err = v.Store.RecordVerification(rowID, md.NIP05, prevVerifiedAt, &failedAt, failures); chk.E(err) {
			return
		}
		return
	}
	if !strings.EqualFold(pubkeyHex, e.PubkeyHex()) {
		log.I.F("nip05 mismatch for %s: well-known names a different key", md.NIP05)
		failedAt := now
		if err = v.Store.RecordVerification(rowID, md.NIP05, prevVerifiedAt, &failedAt, failures); chk.E(err) {
			return
		}
		return
	}
	log.I.F("verified nip05 identity %s for %s", md.NIP05, e.PubkeyHex())
	verifiedAt := now
	if err = v.Store.RecordVerification(rowID, md.NIP05, &verifiedAt, nil, 0); chk.E(err) {
		return
	}
}

func (v *Verifier) lookup(ctx context.T, domain, name string) (pubkeyHex string, err error) {
	u := &url.URL{
		Scheme:   "https",
		Host:     domain,
		Path:     "/.well-known/nostr.json",
		RawQuery: "name=" + url.QueryEscape(name),
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if chk.E(err) {
		return
	}
	resp, err := v.Client.Do(req)
	if chk.E(err) {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("well-known lookup for %s returned %d", domain, resp.StatusCode)
		return
	}
	var body wellKnown
	if err = json.NewDecoder(resp.Body).Decode(&body); chk.E(err) {
		return
	}
	key, ok := body.Names[name]
	if !ok {
		err = fmt.Errorf("no entry for %q at %s", name, domain)
		return
	}
	if _, decErr := hex.DecodeString(key); decErr != nil {
		err = fmt.Errorf("malformed pubkey for %q at %s", name, domain)
		return
	}
	pubkeyHex = key
	return
}

func splitNIP05(id string) (name, domain string, ok bool) {
	parts := strings.SplitN(id, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return
	}
	name, domain = parts[0], parts[1]
	ok = true
	return
}
