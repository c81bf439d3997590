// Package event is the codec for the relay's primary datatype: a signed,
// content-addressed record published by a client. It implements the wire
// (hex-string JSON) form, the canonical binary form that is hashed to
// produce the event id, and the kind-classification rules that govern
// persistence policy.
package event

import (
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/minio/sha256-simd"

	"brokerly.dev/utils/codecbuf"
)

// E is a nostr-style event.
type E struct {
	Id        []byte // 32-byte content hash
	Pubkey    []byte // 32-byte author key
	CreatedAt int64   // unix seconds, per the event creator
	Kind      Kind
	Tags      Tags
	Content   string
	Sig       []byte // 64-byte signature
}

// S is a slice of events that sorts newest-first.
type S []*E

func (s S) Len() int           { return len(s) }
func (s S) Less(i, j int) bool { return s[i].CreatedAt > s[j].CreatedAt }
func (s S) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// C is a channel carrying events, used by the identity verifier's
// metadata-event fan-out.
type C chan *E

// IDHex returns the event id as a lowercase hex string.
func (e *E) IDHex() string { return hex.EncodeToString(e.Id) }

// PubkeyHex returns the author pubkey as a lowercase hex string.
func (e *E) PubkeyHex() string { return hex.EncodeToString(e.Pubkey) }

// DelegatedBy scans Tags for a NIP-26-shaped delegation tag
// (["delegation", <delegator-pubkey-hex>, <conditions>, <token>]) and
// returns the delegator's raw pubkey bytes, or nil if the event carries no
// delegation.
func (e *E) DelegatedBy() []byte {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == "delegation" {
			if b, err := hex.DecodeString(t[1]); err == nil && len(b) == 32 {
				return b
			}
		}
	}
	return nil
}

// canonicalSerialization renders the 6-element array
// [0, pubkey, created_at, kind, tags, content] whose sha256 is the event id,
// per the protocol's id-computation rule.
func (e *E) canonicalSerialization() []byte {
	buf := codecbuf.Get()
	defer codecbuf.Put(buf)
	buf.WriteByte('[')
	buf.WriteString("0,\"")
	buf.WriteString(e.PubkeyHex())
	buf.WriteString("\",")
	buf.WriteString(strconv.FormatInt(e.CreatedAt, 10))
	buf.WriteByte(',')
	buf.WriteString(strconv.FormatUint(uint64(e.Kind), 10))
	buf.WriteByte(',')
	buf.Write(e.Tags.canonicalJSON())
	buf.WriteByte(',')
	buf.Write(canonicalString(e.Content))
	buf.WriteByte(']')
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

// ComputeID returns the sha256 of the canonical serialization — the value
// a correctly-formed event.Id must equal.
func (e *E) ComputeID() []byte {
	sum := sha256.Sum256(e.canonicalSerialization())
	return sum[:]
}

// IDValid reports whether e.Id matches the recomputed content hash.
func (e *E) IDValid() bool {
	if len(e.Id) != 32 {
		return false
	}
	got := e.ComputeID()
	if len(got) != len(e.Id) {
		return false
	}
	for i := range got {
		if got[i] != e.Id[i] {
			return false
		}
	}
	return true
}

// StructurallyValid returns an error unless the event's required fields have
// the lengths the wire protocol mandates and its id matches the content
// hash, independent of signature cryptography.
func (e *E) StructurallyValid() error {
	if len(e.Id) != 32 {
		return fmt.Errorf("id must be 32 bytes")
	}
	if len(e.Pubkey) != 32 {
		return fmt.Errorf("pubkey must be 32 bytes")
	}
	if len(e.Sig) != 64 {
		return fmt.Errorf("sig must be 64 bytes")
	}
	if !e.IDValid() {
		return fmt.Errorf("id does not match content hash")
	}
	return nil
}
