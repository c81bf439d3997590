// Package signer validates events the way a relay can without owning
// any private key material: it recomputes the content hash and checks
// structural invariants, and delegates the actual schnorr signature
// check to an injected verification function, leaving the signature
// cryptography itself out of this package — it is the seam the
// teacher's own signer.I interface occupies, separating key handling
// from wire-level validation.
package signer

import (
	"errors"

	"brokerly.dev/event"
)

var errInvalidSignature = errors.New("signature verification failed")

// SchnorrVerify checks sig over msg under pubkey. The zero Validator
// leaves this nil, which Validate treats as "accept any structurally
// valid event" — appropriate for tests and for relays that trust an
// upstream proxy to have already checked signatures.
type SchnorrVerify func(pubkey, msg, sig []byte) (bool, error)

// Validator checks events before the Writer accepts them.
type Validator struct {
	SchnorrVerify SchnorrVerify
}

// New creates a Validator. verify may be nil.
func New(verify SchnorrVerify) *Validator {
	return &Validator{SchnorrVerify: verify}
}

// Validate checks e's structural invariants (id matches content hash;
// id/pubkey/sig have the wire-mandated lengths) and, if a SchnorrVerify
// function is configured, the signature itself.
func (v *Validator) Validate(e *event.E) error {
	if err := e.StructurallyValid(); err != nil {
		return err
	}
	if v.SchnorrVerify == nil {
		return nil
	}
	ok, err := v.SchnorrVerify(e.Pubkey, e.Id, e.Sig)
	if err != nil {
		return err
	}
	if !ok {
		return errInvalidSignature
	}
	return nil
}
