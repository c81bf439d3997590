package event

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// wire is the JSON-on-the-wire shape of an event: hex strings for the
// binary fields.
type wire struct {
	Id        string `json:"id"`
	Pubkey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      Kind   `json:"kind"`
	Tags      Tags   `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// MarshalJSON renders e in the wire's hex-string form.
func (e *E) MarshalJSON() ([]byte, error) {
	w := wire{
		Id:        hex.EncodeToString(e.Id),
		Pubkey:    hex.EncodeToString(e.Pubkey),
		CreatedAt: e.CreatedAt,
		Kind:      e.Kind,
		Tags:      e.Tags,
		Content:   e.Content,
		Sig:       hex.EncodeToString(e.Sig),
	}
	if w.Tags == nil {
		w.Tags = Tags{}
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses a wire-form event, decoding hex fields into raw
// bytes. It does not validate lengths or the id hash; callers should call
// StructurallyValid after unmarshalling.
func (e *E) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id, err := hex.DecodeString(w.Id)
	if err != nil {
		return fmt.Errorf("id: %w", err)
	}
	pubkey, err := hex.DecodeString(w.Pubkey)
	if err != nil {
		return fmt.Errorf("pubkey: %w", err)
	}
	sig, err := hex.DecodeString(w.Sig)
	if err != nil {
		return fmt.Errorf("sig: %w", err)
	}
	e.Id = id
	e.Pubkey = pubkey
	e.CreatedAt = w.CreatedAt
	e.Kind = w.Kind
	e.Tags = w.Tags
	e.Content = w.Content
	e.Sig = sig
	return nil
}
