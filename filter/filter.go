// Package filter is the client-facing Filter and Subscription shape:
// the predicate language a REQ message uses to describe which events a
// subscription wants, both for historical replay (via the store's query
// compiler) and for live broadcast matching.
package filter

import (
	"encoding/hex"
	"encoding/json"
	"strings"

	"brokerly.dev/event"
)

// F is a single filter: a conjunction of optional predicates. A zero-value
// F matches every non-hidden event.
type F struct {
	Ids     []string
	Authors []string
	Kinds   []event.Kind
	Tags    map[string][]string // keyed by the single-letter tag name, no '#'
	Since   *int64
	Until   *int64
	Limit   *int

	// ForceNoMatch is an internal sentinel (never set from the wire) that
	// short-circuits the compiler to an empty result without touching the
	// store — used when a filter is already known unsatisfiable.
	ForceNoMatch bool
}

// wire is the JSON shape of a filter: fixed keys plus any number of
// dynamic "#<letter>" keys, which UnmarshalJSON peels off by hand.
type wire struct {
	Ids     []string     `json:"ids,omitempty"`
	Authors []string     `json:"authors,omitempty"`
	Kinds   []event.Kind `json:"kinds,omitempty"`
	Since   *int64       `json:"since,omitempty"`
	Until   *int64       `json:"until,omitempty"`
	Limit   *int         `json:"limit,omitempty"`
}

// MarshalJSON renders f with its dynamic #-tag keys inlined alongside the
// fixed fields.
func (f *F) MarshalJSON() ([]byte, error) {
	m := map[string]any{}
	if len(f.Ids) > 0 {
		m["ids"] = f.Ids
	}
	if len(f.Authors) > 0 {
		m["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		m["kinds"] = f.Kinds
	}
	if f.Since != nil {
		m["since"] = *f.Since
	}
	if f.Until != nil {
		m["until"] = *f.Until
	}
	if f.Limit != nil {
		m["limit"] = *f.Limit
	}
	for name, vals := range f.Tags {
		m["#"+name] = vals
	}
	return json.Marshal(m)
}

// UnmarshalJSON parses a filter object, extracting every "#<letter>" key
// into Tags.
func (f *F) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var tags map[string][]string
	for k, v := range raw {
		if !strings.HasPrefix(k, "#") || len(k) < 2 {
			continue
		}
		var vals []string
		if err := json.Unmarshal(v, &vals); err != nil {
			return err
		}
		if tags == nil {
			tags = map[string][]string{}
		}
		tags[k[1:]] = vals
	}
	f.Ids = w.Ids
	f.Authors = w.Authors
	f.Kinds = w.Kinds
	f.Since = w.Since
	f.Until = w.Until
	f.Limit = w.Limit
	f.Tags = tags
	return nil
}

// Empty reports whether f carries no constraints at all (matches
// everything non-hidden).
func (f *F) Empty() bool {
	return len(f.Ids) == 0 && len(f.Authors) == 0 && len(f.Kinds) == 0 &&
		len(f.Tags) == 0 && f.Since == nil && f.Until == nil && !f.ForceNoMatch
}

// Matches reports whether e satisfies f, using the same semantics the
// store's query compiler applies to historical replay: prefix match on
// ids/authors (authors additionally matches delegated_by), kind
// membership, tag value membership, and exclusive time bounds. Callers
// are responsible for excluding hidden events first.
func (f *F) Matches(e *event.E) bool {
	if f.ForceNoMatch {
		return false
	}
	if len(f.Ids) > 0 && !hasPrefixMatch(f.Ids, e.IDHex()) {
		return false
	}
	if len(f.Authors) > 0 {
		pub := e.PubkeyHex()
		delegator := ""
		if d := e.DelegatedBy(); d != nil {
			delegator = hex.EncodeToString(d)
		}
		if !hasPrefixMatch(f.Authors, pub) && (delegator == "" || !hasPrefixMatch(f.Authors, delegator)) {
			return false
		}
	}
	if len(f.Kinds) > 0 {
		match := false
		for _, k := range f.Kinds {
			if k == e.Kind {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	for name, vals := range f.Tags {
		tagVals := e.Tags.Values(name)
		found := false
		for _, want := range vals {
			for _, got := range tagVals {
				if want == got {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Since != nil && e.CreatedAt <= *f.Since {
		return false
	}
	if f.Until != nil && e.CreatedAt >= *f.Until {
		return false
	}
	return true
}

func hasPrefixMatch(prefixes []string, hexStr string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(hexStr, p) {
			return true
		}
	}
	return false
}

// Subscription is a client's named, possibly-multi-filter request: the
// observable result set is the union of every filter's matches.
type Subscription struct {
	SubID   string
	Filters []*F
}

// Matches reports whether e satisfies any filter in the subscription.
func (s *Subscription) Matches(e *event.E) bool {
	for _, f := range s.Filters {
		if f.Matches(e) {
			return true
		}
	}
	return false
}
