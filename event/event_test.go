package event

import (
	"encoding/hex"
	"encoding/json"
	"testing"
)

func sampleEvent(t *testing.T) *E {
	t.Helper()
	e := &E{
		Pubkey:    mustHex(t, "bb"+zeros(62)),
		CreatedAt: 1000,
		Kind:      1,
		Tags:      Tags{{"p", "abc"}},
		Content:   "hi",
	}
	e.Id = e.ComputeID()
	return e
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad test hex %q: %v", s, err)
	}
	return b
}

func zeros(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}

func TestComputeIDDeterministic(t *testing.T) {
	e := sampleEvent(t)
	got := e.ComputeID()
	if hex.EncodeToString(got) != hex.EncodeToString(e.Id) {
		t.Fatalf("ComputeID not stable across calls")
	}
	if !e.IDValid() {
		t.Fatalf("expected IDValid true for a freshly computed id")
	}
}

func TestComputeIDChangesWithContent(t *testing.T) {
	e1 := sampleEvent(t)
	e2 := sampleEvent(t)
	e2.Content = "bye"
	if hex.EncodeToString(e1.ComputeID()) == hex.EncodeToString(e2.ComputeID()) {
		t.Fatalf("expected different ids for different content")
	}
}

func TestCanonicalStringEscaping(t *testing.T) {
	got := string(canonicalString("a\"b\\c\nd"))
	want := `"a\"b\\c\nd"`
	if got != want {
		t.Fatalf("canonicalString = %s, want %s", got, want)
	}
}

func TestStructurallyValidRejectsShortFields(t *testing.T) {
	e := sampleEvent(t)
	e.Sig = []byte{1, 2, 3}
	if err := e.StructurallyValid(); err == nil {
		t.Fatalf("expected error for short sig")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	e := sampleEvent(t)
	e.Sig = mustHex(t, zeros(128))
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got E
	if err = json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.IDHex() != e.IDHex() || got.Content != e.Content || got.CreatedAt != e.CreatedAt {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, e)
	}
}

func TestDelegatedBy(t *testing.T) {
	e := sampleEvent(t)
	delegator := zeros(62) + "aa"
	e.Tags = append(e.Tags, Tag{"delegation", delegator, "kind=1", "sig"})
	got := e.DelegatedBy()
	if hex.EncodeToString(got) != delegator {
		t.Fatalf("DelegatedBy = %x, want %s", got, delegator)
	}
}

func TestKindClassification(t *testing.T) {
	cases := []struct {
		k                        Kind
		ephemeral, replaceable   bool
	}{
		{0, false, true},
		{1, false, false},
		{3, false, true},
		{5, false, false},
		{10002, false, true},
		{19999, false, true},
		{20000, true, false},
		{29999, true, false},
		{30000, false, false},
	}
	for _, c := range cases {
		if got := c.k.IsEphemeral(); got != c.ephemeral {
			t.Errorf("Kind(%d).IsEphemeral() = %v, want %v", c.k, got, c.ephemeral)
		}
		if got := c.k.IsReplaceable(); got != c.replaceable {
			t.Errorf("Kind(%d).IsReplaceable() = %v, want %v", c.k, got, c.replaceable)
		}
	}
	if !Kind(0).IsMetadata() {
		t.Errorf("Kind(0).IsMetadata() = false, want true")
	}
	if !Kind(1).IsRegular() {
		t.Errorf("Kind(1).IsRegular() = false, want true")
	}
}
