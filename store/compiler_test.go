package store

import (
	"strings"
	"testing"

	"brokerly.dev/event"
	"brokerly.dev/filter"
)

func TestCompileFilterForceNoMatch(t *testing.T) {
	f := &filter.F{ForceNoMatch: true}
	c, err := CompileFilter(f)
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	if !strings.Contains(c.SQL, "1=0") {
		t.Fatalf("expected an always-false predicate, got %s", c.SQL)
	}
	if len(c.Params) != 0 {
		t.Fatalf("expected no params, got %v", c.Params)
	}
}

func TestCompileFilterEmptyExcludesHidden(t *testing.T) {
	c, err := CompileFilter(&filter.F{})
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	if !strings.Contains(c.SQL, "hidden != TRUE") {
		t.Fatalf("expected hidden exclusion, got %s", c.SQL)
	}
	if !strings.HasSuffix(c.SQL, "ORDER BY e.created_at ASC") {
		t.Fatalf("expected ascending order without limit, got %s", c.SQL)
	}
}

func TestCompileFilterLimitOrdersDescending(t *testing.T) {
	limit := 10
	c, err := CompileFilter(&filter.F{Limit: &limit})
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	if !strings.HasSuffix(c.SQL, "ORDER BY e.created_at DESC LIMIT 10") {
		t.Fatalf("expected descending limited order, got %s", c.SQL)
	}
}

func TestCompileFilterAuthorsExactMatchesBothColumns(t *testing.T) {
	author := strings.Repeat("ab", 32)
	c, err := CompileFilter(&filter.F{Authors: []string{author}})
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	if !strings.Contains(c.SQL, "author=? OR delegated_by=?") {
		t.Fatalf("expected exact author/delegated_by clause, got %s", c.SQL)
	}
	if len(c.Params) != 2 {
		t.Fatalf("expected 2 params for exact match, got %d", len(c.Params))
	}
}

func TestCompileFilterAuthorsPrefixUsesRange(t *testing.T) {
	c, err := CompileFilter(&filter.F{Authors: []string{"ab"}})
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	if !strings.Contains(c.SQL, "author>? AND author<?") {
		t.Fatalf("expected range clause for short prefix, got %s", c.SQL)
	}
}

func TestCompileFilterEmptyAuthorsNeverMatches(t *testing.T) {
	c, err := CompileFilter(&filter.F{Authors: []string{}})
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	if !strings.Contains(c.SQL, "false") {
		t.Fatalf("expected a never-match predicate for empty authors, got %s", c.SQL)
	}
}

func TestCompileFilterKindsInline(t *testing.T) {
	c, err := CompileFilter(&filter.F{Kinds: []event.Kind{1, 3}})
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	if !strings.Contains(c.SQL, "kind IN (1, 3)") {
		t.Fatalf("expected inlined kind set, got %s", c.SQL)
	}
}

func TestCompileFilterTagClauseParameterizesValues(t *testing.T) {
	hexVal := strings.Repeat("aa", 8)
	c, err := CompileFilter(&filter.F{Tags: map[string][]string{"p": {"hello", hexVal}}})
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	if !strings.Contains(c.SQL, "name = ?") {
		t.Fatalf("expected tag name as parameter, got %s", c.SQL)
	}
	if strings.Contains(c.SQL, "hello") || strings.Contains(c.SQL, hexVal) {
		t.Fatalf("tag values must never be interpolated into SQL text, got %s", c.SQL)
	}
	if len(c.Params) != 3 {
		t.Fatalf("expected name + 1 string + 1 blob param, got %d", len(c.Params))
	}
}

func TestCompileFilterSinceUntilInlined(t *testing.T) {
	since := int64(100)
	until := int64(200)
	c, err := CompileFilter(&filter.F{Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("CompileFilter: %v", err)
	}
	if !strings.Contains(c.SQL, "created_at > 100") || !strings.Contains(c.SQL, "created_at < 200") {
		t.Fatalf("expected inlined time bounds, got %s", c.SQL)
	}
}

func TestCompileSubscriptionUnionsFilters(t *testing.T) {
	sub := &filter.Subscription{
		SubID: "s1",
		Filters: []*filter.F{
			{Kinds: []event.Kind{1}},
			{Kinds: []event.Kind{3}},
		},
	}
	c, err := CompileSubscription(sub)
	if err != nil {
		t.Fatalf("CompileSubscription: %v", err)
	}
	if strings.Count(c.SQL, "UNION") != 1 {
		t.Fatalf("expected a single UNION joining two filters, got %s", c.SQL)
	}
}
