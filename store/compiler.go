package store

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"brokerly.dev/filter"
)

// CompileFilter translates a single Filter into a parameterized SQL
// statement against the event table. No user-supplied text is ever
// interpolated: integers are validated by being parsed, hex tokens are
// validated by compileHexSearch, and everything else is a positional
// Param.
func CompileFilter(f *filter.F) (Compiled, error) {
	if f.ForceNoMatch {
		return Compiled{SQL: "SELECT content, created_at FROM event WHERE 1=0"}, nil
	}

	var predicates []string
	var params []Param
	predicates = append(predicates, "hidden != TRUE")

	if f.Authors != nil {
		clause, clauseParams, ok := compileHexClauseWithDelegation(f.Authors)
		if !ok {
			predicates = append(predicates, "false")
		} else {
			predicates = append(predicates, clause)
			params = append(params, clauseParams...)
		}
	}

	if f.Kinds != nil {
		if len(f.Kinds) == 0 {
			predicates = append(predicates, "false")
		} else {
			parts := make([]string, len(f.Kinds))
			for i, k := range f.Kinds {
				parts[i] = strconv.FormatUint(uint64(k), 10)
			}
			predicates = append(predicates, fmt.Sprintf("kind IN (%s)", strings.Join(parts, ", ")))
		}
	}

	if f.Ids != nil {
		clause, clauseParams, ok := compileHexClause(f.Ids, "event_hash")
		if !ok {
			predicates = append(predicates, "false")
		} else {
			predicates = append(predicates, clause)
			params = append(params, clauseParams...)
		}
	}

	if len(f.Tags) > 0 {
		names := make([]string, 0, len(f.Tags))
		for name := range f.Tags {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			clause, clauseParams := compileTagClause(name, f.Tags[name])
			predicates = append(predicates, clause)
			params = append(params, clauseParams...)
		}
	}

	if f.Since != nil {
		predicates = append(predicates, fmt.Sprintf("created_at > %d", *f.Since))
	}
	if f.Until != nil {
		predicates = append(predicates, fmt.Sprintf("created_at < %d", *f.Until))
	}

	query := "SELECT e.content, e.created_at FROM event e WHERE " + strings.Join(predicates, " AND ")
	if f.Limit != nil {
		query += fmt.Sprintf(" ORDER BY e.created_at DESC LIMIT %d", *f.Limit)
	} else {
		query += " ORDER BY e.created_at ASC"
	}
	return Compiled{SQL: query, Params: params}, nil
}

// CompileSubscription compiles every filter independently and unions the
// results. The UNION preserves no global ordering across filters;
// clients deduplicate by event id.
func CompileSubscription(sub *filter.Subscription) (Compiled, error) {
	var selects []string
	var params []Param
	for _, f := range sub.Filters {
		c, err := CompileFilter(f)
		if err != nil {
			return Compiled{}, err
		}
		selects = append(selects, fmt.Sprintf("SELECT DISTINCT content, created_at FROM (%s)", c.SQL))
		params = append(params, c.Params...)
	}
	return Compiled{SQL: strings.Join(selects, " UNION "), Params: params}, nil
}

// compileHexClause builds an OR-combined HexSearch predicate against a
// single column (used for ids against event_hash). ok is false if the
// prefix list was empty or every prefix failed to parse.
func compileHexClause(prefixes []string, column string) (string, []Param, bool) {
	if len(prefixes) == 0 {
		return "", nil, false
	}
	var clauses []string
	var params []Param
	for _, p := range prefixes {
		hs, ok := compileHexSearch(p)
		if !ok {
			continue
		}
		switch hs.Kind {
		case HexExact:
			clauses = append(clauses, fmt.Sprintf("%s=?", column))
			params = append(params, blobParam(hs.Exact))
		case HexRange:
			clauses = append(clauses, fmt.Sprintf("(%s>? AND %s<?)", column, column))
			params = append(params, blobParam(hs.Lower), blobParam(hs.Upper))
		case HexLowerOnly:
			clauses = append(clauses, fmt.Sprintf("%s>?", column))
			params = append(params, blobParam(hs.Lower))
		}
	}
	if len(clauses) == 0 {
		return "", nil, false
	}
	return "(" + strings.Join(clauses, " OR ") + ")", params, true
}

// compileHexClauseWithDelegation builds the authors predicate: every
// candidate HexSearch clause is OR'd against both the author column and
// the delegated_by column, so a filter on an author also matches events
// that author delegated to someone else.
func compileHexClauseWithDelegation(prefixes []string) (string, []Param, bool) {
	if len(prefixes) == 0 {
		return "", nil, false
	}
	var clauses []string
	var params []Param
	for _, p := range prefixes {
		hs, ok := compileHexSearch(p)
		if !ok {
			continue
		}
		switch hs.Kind {
		case HexExact:
			clauses = append(clauses, "(author=? OR delegated_by=?)")
			params = append(params, blobParam(hs.Exact), blobParam(hs.Exact))
		case HexRange:
			clauses = append(clauses, "((author>? AND author<?) OR (delegated_by>? AND delegated_by<?))")
			params = append(params, blobParam(hs.Lower), blobParam(hs.Upper), blobParam(hs.Lower), blobParam(hs.Upper))
		case HexLowerOnly:
			clauses = append(clauses, "(author>? OR delegated_by>?)")
			params = append(params, blobParam(hs.Lower), blobParam(hs.Lower))
		}
	}
	if len(clauses) == 0 {
		return "", nil, false
	}
	return "(" + strings.Join(clauses, " OR ") + ")", params, true
}

// compileTagClause builds the correlated-subquery predicate for a single
// `#x` tag filter, splitting candidate values into text and even-length
// lowercase-hex blob params.
func compileTagClause(name string, values []string) (string, []Param) {
	var strVals, blobVals []Param
	for _, v := range values {
		if len(v)%2 == 0 && isLowerHex(v) {
			if b, err := hex.DecodeString(v); err == nil {
				blobVals = append(blobVals, blobParam(b))
				continue
			}
		}
		strVals = append(strVals, stringParam(v))
	}
	strPlaceholders := placeholders(len(strVals))
	blobPlaceholders := placeholders(len(blobVals))
	clause := fmt.Sprintf(
		"e.id IN (SELECT e.id FROM event e LEFT JOIN tag t ON e.id = t.event_id WHERE hidden != TRUE AND (name = ? AND (value IN (%s) OR value_hex IN (%s))))",
		strPlaceholders, blobPlaceholders,
	)
	params := make([]Param, 0, 1+len(strVals)+len(blobVals))
	params = append(params, stringParam(name))
	params = append(params, strVals...)
	params = append(params, blobVals...)
	return clause, params
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ",")
}

