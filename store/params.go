package store

// Param is one positional bind value for a Compiled query. Only parsed
// integers (kinds, since, until, limit) are ever inlined into SQL text;
// every string or blob value a filter contributes, including decoded hex
// prefixes, is bound through a Param.
type Param struct {
	Kind ParamKind
	I    int64
	S    string
	B    []byte
}

// ParamKind discriminates the Param union.
type ParamKind int

const (
	ParamInt ParamKind = iota
	ParamString
	ParamBlob
)

// Any returns p's value boxed for database/sql's driver.Valuer-style
// variadic argument lists.
func (p Param) Any() any {
	switch p.Kind {
	case ParamInt:
		return p.I
	case ParamString:
		return p.S
	case ParamBlob:
		return p.B
	}
	return nil
}

func intParam(i int64) Param    { return Param{Kind: ParamInt, I: i} }
func stringParam(s string) Param { return Param{Kind: ParamString, S: s} }
func blobParam(b []byte) Param   { return Param{Kind: ParamBlob, B: b} }

// Compiled is a parameterized SQL statement ready to execute: SQL text
// with positional '?' placeholders, and the ordered argument list.
type Compiled struct {
	SQL    string
	Params []Param
}

// Args returns c.Params boxed for database/sql's QueryContext/ExecContext
// variadic argument lists.
func (c Compiled) Args() []any {
	args := make([]any, len(c.Params))
	for i, p := range c.Params {
		args[i] = p.Any()
	}
	return args
}
