package client

import (
	"encoding/json"
	"strings"

	"github.com/google/cel-go/cel"
)

// celFilter wraps a compiled CEL program evaluated against rendered log
// entries. When disabled, Eval always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("index", cel.IntType),
		cel.Variable("term", cel.IntType),
		cel.Variable("stream", cel.IntType),
		cel.Variable("name", cel.StringType),
		cel.Variable("tag", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// Decoded value as JSON (map/list/values) for field filtering
		cel.Variable("json", cel.DynType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	prog, err := env.Program(ast)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the expression against r. Evaluation errors and non-bool
// results count as a mismatch.
func (f celFilter) Eval(r record) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	if len(r.Value) > 0 {
		_ = json.Unmarshal(r.Value, &jsonObj)
	}
	out, _, err := f.prog.Eval(map[string]any{
		"index":  int64(r.Index),
		"term":   int64(r.Term),
		"stream": int64(r.Stream),
		"name":   r.Name,
		"tag":    int64(r.Tag),
		"size":   int64(r.Size),
		"text":   string(r.raw),
		"json":   jsonObj,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
