// Package command implements the PDU-level command layer: parsing a
// [command, arg...] request array into the pkg/query/pkg/clock types those
// packages expose for programmatic callers, dispatching to the handler for
// each command name, and rendering results back into bser.Value PDUs.
package command

import (
	"time"

	"github.com/pkg/errors"

	"github.com/wisprd/wisp/pkg/bser"
	"github.com/wisprd/wisp/pkg/clock"
	"github.com/wisprd/wisp/pkg/query"
)

func asString(v bser.Value) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bser.String:
		if x.RawBytes != nil {
			return string(x.RawBytes), true
		}
		return x.Value, true
	default:
		return "", false
	}
}

func asInt(v bser.Value) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asBool(v bser.Value) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asArray(v bser.Value) ([]bser.Value, bool) {
	a, ok := v.([]bser.Value)
	return a, ok
}

func asMap(v bser.Value) (map[string]bser.Value, bool) {
	m, ok := v.(map[string]bser.Value)
	return m, ok
}

// stringList accepts either a single string or an array of strings,
// matching the shorthand the wire protocol allows for most list-shaped
// query fields.
func stringList(v bser.Value) ([]string, error) {
	if s, ok := asString(v); ok {
		return []string{s}, nil
	}
	arr, ok := asArray(v)
	if !ok {
		return nil, errors.New("expected a string or an array of strings")
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		s, ok := asString(e)
		if !ok {
			return nil, errors.New("expected string element")
		}
		out = append(out, s)
	}
	return out, nil
}

// parseExpr parses a single expression term, recursively for the boolean
// combinators. Term shapes mirror the constructors query.go exports for
// exactly this purpose.
func parseExpr(v bser.Value) (query.Expr, error) {
	arr, ok := asArray(v)
	if !ok || len(arr) == 0 {
		return nil, errors.New("expression term must be a non-empty array")
	}
	op, ok := asString(arr[0])
	if !ok {
		return nil, errors.New("expression operator must be a string")
	}

	switch op {
	case "allof", "anyof":
		terms := make([]query.Expr, 0, len(arr)-1)
		for _, t := range arr[1:] {
			e, err := parseExpr(t)
			if err != nil {
				return nil, err
			}
			terms = append(terms, e)
		}
		if op == "allof" {
			return query.AllOf(terms...), nil
		}
		return query.AnyOf(terms...), nil

	case "not":
		if len(arr) != 2 {
			return nil, errors.New("not takes exactly one term")
		}
		inner, err := parseExpr(arr[1])
		if err != nil {
			return nil, err
		}
		return query.Not(inner), nil

	case "true":
		return query.True(), nil
	case "false":
		return query.False(), nil
	case "exists":
		return query.Exists(), nil
	case "empty":
		return query.Empty(), nil

	case "type":
		if len(arr) != 2 {
			return nil, errors.New("type takes exactly one argument")
		}
		kind, ok := asString(arr[1])
		if !ok {
			return nil, errors.New("type argument must be a string")
		}
		return query.Type(kind), nil

	case "size":
		if len(arr) != 3 {
			return nil, errors.New("size takes a comparator and a value")
		}
		cmpName, ok := asString(arr[1])
		if !ok {
			return nil, errors.New("size comparator must be a string")
		}
		cmp, err := query.ParseComparator(cmpName)
		if err != nil {
			return nil, err
		}
		value, ok := asInt(arr[2])
		if !ok {
			return nil, errors.New("size value must be a number")
		}
		return query.Size(cmp, value), nil

	case "name", "iname":
		if len(arr) < 2 {
			return nil, errors.New("name takes at least one argument")
		}
		names, err := stringList(arr[1])
		if err != nil {
			return nil, errors.Wrap(err, "name")
		}
		return query.Name(termScopeIsWholeName(arr, 2), names...), nil

	case "match", "imatch":
		if len(arr) < 2 {
			return nil, errors.New("match takes a pattern argument")
		}
		pattern, ok := asString(arr[1])
		if !ok {
			return nil, errors.New("match pattern must be a string")
		}
		return query.Match(pattern, termScopeIsWholeName(arr, 2)), nil

	case "pcre", "ipcre":
		if len(arr) < 2 {
			return nil, errors.New("pcre takes a pattern argument")
		}
		pattern, ok := asString(arr[1])
		if !ok {
			return nil, errors.New("pcre pattern must be a string")
		}
		return query.Pcre(pattern, termScopeIsWholeName(arr, 2))

	case "suffix":
		if len(arr) < 2 {
			return nil, errors.New("suffix takes at least one argument")
		}
		suffixes, err := stringList(arr[1])
		if err != nil {
			return nil, errors.Wrap(err, "suffix")
		}
		return query.Suffix(suffixes...), nil

	case "dirname":
		if len(arr) < 2 {
			return nil, errors.New("dirname takes a directory argument")
		}
		dirs, err := stringList(arr[1])
		if err != nil {
			return nil, errors.Wrap(err, "dirname")
		}
		return query.Dirname(dirs...), nil

	case "since":
		if len(arr) < 2 {
			return nil, errors.New("since takes a tick argument")
		}
		ticks, ok := asInt(arr[1])
		if !ok {
			return nil, errors.New("since tick argument must be a number")
		}
		field := query.SinceCtime
		if len(arr) >= 3 {
			if name, ok := asString(arr[2]); ok {
				switch name {
				case "oclock":
					field = query.SinceOclock
				case "mtime":
					field = query.SinceMtime
				}
			}
		}
		return query.Since(field, uint64(ticks)), nil

	default:
		return nil, errors.Errorf("unrecognized expression operator %q", op)
	}
}

// termScopeIsWholeName reports whether the optional scope argument at
// arr[idx] (present on name/match/pcre terms) reads "wholename" rather
// than the default "basename".
func termScopeIsWholeName(arr []bser.Value, idx int) bool {
	if idx >= len(arr) {
		return false
	}
	scope, ok := asString(arr[idx])
	return ok && scope == "wholename"
}

// parseSince parses a query object's top-level "since" value: a clock
// string, a bare cursor name, or a Unix timestamp.
func parseSince(v bser.Value) (clock.Since, error) {
	if ts, ok := asInt(v); ok {
		return clock.Since{Kind: clock.SinceTimestamp, Timestamp: ts}, nil
	}
	s, ok := asString(v)
	if !ok {
		return clock.Since{}, errors.New("since value must be a string or number")
	}
	if parsed, err := clock.Parse(s); err == nil {
		return clock.Since{Kind: clock.SinceClock, Clock: parsed.Tuple}, nil
	}
	return clock.Since{Kind: clock.SinceCursor, Cursor: s}, nil
}

func parsePathTerms(v bser.Value) ([]query.PathTerm, error) {
	arr, ok := asArray(v)
	if !ok {
		return nil, errors.New("path must be an array")
	}
	terms := make([]query.PathTerm, 0, len(arr))
	for _, e := range arr {
		if s, ok := asString(e); ok {
			terms = append(terms, query.PathTerm{Name: s, Depth: -1})
			continue
		}
		m, ok := asMap(e)
		if !ok {
			return nil, errors.New("path entry must be a string or an object")
		}
		name, _ := asString(m["path"])
		depth := -1
		if dv, ok := m["depth"]; ok {
			if d, ok := asInt(dv); ok {
				depth = int(d)
			}
		}
		terms = append(terms, query.PathTerm{Name: name, Depth: depth})
	}
	return terms, nil
}

// parseSpec parses a full query object into a query.Spec. Every field is
// optional; an empty object matches every file under the root (its
// expression is query.True()) and renders just the "name" field.
func parseSpec(m map[string]bser.Value) (*query.Spec, error) {
	spec := &query.Spec{Expr: query.True(), FieldList: []string{"name"}}

	if v, ok := m["expression"]; ok {
		expr, err := parseExpr(v)
		if err != nil {
			return nil, err
		}
		spec.Expr = expr
	}
	if v, ok := m["fields"]; ok {
		fields, err := stringList(v)
		if err != nil {
			return nil, errors.Wrap(err, "fields")
		}
		spec.FieldList = fields
	}
	if v, ok := m["relative_root"]; ok {
		s, ok := asString(v)
		if !ok {
			return nil, errors.New("relative_root must be a string")
		}
		spec.RelativeRoot = s
	}
	if v, ok := m["case_sensitive"]; ok {
		b, ok := asBool(v)
		if !ok {
			return nil, errors.New("case_sensitive must be a boolean")
		}
		spec.CaseSensitive = b
	}
	if v, ok := m["empty_on_fresh_instance"]; ok {
		b, ok := asBool(v)
		if !ok {
			return nil, errors.New("empty_on_fresh_instance must be a boolean")
		}
		spec.EmptyOnFreshInstance = b
	}
	if v, ok := m["dedup_results"]; ok {
		b, ok := asBool(v)
		if !ok {
			return nil, errors.New("dedup_results must be a boolean")
		}
		spec.DedupResults = b
	}
	if v, ok := m["suffix"]; ok {
		suffixes, err := stringList(v)
		if err != nil {
			return nil, errors.Wrap(err, "suffix")
		}
		spec.Suffixes = suffixes
	}
	if v, ok := m["glob"]; ok {
		globs, err := stringList(v)
		if err != nil {
			return nil, errors.Wrap(err, "glob")
		}
		spec.GlobTree = globs
	}
	if v, ok := m["path"]; ok {
		paths, err := parsePathTerms(v)
		if err != nil {
			return nil, errors.Wrap(err, "path")
		}
		spec.Paths = paths
	}
	if v, ok := m["since"]; ok {
		since, err := parseSince(v)
		if err != nil {
			return nil, errors.Wrap(err, "since")
		}
		spec.SinceSpec = since
	}
	if v, ok := m["sync_timeout"]; ok {
		ms, ok := asInt(v)
		if !ok {
			return nil, errors.New("sync_timeout must be a number of milliseconds")
		}
		spec.SyncTimeout = time.Duration(ms) * time.Millisecond
	}
	if v, ok := m["lock_timeout"]; ok {
		ms, ok := asInt(v)
		if !ok {
			return nil, errors.New("lock_timeout must be a number of milliseconds")
		}
		spec.LockTimeout = time.Duration(ms) * time.Millisecond
	}

	return spec, nil
}
