// Package query implements a live query engine: a parsed query spec, a
// generator that walks the view producing candidate file nodes, an
// expression DAG evaluated against each candidate, and field rendering for
// surviving matches.
//
// It favors exported structs with small validating constructors, errors via
// github.com/pkg/errors, and glob/suffix matching via bmatcuk/doublestar/v4,
// the same glob library pkg/ignore uses for name-pattern matching.
package query

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/wisprd/wisp/pkg/clock"
	"github.com/wisprd/wisp/pkg/ignore"
	"github.com/wisprd/wisp/pkg/view"
	"github.com/wisprd/wisp/pkg/wpath"
)

// SinceField selects which tick field an expr's `since` term compares
// against: uses ctime by default, mtime/oclock if specified.
type SinceField int

const (
	SinceCtime SinceField = iota
	SinceMtime
	SinceOclock
)

// Comparator is an integer comparison operator for size-like terms.
type Comparator int

const (
	CmpEq Comparator = iota
	CmpNe
	CmpGt
	CmpGe
	CmpLt
	CmpLe
)

// ParseComparator maps a comparator name to a Comparator.
func ParseComparator(s string) (Comparator, error) {
	switch s {
	case "eq":
		return CmpEq, nil
	case "ne":
		return CmpNe, nil
	case "gt":
		return CmpGt, nil
	case "ge":
		return CmpGe, nil
	case "lt":
		return CmpLt, nil
	case "le":
		return CmpLe, nil
	default:
		return 0, errors.Errorf("unrecognized comparator %q", s)
	}
}

func compare(cmp Comparator, a, b int64) bool {
	switch cmp {
	case CmpEq:
		return a == b
	case CmpNe:
		return a != b
	case CmpGt:
		return a > b
	case CmpGe:
		return a >= b
	case CmpLt:
		return a < b
	case CmpLe:
		return a <= b
	default:
		return false
	}
}

// Candidate is the file the expression tree and renderer operate on.
// It is a flattened projection of a view.File plus its path relative
// to the root, since the view's arena does not itself carry full
// paths.
type Candidate struct {
	WholeName string // path relative to the root, '/'-separated
	File      *view.File
}

func (c Candidate) baseName() string {
	return wpath.BaseName(c.WholeName)
}

func (c Candidate) dirName() string {
	return wpath.DirName(c.WholeName)
}

// Expr is a node in the expression DAG.
type Expr interface {
	eval(c Candidate, caseSensitive bool) (bool, error)
}

type exprAllOf struct{ terms []Expr }

func (e exprAllOf) eval(c Candidate, cs bool) (bool, error) {
	for _, t := range e.terms {
		ok, err := t.eval(c, cs)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

type exprAnyOf struct{ terms []Expr }

func (e exprAnyOf) eval(c Candidate, cs bool) (bool, error) {
	for _, t := range e.terms {
		ok, err := t.eval(c, cs)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

type exprNot struct{ term Expr }

func (e exprNot) eval(c Candidate, cs bool) (bool, error) {
	ok, err := e.term.eval(c, cs)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

type exprTrue struct{}

func (exprTrue) eval(Candidate, bool) (bool, error) { return true, nil }

type exprFalse struct{}

func (exprFalse) eval(Candidate, bool) (bool, error) { return false, nil }

type exprExists struct{}

func (exprExists) eval(c Candidate, _ bool) (bool, error) { return c.File.Exists, nil }

type exprEmpty struct{}

func (exprEmpty) eval(c Candidate, _ bool) (bool, error) { return c.File.Info.Size == 0, nil }

type exprType struct{ kind string }

func (e exprType) eval(c Candidate, _ bool) (bool, error) {
	switch e.kind {
	case "f":
		return c.File.Info.Mode.IsRegular(), nil
	case "d":
		return c.File.Info.Mode.IsDir(), nil
	case "l":
		return c.File.Info.SymlinkTo != "", nil
	default:
		return false, errors.Errorf("unrecognized type character %q", e.kind)
	}
}

type exprSize struct {
	cmp   Comparator
	value int64
}

func (e exprSize) eval(c Candidate, _ bool) (bool, error) {
	return compare(e.cmp, c.File.Info.Size, e.value), nil
}

// exprName matches the whole name or the base name exactly against a
// list of names. name and match default to comparing the base name;
// wholename compares the path relative to the root.
type exprName struct {
	names     []string
	wholeName bool
}

func (e exprName) eval(c Candidate, caseSensitive bool) (bool, error) {
	subject := c.baseName()
	if e.wholeName {
		subject = c.WholeName
	}
	for _, n := range e.names {
		if wpath.PathIsEqual(subject, n, caseSensitive) {
			return true, nil
		}
	}
	return false, nil
}

// exprMatch is a shell-glob match against the base name or whole name.
type exprMatch struct {
	pattern   string
	wholeName bool
}

func (e exprMatch) eval(c Candidate, caseSensitive bool) (bool, error) {
	subject := c.baseName()
	if e.wholeName {
		subject = c.WholeName
	}
	pattern := e.pattern
	if !caseSensitive {
		subject = strings.ToLower(subject)
		pattern = strings.ToLower(pattern)
	}
	ok, err := doublestar.Match(pattern, subject)
	if err != nil {
		return false, errors.Wrap(err, "invalid match pattern")
	}
	return ok, nil
}

// exprSuffix matches the file's extension against a lowercased suffix
// list.
type exprSuffix struct{ suffixes []string }

func (e exprSuffix) eval(c Candidate, _ bool) (bool, error) {
	ext := strings.TrimPrefix(filepath.Ext(c.baseName()), ".")
	for _, s := range e.suffixes {
		if wpath.PathIsEqual(ext, s, false) {
			return true, nil
		}
	}
	return false, nil
}

// exprDirname matches a candidate whose containing directory equals,
// or is a descendant of, one of the given directories.
type exprDirname struct{ dirs []string }

func (e exprDirname) eval(c Candidate, caseSensitive bool) (bool, error) {
	dir := c.dirName()
	for _, d := range e.dirs {
		if wpath.PathIsEqual(dir, d, caseSensitive) {
			return true, nil
		}
		if len(dir) > len(d) && dir[len(d)] == '/' && wpath.PathIsEqual(dir[:len(d)], d, caseSensitive) {
			return true, nil
		}
	}
	return false, nil
}

// exprSince matches files touched since a given tick, using the
// configured tick field.
type exprSince struct {
	field SinceField
	ticks uint64
}

func (e exprSince) eval(c Candidate, _ bool) (bool, error) {
	var tick uint64
	switch e.field {
	case SinceMtime:
		tick = c.File.ContentTick
	case SinceOclock:
		tick = c.File.Oclock
	default:
		tick = c.File.CtimeTick
	}
	return tick > e.ticks, nil
}

// Expression constructors, exported for callers building a query spec
// programmatically (e.g. a PDU-parsing command layer above this
// package).

func AllOf(terms ...Expr) Expr              { return exprAllOf{terms} }
func AnyOf(terms ...Expr) Expr              { return exprAnyOf{terms} }
func Not(term Expr) Expr                    { return exprNot{term} }
func True() Expr                            { return exprTrue{} }
func False() Expr                           { return exprFalse{} }
func Exists() Expr                          { return exprExists{} }
func Empty() Expr                           { return exprEmpty{} }
func Type(kind string) Expr                 { return exprType{kind} }
func Size(cmp Comparator, value int64) Expr { return exprSize{cmp, value} }
func Name(wholeName bool, names ...string) Expr {
	return exprName{names: names, wholeName: wholeName}
}
func Match(pattern string, wholeName bool) Expr { return exprMatch{pattern, wholeName} }
func Suffix(suffixes ...string) Expr            { return exprSuffix{suffixes} }
func Dirname(dirs ...string) Expr               { return exprDirname{dirs} }
func Since(field SinceField, ticks uint64) Expr { return exprSince{field, ticks} }

// Pcre matches the base name or whole name against a PCRE-flavored
// pattern, using go.elara.ws/pcre, the PCRE binding the
// pack's other_examples grep tool depends on, so `pcre` gets genuine
// PCRE semantics distinct from match's shell-glob syntax.
func Pcre(pattern string, wholeName bool) (Expr, error) {
	return newPcreExpr(pattern, wholeName)
}

// PathTerm names a root-relative path and a recursion depth:
// `{name, depth}` where depth -1 means unlimited recursion and 0 means
// the exact path only.
type PathTerm struct {
	Name  string
	Depth int
}

// Spec is a parsed query specification.
type Spec struct {
	CaseSensitive            bool
	EmptyOnFreshInstance     bool
	DedupResults             bool
	RelativeRoot             string
	Paths                    []PathTerm
	GlobTree                 []string // flattened glob patterns; "**" segments are a dedicated branch in doublestar
	Suffixes                 []string
	SyncTimeout, LockTimeout time.Duration
	SinceSpec                clock.Since
	Expr                     Expr
	FieldList                []string
}

// generatorKind names the candidate generators chooseGenerator picks from,
// in priority order: the since-tick generator if the resolved since carries
// ticks, a timestamp or a fresh instance; then suffix list; then path list;
// then glob tree; else a full walk.
type generatorKind int

const (
	genSinceTick generatorKind = iota
	genSuffix
	genPaths
	genGlob
	genAll
)

func (s *Spec) chooseGenerator(resolved clock.Resolved) generatorKind {
	if resolved.IsTimestamp || resolved.Ticks > 0 || resolved.IsFreshInstance {
		return genSinceTick
	}
	if len(s.Suffixes) > 0 {
		return genSuffix
	}
	if len(s.Paths) > 0 {
		return genPaths
	}
	if len(s.GlobTree) > 0 {
		return genGlob
	}
	return genAll
}

// Stats reports generator performance counters (each generator increments
// a num_walked counter)
// and surfaced here as Result.Stats for callers that want visibility,
// supplementing the distilled spec with the original's debug-cookie
// bookkeeping (original_source/query/eval.cpp).
type Stats struct {
	NumWalked  int
	NumMatched int
}

// Result is a completed query's output.
type Result struct {
	Clock   string
	IsFreshInstance bool
	Files   []Rendered
	Stats   Stats
}

// Rendered is a single matched file's rendered field set.
type Rendered map[string]interface{}

// Renderer produces a field's value for a matched candidate. Execute calls
// each renderer synchronously, in match order, and stores the value it
// returns; a field that needs I/O (such as content.sha1hex) does that I/O
// inside its renderer.
type Renderer func(c Candidate) (interface{}, error)

// DefaultRenderers is the built-in field-name to Renderer table for
// fields outside of content hashing (which callers wire in themselves,
// since it requires a *contenthash.Cache).
var DefaultRenderers = map[string]Renderer{
	"name": func(c Candidate) (interface{}, error) { return c.baseName(), nil },
	"exists": func(c Candidate) (interface{}, error) { return c.File.Exists, nil },
	"size": func(c Candidate) (interface{}, error) { return c.File.Info.Size, nil },
	"mtime": func(c Candidate) (interface{}, error) { return c.File.Info.ModTime.Unix(), nil },
	"new": func(c Candidate) (interface{}, error) { return c.File.CtimeTick == c.File.OtimeTick, nil },
}

// Generator produces candidate files for the query engine to filter.
// It is supplied by the caller (the root package), since only it has
// access to the live view tree and ignore set.
type Generator func(s *Spec, ig *ignore.Set) ([]Candidate, int)

// Execute runs a query spec's full six-stage pipeline (cookie sync is
// the caller's responsibility before
// calling Execute, since it requires blocking I/O this package does not
// own).
func Execute(s *Spec, resolved clock.Resolved, ig *ignore.Set, generate Generator, renderers map[string]Renderer) (*Result, error) {
	if s.EmptyOnFreshInstance && resolved.IsFreshInstance {
		return &Result{IsFreshInstance: true}, nil
	}

	candidates, numWalked := generate(s, ig)

	seen := make(map[string]bool)
	var matched []Candidate
	for _, c := range candidates {
		if s.RelativeRoot != "" && !strings.HasPrefix(c.WholeName, s.RelativeRoot+"/") && c.WholeName != s.RelativeRoot {
			continue
		}
		if s.Expr != nil {
			ok, err := s.Expr.eval(c, s.CaseSensitive)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		if s.DedupResults {
			if seen[c.WholeName] {
				continue
			}
			seen[c.WholeName] = true
		}
		matched = append(matched, c)
	}

	rendered := make([]Rendered, len(matched))
	for i, c := range matched {
		out := make(Rendered, len(s.FieldList))
		for _, field := range s.FieldList {
			renderer, ok := renderers[field]
			if !ok {
				return nil, errors.Errorf("unknown field %q", field)
			}
			value, err := renderer(c)
			if err != nil {
				return nil, errors.Wrapf(err, "rendering field %q for %q", field, c.WholeName)
			}
			out[field] = value
		}
		rendered[i] = out
	}

	return &Result{
		Files: rendered,
		Stats: Stats{NumWalked: numWalked, NumMatched: len(matched)},
	}, nil
}
