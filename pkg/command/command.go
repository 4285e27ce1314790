package command

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/wisprd/wisp/pkg/bser"
	"github.com/wisprd/wisp/pkg/clock"
	"github.com/wisprd/wisp/pkg/config"
	"github.com/wisprd/wisp/pkg/contenthash"
	"github.com/wisprd/wisp/pkg/cookie"
	"github.com/wisprd/wisp/pkg/pubsub"
	"github.com/wisprd/wisp/pkg/query"
	"github.com/wisprd/wisp/pkg/root"
	"github.com/wisprd/wisp/pkg/watching"
)

// versionString is reported in every response's "version" field, the way
// a watchman-protocol client expects to distinguish server capabilities.
const versionString = "wisp 0.1"

const contentHashCacheCapacity = 8192

const contentHashErrorTTL = time.Second

// Response is what dispatching a command produces: a PDU value to send
// back to the caller immediately, plus (for "subscribe") the live
// subscription a connection's push loop should keep draining.
type Response struct {
	Value            bser.Value
	Subscription     *pubsub.Subscription
	SubscriptionName string
	Root             *root.Root
}

// Registry tracks every watched root for one daemon process, the
// process-wide clock identity stamped into each root's clock, the shared
// content-hash cache content.sha1hex renders from, and named
// subscriptions so "unsubscribe" can find the subscription a prior
// "subscribe" call created.
type Registry struct {
	process clock.ProcessContext
	config  *config.Configuration

	mu            sync.Mutex
	roots         map[string]*root.Root
	subscriptions map[string]*pubsub.Subscription
	nextRootNumber int64

	content *contenthash.Cache
}

// NewRegistry creates an empty command registry. cfg supplies the
// default sync/lock timeouts a query can omit; pass config.Default() if
// no on-disk configuration was loaded.
func NewRegistry(process clock.ProcessContext, cfg *config.Configuration) *Registry {
	return &Registry{
		process:       process,
		config:        cfg,
		roots:         make(map[string]*root.Root),
		subscriptions: make(map[string]*pubsub.Subscription),
		content:       contenthash.New(contentHashCacheCapacity, contentHashErrorTTL),
	}
}

// Dispatch decodes a single PDU value shaped as [command, arg...] and
// runs the named command.
func (reg *Registry) Dispatch(value bser.Value) (*Response, error) {
	arr, ok := asArray(value)
	if !ok || len(arr) == 0 {
		return nil, errors.New("command: PDU must be a non-empty array")
	}
	name, ok := asString(arr[0])
	if !ok {
		return nil, errors.New("command: command name must be a string")
	}
	args := arr[1:]

	switch name {
	case "watch-project", "watch":
		return reg.watchProject(args)
	case "watch-list":
		return reg.watchList()
	case "query":
		return reg.queryCommand(args)
	case "since":
		return reg.sinceCommand(args)
	case "subscribe":
		return reg.subscribeCommand(args)
	case "unsubscribe":
		return reg.unsubscribeCommand(args)
	default:
		return nil, errors.Errorf("command: unrecognized command %q", name)
	}
}

func (reg *Registry) watchProject(args []bser.Value) (*Response, error) {
	if len(args) < 1 {
		return nil, errors.New("watch-project: missing path argument")
	}
	path, ok := asString(args[0])
	if !ok {
		return nil, errors.New("watch-project: path argument must be a string")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "watch-project: unable to resolve path")
	}

	r, relative, err := reg.ensureRoot(abs)
	if err != nil {
		return nil, err
	}

	return &Response{
		Value: map[string]bser.Value{
			"version":       versionString,
			"watch":         r.Path,
			"relative_path": relative,
		},
		Root: r,
	}, nil
}

// ensureRoot finds the watched root that already covers abs, or starts a
// new one rooted exactly at abs if none does. Unlike watchman's
// upward search for a containing project marker, a "watch-project" call
// here always watches exactly the directory it names; a path nested
// inside an already-watched root is resolved against that root instead
// of starting a redundant second watch.
func (reg *Registry) ensureRoot(abs string) (r *root.Root, relative string, err error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for rootPath, existing := range reg.roots {
		if abs == rootPath {
			return existing, "", nil
		}
		if rel, ok := underPath(rootPath, abs); ok {
			return existing, rel, nil
		}
	}

	info, statErr := os.Stat(abs)
	if statErr != nil {
		return nil, "", errors.Wrap(statErr, "watch-project: unable to stat path")
	}
	if !info.IsDir() {
		return nil, "", errors.New("watch-project: path is not a directory")
	}

	reg.nextRootNumber++
	created := root.New(abs, reg.process, reg.nextRootNumber, watching.DefaultDriver())
	reg.applyCookieDirectory(created)
	if err := created.Start(context.Background()); err != nil {
		return nil, "", errors.Wrap(err, "watch-project: unable to start root")
	}
	// The driver only reports changes from this point forward; without an
	// explicit initial crawl the view would stay empty until something in
	// the tree is modified.
	created.Recrawl()
	reg.roots[abs] = created
	return created, "", nil
}

// applyCookieDirectory redirects r's cookie sync to write into the
// configured cookie subdirectory instead of the root itself, if one is
// configured (useful on filesystems where a deep subtree's creation
// events can be coalesced before reaching the root directory's own
// notification stream). The directory is created if missing; on
// failure, r keeps its default of writing cookies directly into the
// root.
func (reg *Registry) applyCookieDirectory(r *root.Root) {
	if reg.config.CookieDirectory == "" {
		return
	}
	dir := filepath.Join(r.Path, reg.config.CookieDirectory)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return
	}
	r.Cookies = cookie.New(dir, int(reg.process.PID))
	r.Ignore.AddIgnoreDir(dir)
}

// underPath reports whether candidate is root or a descendant of root,
// returning candidate's '/'-separated path relative to root.
func underPath(root, candidate string) (string, bool) {
	rel, err := filepath.Rel(root, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	return filepath.ToSlash(rel), true
}

// RootPaths returns the absolute path of every currently watched root, for
// the daemon's periodic housekeeping sweep.
func (reg *Registry) RootPaths() []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	paths := make([]string, 0, len(reg.roots))
	for p := range reg.roots {
		paths = append(paths, p)
	}
	return paths
}

func (reg *Registry) watchList() (*Response, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	roots := make([]bser.Value, 0, len(reg.roots))
	for p := range reg.roots {
		roots = append(roots, p)
	}
	return &Response{Value: map[string]bser.Value{"version": versionString, "roots": roots}}, nil
}

// lookupRoot resolves the leading root-path argument every query/since/
// subscribe/unsubscribe call takes, returning the remaining arguments.
func (reg *Registry) lookupRoot(args []bser.Value) (*root.Root, []bser.Value, error) {
	if len(args) < 1 {
		return nil, nil, errors.New("command: missing root path argument")
	}
	path, ok := asString(args[0])
	if !ok {
		return nil, nil, errors.New("command: root path argument must be a string")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "command: unable to resolve root path")
	}
	reg.mu.Lock()
	r, ok := reg.roots[abs]
	reg.mu.Unlock()
	if !ok {
		return nil, nil, errors.Errorf("command: %q is not watched", path)
	}
	return r, args[1:], nil
}

func (reg *Registry) queryCommand(args []bser.Value) (*Response, error) {
	r, rest, err := reg.lookupRoot(args)
	if err != nil {
		return nil, err
	}
	if len(rest) < 1 {
		return nil, errors.New("query: missing query object argument")
	}
	m, ok := asMap(rest[0])
	if !ok {
		return nil, errors.New("query: query argument must be an object")
	}
	spec, err := parseSpec(m)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}

	result, clockString, err := reg.execute(r, spec)
	if err != nil {
		return nil, err
	}
	return &Response{Value: renderResult(result, clockString), Root: r}, nil
}

func (reg *Registry) sinceCommand(args []bser.Value) (*Response, error) {
	r, rest, err := reg.lookupRoot(args)
	if err != nil {
		return nil, err
	}
	if len(rest) < 1 {
		return nil, errors.New("since: missing clockspec argument")
	}
	since, err := parseSince(rest[0])
	if err != nil {
		return nil, errors.Wrap(err, "since")
	}

	spec := &query.Spec{FieldList: []string{"name"}, Expr: query.True()}
	if len(rest) >= 2 {
		if m, ok := asMap(rest[1]); ok {
			parsed, err := parseSpec(m)
			if err != nil {
				return nil, errors.Wrap(err, "since")
			}
			spec = parsed
		}
	}
	spec.SinceSpec = since

	result, clockString, err := reg.execute(r, spec)
	if err != nil {
		return nil, err
	}
	return &Response{Value: renderResult(result, clockString), Root: r}, nil
}

func (reg *Registry) subscribeCommand(args []bser.Value) (*Response, error) {
	r, rest, err := reg.lookupRoot(args)
	if err != nil {
		return nil, err
	}
	if len(rest) < 2 {
		return nil, errors.New("subscribe: missing name or query argument")
	}
	name, ok := asString(rest[0])
	if !ok {
		return nil, errors.New("subscribe: subscription name must be a string")
	}
	m, ok := asMap(rest[1])
	if !ok {
		return nil, errors.New("subscribe: query argument must be an object")
	}
	spec, err := parseSpec(m)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe")
	}

	result, clockString, err := reg.execute(r, spec)
	if err != nil {
		return nil, err
	}

	sub := r.Publisher.Subscribe(nil)
	key := subscriptionKey(r.Path, name)
	reg.mu.Lock()
	reg.subscriptions[key] = sub
	reg.mu.Unlock()

	ack, _ := renderResult(result, clockString).(map[string]bser.Value)
	ack["subscribe"] = name

	return &Response{
		Value:            ack,
		Subscription:     sub,
		SubscriptionName: name,
		Root:             r,
	}, nil
}

func (reg *Registry) unsubscribeCommand(args []bser.Value) (*Response, error) {
	r, rest, err := reg.lookupRoot(args)
	if err != nil {
		return nil, err
	}
	if len(rest) < 1 {
		return nil, errors.New("unsubscribe: missing subscription name argument")
	}
	name, ok := asString(rest[0])
	if !ok {
		return nil, errors.New("unsubscribe: subscription name must be a string")
	}

	key := subscriptionKey(r.Path, name)
	reg.mu.Lock()
	sub, ok := reg.subscriptions[key]
	delete(reg.subscriptions, key)
	reg.mu.Unlock()
	if ok {
		sub.Unsubscribe()
	}

	return &Response{Value: map[string]bser.Value{
		"version":    versionString,
		"unsubscribe": name,
		"deleted":    ok,
	}}, nil
}

func subscriptionKey(rootPath, name string) string {
	return rootPath + "\x00" + name
}

// execute runs spec's cookie sync, since-resolution, generate, and
// render pipeline against r, returning the rendered result alongside the
// clock string observed immediately after the sync completed (so a
// client's next "since" call picks up exactly where this result left
// off).
func (reg *Registry) execute(r *root.Root, spec *query.Spec) (*query.Result, string, error) {
	timeout := spec.SyncTimeout
	if timeout <= 0 {
		timeout = reg.config.SyncTimeoutDuration()
	}
	if err := r.Cookies.Sync(context.Background(), timeout); err != nil {
		return nil, "", errors.Wrap(err, "command: cookie sync failed")
	}
	clockString := r.Clock.String()

	rootNumber := r.Clock.Tuple().RootNumber
	resolved := r.ResolveSince(spec.SinceSpec, reg.process, rootNumber)

	result, err := query.Execute(spec, resolved, r.Ignore, r.Generator(), reg.renderers(r))
	if err != nil {
		return nil, "", err
	}
	return result, clockString, nil
}

// renderers combines query.DefaultRenderers with content.sha1hex, which
// needs a *contenthash.Cache and a root to resolve relative paths
// against and so cannot live in query.DefaultRenderers itself.
func (reg *Registry) renderers(r *root.Root) map[string]query.Renderer {
	out := make(map[string]query.Renderer, len(query.DefaultRenderers)+1)
	for k, v := range query.DefaultRenderers {
		out[k] = v
	}
	out["content.sha1hex"] = func(c query.Candidate) (interface{}, error) {
		if !c.File.Info.Mode.IsRegular() {
			return nil, nil
		}
		key := contenthash.Key{
			Path:    filepath.Join(r.Path, filepath.FromSlash(c.WholeName)),
			Size:    c.File.Info.Size,
			ModSec:  c.File.Info.ModTime.Unix(),
			ModNsec: int64(c.File.Info.ModTime.Nanosecond()),
		}
		digest, err := reg.content.Get(key, time.Now())
		if err != nil {
			return nil, err
		}
		return hex.EncodeToString(digest[:]), nil
	}
	return out
}

func renderResult(result *query.Result, clockString string) bser.Value {
	files := make([]bser.Value, len(result.Files))
	for i, f := range result.Files {
		files[i] = renderFields(f)
	}
	out := map[string]bser.Value{
		"version": versionString,
		"clock":   clockString,
		"files":   files,
	}
	if result.IsFreshInstance {
		out["is_fresh_instance"] = true
	}
	return out
}

func renderFields(r query.Rendered) bser.Value {
	m := make(map[string]bser.Value, len(r))
	for k, v := range r {
		m[k] = goValueToBserValue(v)
	}
	return m
}

func goValueToBserValue(v interface{}) bser.Value {
	if i, ok := v.(int); ok {
		return int64(i)
	}
	return v
}
