package system

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kelindar/bitmap"
	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/l1jgo/infinity/internal/core/ecs"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrCycle           = eris.New("system dependency cycle")
	ErrDuplicateSystem = eris.New("system already registered")
	ErrUnknownSystem   = eris.New("unknown system")
)

// Option configures one registration.
type Option func(*taskConfig)

type taskConfig struct {
	phase  Phase
	after  []string
	before []string
}

// WithPhase places the system in phase p. The default is PhaseUpdate.
func WithPhase(p Phase) Option {
	return func(c *taskConfig) { c.phase = p }
}

// After orders the system after the named, already registered, systems.
func After(names ...string) Option {
	return func(c *taskConfig) { c.after = append(c.after, names...) }
}

// Before orders the system before the named, already registered, systems.
func Before(names ...string) Option {
	return func(c *taskConfig) { c.before = append(c.before, names...) }
}

// task wraps one system, or a sentinel, in the tick DAG.
type task struct {
	sys      System
	name     string
	phase    Phase
	sentinel bool
	reads    bitmap.Bitmap
	writes   bitmap.Bitmap
	query    archetype.Archetype
	after    []string
	before   []string
	log      *zap.Logger
	hooks    *hookListener

	id       int
	parents  []*task
	children []*task
	pending  atomic.Int32

	lists   []*ecs.EntityList
	version uint64
	cached  bool

	runs  atomic.Uint64
	last  atomic.Int64
	total atomic.Int64
}

func link(p, c *task) {
	if slices.Contains(p.children, c) {
		return
	}
	p.children = append(p.children, c)
	c.parents = append(c.parents, p)
}

func conflicts(a, b *task) bool {
	return intersects(a.writes, b.writes) || intersects(a.writes, b.reads) || intersects(a.reads, b.writes)
}

func intersects(x, y bitmap.Bitmap) bool {
	n := x.Clone(nil)
	n.And(y)
	return n.Count() > 0
}

type RunnerOption func(*Runner)

// WithWorkers bounds how many systems run at once.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithLogger(log *zap.Logger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

// Runner schedules systems. Registration builds one DAG per tick shape:
// a start sentinel, each phase's systems between two barrier tasks, and an
// end sentinel. Within a phase, a system depends on every earlier registered
// system it conflicts with. Tick dispatches ready tasks to a bounded worker
// group; finishing a task decrements each child's pending counter and the
// child becomes ready at zero.
type Runner struct {
	world   *ecs.World
	log     *zap.Logger
	workers int

	tasks  []*task // registration order
	byName map[string]*task
	graph  []*task // tasks plus sentinels
	start  *task
	tick   uint64
	closed bool

	failed atomic.Bool
	errMu  sync.Mutex
	errs   []error
}

func NewRunner(world *ecs.World, opts ...RunnerOption) *Runner {
	r := &Runner{
		world:   world,
		log:     zap.NewNop(),
		workers: runtime.GOMAXPROCS(0),
		tasks:   make([]*task, 0, 16),
		byName:  make(map[string]*task, 16),
	}
	for _, opt := range opts {
		opt(r)
	}
	_ = r.rebuild()
	return r
}

// Register adds a system. Its read/write sets decide which earlier systems of
// the same phase it waits for. A registration that would make the graph
// cyclic is rejected and leaves the previous graph in place.
func (r *Runner) Register(s System, opts ...Option) error {
	name := s.Name()
	if name == "" {
		return eris.New("system name cannot be empty")
	}
	if _, ok := r.byName[name]; ok {
		return eris.Wrapf(ErrDuplicateSystem, "system %s", name)
	}

	cfg := taskConfig{phase: PhaseUpdate}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.phase < 0 || cfg.phase >= numPhases {
		return eris.Errorf("system %s: invalid phase %d", name, cfg.phase)
	}
	for _, dep := range slices.Concat(cfg.after, cfg.before) {
		if _, ok := r.byName[dep]; !ok {
			return eris.Wrapf(ErrUnknownSystem, "system %s depends on %s", name, dep)
		}
	}

	access := s.Access()
	t := &task{
		sys:    s,
		name:   name,
		phase:  cfg.phase,
		query:  access.Query(),
		after:  cfg.after,
		before: cfg.before,
		log:    r.log.With(zap.String("system", name)),
	}
	for _, typ := range access.Reads {
		t.reads.Set(typ.Index())
	}
	for _, typ := range access.Writes {
		t.writes.Set(typ.Index())
	}
	for _, typ := range access.Lookups {
		t.reads.Set(typ.Index())
	}

	if !t.query.IsEmpty() {
		if err := r.world.Anchor(t.query); err != nil {
			return eris.Wrapf(err, "anchor query of %s", name)
		}
	}

	r.tasks = append(r.tasks, t)
	r.byName[name] = t
	if err := r.rebuild(); err != nil {
		r.tasks = r.tasks[:len(r.tasks)-1]
		delete(r.byName, name)
		_ = r.rebuild()
		if !t.query.IsEmpty() {
			r.world.Release(t.query)
		}
		return eris.Wrapf(err, "register %s", name)
	}

	if h, ok := s.(Hooks); ok {
		t.hooks = &hookListener{query: t.query, hooks: h}
		r.world.Subscribe(t.hooks)
	}
	return nil
}

// hookListener forwards world lifecycle events to a system's Hooks.
type hookListener struct {
	query archetype.Archetype
	hooks Hooks
}

func (l *hookListener) Archetype() archetype.Archetype { return l.query }
func (l *hookListener) EntityCreated(e *ecs.Entity)    { l.hooks.EntityCreated(e) }
func (l *hookListener) EntityDestroyed(e *ecs.Entity)  { l.hooks.EntityDestroyed(e) }

func (r *Runner) rebuild() error {
	for _, t := range r.tasks {
		t.parents, t.children = nil, nil
	}

	graph := make([]*task, 0, len(r.tasks)+int(numPhases)+1)
	gate := func(name string) *task {
		t := &task{name: name, sentinel: true}
		graph = append(graph, t)
		return t
	}

	// gates[p] opens phase p, gates[p+1] closes it.
	gates := make([]*task, numPhases+1)
	gates[0] = gate("<start>")
	for p := Phase(1); p < numPhases; p++ {
		gates[p] = gate("<barrier " + p.String() + ">")
	}
	gates[numPhases] = gate("<end>")

	for p := range numPhases {
		var members []*task
		for _, t := range r.tasks {
			if t.phase == p {
				members = append(members, t)
			}
		}
		if len(members) == 0 {
			link(gates[p], gates[p+1])
			continue
		}
		for i, t := range members {
			link(gates[p], t)
			link(t, gates[p+1])
			for _, earlier := range members[:i] {
				if conflicts(earlier, t) {
					link(earlier, t)
				}
			}
		}
	}

	for _, t := range r.tasks {
		for _, dep := range t.after {
			link(r.byName[dep], t)
		}
		for _, dep := range t.before {
			link(t, r.byName[dep])
		}
	}

	graph = append(graph, r.tasks...)
	for i, t := range graph {
		t.id = i
	}
	if !acyclic(graph) {
		return ErrCycle
	}
	r.graph = graph
	r.start = gates[0]
	return nil
}

// acyclic runs Kahn's algorithm over the graph.
func acyclic(graph []*task) bool {
	indegree := make([]int, len(graph))
	for _, t := range graph {
		indegree[t.id] = len(t.parents)
	}
	ready := make([]*task, 0, len(graph))
	for _, t := range graph {
		if indegree[t.id] == 0 {
			ready = append(ready, t)
		}
	}
	visited := 0
	for len(ready) > 0 {
		t := ready[len(ready)-1]
		ready = ready[:len(ready)-1]
		visited++
		for _, c := range t.children {
			indegree[c.id]--
			if indegree[c.id] == 0 {
				ready = append(ready, c)
			}
		}
	}
	return visited == len(graph)
}

// Tick runs every registered system once. A system that fails or panics fails
// the tick: systems not yet started are skipped, the graph still drains, and
// the joined errors are returned. Cancelling ctx skips what has not started.
func (r *Runner) Tick(ctx context.Context, dt time.Duration) error {
	if r.closed {
		return eris.New("runner is closed")
	}
	r.tick++

	v := r.world.Version()
	for _, t := range r.tasks {
		if !t.cached || t.version != v {
			t.lists = r.world.Query(t.query)
			t.version = v
			t.cached = true
		}
	}
	for _, t := range r.graph {
		t.pending.Store(int32(len(t.parents)))
	}
	r.failed.Store(false)
	r.errs = r.errs[:0]

	base := Context{
		Tick:     r.tick,
		DT:       dt,
		World:    r.world,
		Commands: r.world.Commands(),
	}

	// Every task is queued exactly once, so the buffer never blocks a worker.
	queue := make(chan *task, len(r.graph))
	queue <- r.start

	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for range r.graph {
		t := <-queue
		g.Go(func() error {
			r.run(ctx, t, base, queue)
			return nil
		})
	}
	_ = g.Wait()

	if len(r.errs) > 0 {
		return errors.Join(r.errs...)
	}
	return nil
}

func (r *Runner) run(ctx context.Context, t *task, base Context, queue chan<- *task) {
	if !t.sentinel && !r.failed.Load() {
		if err := ctx.Err(); err != nil {
			r.fail(eris.Wrapf(err, "tick %d cancelled before %s", base.Tick, t.name))
		} else {
			r.execute(t, base)
		}
	}
	for _, c := range t.children {
		if c.pending.Add(-1) == 0 {
			queue <- c
		}
	}
}

func (r *Runner) execute(t *task, base Context) {
	tc := base
	tc.Lists = t.lists
	tc.Log = t.log

	started := time.Now()
	err := update(t.sys, &tc)
	elapsed := time.Since(started)

	t.runs.Add(1)
	t.last.Store(int64(elapsed))
	t.total.Add(int64(elapsed))
	if err != nil {
		r.fail(eris.Wrapf(err, "system %s failed", t.name))
	}
}

func update(s System, tc *Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = eris.Errorf("panic: %v", rec)
		}
	}()
	return s.Update(tc)
}

func (r *Runner) fail(err error) {
	r.failed.Store(true)
	r.errMu.Lock()
	r.errs = append(r.errs, err)
	r.errMu.Unlock()
}

// Len is the number of registered systems.
func (r *Runner) Len() int { return len(r.tasks) }

// TaskInfo describes one registered system and its direct dependencies on
// other systems. Phase ordering is implied and not listed.
type TaskInfo struct {
	Name      string
	Phase     Phase
	Query     archetype.Archetype
	DependsOn []string
}

func (r *Runner) Tasks() []TaskInfo {
	out := make([]TaskInfo, 0, len(r.tasks))
	for _, t := range r.tasks {
		info := TaskInfo{Name: t.name, Phase: t.phase, Query: t.query}
		for _, p := range t.parents {
			if !p.sentinel {
				info.DependsOn = append(info.DependsOn, p.name)
			}
		}
		slices.Sort(info.DependsOn)
		out = append(out, info)
	}
	return out
}

// TaskStats reports timings of one system.
type TaskStats struct {
	Name  string
	Phase Phase
	Runs  uint64
	Last  time.Duration
	Total time.Duration
}

func (r *Runner) Stats() []TaskStats {
	out := make([]TaskStats, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, TaskStats{
			Name:  t.name,
			Phase: t.phase,
			Runs:  t.runs.Load(),
			Last:  time.Duration(t.last.Load()),
			Total: time.Duration(t.total.Load()),
		})
	}
	return out
}

// Close releases the query anchors and lifecycle hooks held for registered
// systems.
func (r *Runner) Close() {
	if r.closed {
		return
	}
	r.closed = true
	for _, t := range r.tasks {
		if !t.query.IsEmpty() {
			r.world.Release(t.query)
		}
		if t.hooks != nil {
			r.world.Unsubscribe(t.hooks)
		}
	}
}
