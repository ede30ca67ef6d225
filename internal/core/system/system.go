package system

import (
	"strconv"
	"strings"
	"time"

	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/l1jgo/infinity/internal/core/ecs"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Phase defines execution ordering within a single tick. Every system of a
// phase finishes before any system of the next phase starts.
type Phase int

const (
	PhasePreUpdate  Phase = iota // 0: consume last tick's notifications
	PhaseUpdate                  // 1: game logic
	PhasePostUpdate              // 2: events raised during update
	PhaseRender                  // 3: read-only consumers
	PhaseCleanup                 // 4: lifetime and teardown
	numPhases
)

var phaseNames = [numPhases]string{"pre_update", "update", "post_update", "render", "cleanup"}

func (p Phase) String() string {
	if p < 0 || p >= numPhases {
		return "phase(" + strconv.Itoa(int(p)) + ")"
	}
	return phaseNames[p]
}

// ParsePhase accepts the names printed by Phase.String.
func ParsePhase(s string) (Phase, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range phaseNames {
		if name == s || strings.ReplaceAll(name, "_", "") == s {
			return Phase(i), nil
		}
	}
	return 0, eris.Errorf("unknown phase %q", s)
}

// Access declares the component types a system touches. Read-only access to
// the same type is compatible; any write conflicts.
//
// Lookups are types the system only reads through its own World queries. They
// order the system against writers like Reads do but do not narrow Lists.
type Access struct {
	Reads   []*archetype.Type
	Writes  []*archetype.Type
	Lookups []*archetype.Type
}

// Query is the archetype a system iterates: every read and written type.
func (a Access) Query() archetype.Archetype {
	types := make([]*archetype.Type, 0, len(a.Reads)+len(a.Writes))
	types = append(types, a.Reads...)
	types = append(types, a.Writes...)
	return archetype.Create(types...)
}

// Context is what a system sees during one tick.
type Context struct {
	Tick uint64
	DT   time.Duration
	// Lists holds the storage of every archetype matching the system's query.
	Lists []*ecs.EntityList
	// World is for lookups only. Structural changes go through Commands.
	World    *ecs.World
	Commands *ecs.Commands
	Log      *zap.Logger
}

// System is the interface every ECS system implements.
type System interface {
	Name() string
	Access() Access
	Update(ctx *Context) error
}

// Hooks is implemented by systems that want lifecycle callbacks for entities
// matching their query. Callbacks run on the goroutine making the structural
// change, which for queued commands is the tick barrier.
type Hooks interface {
	EntityCreated(e *ecs.Entity)
	EntityDestroyed(e *ecs.Entity)
}

type funcSystem struct {
	name   string
	access Access
	fn     func(*Context) error
}

// Func adapts a function into a System.
func Func(name string, access Access, fn func(*Context) error) System {
	return &funcSystem{name: name, access: access, fn: fn}
}

func (s *funcSystem) Name() string              { return s.name }
func (s *funcSystem) Access() Access            { return s.access }
func (s *funcSystem) Update(ctx *Context) error { return s.fn(ctx) }
