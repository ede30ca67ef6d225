package scripting

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/l1jgo/infinity/internal/core/archetype"
	"github.com/l1jgo/infinity/internal/core/ecs"
	coresys "github.com/l1jgo/infinity/internal/core/system"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// System is one Lua script run as an ECS system.
//
// The script declares itself with a global table
//
//	system = {name = "drift", phase = "pre_update", reads = {"Velocity"}, writes = {"Transform"}}
//
// and defines update(dt, entity). entity.id is the entity ID and
// entity.<Component> holds the component's exported scalar fields. Fields of
// written components are copied back after the call. destroy(id) queues the
// entity for destruction at the tick barrier.
type System struct {
	name     string
	path     string
	phase    coresys.Phase
	after    []string
	before   []string
	access   coresys.Access
	bindings []binding
	vm       *lua.LState
	update   *lua.LFunction
	log      *zap.Logger
	ctx      *coresys.Context // set only while Update runs
}

type binding struct {
	typ    *archetype.Type
	fields []field
	write  bool
}

type field struct {
	index int
	name  string
	kind  reflect.Kind
}

// Load compiles one script and resolves its declared components against reg.
func Load(path string, reg *ecs.Registry, log *zap.Logger) (*System, error) {
	vm := lua.NewState()
	s := &System{path: path, vm: vm, log: log}

	vm.SetGlobal("API_VERSION", lua.LNumber(APIVersion))
	vm.SetGlobal("destroy", vm.NewFunction(s.luaDestroy))
	vm.SetGlobal("log", vm.NewFunction(s.luaLog))

	if err := vm.DoFile(path); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if err := s.declare(reg); err != nil {
		vm.Close()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return s, nil
}

func (s *System) declare(reg *ecs.Registry) error {
	decl, ok := s.vm.GetGlobal("system").(*lua.LTable)
	if !ok {
		return errors.New("global table 'system' not defined")
	}

	s.name = lStr(decl, "name")
	if s.name == "" {
		s.name = strings.TrimSuffix(filepath.Base(s.path), ".lua")
	}
	s.phase = coresys.PhaseUpdate
	if p := lStr(decl, "phase"); p != "" {
		phase, err := coresys.ParsePhase(p)
		if err != nil {
			return fmt.Errorf("phase: %w", err)
		}
		s.phase = phase
	}
	s.after = lStrings(decl, "after")
	s.before = lStrings(decl, "before")

	for _, name := range lStrings(decl, "reads") {
		t, err := reg.Lookup(name)
		if err != nil {
			return fmt.Errorf("reads: %w", err)
		}
		s.access.Reads = append(s.access.Reads, t)
		s.bindings = append(s.bindings, binding{typ: t, fields: exportedFields(t.Reflect())})
	}
	for _, name := range lStrings(decl, "writes") {
		t, err := reg.Lookup(name)
		if err != nil {
			return fmt.Errorf("writes: %w", err)
		}
		s.access.Writes = append(s.access.Writes, t)
		s.bindings = append(s.bindings, binding{typ: t, fields: exportedFields(t.Reflect()), write: true})
	}

	fn, ok := s.vm.GetGlobal("update").(*lua.LFunction)
	if !ok {
		return errors.New("function 'update' not defined")
	}
	s.update = fn
	return nil
}

func (s *System) Name() string           { return s.name }
func (s *System) Path() string           { return s.path }
func (s *System) Phase() coresys.Phase   { return s.phase }
func (s *System) Access() coresys.Access { return s.access }

// Options are the scheduling options the script declared.
func (s *System) Options() []coresys.Option {
	opts := []coresys.Option{coresys.WithPhase(s.phase)}
	if len(s.after) > 0 {
		opts = append(opts, coresys.After(s.after...))
	}
	if len(s.before) > 0 {
		opts = append(opts, coresys.Before(s.before...))
	}
	return opts
}

// Update calls the script once per matching entity. The first script error
// stops the pass and fails the tick.
func (s *System) Update(ctx *coresys.Context) error {
	s.ctx = ctx
	defer func() { s.ctx = nil }()

	dt := lua.LNumber(ctx.DT.Seconds())
	var err error
	for _, l := range ctx.Lists {
		l.ForEach(func(e *ecs.Entity) bool {
			err = s.call(dt, e)
			return err == nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *System) call(dt lua.LNumber, e *ecs.Entity) error {
	ent := s.vm.CreateTable(0, len(s.bindings)+1)
	ent.RawSetString("id", lua.LNumber(e.ID()))

	values := make([]reflect.Value, len(s.bindings))
	for i, b := range s.bindings {
		p, ok := e.Pointer(b.typ)
		if !ok {
			return fmt.Errorf("script %s: entity %s has no %s", s.name, e.ID(), b.typ.Name())
		}
		values[i] = reflect.ValueOf(p).Elem()
		ent.RawSetString(b.typ.Name(), toTable(s.vm, values[i], b.fields))
	}

	if err := s.vm.CallByParam(lua.P{
		Fn:      s.update,
		NRet:    0,
		Protect: true,
	}, dt, ent); err != nil {
		return fmt.Errorf("script %s: entity %s: %w", s.name, e.ID(), err)
	}

	for i, b := range s.bindings {
		if !b.write {
			continue
		}
		if t, ok := ent.RawGetString(b.typ.Name()).(*lua.LTable); ok {
			fromTable(t, values[i], b.fields)
		}
	}
	return nil
}

func (s *System) luaDestroy(L *lua.LState) int {
	id := ecs.EntityID(uint64(L.CheckNumber(1)))
	if s.ctx == nil {
		L.RaiseError("destroy called outside update")
		return 0
	}
	s.ctx.Commands.DestroyEntityAsync(id)
	return 0
}

func (s *System) luaLog(L *lua.LState) int {
	s.log.Debug(L.CheckString(1), zap.String("script", s.path))
	return 0
}

// Close shuts down the Lua VM.
func (s *System) Close() {
	s.vm.Close()
}

// exportedFields lists the scalar data fields scripts may see.
func exportedFields(rt reflect.Type) []field {
	var out []field
	for i := range rt.NumField() {
		f := rt.Field(i)
		if !f.IsExported() || f.Tag.Get("ecs") == "meta" {
			continue
		}
		switch f.Type.Kind() {
		case reflect.Bool, reflect.String,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			out = append(out, field{index: i, name: f.Name, kind: f.Type.Kind()})
		}
	}
	return out
}

func toTable(L *lua.LState, v reflect.Value, fields []field) *lua.LTable {
	t := L.CreateTable(0, len(fields))
	for _, f := range fields {
		fv := v.Field(f.index)
		switch f.kind {
		case reflect.Bool:
			t.RawSetString(f.name, lua.LBool(fv.Bool()))
		case reflect.String:
			t.RawSetString(f.name, lua.LString(fv.String()))
		case reflect.Float32, reflect.Float64:
			t.RawSetString(f.name, lua.LNumber(fv.Float()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			t.RawSetString(f.name, lua.LNumber(fv.Uint()))
		default:
			t.RawSetString(f.name, lua.LNumber(fv.Int()))
		}
	}
	return t
}

// fromTable copies fields back, ignoring values of the wrong Lua type.
func fromTable(t *lua.LTable, v reflect.Value, fields []field) {
	for _, f := range fields {
		lv := t.RawGetString(f.name)
		fv := v.Field(f.index)
		switch f.kind {
		case reflect.Bool:
			if b, ok := lv.(lua.LBool); ok {
				fv.SetBool(bool(b))
			}
		case reflect.String:
			if s, ok := lv.(lua.LString); ok {
				fv.SetString(string(s))
			}
		case reflect.Float32, reflect.Float64:
			if n, ok := lv.(lua.LNumber); ok {
				fv.SetFloat(float64(n))
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if n, ok := lv.(lua.LNumber); ok && n >= 0 {
				fv.SetUint(uint64(n))
			}
		default:
			if n, ok := lv.(lua.LNumber); ok {
				fv.SetInt(int64(n))
			}
		}
	}
}

// lStr reads a string field from a Lua table.
func lStr(t *lua.LTable, key string) string {
	return lua.LVAsString(t.RawGetString(key))
}

// lStrings reads an array of strings from a Lua table.
func lStrings(t *lua.LTable, key string) []string {
	arr, ok := t.RawGetString(key).(*lua.LTable)
	if !ok {
		return nil
	}
	out := make([]string, 0, arr.Len())
	for i := 1; i <= arr.Len(); i++ {
		out = append(out, lua.LVAsString(arr.RawGetInt(i)))
	}
	return out
}
