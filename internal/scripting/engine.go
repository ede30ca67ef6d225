package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/l1jgo/infinity/internal/core/ecs"
	coresys "github.com/l1jgo/infinity/internal/core/system"
	"go.uber.org/zap"
)

// APIVersion is exposed to scripts as the API_VERSION global.
const APIVersion = 1

// Registrar is what the engine needs to schedule script systems.
type Registrar interface {
	Register(s coresys.System, opts ...coresys.Option) error
}

// Engine owns the scripted systems loaded from one directory. Each script gets
// its own Lua VM, so scripts in independent tasks may run in parallel.
type Engine struct {
	systems []*System
	log     *zap.Logger
}

// NewEngine loads every .lua file in scriptsDir, in name order. A missing
// directory yields an engine with no systems.
func NewEngine(scriptsDir string, reg *ecs.Registry, log *zap.Logger) (*Engine, error) {
	e := &Engine{log: log}

	entries, err := os.ReadDir(scriptsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return e, nil // skip missing dirs
		}
		return nil, fmt.Errorf("read scripts dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(scriptsDir, name)
		s, err := Load(path, reg, log)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.systems = append(e.systems, s)
		log.Debug("loaded lua script", zap.String("file", path), zap.String("system", s.Name()))
	}
	return e, nil
}

// Systems returns the loaded systems in load order.
func (e *Engine) Systems() []*System { return e.systems }

// Install registers every script system on r in load order, so a script can
// name an earlier one in after/before.
func (e *Engine) Install(r Registrar) error {
	for _, s := range e.systems {
		if err := r.Register(s, s.Options()...); err != nil {
			return fmt.Errorf("register script %s: %w", s.Name(), err)
		}
	}
	return nil
}

// Close shuts down every Lua VM.
func (e *Engine) Close() {
	for _, s := range e.systems {
		s.Close()
	}
	e.systems = nil
}
