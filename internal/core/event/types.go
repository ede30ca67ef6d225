package event

import "github.com/l1jgo/infinity/internal/core/archetype"

// Engine notifications, emitted at the tick barrier.

type ArchetypeAdded struct {
	Tick      uint64
	Archetype archetype.Archetype
}

type ArchetypeRemoved struct {
	Tick      uint64
	Archetype archetype.Archetype
}

type TickFailed struct {
	Tick uint64
	Err  error
}
