package ecs

import "github.com/rotisserie/eris"

var (
	// ErrEntityNotFound is returned when an operation names an entity that is
	// not alive.
	ErrEntityNotFound = eris.New("entity does not exist")

	// ErrComponentNotRegistered is returned for component names or types this
	// world has no storage for.
	ErrComponentNotRegistered = eris.New("component is not registered")
)
