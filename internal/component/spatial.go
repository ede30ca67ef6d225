package component

// Transform is an entity's position in world space.
// Pure data, zero methods: systems do the mutating.
type Transform struct {
	X float64
	Y float64
	Z float64
}

// Velocity is a per-second displacement applied to Transform by the movement system.
type Velocity struct {
	DX float64
	DY float64
	DZ float64
}
