package component

// Health tracks hit points. Owner is bookkeeping and is excluded from the
// serialisable data tail.
type Health struct {
	Owner uint64 `ecs:"meta"`
	HP    int
	Max   int
}

// Lifetime destroys its entity when Remaining reaches zero.
type Lifetime struct {
	Remaining float64 // seconds
}

// Hazard damages every damageable entity within Radius of it, once per tick.
type Hazard struct {
	Radius float64
	Damage int
}
