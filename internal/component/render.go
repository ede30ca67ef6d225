package component

// Mesh names renderable geometry. The renderer itself lives outside this
// runtime; the render stats system only counts what would be drawn.
type Mesh struct {
	Name      string
	Triangles int
	Visible   bool
}

// Light is a point light. Intensity flickers around Base at Rate Hz.
type Light struct {
	Base      float64
	Intensity float64
	Rate      float64
	Phase     float64 // radians, advanced by the flicker system
}
