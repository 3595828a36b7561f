package engine

// Generator is a mulberry32 stream. It is cheap, not cryptographic, and
// reproduces the reference JavaScript implementation value for value.
type Generator struct {
	state uint32
}

// NewGenerator creates a generator positioned at the start of the stream for seed.
func NewGenerator(seed uint32) *Generator {
	return &Generator{state: seed}
}

// Next advances the stream and returns a float in [0, 1).
func (g *Generator) Next() float64 {
	g.state += 0x6D2B79F5
	s := g.state
	t := (s ^ (s >> 15)) * (s | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return float64(t^(t>>14)) / 4294967296
}
