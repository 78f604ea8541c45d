// Package sampling draws random variates for the supported return
// distributions. All randomness flows through a Generator so that a seed and a
// stream index fully determine every draw.
package sampling

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

type tapeMode uint8

const (
	modeFree tapeMode = iota
	modeRecord
	modeReplay
)

type drawKind uint8

const (
	drawNormal drawKind = iota
	drawUniform
	drawExponential
	drawChiSquare
	drawGamma
)

type draw struct {
	value float64
	kind  drawKind
	param float64
}

// antithetic reflects the draw through its own distribution, so a replayed
// path keeps the law of every variate.
func (d draw) antithetic() float64 {
	switch d.kind {
	case drawNormal:
		return -d.value
	case drawUniform:
		return 1 - d.value
	case drawExponential:
		return reflect(distuv.Exponential{Rate: 1}, d.value)
	case drawChiSquare:
		return reflect(distuv.ChiSquared{K: d.param}, d.value)
	case drawGamma:
		return reflect(distuv.Gamma{Alpha: d.param, Beta: 1}, d.value)
	}
	return d.value
}

type survivalQuantiler interface {
	Survival(x float64) float64
	Quantile(p float64) float64
}

// reflect maps x to Q(1-F(x)). Values whose reflection falls off the support
// are returned unchanged.
func reflect(dist survivalQuantiler, x float64) float64 {
	r := dist.Quantile(dist.Survival(x))
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return x
	}
	return r
}

// Generator is a single-goroutine random stream. Monte Carlo batches each own
// one, derived from the base seed and the batch index.
type Generator struct {
	src *rand.PCG
	rng *rand.Rand

	spare    float64
	hasSpare bool

	quasi      *Halton
	quasiPoint uint64
	quasiDim   int

	mode tapeMode
	tape []draw
	pos  int

	normalSum float64

	bufA, bufB []float64
}

// NewGenerator returns a PCG-backed stream for (seed, stream)
func NewGenerator(seed, stream uint64) *Generator {
	src := rand.NewPCG(seed, stream)
	return &Generator{src: src, rng: rand.New(src)}
}

// WithQuasi switches normal and uniform draws to the shifted Halton sequence h
func (g *Generator) WithQuasi(h *Halton) *Generator {
	g.quasi = h
	return g
}

// BeginPath resets per-path state. index is the global path index and selects
// the Halton point in quasi-random mode.
func (g *Generator) BeginPath(index int) {
	g.normalSum = 0
	g.quasiPoint = uint64(index) + 1
	g.quasiDim = 0
}

// Record starts capturing draws so the next path can replay them
func (g *Generator) Record() {
	g.mode = modeRecord
	g.tape = g.tape[:0]
	g.pos = 0
}

// Replay re-issues the recorded draws reflected: normals negated, uniforms
// mapped to 1-u and the other variates through their quantile function. Once
// the tape is exhausted the generator falls back to fresh draws.
func (g *Generator) Replay() {
	g.mode = modeReplay
	g.pos = 0
}

// Free stops recording or replaying
func (g *Generator) Free() {
	g.mode = modeFree
}

// NormalSum is the sum of standard normal draws issued since BeginPath
func (g *Generator) NormalSum() float64 {
	return g.normalSum
}

func (g *Generator) replayed() (draw, bool) {
	if g.mode != modeReplay || g.pos >= len(g.tape) {
		return draw{}, false
	}
	d := g.tape[g.pos]
	g.pos++
	return d, true
}

func (g *Generator) record(d draw) float64 {
	if g.mode == modeRecord {
		g.tape = append(g.tape, d)
	}
	return d.value
}

// nextQuasi returns the next Halton coordinate of the current path, or false
// once the point's dimensions are used up.
func (g *Generator) nextQuasi() (float64, bool) {
	if g.quasi == nil || g.quasiDim >= g.quasi.Dims() {
		return 0, false
	}
	u := g.quasi.At(g.quasiPoint, g.quasiDim)
	g.quasiDim++
	return u, true
}

// Normal returns a standard normal variate
func (g *Generator) Normal() float64 {
	if d, ok := g.replayed(); ok {
		z := d.antithetic()
		g.normalSum += z
		return z
	}
	var z float64
	if u, ok := g.nextQuasi(); ok {
		z = distuv.UnitNormal.Quantile(u)
	} else {
		z = g.boxMuller()
	}
	g.normalSum += z
	return g.record(draw{value: z, kind: drawNormal})
}

// boxMuller produces normals in pairs and caches the second
func (g *Generator) boxMuller() float64 {
	if g.hasSpare {
		g.hasSpare = false
		return g.spare
	}
	u1 := 1 - g.rng.Float64() // (0, 1]
	u2 := g.rng.Float64()
	r := math.Sqrt(-2 * math.Log(u1))
	s, c := math.Sincos(2 * math.Pi * u2)
	g.spare = r * s
	g.hasSpare = true
	return r * c
}

// Uniform returns a variate in [0, 1). In quasi-random mode it takes the next
// Halton coordinate.
func (g *Generator) Uniform() float64 {
	if d, ok := g.replayed(); ok {
		return d.antithetic()
	}
	u, ok := g.nextQuasi()
	if !ok {
		u = g.rng.Float64()
	}
	return g.record(draw{value: u, kind: drawUniform})
}

// Exponential returns a unit-rate exponential variate
func (g *Generator) Exponential() float64 {
	if d, ok := g.replayed(); ok {
		return d.antithetic()
	}
	return g.record(draw{value: -math.Log(1 - g.rng.Float64()), kind: drawExponential})
}

// ChiSquare returns a chi-square variate with k degrees of freedom
func (g *Generator) ChiSquare(k float64) float64 {
	if d, ok := g.replayed(); ok {
		return d.antithetic()
	}
	return g.record(draw{value: distuv.ChiSquared{K: k, Src: g.src}.Rand(), kind: drawChiSquare, param: k})
}

// Gamma returns a Gamma(alpha, 1) variate
func (g *Generator) Gamma(alpha float64) float64 {
	if d, ok := g.replayed(); ok {
		return d.antithetic()
	}
	return g.record(draw{value: distuv.Gamma{Alpha: alpha, Beta: 1, Src: g.src}.Rand(), kind: drawGamma, param: alpha})
}

// IntN returns a uniform integer in [0, n)
func (g *Generator) IntN(n int) int {
	return g.rng.IntN(n)
}

func (g *Generator) scratchA(n int) []float64 {
	if cap(g.bufA) < n {
		g.bufA = make([]float64, n)
	}
	return g.bufA[:n]
}

func (g *Generator) scratchB(n int) []float64 {
	if cap(g.bufB) < n {
		g.bufB = make([]float64, n)
	}
	return g.bufB[:n]
}
