package portfolio

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/victoralfred/riskengine/internal/core/domain"
)

type boundState int8

const (
	free boundState = iota
	atLower
	atUpper
)

// boxQP is min ½wᵀQw − cᵀw subject to Σw = 1 and lo ≤ w_i ≤ hi
type boxQP struct {
	q      mat.Symmetric
	c      []float64
	lo, hi float64
}

// qpResult is a solved QP with its iteration count
type qpResult struct {
	weights    []float64
	iterations int
}

// feasibleStart fills assets up to hi in order after placing every weight at lo
func feasibleStart(n int, lo, hi float64, order []int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = lo
	}
	remaining := 1 - float64(n)*lo
	for _, i := range order {
		if remaining <= 0 {
			break
		}
		add := math.Min(hi-lo, remaining)
		w[i] += add
		remaining -= add
	}
	return w
}

// maxReturnWeights solves the linear program max μᵀw over the box and budget
// exactly by filling the highest-return assets first
func maxReturnWeights(mu []float64, lo, hi float64) []float64 {
	order := make([]int, len(mu))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return mu[order[a]] > mu[order[b]] })
	return feasibleStart(len(mu), lo, hi, order)
}

// solve runs a primal active-set method. Each iteration solves the KKT system
// of the free variables with the bound variables held fixed.
func (p boxQP) solve(ctx context.Context, start []float64, maxIter int) (qpResult, error) {
	const op = "active_set_qp"
	n := len(p.c)
	w := append([]float64(nil), start...)
	state := make([]boundState, n)
	tol := 1e-12

	for iter := 1; iter <= maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return qpResult{}, domain.NewCancelledError(op, err)
		}

		freeIdx := make([]int, 0, n)
		fixedSum := 0.0
		for i, s := range state {
			if s == free {
				freeIdx = append(freeIdx, i)
			} else {
				fixedSum += w[i]
			}
		}

		target, nu, err := p.kkt(w, freeIdx, 1-fixedSum)
		if err != nil {
			return qpResult{}, err
		}

		step := make([]float64, n)
		moving := false
		for k, i := range freeIdx {
			step[i] = target[k] - w[i]
			if math.Abs(step[i]) > tol {
				moving = true
			}
		}

		if !moving {
			// stationary on the working set: release the worst bound multiplier
			g := p.gradient(w)
			worst, worstMult := -1, -tol*math.Max(1, math.Abs(nu))
			for i, s := range state {
				var mult float64
				switch s {
				case atLower:
					mult = g[i] - nu
				case atUpper:
					mult = nu - g[i]
				default:
					continue
				}
				if mult < worstMult {
					worst, worstMult = i, mult
				}
			}
			if worst < 0 {
				for k, i := range freeIdx {
					w[i] = target[k]
				}
				return qpResult{weights: clampWeights(w, p.lo, p.hi), iterations: iter}, nil
			}
			state[worst] = free
			continue
		}

		alpha, blocking, bound := 1.0, -1, free
		for _, i := range freeIdx {
			switch {
			case step[i] < -tol:
				if a := (p.lo - w[i]) / step[i]; a < alpha {
					alpha, blocking, bound = math.Max(a, 0), i, atLower
				}
			case step[i] > tol:
				if a := (p.hi - w[i]) / step[i]; a < alpha {
					alpha, blocking, bound = math.Max(a, 0), i, atUpper
				}
			}
		}
		for _, i := range freeIdx {
			w[i] += alpha * step[i]
		}
		if blocking >= 0 {
			state[blocking] = bound
			if bound == atLower {
				w[blocking] = p.lo
			} else {
				w[blocking] = p.hi
			}
		}
	}
	return qpResult{}, domain.NewNumericalError(op, "active-set solver did not converge").
		WithDiagnostic("max_iterations", float64(maxIter))
}

// kkt solves [Q_FF  −1; 1ᵀ 0][w_F; ν] = [c_F − Q_FB·w_B; budget]
func (p boxQP) kkt(w []float64, freeIdx []int, budget float64) ([]float64, float64, error) {
	k := len(freeIdx)
	if k == 0 {
		return nil, 0, domain.NewNumericalError("active_set_qp", "no free variables remain")
	}
	isFree := make(map[int]bool, k)
	for _, i := range freeIdx {
		isFree[i] = true
	}

	a := mat.NewDense(k+1, k+1, nil)
	b := mat.NewVecDense(k+1, nil)
	for r, i := range freeIdx {
		rhs := p.c[i]
		for j := range w {
			if !isFree[j] {
				rhs -= p.q.At(i, j) * w[j]
			}
		}
		b.SetVec(r, rhs)
		for col, j := range freeIdx {
			a.Set(r, col, p.q.At(i, j))
		}
		a.Set(r, k, -1)
		a.Set(k, r, 1)
	}
	b.SetVec(k, budget)

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return nil, 0, domain.NewNumericalError("active_set_qp", "KKT system is singular").
			WithCause(err).
			WithDiagnostic("free_variables", float64(k))
	}
	out := make([]float64, k)
	for r := range out {
		out[r] = x.AtVec(r)
	}
	return out, x.AtVec(k), nil
}

// gradient returns Qw − c
func (p boxQP) gradient(w []float64) []float64 {
	var qw mat.VecDense
	qw.MulVec(p.q, mat.NewVecDense(len(w), w))
	g := make([]float64, len(w))
	for i := range g {
		g[i] = qw.AtVec(i) - p.c[i]
	}
	return g
}

// clampWeights removes rounding excursions outside the box
func clampWeights(w []float64, lo, hi float64) []float64 {
	for i, v := range w {
		w[i] = math.Min(math.Max(v, lo), hi)
	}
	return w
}

// projectBox is the Euclidean projection of v onto {Σw = 1, lo ≤ w ≤ hi},
// found by bisection on the shift τ in w_i = clip(v_i − τ)
func projectBox(v []float64, lo, hi float64) []float64 {
	sum := func(tau float64) float64 {
		s := 0.0
		for _, x := range v {
			s += math.Min(math.Max(x-tau, lo), hi)
		}
		return s
	}
	a, b := math.Inf(1), math.Inf(-1)
	for _, x := range v {
		a = math.Min(a, x-hi)
		b = math.Max(b, x-lo)
	}
	for i := 0; i < 200; i++ {
		mid := 0.5 * (a + b)
		if sum(mid) > 1 {
			a = mid
		} else {
			b = mid
		}
	}
	tau := 0.5 * (a + b)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Min(math.Max(x-tau, lo), hi)
	}
	return out
}
