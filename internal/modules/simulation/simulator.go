// Package simulation generates Monte Carlo wealth paths for a weighted portfolio
// under correlated per-asset geometric Brownian motion.
package simulation

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-risk/internal/domain"
	"github.com/aristath/sentinel-risk/internal/modules/covariance"
	"github.com/aristath/sentinel-risk/pkg/formulas"
	"github.com/aristath/sentinel-risk/pkg/logger"
)

// chunkSize is the number of paths handed to a worker per job.
const chunkSize = 256

// RebalanceRule produces portfolio weights at each step. Implementations are called
// concurrently from several workers and must not mutate shared state.
type RebalanceRule interface {
	Weights(step int, t float64, wealth float64) []float64
}

// RebalanceFunc adapts a function to RebalanceRule.
type RebalanceFunc func(step int, t float64, wealth float64) []float64

// Weights implements RebalanceRule.
func (f RebalanceFunc) Weights(step int, t float64, wealth float64) []float64 {
	return f(step, t, wealth)
}

// Input is everything one simulation run needs. When Rule is nil the static Weights
// are held for the whole horizon.
//
// TerminalOnly skips the percentile time grid and retained paths: the ensemble then
// carries terminal wealth and drawdowns only.
type Input struct {
	Model          domain.MomentsModel
	Weights        []float64
	Rule           RebalanceRule
	InitialCapital float64
	Config         domain.SimulationConfig
	TerminalOnly   bool
}

// Simulator runs Monte Carlo simulations on a worker pool. A positive
// SimulationConfig.Workers overrides the pool size for that run.
type Simulator struct {
	pool *WorkerPool
	log  zerolog.Logger
}

// NewSimulator creates a simulator using workers goroutines by default.
func NewSimulator(workers int, log zerolog.Logger) *Simulator {
	return &Simulator{
		pool: NewWorkerPool(workers),
		log:  logger.Component(log, "path_simulator"),
	}
}

// plan is the immutable state shared by every path of one run.
type plan struct {
	n           int
	steps       int
	dt          float64
	sqrtDt      float64
	w0          float64
	floor       float64
	seed        uint64
	method      domain.SimulationMethod
	factor      *covariance.Factor
	drift       []float64 // per-asset (μ − ½Σᵢᵢ)·dt
	weights     []float64
	rule        RebalanceRule
	scalarDrift float64
	scalarVol   float64
	summary     []int
	retain      int
}

// pathOutput receives the results of the paths of one run. Every path writes only
// to its own index.
type pathOutput struct {
	terminal  []float64
	drawdowns []float64
	grid      [][]float64
	paths     [][]float64
	absorbed  []bool
}

// Simulate runs the configured number of paths. Results are bit-identical for a
// fixed seed regardless of the worker count, because every path draws from its own
// generator seeded with (seed, path index).
func (s *Simulator) Simulate(ctx context.Context, in Input) (*Ensemble, error) {
	p, fallbacks, err := s.prepare(in)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	paths := in.Config.Paths
	out := &pathOutput{
		terminal:  make([]float64, paths),
		drawdowns: make([]float64, paths),
		absorbed:  make([]bool, paths),
	}
	if len(p.summary) > 0 {
		out.grid = make([][]float64, paths)
	}
	if p.retain > 0 {
		out.paths = make([][]float64, p.retain)
	}

	pool := s.pool
	if in.Config.Workers > 0 {
		pool = NewWorkerPool(in.Config.Workers)
	}

	numChunks := (paths + chunkSize - 1) / chunkSize
	err = pool.Run(ctx, numChunks, func(ctx context.Context, chunk int) error {
		lo := chunk * chunkSize
		hi := min(lo+chunkSize, paths)
		return p.runChunk(ctx, lo, hi, out)
	})
	if err != nil {
		return nil, err
	}

	absorbed := 0
	for _, a := range out.absorbed {
		if a {
			absorbed++
		}
	}
	if absorbed > 0 {
		fallbacks = fallbacks.Add(domain.FallbackPathsAbsorbed)
	}

	var timeGrid, median, p5, p95 []float64
	if len(p.summary) > 0 {
		median, p5, p95 = percentileCurves(out.grid, len(p.summary))
		timeGrid = make([]float64, len(p.summary))
		for j, step := range p.summary {
			timeGrid[j] = float64(step) * p.dt
		}
	}

	ens := &Ensemble{
		Method:         p.method,
		Seed:           p.seed,
		InitialCapital: in.InitialCapital,
		Horizon:        in.Config.Horizon,
		Steps:          p.steps,
		Weights:        p.weights,
		TimeGrid:       timeGrid,
		Median:         median,
		P5:             p5,
		P95:            p95,
		Terminal:       out.terminal,
		MaxDrawdowns:   out.drawdowns,
		Paths:          out.paths,
		Absorbed:       absorbed,
		Fallbacks:      fallbacks,
	}

	s.log.Debug().
		Str("method", string(p.method)).
		Int("paths", paths).
		Int("steps", p.steps).
		Int("assets", p.n).
		Int("absorbed", absorbed).
		Dur("duration", time.Since(start)).
		Msg("Simulation completed")

	return ens, nil
}

func (s *Simulator) prepare(in Input) (*plan, domain.Fallbacks, error) {
	if err := in.Model.Validate(); err != nil {
		return nil, nil, err
	}
	if err := in.Config.Validate(); err != nil {
		return nil, nil, err
	}
	if !(in.InitialCapital > 0) || math.IsInf(in.InitialCapital, 0) {
		return nil, nil, fmt.Errorf("%w: initial capital must be > 0, got %v",
			domain.ErrInvalidParameter, in.InitialCapital)
	}

	cfg := in.Config.WithDefaults()
	if cfg.Method == domain.MethodScalarGBM && in.Rule != nil {
		return nil, nil, fmt.Errorf("%w: scalar GBM requires static weights", domain.ErrInvalidParameter)
	}

	var weights []float64
	if in.Rule == nil || in.Weights != nil {
		if err := in.Model.CheckWeights(in.Weights); err != nil {
			return nil, nil, err
		}
		weights = append([]float64(nil), in.Weights...)
	}

	var fallbacks domain.Fallbacks
	factor, err := covariance.Factorize(in.Model.Sigma)
	if err != nil {
		return nil, nil, err
	}
	if factor.Regularized {
		fallbacks = fallbacks.Add(domain.FallbackCovarianceRegularized)
		s.log.Warn().
			Float64("epsilon", factor.Epsilon).
			Msg("Covariance not positive definite, regularized before Cholesky")
	}

	seed := rand.Uint64()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}

	n := in.Model.Dim()
	dt := cfg.Dt()
	p := &plan{
		n:       n,
		steps:   cfg.Steps,
		dt:      dt,
		sqrtDt:  math.Sqrt(dt),
		w0:      in.InitialCapital,
		floor:   cfg.WealthFloor * in.InitialCapital,
		seed:    seed,
		method:  cfg.Method,
		factor:  factor,
		drift:   make([]float64, n),
		weights: weights,
		rule:    in.Rule,
		retain:  cfg.RetainPaths,
	}
	if p.retain < 0 || p.retain > cfg.Paths {
		p.retain = cfg.Paths
	}
	if in.TerminalOnly {
		p.retain = 0
	} else {
		p.summary = summaryIndices(cfg.Steps, cfg.SummaryPoints)
	}

	for i := 0; i < n; i++ {
		p.drift[i] = (in.Model.Mu[i] - 0.5*factor.Sigma[i][i]) * dt
	}

	if cfg.Method == domain.MethodScalarGBM {
		mean := 0.0
		for i, w := range weights {
			mean += w * in.Model.Mu[i]
		}
		variance := math.Max(covariance.QuadForm(factor.Sigma, weights), 0)
		p.scalarDrift = (mean - 0.5*variance) * dt
		p.scalarVol = math.Sqrt(variance) * p.sqrtDt
	}

	return p, fallbacks, nil
}

func (p *plan) runChunk(ctx context.Context, lo, hi int, out *pathOutput) error {
	z := make([]float64, p.n)
	shock := make([]float64, p.n)

	for path := lo; path < hi; path++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.runPath(path, z, shock, out); err != nil {
			return err
		}
	}
	return nil
}

func (p *plan) runPath(path int, z, shock []float64, out *pathOutput) error {
	rng := rand.New(rand.NewPCG(p.seed, uint64(path)))

	var full []float64
	if path < p.retain {
		full = make([]float64, p.steps+1)
		full[0] = p.w0
	}
	var grid []float64
	if len(p.summary) > 0 {
		grid = make([]float64, len(p.summary))
		grid[0] = p.w0
	}
	next := 1

	wealth := p.w0
	absorbed := false
	var dd formulas.DrawdownTracker
	dd.Observe(wealth)

	for step := 1; step <= p.steps; step++ {
		if !absorbed {
			r, err := p.stepReturn(rng, step, wealth, z, shock)
			if err != nil {
				return err
			}
			wealth *= math.Exp(r)
			if wealth < p.floor || math.IsNaN(wealth) {
				wealth = p.floor
				absorbed = true
			}
			dd.Observe(wealth)
		}

		if full != nil {
			full[step] = wealth
		}
		if next < len(p.summary) && p.summary[next] == step {
			grid[next] = wealth
			next++
		}
	}

	out.terminal[path] = wealth
	out.drawdowns[path] = dd.Max()
	if grid != nil {
		out.grid[path] = grid
	}
	out.absorbed[path] = absorbed
	if full != nil {
		out.paths[path] = full
	}
	return nil
}

// stepReturn returns the portfolio log-return over one step.
func (p *plan) stepReturn(rng *rand.Rand, step int, wealth float64, z, shock []float64) (float64, error) {
	if p.method == domain.MethodScalarGBM {
		return p.scalarDrift + p.scalarVol*rng.NormFloat64(), nil
	}

	weights := p.weights
	if p.rule != nil {
		weights = p.rule.Weights(step-1, float64(step-1)*p.dt, wealth)
		if len(weights) != p.n {
			return 0, fmt.Errorf("%w: rebalance rule returned %d weights, expected %d",
				domain.ErrInvalidParameter, len(weights), p.n)
		}
		for i, w := range weights {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return 0, fmt.Errorf("%w: rebalance rule returned non-finite weight %v for asset %d at step %d",
					domain.ErrInvalidParameter, w, i, step-1)
			}
		}
	}

	for i := range z {
		z[i] = rng.NormFloat64()
	}
	p.factor.Correlate(shock, z)

	r := 0.0
	for i, w := range weights {
		r += w * (p.drift[i] + p.sqrtDt*shock[i])
	}
	return r, nil
}
