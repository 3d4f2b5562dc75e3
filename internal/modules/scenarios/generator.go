package scenarios

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/sentinel-risk/internal/domain"
	"github.com/aristath/sentinel-risk/internal/modules/allocation"
	"github.com/aristath/sentinel-risk/internal/modules/risk"
	"github.com/aristath/sentinel-risk/internal/modules/simulation"
	"github.com/aristath/sentinel-risk/pkg/logger"
)

// Scenario is one entry of a stress comparison set. A failed scenario carries
// only its name, definition and error. A tail fit that fails leaves Tail nil,
// sets TailError and records FallbackTailUnavailable without failing the scenario.
type Scenario struct {
	Name        string               `json:"name"`
	Definition  Definition           `json:"definition"`
	Model       *domain.MomentsModel `json:"model,omitempty"`
	Allocation  *allocation.Stats    `json:"allocation,omitempty"`
	Report      *risk.Report         `json:"report,omitempty"`
	Tail        *TailEstimate        `json:"tail,omitempty"`
	TailError   string               `json:"tail_error,omitempty"`
	Adversarial *Adversarial         `json:"adversarial,omitempty"`
	Fallbacks   domain.Fallbacks     `json:"fallbacks,omitempty"`
	Failed      bool                 `json:"failed"`
	Error       string               `json:"error,omitempty"`
	Duration    time.Duration        `json:"duration_ns"`
}

// Row is one line of the comparison table.
type Row struct {
	Name             string  `json:"name"`
	Failed           bool    `json:"failed"`
	ExpectedReturn   float64 `json:"expected_return"`
	Volatility       float64 `json:"volatility"`
	Sharpe           float64 `json:"sharpe"`
	VaR95            float64 `json:"var_95"`
	CVaR95           float64 `json:"cvar_95"`
	VaR95Loss        float64 `json:"var_95_loss"`
	CVaR95Loss       float64 `json:"cvar_95_loss"`
	CVaR99Loss       float64 `json:"cvar_99_loss"`
	MeanMaxDrawdown  float64 `json:"mean_max_drawdown"`
	WorstMaxDrawdown float64 `json:"worst_max_drawdown"`
	ProbLoss         float64 `json:"prob_loss"`
	ProbCatastrophic float64 `json:"prob_catastrophic"`
}

// Set is the ordered result of a scenario sweep.
type Set struct {
	Seed         uint64     `json:"seed"`
	Weights      []float64  `json:"weights"`
	Scenarios    []Scenario `json:"scenarios"`
	Table        []Row      `json:"table"`
	MostDamaging string     `json:"most_damaging,omitempty"`
	Failed       int        `json:"failed"`
}

// Generator runs scenario sweeps. Every scenario gets its own simulation run and
// its own random generators, seeded identically so that scenarios differ only in
// their moments.
type Generator struct {
	sim               *simulation.Simulator
	calc              *risk.Calculator
	concurrency       int
	thresholdQuantile float64
	log               zerolog.Logger
}

// NewGenerator creates a scenario generator running at most concurrency scenarios at once.
func NewGenerator(sim *simulation.Simulator, calc *risk.Calculator, concurrency int, log zerolog.Logger) *Generator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Generator{
		sim:               sim,
		calc:              calc,
		concurrency:       concurrency,
		thresholdQuantile: DefaultThresholdQuantile,
		log:               logger.Component(log, "scenario_generator"),
	}
}

// Run applies every definition to model and simulates the fixed weights under each
// perturbed model. Invalid inputs fail the whole sweep; a failure inside one
// scenario is recorded on its entry and the others still run. An empty defs
// runs DefaultDefinitions.
func (g *Generator) Run(
	ctx context.Context,
	model domain.MomentsModel,
	weights []float64,
	initialCapital float64,
	cfg domain.SimulationConfig,
	defs []Definition,
) (*Set, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}
	if err := model.CheckWeights(weights); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !(initialCapital > 0) || math.IsInf(initialCapital, 0) {
		return nil, fmt.Errorf("%w: initial capital must be > 0", domain.ErrInvalidParameter)
	}
	if len(defs) == 0 {
		defs = DefaultDefinitions()
	}
	seen := make(map[string]struct{}, len(defs))
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate scenario %q", domain.ErrInvalidParameter, d.Name)
		}
		seen[d.Name] = struct{}{}
	}

	seed := rand.Uint64()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	cfg = cfg.Seeded(seed)

	start := time.Now()
	g.log.Info().
		Int("scenarios", len(defs)).
		Int("paths", cfg.Paths).
		Uint64("seed", seed).
		Msg("Starting scenario sweep")

	entries := make([]Scenario, len(defs))
	var eg errgroup.Group
	eg.SetLimit(g.concurrency)
	for i, d := range defs {
		eg.Go(func() error {
			entries[i] = g.runOne(ctx, model, weights, initialCapital, cfg, d)
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	set := &Set{
		Seed:      seed,
		Weights:   append([]float64(nil), weights...),
		Scenarios: entries,
		Table:     make([]Row, len(entries)),
	}
	for i, e := range entries {
		set.Table[i] = row(e)
		if e.Failed {
			set.Failed++
		}
	}
	set.MostDamaging = MostDamaging(entries)

	g.log.Info().
		Int("scenarios", len(entries)).
		Int("failed", set.Failed).
		Str("most_damaging", set.MostDamaging).
		Dur("duration", time.Since(start)).
		Msg("Scenario sweep completed")

	return set, nil
}

func (g *Generator) runOne(
	ctx context.Context,
	model domain.MomentsModel,
	weights []float64,
	initialCapital float64,
	cfg domain.SimulationConfig,
	d Definition,
) (entry Scenario) {
	start := time.Now()
	entry = Scenario{Name: d.Name, Definition: d}

	defer func() {
		if r := recover(); r != nil {
			entry = failed(d, fmt.Errorf("%w: scenario panicked: %v", domain.ErrDegenerateScenario, r))
		}
		entry.Duration = time.Since(start)
		if entry.Failed {
			g.log.Warn().Str("scenario", d.Name).Str("error", entry.Error).Msg("Scenario failed")
		}
	}()

	transformed, err := Apply(model, d, weights)
	if err != nil {
		return failed(d, err)
	}
	if err := transformed.Model.Validate(); err != nil {
		return failed(d, fmt.Errorf("%w: perturbed model: %w", domain.ErrDegenerateScenario, err))
	}

	stats, err := allocation.ComputeStats(transformed.Model, weights)
	if err != nil {
		return failed(d, err)
	}

	ens, err := g.sim.Simulate(ctx, simulation.Input{
		Model:          transformed.Model,
		Weights:        weights,
		InitialCapital: initialCapital,
		Config:         cfg,
		TerminalOnly:   true,
	})
	if err != nil {
		return failed(d, err)
	}

	report, err := g.calc.Calculate(ens, transformed.Model.RiskFreeRate)
	if err != nil {
		return failed(d, err)
	}

	fallbacks := append(domain.Fallbacks(nil), transformed.Fallbacks...).Merge(report.Fallbacks)

	losses := make([]float64, len(ens.Terminal))
	for i, w := range ens.Terminal {
		losses[i] = initialCapital - w
	}
	maxLoss := initialCapital * (1 - cfg.WithDefaults().WealthFloor)
	if tail, err := FitGPD(losses, g.thresholdQuantile, maxLoss); err != nil {
		g.log.Warn().
			Err(err).
			Str("scenario", d.Name).
			Msg("Tail fit failed, scenario reported without extrapolated tail")
		entry.TailError = err.Error()
		fallbacks = fallbacks.Add(domain.FallbackTailUnavailable)
	} else {
		entry.Tail = &tail
		fallbacks = fallbacks.Merge(tail.Fallbacks)
		if transformed.Adversarial != nil {
			transformed.Adversarial.Tail = entry.Tail
		}
	}

	m := transformed.Model
	entry.Model = &m
	entry.Allocation = &stats
	entry.Report = &report
	entry.Adversarial = transformed.Adversarial
	entry.Fallbacks = fallbacks
	return entry
}

func failed(d Definition, err error) Scenario {
	return Scenario{Name: d.Name, Definition: d, Failed: true, Error: err.Error()}
}

func row(e Scenario) Row {
	r := Row{Name: e.Name, Failed: e.Failed}
	if e.Failed {
		return r
	}
	if e.Allocation != nil {
		r.ExpectedReturn = e.Allocation.ExpectedReturn
		r.Volatility = e.Allocation.Volatility
	}
	if rep := e.Report; rep != nil {
		r.Sharpe = rep.Sharpe
		r.VaR95 = rep.VaR95
		r.CVaR95 = rep.CVaR95
		r.VaR95Loss = rep.VaR95Loss
		r.CVaR95Loss = rep.CVaR95Loss
		r.CVaR99Loss = rep.CVaR99Loss
		r.MeanMaxDrawdown = rep.MeanMaxDrawdown
		r.WorstMaxDrawdown = rep.WorstMaxDrawdown
		r.ProbLoss = rep.ProbLoss
		r.ProbCatastrophic = rep.ProbCatastrophic
	}
	return r
}

// MostDamaging returns the name of the successful scenario with the lowest
// simulated Sharpe ratio, ties going to the larger CVaR95 loss. It returns "" when
// every scenario failed.
func MostDamaging(entries []Scenario) string {
	best := -1
	for i, e := range entries {
		if e.Failed || e.Report == nil {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		cur, top := e.Report, entries[best].Report
		switch {
		case cur.Sharpe < top.Sharpe-1e-12:
			best = i
		case math.Abs(cur.Sharpe-top.Sharpe) <= 1e-12 && cur.CVaR95Loss > top.CVaR95Loss:
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return entries[best].Name
}
