// Package engine composes the allocation, simulation, risk, scenario and backtest
// modules into single-call pipeline runs.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-risk/internal/domain"
	"github.com/aristath/sentinel-risk/internal/metrics"
	"github.com/aristath/sentinel-risk/internal/modules/allocation"
	"github.com/aristath/sentinel-risk/internal/modules/backtest"
	"github.com/aristath/sentinel-risk/internal/modules/covariance"
	"github.com/aristath/sentinel-risk/internal/modules/risk"
	"github.com/aristath/sentinel-risk/internal/modules/scenarios"
	"github.com/aristath/sentinel-risk/internal/modules/simulation"
	"github.com/aristath/sentinel-risk/pkg/logger"
)

// Request describes one allocation → simulation → risk run. When Weights is set
// the solver is skipped and the weights are evaluated as given.
type Request struct {
	Model          domain.MomentsModel      `json:"model"`
	Options        allocation.Options       `json:"options"`
	Weights        []float64                `json:"weights,omitempty"`
	Rule           simulation.RebalanceRule `json:"-"`
	InitialCapital float64                  `json:"initial_capital" validate:"gt=0"`
	Config         domain.SimulationConfig  `json:"config"`
}

// HighCorrelationThreshold is the |ρ| at which an asset pair is flagged on a Report.
const HighCorrelationThreshold = 0.8

// Report is the JSON-ready output of Run.
type Report struct {
	RunID            string             `json:"run_id"`
	StartedAt        time.Time          `json:"started_at"`
	Duration         time.Duration      `json:"duration_ns"`
	Allocation       allocation.Result  `json:"allocation"`
	HighCorrelations []covariance.Pair  `json:"high_correlations"`
	Simulation       simulation.Summary `json:"simulation"`
	Risk             risk.Report        `json:"risk"`
	Fallbacks        domain.Fallbacks   `json:"fallbacks,omitempty"`
}

// ScenarioRequest describes a stress sweep. Weights default to the solved allocation.
type ScenarioRequest struct {
	Model          domain.MomentsModel     `json:"model"`
	Options        allocation.Options      `json:"options"`
	Weights        []float64               `json:"weights,omitempty"`
	InitialCapital float64                 `json:"initial_capital" validate:"gt=0"`
	Config         domain.SimulationConfig `json:"config"`
	Definitions    []scenarios.Definition  `json:"definitions,omitempty" validate:"omitempty,dive"`
}

// ScenarioReport is the JSON-ready output of RunScenarios.
type ScenarioReport struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration_ns"`
	Allocation allocation.Result `json:"allocation"`
	Set        *scenarios.Set    `json:"scenarios"`
}

// BacktestRequest backtests an evaluation series against either an explicit
// threshold or the historical VaR of a reference series.
type BacktestRequest struct {
	Evaluation []float64 `json:"evaluation" validate:"required,min=1"`
	Reference  []float64 `json:"reference,omitempty"`
	Threshold  *float64  `json:"threshold,omitempty"`
	Confidence float64   `json:"confidence" validate:"gt=0,lt=1"`
}

// BacktestReport is the JSON-ready output of Backtest.
type BacktestReport struct {
	RunID  string          `json:"run_id"`
	Result backtest.Result `json:"result"`
}

// CompareRequest backtests a historical VaR and a Monte Carlo VaR side by side.
// Config.Horizon must equal the period of one evaluation observation.
type CompareRequest struct {
	Evaluation     []float64               `json:"evaluation" validate:"required,min=1"`
	Reference      []float64               `json:"reference" validate:"required,min=1"`
	Model          domain.MomentsModel     `json:"model"`
	Options        allocation.Options      `json:"options"`
	Weights        []float64               `json:"weights,omitempty"`
	Config         domain.SimulationConfig `json:"config"`
	Confidence     float64                 `json:"confidence" validate:"gt=0,lt=1"`
	InitialCapital float64                 `json:"initial_capital,omitempty" validate:"gte=0"`
}

// CompareReport is the JSON-ready output of Compare.
type CompareReport struct {
	RunID      string              `json:"run_id"`
	Allocation allocation.Result   `json:"allocation"`
	Comparison backtest.Comparison `json:"comparison"`
}

// Service runs the pipeline.
type Service struct {
	solver    *allocation.Solver
	sim       *simulation.Simulator
	calc      *risk.Calculator
	generator *scenarios.Generator
	validator *backtest.Validator
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewService creates a new engine service. m may be nil.
func NewService(
	solver *allocation.Solver,
	sim *simulation.Simulator,
	calc *risk.Calculator,
	generator *scenarios.Generator,
	validator *backtest.Validator,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Service {
	return &Service{
		solver:    solver,
		sim:       sim,
		calc:      calc,
		generator: generator,
		validator: validator,
		metrics:   m,
		log:       logger.Component(log, "engine"),
	}
}

// Options bundles construction parameters for New.
type Options struct {
	Workers             int
	ScenarioConcurrency int
}

// New wires a Service with fresh module instances.
func New(opts Options, m *metrics.Metrics, log zerolog.Logger) *Service {
	sim := simulation.NewSimulator(opts.Workers, log)
	calc := risk.NewCalculator(log)
	return NewService(
		allocation.NewSolver(log),
		sim,
		calc,
		scenarios.NewGenerator(sim, calc, opts.ScenarioConcurrency, log),
		backtest.NewValidator(log),
		m,
		log,
	)
}

// Run solves (or evaluates) the allocation, simulates it and computes the risk report.
func (s *Service) Run(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	runID := uuid.New().String()

	alloc, err := s.allocate(req.Model, req.Options, req.Weights)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("run_id", runID).
		Int("assets", req.Model.Dim()).
		Int("paths", req.Config.Paths).
		Int("steps", req.Config.Steps).
		Msg("Starting risk run")

	ens, err := s.sim.Simulate(ctx, simulation.Input{
		Model:          req.Model,
		Weights:        alloc.Weights,
		Rule:           req.Rule,
		InitialCapital: req.InitialCapital,
		Config:         req.Config,
	})
	s.metrics.RecordSimulation(req.Config.WithDefaults().Method, err, req.Config.Paths)
	if err != nil {
		return nil, err
	}

	report, err := s.calc.Calculate(ens, req.Model.RiskFreeRate)
	if err != nil {
		return nil, err
	}

	fallbacks := append(domain.Fallbacks(nil), alloc.Fallbacks...).Merge(report.Fallbacks)
	s.metrics.RecordFallbacks(fallbacks)
	s.metrics.RecordDuration("run", time.Since(start))

	s.log.Info().
		Str("run_id", runID).
		Float64("var_95", report.VaR95).
		Float64("cvar_95", report.CVaR95).
		Float64("sharpe", report.Sharpe).
		Dur("duration", time.Since(start)).
		Msg("Risk run completed")

	return &Report{
		RunID:            runID,
		StartedAt:        start.UTC(),
		Duration:         time.Since(start),
		Allocation:       alloc,
		HighCorrelations: covariance.HighCorrelations(req.Model.Sigma, req.Model.Assets, HighCorrelationThreshold),
		Simulation:       ens.Summarize(),
		Risk:             report,
		Fallbacks:        fallbacks,
	}, nil
}

// RunFromProvider fetches the moments model from provider and runs the pipeline.
// Provider errors are returned as they are.
func (s *Service) RunFromProvider(ctx context.Context, provider domain.MomentsProvider, req Request) (*Report, error) {
	model, err := provider.Moments(ctx)
	if err != nil {
		return nil, err
	}
	req.Model = model
	return s.Run(ctx, req)
}

// RunScenarios runs a stress sweep on the solved (or given) weights.
func (s *Service) RunScenarios(ctx context.Context, req ScenarioRequest) (*ScenarioReport, error) {
	start := time.Now()
	runID := uuid.New().String()

	alloc, err := s.allocate(req.Model, req.Options, req.Weights)
	if err != nil {
		return nil, err
	}

	set, err := s.generator.Run(ctx, req.Model, alloc.Weights, req.InitialCapital, req.Config, req.Definitions)
	if err != nil {
		return nil, err
	}

	for _, sc := range set.Scenarios {
		s.metrics.RecordScenario(sc.Failed)
		s.metrics.RecordFallbacks(sc.Fallbacks)
		if !sc.Failed {
			s.metrics.RecordSimulation(req.Config.WithDefaults().Method, nil, req.Config.Paths)
		}
	}
	s.metrics.RecordDuration("scenarios", time.Since(start))

	return &ScenarioReport{
		RunID:      runID,
		StartedAt:  start.UTC(),
		Duration:   time.Since(start),
		Allocation: alloc,
		Set:        set,
	}, nil
}

// Backtest validates a threshold against the evaluation series.
func (s *Service) Backtest(ctx context.Context, req BacktestRequest) (*BacktestReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var threshold float64
	source := backtest.SourceProvided
	switch {
	case req.Threshold != nil:
		threshold = *req.Threshold
	case len(req.Reference) > 0:
		var err error
		if threshold, err = backtest.HistoricalVaR(req.Reference, req.Confidence); err != nil {
			return nil, err
		}
		source = backtest.SourceHistorical
	default:
		return nil, fmt.Errorf("%w: either threshold or reference series is required", domain.ErrInvalidParameter)
	}

	res, err := s.validator.Validate(req.Evaluation, threshold, req.Confidence, source)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordBacktest(string(res.Verdict))

	return &BacktestReport{RunID: uuid.New().String(), Result: res}, nil
}

// Compare simulates one evaluation period and backtests the Monte Carlo VaR next to
// the historical VaR of the reference series.
func (s *Service) Compare(ctx context.Context, req CompareRequest) (*CompareReport, error) {
	alloc, err := s.allocate(req.Model, req.Options, req.Weights)
	if err != nil {
		return nil, err
	}

	capital := req.InitialCapital
	if capital == 0 {
		capital = 1
	}
	ens, err := s.sim.Simulate(ctx, simulation.Input{
		Model:          req.Model,
		Weights:        alloc.Weights,
		InitialCapital: capital,
		Config:         req.Config,
	})
	s.metrics.RecordSimulation(req.Config.WithDefaults().Method, err, req.Config.Paths)
	if err != nil {
		return nil, err
	}

	cmp, err := s.validator.Compare(req.Evaluation, req.Reference, ens, req.Confidence)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordBacktest(string(cmp.Historical.Verdict))
	s.metrics.RecordBacktest(string(cmp.MonteCarlo.Verdict))

	return &CompareReport{RunID: uuid.New().String(), Allocation: alloc, Comparison: cmp}, nil
}

// AllocationRequest asks for the Merton allocation of a model.
type AllocationRequest struct {
	Model   domain.MomentsModel `json:"model"`
	Options allocation.Options  `json:"options"`
}

// Allocate solves the allocation on its own.
func (s *Service) Allocate(ctx context.Context, req AllocationRequest) (allocation.Result, error) {
	if err := ctx.Err(); err != nil {
		return allocation.Result{}, err
	}
	start := time.Now()
	res, err := s.solver.Solve(req.Model, req.Options)
	if err != nil {
		return allocation.Result{}, err
	}
	s.metrics.RecordFallbacks(res.Fallbacks)
	s.metrics.RecordDuration("allocation", time.Since(start))
	return res, nil
}

func (s *Service) allocate(model domain.MomentsModel, opts allocation.Options, weights []float64) (allocation.Result, error) {
	if weights != nil {
		if err := model.Validate(); err != nil {
			return allocation.Result{}, err
		}
		return allocation.Evaluate(model, weights)
	}
	return s.solver.Solve(model, opts)
}
