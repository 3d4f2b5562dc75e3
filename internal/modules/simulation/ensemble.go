package simulation

import (
	"github.com/aristath/sentinel-risk/internal/domain"
	"github.com/aristath/sentinel-risk/pkg/formulas"
)

// Ensemble is the output of one simulation run. Terminal wealth and per-path maximum
// drawdown cover every path; full-resolution wealth paths are kept only for the
// first RetainPaths paths.
type Ensemble struct {
	Method         domain.SimulationMethod `json:"method"`
	Seed           uint64                  `json:"seed"`
	InitialCapital float64                 `json:"initial_capital"`
	Horizon        float64                 `json:"horizon"`
	Steps          int                     `json:"steps"`
	Weights        []float64               `json:"weights,omitempty"`

	// TimeGrid holds the summary time points in years; Median/P5/P95 are the
	// cross-path wealth percentiles at those points.
	TimeGrid []float64 `json:"time_grid"`
	Median   []float64 `json:"median"`
	P5       []float64 `json:"p5"`
	P95      []float64 `json:"p95"`

	Terminal     []float64   `json:"terminal"`
	MaxDrawdowns []float64   `json:"max_drawdowns"`
	Paths        [][]float64 `json:"paths,omitempty"`

	Absorbed  int              `json:"absorbed"`
	Fallbacks domain.Fallbacks `json:"fallbacks,omitempty"`
}

// PathCount returns the number of simulated paths.
func (e *Ensemble) PathCount() int {
	return len(e.Terminal)
}

// Summary is the ensemble without its per-path vectors.
type Summary struct {
	Method         domain.SimulationMethod `json:"method"`
	Seed           uint64                  `json:"seed"`
	PathCount      int                     `json:"path_count"`
	InitialCapital float64                 `json:"initial_capital"`
	Horizon        float64                 `json:"horizon"`
	TimeGrid       []float64               `json:"time_grid"`
	Median         []float64               `json:"median"`
	P5             []float64               `json:"p5"`
	P95            []float64               `json:"p95"`
	Paths          [][]float64             `json:"paths,omitempty"`
	Absorbed       int                     `json:"absorbed"`
	Fallbacks      domain.Fallbacks        `json:"fallbacks,omitempty"`
}

// Summarize drops the per-path vectors.
func (e *Ensemble) Summarize() Summary {
	return Summary{
		Method:         e.Method,
		Seed:           e.Seed,
		PathCount:      e.PathCount(),
		InitialCapital: e.InitialCapital,
		Horizon:        e.Horizon,
		TimeGrid:       e.TimeGrid,
		Median:         e.Median,
		P5:             e.P5,
		P95:            e.P95,
		Paths:          e.Paths,
		Absorbed:       e.Absorbed,
		Fallbacks:      e.Fallbacks,
	}
}

// summaryIndices picks points evenly spaced step indices in [0, steps], always
// including both ends. points must be in [2, steps+1].
func summaryIndices(steps, points int) []int {
	idx := make([]int, points)
	for j := 0; j < points; j++ {
		idx[j] = j * steps / (points - 1)
	}
	return idx
}

// percentileCurves computes the cross-path median, 5th and 95th percentiles for
// every summary column. grid is paths × points.
func percentileCurves(grid [][]float64, points int) (median, p5, p95 []float64) {
	median = make([]float64, points)
	p5 = make([]float64, points)
	p95 = make([]float64, points)

	column := make([]float64, len(grid))
	for j := 0; j < points; j++ {
		for i, row := range grid {
			column[i] = row[j]
		}
		sorted := formulas.SortedCopy(column)
		median[j] = formulas.Percentile(sorted, 0.50)
		p5[j] = formulas.Percentile(sorted, 0.05)
		p95[j] = formulas.Percentile(sorted, 0.95)
	}
	return median, p5, p95
}
