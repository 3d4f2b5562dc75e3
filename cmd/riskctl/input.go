package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aristath/sentinel-risk/internal/domain"
	"github.com/aristath/sentinel-risk/internal/modules/allocation"
	"github.com/aristath/sentinel-risk/internal/modules/scenarios"
)

// runFile is the YAML document read by run, scenarios and backtest --model.
type runFile struct {
	Model          domain.MomentsModel     `yaml:"model"`
	Options        allocation.Options      `yaml:"options"`
	Weights        []float64               `yaml:"weights,omitempty"`
	InitialCapital float64                 `yaml:"initial_capital" validate:"gt=0"`
	Config         domain.SimulationConfig `yaml:"config"`
	Scenarios      []scenarios.Definition  `yaml:"scenarios,omitempty" validate:"omitempty,dive"`
}

// defaultRunFile holds the values a file may leave out.
func defaultRunFile() runFile {
	return runFile{
		Options:        allocation.DefaultOptions(),
		InitialCapital: 1,
		Config: domain.SimulationConfig{
			Paths:       10000,
			Steps:       252,
			Horizon:     1,
			RetainPaths: 0,
		},
	}
}

func loadRunFile(path string, v *validator.Validate) (runFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return runFile{}, fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()
	return parseRunFile(f, v)
}

func parseRunFile(r io.Reader, v *validator.Validate) (runFile, error) {
	file := defaultRunFile()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return runFile{}, fmt.Errorf("%w: failed to parse model file: %v", domain.ErrInvalidParameter, err)
	}
	if err := v.Struct(&file); err != nil {
		return runFile{}, fmt.Errorf("%w: %v", domain.ErrInvalidParameter, err)
	}
	return file, nil
}

// loadDefinitions reads a YAML list of scenario definitions.
func loadDefinitions(path string, v *validator.Validate) ([]scenarios.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenarios file: %w", err)
	}
	var defs []scenarios.Definition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("%w: failed to parse scenarios file: %v", domain.ErrInvalidParameter, err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: scenarios file is empty", domain.ErrInvalidParameter)
	}
	for i := range defs {
		if err := v.Struct(&defs[i]); err != nil {
			return nil, fmt.Errorf("%w: scenario %d: %v", domain.ErrInvalidParameter, i+1, err)
		}
	}
	return defs, nil
}

// seriesRow is one line of a date,return CSV.
type seriesRow struct {
	Date   string  `csv:"date"`
	Return float64 `csv:"return"`
}

type series struct {
	Name  string
	Rows  []seriesRow
	index map[string]float64
}

func loadSeries(name, path string) (series, error) {
	f, err := os.Open(path)
	if err != nil {
		return series{}, fmt.Errorf("failed to open series %s: %w", name, err)
	}
	defer f.Close()
	return parseSeries(name, f)
}

func parseSeries(name string, r io.Reader) (series, error) {
	var rows []seriesRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return series{}, fmt.Errorf("%w: series %s: %v", domain.ErrInvalidParameter, name, err)
	}
	if len(rows) == 0 {
		return series{}, fmt.Errorf("%w: series %s has no rows", domain.ErrInsufficientData, name)
	}

	s := series{Name: name, Rows: rows, index: make(map[string]float64, len(rows))}
	for i, row := range rows {
		if _, err := time.Parse(time.DateOnly, row.Date); err != nil {
			return series{}, fmt.Errorf("%w: series %s row %d: bad date %q", domain.ErrInvalidParameter, name, i+1, row.Date)
		}
		if _, dup := s.index[row.Date]; dup {
			return series{}, fmt.Errorf("%w: series %s: duplicate date %s", domain.ErrInvalidParameter, name, row.Date)
		}
		s.index[row.Date] = row.Return
	}
	return s, nil
}

// Values returns the returns in file order.
func (s series) Values() []float64 {
	out := make([]float64, len(s.Rows))
	for i, row := range s.Rows {
		out[i] = row.Return
	}
	return out
}

// alignSeries keeps the dates present in every series, ascending, and returns
// one column per series.
func alignSeries(all []series) ([]string, [][]float64, error) {
	if len(all) == 0 {
		return nil, nil, fmt.Errorf("%w: no series given", domain.ErrInvalidParameter)
	}

	var dates []string
	for date := range all[0].index {
		common := true
		for _, s := range all[1:] {
			if _, ok := s.index[date]; !ok {
				common = false
				break
			}
		}
		if common {
			dates = append(dates, date)
		}
	}
	if len(dates) < 2 {
		return nil, nil, fmt.Errorf("%w: series share %d dates, need at least 2", domain.ErrInsufficientData, len(dates))
	}
	// ISO dates sort lexically.
	sort.Strings(dates)

	columns := make([][]float64, len(all))
	for i, s := range all {
		col := make([]float64, len(dates))
		for j, date := range dates {
			col[j] = s.index[date]
		}
		columns[i] = col
	}
	return dates, columns, nil
}

// simFlags are the simulation overrides shared by several commands.
type simFlags struct {
	paths   int
	steps   int
	horizon float64
	seed    uint64
}

func (f *simFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.paths, "paths", 0, "Override simulated paths")
	cmd.Flags().IntVar(&f.steps, "steps", 0, "Override time steps")
	cmd.Flags().Float64Var(&f.horizon, "horizon", 0, "Override horizon in years")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "Seed for a reproducible run")
}

func (f *simFlags) apply(cmd *cobra.Command, cfg *domain.SimulationConfig) {
	if cmd.Flags().Changed("paths") {
		cfg.Paths = f.paths
	}
	if cmd.Flags().Changed("steps") {
		cfg.Steps = f.steps
	}
	if cmd.Flags().Changed("horizon") {
		cfg.Horizon = f.horizon
	}
	if cmd.Flags().Changed("seed") {
		*cfg = cfg.Seeded(f.seed)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
