package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-risk/internal/domain"
	"github.com/aristath/sentinel-risk/internal/modules/allocation"
)

const goldenModelYAML = `model:
  assets: [EQ, BOND]
  mu: [0.08, 0.05]
  sigma: [[0.04, 0.01], [0.01, 0.02]]
  risk_free_rate: 0.02
  risk_aversion: 3
initial_capital: 1000
config:
  paths: 200
  steps: 12
  horizon: 1
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeSeries(t *testing.T, name string, seed uint64, n int, mean, scale float64) string {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, 0))
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

	var b strings.Builder
	b.WriteString("date,return\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%s,%.6f\n", start.AddDate(0, 0, i).Format(time.DateOnly), mean+scale*rng.NormFloat64())
	}
	return writeFile(t, name+".csv", b.String())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func TestParseSeries(t *testing.T) {
	s, err := parseSeries("eq", strings.NewReader("date,return\n2024-01-02,0.01\n2024-01-03,-0.02\n"))
	require.NoError(t, err)
	assert.Equal(t, "eq", s.Name)
	assert.Equal(t, []float64{0.01, -0.02}, s.Values())
}

func TestParseSeries_Errors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"bad date", "date,return\n02/01/2024,0.01\n"},
		{"duplicate date", "date,return\n2024-01-02,0.01\n2024-01-02,0.02\n"},
		{"non-numeric return", "date,return\n2024-01-02,abc\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSeries("x", strings.NewReader(tt.csv))
			assert.Error(t, err)
		})
	}
}

func TestAlignSeries_KeepsCommonDatesInOrder(t *testing.T) {
	a, err := parseSeries("a", strings.NewReader("date,return\n2024-01-04,0.3\n2024-01-02,0.1\n2024-01-03,0.2\n"))
	require.NoError(t, err)
	b, err := parseSeries("b", strings.NewReader("date,return\n2024-01-02,1\n2024-01-04,3\n2024-01-05,4\n"))
	require.NoError(t, err)

	dates, columns, err := alignSeries([]series{a, b})
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-02", "2024-01-04"}, dates)
	assert.Equal(t, [][]float64{{0.1, 0.3}, {1, 3}}, columns)
}

func TestAlignSeries_TooFewCommonDates(t *testing.T) {
	a, err := parseSeries("a", strings.NewReader("date,return\n2024-01-02,0.1\n"))
	require.NoError(t, err)
	_, _, err = alignSeries([]series{a})
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestParseRunFile(t *testing.T) {
	file, err := parseRunFile(strings.NewReader(goldenModelYAML), newValidator())
	require.NoError(t, err)

	assert.Equal(t, []string{"EQ", "BOND"}, file.Model.Assets)
	assert.Equal(t, 1000.0, file.InitialCapital)
	assert.Equal(t, 200, file.Config.Paths)
	assert.Equal(t, allocation.DefaultOptions(), file.Options)
	assert.Nil(t, file.Config.Seed)
}

func TestParseRunFile_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", goldenModelYAML + "bogus: 1\n"},
		{"zero risk aversion", strings.Replace(goldenModelYAML, "risk_aversion: 3", "risk_aversion: 0", 1)},
		{"negative capital", strings.Replace(goldenModelYAML, "initial_capital: 1000", "initial_capital: -5", 1)},
		{"bad scenario kind", goldenModelYAML + "scenarios:\n  - name: x\n    kind: meteor\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseRunFile(strings.NewReader(tt.yaml), newValidator())
			assert.ErrorIs(t, err, domain.ErrInvalidParameter)
		})
	}
}

func TestRunCommand(t *testing.T) {
	model := writeFile(t, "model.yaml", goldenModelYAML)

	out, err := execute(t, "run", "--model", model, "--seed", "1")
	require.NoError(t, err)

	var report struct {
		Allocation struct {
			Weights []float64 `json:"weights"`
		} `json:"allocation"`
		Risk struct {
			PathCount      int     `json:"path_count"`
			InitialCapital float64 `json:"initial_capital"`
		} `json:"risk"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Allocation.Weights, 2)
	assert.InDelta(t, 0.6, report.Allocation.Weights[0], 1e-9)
	assert.Equal(t, 200, report.Risk.PathCount)
	assert.Equal(t, 1000.0, report.Risk.InitialCapital)

	again, err := execute(t, "run", "--model", model, "--seed", "1")
	require.NoError(t, err)
	var second map[string]json.RawMessage
	var first map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	require.NoError(t, json.Unmarshal([]byte(again), &second))
	assert.JSONEq(t, string(first["risk"]), string(second["risk"]))
}

func TestRunCommand_RequiresModel(t *testing.T) {
	_, err := execute(t, "run")
	assert.Error(t, err)
}

func TestScenariosCommand_TableFromFile(t *testing.T) {
	model := writeFile(t, "model.yaml", goldenModelYAML)
	suite := writeFile(t, "suite.yaml", "- name: baseline\n  kind: baseline\n- name: high_vol\n  kind: sigma_scale\n  sigma_multiplier: 1.5\n")

	out, err := execute(t, "scenarios", "--model", model, "--scenarios", suite, "--seed", "3", "--table")
	require.NoError(t, err)

	var rows []struct {
		Name   string `json:"name"`
		Failed bool   `json:"failed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "baseline", rows[0].Name)
	assert.Equal(t, "high_vol", rows[1].Name)
	assert.False(t, rows[1].Failed)
}

func TestBacktestCommand_Threshold(t *testing.T) {
	evaluation := writeSeries(t, "eval", 1, 250, 0, 0.01)

	out, err := execute(t, "backtest", "--evaluation", evaluation, "--threshold", "-0.0165", "--confidence", "0.95")
	require.NoError(t, err)

	var report struct {
		Result struct {
			Observations int    `json:"observations"`
			Source       string `json:"source"`
			Verdict      string `json:"verdict"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 250, report.Result.Observations)
	assert.Equal(t, "provided", report.Result.Source)
	assert.NotEmpty(t, report.Result.Verdict)
}

func TestBacktestCommand_ModelNeedsReference(t *testing.T) {
	evaluation := writeSeries(t, "eval", 1, 50, 0, 0.01)
	model := writeFile(t, "model.yaml", goldenModelYAML)

	_, err := execute(t, "backtest", "--evaluation", evaluation, "--model", model)
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestEstimateCommand_RoundTrips(t *testing.T) {
	eq := writeSeries(t, "eq", 1, 300, 0.0004, 0.012)
	bond := writeSeries(t, "bond", 2, 300, 0.0002, 0.004)

	out, err := execute(t, "estimate", "--series", "EQ="+eq, "--series", "BOND="+bond, "--risk-aversion", "4")
	require.NoError(t, err)

	file, err := parseRunFile(strings.NewReader(out), newValidator())
	require.NoError(t, err)
	assert.Equal(t, []string{"EQ", "BOND"}, file.Model.Assets)
	assert.Equal(t, 4.0, file.Model.RiskAversion)
	assert.Equal(t, 0.02, file.Model.RiskFreeRate)
	require.Len(t, file.Model.Sigma, 2)
	// Annualized daily variance of 0.012² is about 0.036.
	assert.InDelta(t, 0.036, file.Model.Sigma[0][0], 0.015)
	assert.Greater(t, file.Model.Sigma[0][0], file.Model.Sigma[1][1])
}

func TestEstimateCommand_BadSeriesArg(t *testing.T) {
	_, err := execute(t, "estimate", "--series", "no-equals-sign")
	assert.ErrorIs(t, err, domain.ErrInvalidParameter)
}

func TestEstimateCommand_WarnsOnHighCorrelation(t *testing.T) {
	eq := writeSeries(t, "eq", 5, 200, 0.0004, 0.012)
	twin := writeSeries(t, "twin", 5, 200, 0.0004, 0.012)

	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"estimate", "--series", "EQ=" + eq, "--series", "TWIN=" + twin,
		"--shrink=false", "--log-level", "warn"})

	require.NoError(t, root.Execute())
	assert.Contains(t, errOut.String(), "Highly correlated assets")
	assert.Contains(t, out.String(), "TWIN")
}
