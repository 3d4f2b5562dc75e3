package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aristath/sentinel-risk/internal/domain"
	"github.com/aristath/sentinel-risk/internal/modules/covariance"
	"github.com/aristath/sentinel-risk/internal/modules/engine"
)

func (a *app) estimateCmd() *cobra.Command {
	var (
		seriesArgs   []string
		periods      float64
		riskFree     float64
		riskAversion float64
		shrink       bool
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate an annualized model from per-asset return CSVs",
		Long: `Reads one date,return CSV per asset (--series NAME=path, repeatable), keeps the
dates all series share and prints a model file usable by run and scenarios.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			all := make([]series, 0, len(seriesArgs))
			assets := make([]string, 0, len(seriesArgs))
			for _, arg := range seriesArgs {
				name, path, ok := strings.Cut(arg, "=")
				if !ok || name == "" || path == "" {
					return fmt.Errorf("%w: --series wants NAME=path, got %q", domain.ErrInvalidParameter, arg)
				}
				s, err := loadSeries(name, path)
				if err != nil {
					return err
				}
				all = append(all, s)
				assets = append(assets, name)
			}

			dates, columns, err := alignSeries(all)
			if err != nil {
				return err
			}

			model, err := covariance.EstimateMoments(assets, columns, covariance.EstimateOptions{
				PeriodsPerYear: periods,
				RiskFreeRate:   riskFree,
				RiskAversion:   riskAversion,
				Shrink:         shrink,
			})
			if err != nil {
				return err
			}

			a.log.Info().
				Int("assets", len(assets)).
				Int("observations", len(dates)).
				Str("first", dates[0]).
				Str("last", dates[len(dates)-1]).
				Msg("Estimated moments")

			for _, pair := range covariance.HighCorrelations(model.Sigma, model.Assets, engine.HighCorrelationThreshold) {
				a.log.Warn().
					Str("asset1", pair.Asset1).
					Str("asset2", pair.Asset2).
					Float64("correlation", pair.Correlation).
					Msg("Highly correlated assets")
			}

			file := defaultRunFile()
			file.Model = model

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(file); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.Flags().StringArrayVar(&seriesArgs, "series", nil, "Asset return series as NAME=path (repeatable)")
	cmd.Flags().Float64Var(&periods, "periods-per-year", 252, "Observations per year")
	cmd.Flags().Float64Var(&riskFree, "risk-free", 0.02, "Annual risk-free rate")
	cmd.Flags().Float64Var(&riskAversion, "risk-aversion", 3, "Relative risk aversion")
	cmd.Flags().BoolVar(&shrink, "shrink", true, "Apply Ledoit-Wolf shrinkage")
	_ = cmd.MarkFlagRequired("series")
	return cmd
}
