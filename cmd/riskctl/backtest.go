package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/sentinel-risk/internal/domain"
	"github.com/aristath/sentinel-risk/internal/modules/engine"
)

func (a *app) backtestCmd() *cobra.Command {
	var (
		evaluationPath string
		referencePath  string
		modelPath      string
		threshold      float64
		confidence     float64
		sim            simFlags
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Backtest a VaR threshold against a return series",
		Long: `Counts breaches of the evaluation series below a VaR threshold and runs the
Kupiec and Christoffersen tests. The threshold is --threshold, else the historical
VaR of --reference. With --model the historical VaR is compared against a Monte Carlo
VaR simulated over one evaluation period (daily unless --horizon is set).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			evaluation, err := loadSeries("evaluation", evaluationPath)
			if err != nil {
				return err
			}

			var reference []float64
			if referencePath != "" {
				ref, err := loadSeries("reference", referencePath)
				if err != nil {
					return err
				}
				reference = ref.Values()
			}

			svc := a.service()

			if modelPath != "" {
				if reference == nil {
					return fmt.Errorf("%w: --model requires --reference", domain.ErrInvalidParameter)
				}
				file, err := loadRunFile(modelPath, a.validate)
				if err != nil {
					return err
				}
				file.Config.Steps = 1
				file.Config.Horizon = 1.0 / 252
				sim.apply(cmd, &file.Config)

				report, err := svc.Compare(cmd.Context(), engine.CompareRequest{
					Evaluation: evaluation.Values(),
					Reference:  reference,
					Model:      file.Model,
					Options:    file.Options,
					Weights:    file.Weights,
					Config:     file.Config,
					Confidence: confidence,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			}

			req := engine.BacktestRequest{
				Evaluation: evaluation.Values(),
				Reference:  reference,
				Confidence: confidence,
			}
			if cmd.Flags().Changed("threshold") {
				req.Threshold = &threshold
			}
			report, err := svc.Backtest(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVarP(&evaluationPath, "evaluation", "e", "", "CSV (date,return) of the series to test")
	cmd.Flags().StringVarP(&referencePath, "reference", "r", "", "CSV (date,return) used to estimate the historical VaR")
	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "Model YAML file for a Monte Carlo comparison")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "VaR threshold as a return")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.95, "VaR confidence level")
	sim.register(cmd)
	_ = cmd.MarkFlagRequired("evaluation")
	return cmd
}
