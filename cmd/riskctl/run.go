package main

import (
	"github.com/spf13/cobra"

	"github.com/aristath/sentinel-risk/internal/modules/engine"
)

func (a *app) runCmd() *cobra.Command {
	var (
		modelPath string
		capital   float64
		sim       simFlags
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Solve, simulate and report risk for a model file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := loadRunFile(modelPath, a.validate)
			if err != nil {
				return err
			}
			sim.apply(cmd, &file.Config)
			if cmd.Flags().Changed("capital") {
				file.InitialCapital = capital
			}

			report, err := a.service().Run(cmd.Context(), engine.Request{
				Model:          file.Model,
				Options:        file.Options,
				Weights:        file.Weights,
				InitialCapital: file.InitialCapital,
				Config:         file.Config,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "Path to the model YAML file")
	cmd.Flags().Float64Var(&capital, "capital", 0, "Override initial capital")
	sim.register(cmd)
	_ = cmd.MarkFlagRequired("model")
	return cmd
}
