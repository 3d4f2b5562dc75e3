package main

import (
	"github.com/spf13/cobra"

	"github.com/aristath/sentinel-risk/internal/modules/engine"
)

func (a *app) scenariosCmd() *cobra.Command {
	var (
		modelPath     string
		scenariosPath string
		tableOnly     bool
		sim           simFlags
	)

	cmd := &cobra.Command{
		Use:   "scenarios",
		Short: "Run a stress scenario sweep on a model file",
		Long: `Runs every scenario of the suite on the same random numbers. The suite comes from
--scenarios, else from the model file's scenarios list, else the built-in suite.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := loadRunFile(modelPath, a.validate)
			if err != nil {
				return err
			}
			sim.apply(cmd, &file.Config)

			defs := file.Scenarios
			if scenariosPath != "" {
				if defs, err = loadDefinitions(scenariosPath, a.validate); err != nil {
					return err
				}
			}

			report, err := a.service().RunScenarios(cmd.Context(), engine.ScenarioRequest{
				Model:          file.Model,
				Options:        file.Options,
				Weights:        file.Weights,
				InitialCapital: file.InitialCapital,
				Config:         file.Config,
				Definitions:    defs,
			})
			if err != nil {
				return err
			}
			if tableOnly {
				return printJSON(cmd.OutOrStdout(), report.Set.Table)
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "Path to the model YAML file")
	cmd.Flags().StringVarP(&scenariosPath, "scenarios", "s", "", "Path to a YAML list of scenario definitions")
	cmd.Flags().BoolVar(&tableOnly, "table", false, "Print only the comparison table")
	sim.register(cmd)
	_ = cmd.MarkFlagRequired("model")
	return cmd
}
