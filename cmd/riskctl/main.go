// Package main is riskctl, a command-line front end to the risk engine.
// Models and scenario suites are read from YAML, return series from CSV,
// and results are printed as indented JSON.
package main

import (
	"context"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/sentinel-risk/internal/modules/engine"
	"github.com/aristath/sentinel-risk/pkg/logger"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

type app struct {
	logLevel    string
	workers     int
	concurrency int

	log      zerolog.Logger
	validate *validator.Validate
}

func newRootCmd() *cobra.Command {
	a := &app{
		log:      zerolog.Nop(),
		validate: newValidator(),
	}

	root := &cobra.Command{
		Use:          "riskctl",
		Short:        "Portfolio allocation, simulation and risk tooling",
		Long:         `Solves Merton allocations, runs correlated Monte Carlo simulations, stress scenarios and VaR backtests.`,
		Version:      Version + " (" + GitCommit + ")",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.log = logger.New(logger.Config{
				Level:  a.logLevel,
				Pretty: true,
				Output: cmd.ErrOrStderr(),
			})
		},
	}

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().IntVar(&a.workers, "workers", 0, "Simulation workers (0 = all CPUs)")
	root.PersistentFlags().IntVar(&a.concurrency, "scenario-concurrency", 4, "Scenarios evaluated at once")

	root.AddCommand(
		a.runCmd(),
		a.scenariosCmd(),
		a.backtestCmd(),
		a.estimateCmd(),
	)
	return root
}

func (a *app) service() *engine.Service {
	return engine.New(engine.Options{
		Workers:             a.workers,
		ScenarioConcurrency: a.concurrency,
	}, nil, a.log)
}

// newValidator reports field errors by their yaml names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
