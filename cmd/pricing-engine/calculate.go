package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rzzdr/quant-pricing-engine/internal/marketdata"
	"github.com/rzzdr/quant-pricing-engine/internal/scenario"
	"github.com/rzzdr/quant-pricing-engine/pkg/models"
	"github.com/rzzdr/quant-pricing-engine/pkg/utils/logger"
)

var calculateCmd = &cobra.Command{
	Use:   "calculate <scenario>",
	Short: "Price a scenario file and print the results",
	Long: `Price every instrument of a YAML or JSON scenario file. Results are
printed as text, or as JSON with --output json.`,
	Args: cobra.ExactArgs(1),
	RunE: runCalculate,
}

func init() {
	calculateCmd.Flags().String("currency", "", "representation currency (overrides the scenario and config)")
	calculateCmd.Flags().Int("workers", 0, "engine groups calculated in parallel (overrides config)")
	calculateCmd.Flags().StringP("output", "o", "text", "output format: text or json")
}

func runCalculate(cmd *cobra.Command, args []string) error {
	log := logger.GetLogger("main.calculate")

	output, _ := cmd.Flags().GetString("output")
	if output != "text" && output != "json" {
		return fmt.Errorf("unknown output format %q", output)
	}

	file, err := scenario.DecodeFile(args[0])
	if err != nil {
		return err
	}
	sc, err := file.Build()
	if err != nil {
		return err
	}

	opts := scenario.RunOptions{
		Config:  cfg.Calculation.ToConfiguration(),
		Workers: cfg.Engine.Workers,
		Logger:  log,
	}
	// config currency only applies when the scenario has none
	if sc.RepresentationCurrency == marketdata.NIL {
		if opts.Currency, err = cfg.Engine.Currency(); err != nil {
			return err
		}
	}
	if s, _ := cmd.Flags().GetString("currency"); s != "" {
		if opts.Currency, err = marketdata.ParseCurrency(s); err != nil {
			return err
		}
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		opts.Workers = workers
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infof("Calculating %d instruments on %s", sc.Instruments.Len(), sc.EvaluationDate.Format("2006-01-02"))
	outcome, err := sc.Calculate(ctx, opts)
	if err != nil {
		return err
	}
	log.Infof("Calculated %d engine groups in %s", outcome.Groups, outcome.Duration)

	if output == "json" {
		return writeJSON(cmd.OutOrStdout(), outcome)
	}
	return writeText(cmd.OutOrStdout(), outcome)
}

func writeJSON(w io.Writer, outcome *scenario.Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(models.NewResults("", outcome.Results))
}

func writeText(w io.Writer, outcome *scenario.Outcome) error {
	ids := make([]marketdata.StaticID, 0, len(outcome.Results))
	for id := range outcome.Results {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b marketdata.StaticID) int { return strings.Compare(a.String(), b.String()) })

	for _, id := range ids {
		if _, err := fmt.Fprintln(w, outcome.Results[id].String()); err != nil {
			return err
		}
	}
	return nil
}
