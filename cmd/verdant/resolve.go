package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/verdantworks/verdant/internal/config"
	"github.com/verdantworks/verdant/internal/domain"
	"github.com/verdantworks/verdant/internal/thresholds"
)

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve a threshold recommendation for a plant/stage/factor",
		Long: `One-shot threshold resolution for operators: looks up the catalog
baseline for the given plant type, growth stage and factor, optionally
blends in a predicted value, and prints the clamped recommendation.`,
		RunE: runResolve,
	}
	cmd.Flags().String("plant", "", "Plant type (required)")
	cmd.Flags().String("stage", "", "Growth stage (required)")
	cmd.Flags().String("factor", "temperature", "Factor: temperature|humidity|soil_moisture|co2")
	cmd.Flags().Float64("predicted", 0, "Model-predicted optimal value")
	cmd.Flags().Bool("with-prediction", false, "Blend the --predicted value into the baseline")
	cmd.MarkFlagRequired("plant")
	cmd.MarkFlagRequired("stage")
	return cmd
}

func runResolve(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	plant, _ := cmd.Flags().GetString("plant")
	stage, _ := cmd.Flags().GetString("stage")
	factorName, _ := cmd.Flags().GetString("factor")
	predicted, _ := cmd.Flags().GetFloat64("predicted")
	withPrediction, _ := cmd.Flags().GetBool("with-prediction")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var catalog thresholds.Catalog
	if cfg.CatalogPath != "" {
		catalog, err = thresholds.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("failed to load plant catalog: %w", err)
		}
	} else {
		catalog = thresholds.NewStaticCatalog(nil)
	}

	resolver := thresholds.NewResolver(catalog)
	factor := domain.Factor(factorName)
	baseline := resolver.RangeFor(plant, stage, factor)

	var predictedPtr *float64
	if withPrediction {
		predictedPtr = &predicted
	}
	recommended := thresholds.Resolve(baseline, predictedPtr, cfg.Analysis.BlendWeight)

	fmt.Printf("Baseline:     min=%.1f max=%.1f optimal=%.1f\n", baseline.Min, baseline.Max, baseline.Optimal)
	if withPrediction {
		fmt.Printf("Predicted:    %.1f (blend weight %.2f)\n", predicted, cfg.Analysis.BlendWeight)
	}
	fmt.Printf("Recommended:  %.1f\n", recommended)
	return nil
}
