package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hdb-research/resale-cli/internal/amenity"
	"github.com/hdb-research/resale-cli/internal/dataset"
	"github.com/hdb-research/resale-cli/internal/trainer"
)

// retrainCmd scores the deployed model and retrains when it underperforms.
// A retrained model that still misses the threshold is a command error, so
// automated pipelines exit non-zero instead of deploying a degraded model.
var retrainCmd = &cobra.Command{
	Use:   "retrain",
	Short: "Check model quality and retrain if it degraded",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		ix, err := amenity.LoadIndex(ctx, st)
		if err != nil {
			return err
		}
		builder := dataset.NewFeatureBuilder(ix)

		gateCfg := trainer.GateConfig{
			Threshold:    cfg.Train.Threshold,
			RecentWindow: cfg.Train.RecentWindow,
			TrainWindow:  cfg.Train.TrainWindow,
			ValFraction:  cfg.Train.ValFraction,
			Seed:         cfg.Train.Seed,
		}

		var current trainer.Model
		if _, statErr := os.Stat(cfg.Train.ModelPath); statErr == nil {
			artifact, err := trainer.LoadArtifact(cfg.Train.ModelPath)
			if err != nil {
				return err
			}
			current = artifact.Model
		}

		recent, err := st.RecentRecords(ctx, dataset.KindResale, gateCfg.RecentWindow)
		if err != nil {
			return err
		}
		train, err := st.RecentRecords(ctx, dataset.KindResale, gateCfg.TrainWindow)
		if err != nil {
			return err
		}

		recentX, recentY, err := buildSplit(builder, recent)
		if err != nil {
			return err
		}
		trainX, trainY, err := buildSplit(builder, train)
		if err != nil {
			return err
		}

		decision, err := trainer.NewGate(gateCfg).Evaluate(current, recentX, recentY, trainX, trainY)
		if err != nil {
			return err
		}

		if decision.State == trainer.StateStable {
			zap.L().Info("model is healthy, no retrain needed",
				zap.Float64("score", decision.Score))
			return nil
		}

		artifact := trainer.NewArtifact(decision.Model, decision.TrainedRows, decision.Score)
		if err := artifact.Save(cfg.Train.ModelPath); err != nil {
			return err
		}
		zap.L().Info("retrained model accepted",
			zap.String("artifact_id", artifact.ID),
			zap.Float64("val_score", decision.Score),
			zap.Int("trained_rows", decision.TrainedRows))
		return nil
	},
}

func buildSplit(builder *dataset.FeatureBuilder, records []dataset.Record) ([][]float64, []float64, error) {
	if len(records) == 0 {
		return nil, nil, nil
	}
	m, err := builder.Build(records)
	if err != nil {
		return nil, nil, err
	}
	features, labels := m.Split()
	return features, labels, nil
}

func init() {
	rootCmd.AddCommand(retrainCmd)
}
