package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hdb-research/resale-cli/internal/dataset"
	"github.com/hdb-research/resale-cli/internal/ingest"
	"github.com/hdb-research/resale-cli/pkg/datagov"
	"github.com/hdb-research/resale-cli/pkg/onemap"
)

var updateCmd = &cobra.Command{
	Use:       "update {resale|rental}",
	Short:     "Fetch and merge new transaction records",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"resale", "rental"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		kind := dataset.KindResale
		if args[0] == "rental" {
			kind = dataset.KindRental
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var sourceOpts []datagov.Option
		if cfg.DataGov.BaseURL != "" {
			sourceOpts = append(sourceOpts, datagov.WithBaseURL(cfg.DataGov.BaseURL))
		}
		if cfg.DataGov.MetadataURL != "" {
			sourceOpts = append(sourceOpts, datagov.WithMetadataURL(cfg.DataGov.MetadataURL))
		}

		var geoOpts []onemap.Option
		if cfg.OneMap.BaseURL != "" {
			geoOpts = append(geoOpts, onemap.WithBaseURL(cfg.OneMap.BaseURL))
		}
		if cfg.OneMap.RequestsPerMinute > 0 {
			geoOpts = append(geoOpts, onemap.WithRateLimit(cfg.OneMap.RequestsPerMinute))
		}

		updater := ingest.NewUpdater(
			st,
			datagov.NewClient(sourceOpts...),
			dataset.NewMerger(onemap.NewClient(geoOpts...)),
			cfg.DataGov.BatchLimit,
		)

		res, err := updater.Update(ctx, kind)
		if err != nil {
			return err
		}
		zap.L().Info("update complete",
			zap.String("kind", string(res.Kind)),
			zap.Int("fetched", res.Fetched),
			zap.Int("total", res.Total))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}
