package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hdb-research/resale-cli/internal/amenity"
	"github.com/hdb-research/resale-cli/internal/store"
)

var amenitiesCmd = &cobra.Command{
	Use:   "amenities",
	Short: "Manage the amenity coordinate sets",
}

var amenitiesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load amenity seed files into an empty store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		return amenity.SeedAll(ctx, st, cfg.Amenity.MRTSeedPath, cfg.Amenity.MallSeedPath)
	},
}

var amenitiesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Refresh the MRT station set from the public dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		var opts []amenity.MRTOption
		if cfg.Amenity.DownloadLinkURL != "" {
			opts = append(opts, amenity.WithDownloadLinkURL(cfg.Amenity.DownloadLinkURL))
		}
		if err := amenity.SyncMRT(ctx, st, amenity.NewMRTSource(opts...)); err != nil {
			return err
		}

		n, err := st.CountAmenities(ctx, store.AmenityMRT)
		if err != nil {
			return err
		}
		zap.L().Info("station sync complete", zap.Int("stations", n))
		return nil
	},
}

func init() {
	amenitiesCmd.AddCommand(amenitiesSeedCmd)
	amenitiesCmd.AddCommand(amenitiesSyncCmd)
	rootCmd.AddCommand(amenitiesCmd)
}
