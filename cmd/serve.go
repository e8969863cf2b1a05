package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hdb-research/resale-cli/internal/amenity"
	"github.com/hdb-research/resale-cli/internal/dataset"
	"github.com/hdb-research/resale-cli/internal/server"
	"github.com/hdb-research/resale-cli/internal/trainer"
	"github.com/hdb-research/resale-cli/pkg/onemap"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve price predictions over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		ix, err := amenity.LoadIndex(ctx, st)
		if err != nil {
			return err
		}

		artifact, err := trainer.LoadArtifact(cfg.Train.ModelPath)
		if err != nil {
			return err
		}

		var geoOpts []onemap.Option
		if cfg.OneMap.BaseURL != "" {
			geoOpts = append(geoOpts, onemap.WithBaseURL(cfg.OneMap.BaseURL))
		}
		if cfg.OneMap.RequestsPerMinute > 0 {
			geoOpts = append(geoOpts, onemap.WithRateLimit(cfg.OneMap.RequestsPerMinute))
		}

		srv := server.New(
			dataset.NewFeatureBuilder(ix),
			artifact.Model,
			onemap.NewClient(geoOpts...),
		)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		return srv.Run(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
