package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cppla/habitcore/routes"
	"github.com/cppla/habitcore/utils"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, if enabled, the in-process daily jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.cfg
			if port != "" {
				cfg.AppPort = port
			}
			db, core, err := bootstrap(rootOpts)
			if err != nil {
				return err
			}
			defer closeDB(db)
			defer utils.CloseRedis()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var ticker <-chan struct{}
			if cfg.JobsEnabled {
				interval := time.Duration(cfg.JobsIntervalMinutes) * time.Minute
				ticker = utils.StartTicker(ctx, interval, dailyJobs(core, cfg)...)
				utils.L().Info("daily jobs enabled", zap.Duration("interval", interval))
			}

			r := routes.SetupRouter(cfg, core)
			utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
			return utils.GraceServer(ctx, ":"+cfg.AppPort, r, func() {
				cancel()
				if ticker != nil {
					<-ticker
				}
			})
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (default from config)")
	return cmd
}
