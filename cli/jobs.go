package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cppla/habitcore/config"
	"github.com/cppla/habitcore/logicalday"
	"github.com/cppla/habitcore/services"
	"github.com/cppla/habitcore/utils"
)

// NewMaterializeCommand creates the materialize command.
func NewMaterializeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		users      []string
		start, end string
		dryRun     bool
	)
	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Create pending obligation instances for a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			startDate, err := logicalday.Parse(start)
			if err != nil {
				return err
			}
			endDate := startDate
			if end != "" {
				if endDate, err = logicalday.Parse(end); err != nil {
					return err
				}
			}
			db, core, err := bootstrap(rootOpts)
			if err != nil {
				return err
			}
			defer closeDB(db)

			res, err := core.Materializer.Run(cmd.Context(), services.MaterializeRequest{
				UserIDs:   users,
				StartDate: startDate,
				EndDate:   endDate,
				DryRun:    dryRun,
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringSliceVarP(&users, "user", "u", nil, "user id (repeatable); default all users with active rules")
	cmd.Flags().StringVar(&start, "start", "", "first logical day, YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "last logical day, YYYY-MM-DD (default: start)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report the work without writing")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire pending instances of a finished day and write snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := services.SweepRequest{Now: time.Now()}
			if asOf != "" {
				d, err := logicalday.Parse(asOf)
				if err != nil {
					return err
				}
				req.AsOfDate = &d
			}
			db, core, err := bootstrap(rootOpts)
			if err != nil {
				return err
			}
			defer closeDB(db)

			res, err := core.Sweeper.Sweep(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "logical day to close (default: each user's yesterday)")
	return cmd
}

// NewResetStreaksCommand creates the reset-streaks command.
func NewResetStreaksCommand(rootOpts *RootOptions) *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "reset-streaks",
		Short: "Zero the streak of users who missed a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, core, err := bootstrap(rootOpts)
			if err != nil {
				return err
			}
			defer closeDB(db)

			var n int64
			if asOf != "" {
				d, perr := logicalday.Parse(asOf)
				if perr != nil {
					return perr
				}
				n, err = core.Streaks.ResetStreakIfMissed(cmd.Context(), d)
			} else {
				n, err = core.Streaks.ResetStreaks(cmd.Context(), time.Now())
			}
			if err != nil {
				return err
			}
			if n > 0 {
				utils.InvalidateAllStats(cmd.Context())
			}
			return writeJSON(cmd.OutOrStdout(), map[string]int64{"streaksReset": n})
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "treat this logical day as today for every user")
	return cmd
}

// dailyJobs is the in-process schedule: keep obligations materialized ahead,
// close yesterday, then decay missed streaks. Every step is idempotent.
func dailyJobs(core *services.Core, cfg config.AppConfig) []utils.Job {
	return []utils.Job{
		{Name: "materialize", Run: func(ctx context.Context) error {
			// start at UTC yesterday: users west of UTC are still on that day
			today := logicalday.FromTime(time.Now().UTC())
			ahead := cfg.MaterializeAheadDays
			if ahead >= cfg.MaxRangeDays {
				ahead = cfg.MaxRangeDays - 1
			}
			res, err := core.Materializer.Run(ctx, services.MaterializeRequest{
				StartDate: today.Yesterday(),
				EndDate:   today.AddDays(ahead - 1),
			})
			if err != nil {
				return err
			}
			utils.L().Info("scheduled materialize", zap.Int("created", res.InstancesCreated), zap.Int("errors", len(res.Errors)))
			return nil
		}},
		{Name: "sweep", Run: func(ctx context.Context) error {
			res, err := core.Sweeper.Sweep(ctx, services.SweepRequest{Now: time.Now()})
			if err != nil {
				return err
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("sweep finished with %d user errors", len(res.Errors))
			}
			return nil
		}},
		{Name: "reset-streaks", Run: func(ctx context.Context) error {
			n, err := core.Streaks.ResetStreaks(ctx, time.Now())
			if err == nil && n > 0 {
				utils.InvalidateAllStats(ctx)
			}
			return err
		}},
	}
}
