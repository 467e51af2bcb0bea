package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/cppla/habitcore/config"
	"github.com/cppla/habitcore/models"
	"github.com/cppla/habitcore/services"
	"github.com/cppla/habitcore/utils"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DBDriver   string
	DSN        string

	cfg config.AppConfig
}

// NewRootCommand creates the root command for the habitcore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "habitcore",
		Short: "habitcore - obligation materialization and streak engine",
		Long: `habitcore turns recurring tasks into dated obligations, closes finished
logical days, and keeps streaks, points and achievements per user.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadFrom(opts.ConfigPath)
			if opts.DBDriver != "" {
				cfg.DBDriver = opts.DBDriver
			}
			if opts.DSN != "" {
				cfg.DatabaseURI = opts.DSN
			}
			config.Set(cfg)
			opts.cfg = cfg
			return utils.InitLogger(cfg)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath, "path to config.json")
	cmd.PersistentFlags().StringVar(&opts.DBDriver, "db-driver", "", "database driver override (mysql|sqlite)")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "database DSN override")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMaterializeCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewResetStreaksCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewHashSecretCommand(opts))

	return cmd
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// bootstrap opens and migrates the database and builds the services.
func bootstrap(opts *RootOptions) (*gorm.DB, *services.Core, error) {
	db, err := config.Open(opts.cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	core := services.New(db, services.Options{
		Logger: utils.L(),
		Locker: utils.NewRedisLocker(),
		Points: services.PointsConfig{
			BasePoints:    opts.cfg.BasePoints,
			BonusRate:     opts.cfg.BonusRate,
			MaxMultiplier: opts.cfg.MaxMultiplier,
			DailyCap:      opts.cfg.DailyCap,
		},
		MaxRangeDays: opts.cfg.MaxRangeDays,
	})
	return db, core, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
