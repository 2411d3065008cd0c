package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ritsu/ipset-fail2ban/internal/model"
	"github.com/ritsu/ipset-fail2ban/internal/watch"
)

var (
	watchFlags    overrides
	watchInterval time.Duration
)

func init() {
	watchFlags.register(watchCmd.Flags())
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 5*time.Minute, "Re-sync period (0 syncs only on file edits)")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep syncing until interrupted",
	Long: "Runs a sync at startup, whenever the blacklist file is edited and every\n" +
		"--interval. Each run takes the run lock. Stops on SIGINT or SIGTERM.",
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags(), &watchFlags)
	if err != nil {
		return err
	}
	if cfg.BlacklistFile == "" {
		return model.Configf("blacklist_file", "required for watch")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s, err := newSession(cfg, os.Stdout, true)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := s.runner()
	w := watch.New(cfg.BlacklistFile, watchInterval, func(ctx context.Context) error {
		unlock, err := s.lock()
		if err != nil {
			return err
		}
		defer unlock()
		_, err = runner.Run(ctx)
		return err
	}, s.logger)

	s.logger.Info("watching", "file", cfg.BlacklistFile, "interval", watchInterval)
	return w.Run(ctx)
}
