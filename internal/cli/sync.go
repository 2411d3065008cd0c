package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var syncFlags overrides

func init() {
	syncFlags.register(syncCmd.Flags())
	rootCmd.AddCommand(syncCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization",
	Long: "Reads banned addresses from the configured jails and the blacklist file,\n" +
		"writes the merged blacklist and, when a set is configured, swaps it into\n" +
		"the live ipset set. With --cleanup the collected addresses are then\n" +
		"unbanned from their jails.",
	Args: cobra.NoArgs,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags(), &syncFlags)
	if err != nil {
		return err
	}
	s, err := newSession(cfg, os.Stdout, true)
	if err != nil {
		return err
	}
	defer s.Close()

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	_, err = s.runner().Run(cmd.Context())
	return err
}
