package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var scriptFlags overrides

func init() {
	scriptFlags.register(scriptCmd.Flags())
	rootCmd.AddCommand(scriptCmd)
}

var scriptCmd = &cobra.Command{
	Use:   "script",
	Short: "Print the ipset restore script a sync would apply",
	Long: "Collects and merges like sync, then prints the restore script to stdout.\n" +
		"Nothing is written, swapped or unbanned.",
	Args: cobra.NoArgs,
	RunE: runScript,
}

func runScript(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags(), &scriptFlags)
	if err != nil {
		return err
	}
	// Dry runs never append history.
	cfg.HistoryFile = ""
	s, err := newSession(cfg, os.Stdout, false)
	if err != nil {
		return err
	}
	defer s.Close()

	script, rep, err := s.runner().Plan(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), script.String())
	s.logger.Info("script rendered", "set", script.Handle.Live, "entries", rep.Set.Len())
	return nil
}
