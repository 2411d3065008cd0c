package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ritsu/ipset-fail2ban/internal/config"
	"github.com/ritsu/ipset-fail2ban/internal/history"
	"github.com/ritsu/ipset-fail2ban/internal/model"
)

var tailLines int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyVerifyCmd)
	historyCmd.AddCommand(historyTailCmd)
	historyTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent runs to show")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Run history operations",
	Long:  "Commands for verifying and inspecting the hash-chained run history.\nThe path defaults to history_file from the config.",
}

var historyVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of the run history",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistoryVerify,
}

var historyTailCmd = &cobra.Command{
	Use:   "tail [path]",
	Short: "Show recent runs",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistoryTail,
}

func historyPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return "", err
	}
	if cfg.HistoryFile == "" {
		return "", model.Configf("history_file", "not configured and no path given")
	}
	return cfg.HistoryFile, nil
}

func runHistoryVerify(cmd *cobra.Command, args []string) error {
	path, err := historyPath(args)
	if err != nil {
		return err
	}
	result := history.Verify(path)
	if !result.Valid {
		return fmt.Errorf("history %s broken at line %d: %s", path, result.ErrorLine, result.Error)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %d runs verified\n", result.Lines)
	return nil
}

func runHistoryTail(cmd *cobra.Command, args []string) error {
	path, err := historyPath(args)
	if err != nil {
		return err
	}
	entries, err := history.Tail(path, tailLines)
	if err != nil {
		return &model.IOError{Op: "read history", Path: path, Err: err}
	}
	for _, e := range entries {
		out, _ := json.MarshalIndent(e, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	}
	return nil
}
