package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ritsu/ipset-fail2ban/internal/config"
	"github.com/ritsu/ipset-fail2ban/internal/model"
)

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ipset-fail2ban",
	Short: "Sync fail2ban bans into a persistent ipset blacklist",
	Long: "Collects banned addresses from fail2ban jails, merges them with a persisted\n" +
		"blacklist file and swaps the result into an ipset set guarded by an iptables\n" +
		"DROP rule. The live set is replaced atomically.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default "+config.DefaultPath+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
}

// Execute runs the root command and exits with a sysexits-style code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ipset-fail2ban: %v\n", err)
		os.Exit(model.ExitCode(err))
	}
}
