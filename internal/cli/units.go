package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ritsu/ipset-fail2ban/internal/systemd"
)

var (
	unitsBinary   string
	unitsInterval time.Duration
	unitsWatch    bool
)

func init() {
	unitsCmd.Flags().StringVar(&unitsBinary, "binary", "", "Path in ExecStart (default: this executable)")
	unitsCmd.Flags().DurationVar(&unitsInterval, "interval", 5*time.Minute, "Sync period")
	unitsCmd.Flags().BoolVar(&unitsWatch, "watch", false, "Render the long-running watch service instead of service+timer")
	rootCmd.AddCommand(unitsCmd)
}

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "Print systemd unit files",
	Long:  "Prints ipset-fail2ban.service and ipset-fail2ban.timer, or with --watch\nipset-fail2ban-watch.service, for installation under /etc/systemd/system.",
	Args:  cobra.NoArgs,
	RunE:  runUnits,
}

func runUnits(cmd *cobra.Command, args []string) error {
	binary := unitsBinary
	if binary == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
		binary = exe
	}
	configPath := cfgPath
	if configPath != "" {
		if abs, err := filepath.Abs(configPath); err == nil {
			configPath = abs
		}
	}
	opts := systemd.UnitOptions{Binary: binary, ConfigPath: configPath, Interval: unitsInterval}

	out := cmd.OutOrStdout()
	if unitsWatch {
		fmt.Fprintf(out, "# ipset-fail2ban-watch.service\n%s", systemd.WatchService(opts))
		return nil
	}
	fmt.Fprintf(out, "# ipset-fail2ban.service\n%s\n# ipset-fail2ban.timer\n%s", systemd.SyncService(opts), systemd.SyncTimer(opts))
	return nil
}
