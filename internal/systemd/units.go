// Package systemd renders unit files for running the sync under systemd.
package systemd

import (
	"fmt"
	"strings"
	"time"
)

// UnitOptions parameterize the rendered units.
type UnitOptions struct {
	Binary     string
	ConfigPath string
	// Interval is the timer period for the oneshot service.
	Interval time.Duration
}

func (o UnitOptions) command(sub string) string {
	cmd := []string{o.Binary, sub}
	if o.ConfigPath != "" {
		cmd = append(cmd, "--config", o.ConfigPath)
	}
	return strings.Join(cmd, " ")
}

const hardening = `NoNewPrivileges=true
PrivateTmp=true
ProtectSystem=full
ProtectHome=true
CapabilityBoundingSet=CAP_NET_ADMIN CAP_NET_RAW
AmbientCapabilities=CAP_NET_ADMIN CAP_NET_RAW
`

// SyncService returns ipset-fail2ban.service, a oneshot sync started by
// the timer.
func SyncService(o UnitOptions) string {
	return `[Unit]
Description=Sync fail2ban bans into the ipset blacklist
After=fail2ban.service network-pre.target
Wants=fail2ban.service

[Service]
Type=oneshot
ExecStart=` + o.command("sync") + `
` + hardening
}

// SyncTimer returns ipset-fail2ban.timer.
func SyncTimer(o UnitOptions) string {
	interval := o.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return fmt.Sprintf(`[Unit]
Description=Periodic ipset blacklist sync

[Timer]
OnBootSec=1min
OnUnitActiveSec=%s
Persistent=true

[Install]
WantedBy=timers.target
`, systemdSpan(interval))
}

// WatchService returns ipset-fail2ban-watch.service, the long-running
// alternative to the timer.
func WatchService(o UnitOptions) string {
	interval := o.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return `[Unit]
Description=Watch and sync the ipset blacklist
After=fail2ban.service network-pre.target
Wants=fail2ban.service

[Service]
Type=simple
ExecStart=` + o.command("watch") + ` --interval ` + interval.String() + `
Restart=on-failure
RestartSec=5
` + hardening + `
[Install]
WantedBy=multi-user.target
`
}

// systemdSpan formats d in systemd time span syntax.
func systemdSpan(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%dmin", int(d/time.Minute))
	}
	return fmt.Sprintf("%ds", int(d.Round(time.Second)/time.Second))
}
