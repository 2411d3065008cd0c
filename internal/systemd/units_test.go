package systemd

import (
	"strings"
	"testing"
	"time"
)

func TestSyncService(t *testing.T) {
	unit := SyncService(UnitOptions{Binary: "/usr/local/bin/ipset-fail2ban", ConfigPath: "/etc/ipset-fail2ban/config.yaml"})

	for _, section := range []string{"[Unit]", "[Service]"} {
		if !strings.Contains(unit, section) {
			t.Errorf("unit missing section %s", section)
		}
	}
	if !strings.Contains(unit, "ExecStart=/usr/local/bin/ipset-fail2ban sync --config /etc/ipset-fail2ban/config.yaml\n") {
		t.Errorf("unexpected ExecStart in:\n%s", unit)
	}
	if !strings.Contains(unit, "Type=oneshot") {
		t.Error("sync service must be oneshot")
	}
	if !strings.Contains(unit, "CAP_NET_ADMIN") {
		t.Error("unit must grant CAP_NET_ADMIN for ipset and iptables")
	}
}

func TestSyncTimerInterval(t *testing.T) {
	cases := []struct {
		interval time.Duration
		want     string
	}{
		{0, "OnUnitActiveSec=5min"},
		{15 * time.Minute, "OnUnitActiveSec=15min"},
		{90 * time.Second, "OnUnitActiveSec=90s"},
	}
	for _, tc := range cases {
		unit := SyncTimer(UnitOptions{Interval: tc.interval})
		if !strings.Contains(unit, tc.want) {
			t.Errorf("interval %v: missing %q in:\n%s", tc.interval, tc.want, unit)
		}
	}
}

func TestWatchServiceWithoutConfig(t *testing.T) {
	unit := WatchService(UnitOptions{Binary: "ipset-fail2ban", Interval: time.Minute})
	if !strings.Contains(unit, "ExecStart=ipset-fail2ban watch --interval 1m0s\n") {
		t.Errorf("unexpected ExecStart in:\n%s", unit)
	}
	if strings.Contains(unit, "--config") {
		t.Error("no --config flag expected when path is empty")
	}
	if !strings.Contains(unit, "WantedBy=multi-user.target") {
		t.Error("watch service must be installable")
	}
}
