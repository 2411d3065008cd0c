// Package reconcile hands bans over from fail2ban jails to the blacklist by
// unbanning what each jail contributed.
package reconcile

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/ritsu/ipset-fail2ban/internal/model"
	"github.com/ritsu/ipset-fail2ban/internal/source"
	"github.com/ritsu/ipset-fail2ban/internal/tracker"
)

// Report summarizes one reconciliation pass.
type Report struct {
	Attempted int
	Unbanned  int
	Warnings  []*model.ReconciliationWarning
}

// Reconciler unbans jail entries once they are covered by the blacklist.
type Reconciler struct {
	tracker tracker.Tracker
	logger  *log.Logger
}

// New returns a Reconciler. logger may be nil.
func New(t tracker.Tracker, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.Default()
	}
	return &Reconciler{tracker: t, logger: logger.WithPrefix("reconcile")}
}

// Run issues one unban per raw entry of every jail batch, against that jail
// only. Entries are taken unfiltered from the batch, so text the blacklist
// rejected is still released from the jail. Batches that are not jails are
// skipped. Failures are collected as warnings and never stop the loop.
func (r *Reconciler) Run(ctx context.Context, batches []source.Batch) Report {
	var rep Report
	for _, b := range batches {
		if !b.Jail {
			continue
		}
		for _, addr := range b.Entries {
			rep.Attempted++
			if err := r.tracker.Unban(ctx, b.Origin, addr); err != nil {
				w := &model.ReconciliationWarning{Jail: b.Origin, Address: addr, Err: err}
				rep.Warnings = append(rep.Warnings, w)
				r.logger.Warn("unban failed", "jail", b.Origin, "address", addr, "error", err)
				continue
			}
			rep.Unbanned++
		}
		r.logger.Debug("jail reconciled", "jail", b.Origin, "entries", len(b.Entries))
	}
	return rep
}
