// Package pipeline runs one blacklist synchronization: collect, merge,
// persist, enforce, reconcile. Stages run strictly in that order.
package pipeline

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/ritsu/ipset-fail2ban/internal/blacklist"
	"github.com/ritsu/ipset-fail2ban/internal/config"
	"github.com/ritsu/ipset-fail2ban/internal/history"
	"github.com/ritsu/ipset-fail2ban/internal/ipset"
	"github.com/ritsu/ipset-fail2ban/internal/merge"
	"github.com/ritsu/ipset-fail2ban/internal/model"
	"github.com/ritsu/ipset-fail2ban/internal/reconcile"
	"github.com/ritsu/ipset-fail2ban/internal/source"
	"github.com/ritsu/ipset-fail2ban/internal/tracker"
)

// Deps are the collaborators of a run. Sets and Rules are only used when
// enforcement is enabled; History is optional.
type Deps struct {
	Tracker tracker.Tracker
	Sets    ipset.SetAPI
	Rules   ipset.RuleTable
	History *history.Log
	Stdout  io.Writer
	Logger  *log.Logger
}

// Report describes a finished (or aborted) run.
type Report struct {
	Batches   []source.Batch
	Set       *merge.Set
	Stats     merge.Stats
	Sync      *ipset.Result
	Reconcile *reconcile.Report
}

// Runner executes runs against fixed configuration and collaborators.
type Runner struct {
	cfg    *config.Config
	deps   Deps
	logger *log.Logger
}

// New returns a Runner. cfg is not modified.
func New(cfg *config.Config, deps Deps) *Runner {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{cfg: cfg, deps: deps, logger: logger}
}

// collect runs pre-flight checks, reads every source and merges them.
// Nothing is mutated.
func (r *Runner) collect(ctx context.Context) (*Report, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := source.VerifyJails(ctx, r.deps.Tracker, r.cfg.Jails); err != nil {
		return nil, err
	}

	batches, err := source.Collect(ctx, r.deps.Tracker, r.cfg.Jails, r.cfg.BlacklistFile)
	if err != nil {
		return nil, err
	}
	set, stats := merge.Merge(batches)
	for _, s := range stats.Sources {
		r.logger.Debug("source read", "origin", s.Origin, "raw", s.Raw, "accepted", s.Accepted, "rejected", s.Rejected)
	}
	r.logger.Info("merged sources",
		"sources", len(stats.Sources),
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
		"duplicates", stats.Duplicates,
		"total", stats.Total,
	)
	return &Report{Batches: batches, Set: set, Stats: stats}, nil
}

// Plan collects and merges, then renders the restore script a run would
// apply. It requires enforcement to be configured.
func (r *Runner) Plan(ctx context.Context) (ipset.Script, *Report, error) {
	if !r.cfg.EnforcementEnabled() {
		return ipset.Script{}, nil, model.Configf("set_name", "required to render a restore script")
	}
	rep, err := r.collect(ctx)
	if err != nil {
		return ipset.Script{}, nil, err
	}
	h, err := ipset.NewHandle(r.cfg.SetName)
	if err != nil {
		return ipset.Script{}, rep, model.Configf("set_name", "%v", err)
	}
	return ipset.BuildScript(h, r.cfg.Params(), rep.Set.Strings()), rep, nil
}

// Run performs one full synchronization.
func (r *Runner) Run(ctx context.Context) (rep *Report, err error) {
	defer func() { r.record(rep, err) }()

	rep, err = r.collect(ctx)
	if err != nil {
		return rep, err
	}

	// The file is committed before enforcement so a failed sync leaves a
	// snapshot the next run can rebuild from.
	if err := blacklist.Write(r.cfg.BlacklistFile, rep.Set.Strings(), r.deps.Stdout); err != nil {
		return rep, err
	}
	if r.cfg.BlacklistFile != "" {
		r.logger.Info("blacklist written", "path", r.cfg.BlacklistFile, "entries", rep.Set.Len())
	}

	if r.cfg.EnforcementEnabled() {
		if r.deps.Sets == nil || r.deps.Rules == nil {
			return rep, &model.EnforcementError{Stage: "setup", Err: errors.New("set and rule clients are required")}
		}
		h, err := ipset.NewHandle(r.cfg.SetName)
		if err != nil {
			return rep, model.Configf("set_name", "%v", err)
		}
		engine := ipset.NewEngine(ipset.EngineConfig{
			Handle:      h,
			Params:      r.cfg.Params(),
			RestoreFile: r.cfg.RestoreFile,
			Chain:       r.cfg.Chain,
			Position:    r.cfg.RulePosition,
		}, r.deps.Sets, r.deps.Rules, r.logger)
		res, err := engine.Sync(ctx, rep.Set.Strings())
		if err != nil {
			return rep, err
		}
		rep.Sync = &res
	}

	if r.cfg.Cleanup {
		if !r.cfg.EnforcementEnabled() {
			r.logger.Warn("cleanup without set_name: unbanned addresses are only persisted, not enforced", "file", r.cfg.BlacklistFile)
		}
		rr := reconcile.New(r.deps.Tracker, r.logger).Run(ctx, rep.Batches)
		rep.Reconcile = &rr
		r.logger.Info("jails reconciled", "attempted", rr.Attempted, "unbanned", rr.Unbanned, "warnings", len(rr.Warnings))
	}
	return rep, nil
}

// record appends the run to the history file. Pre-flight failures are not
// recorded: they leave every file untouched.
func (r *Runner) record(rep *Report, runErr error) {
	if r.deps.History == nil {
		return
	}
	var cfgErr *model.ConfigurationError
	if errors.As(runErr, &cfgErr) {
		return
	}

	entry := history.RunEntry{Outcome: history.OutcomeOK, Set: r.cfg.SetName}
	if runErr != nil {
		entry.Outcome = history.OutcomeFailed
		entry.Error = runErr.Error()
	}
	if rep != nil {
		for _, s := range rep.Stats.Sources {
			entry.Sources = append(entry.Sources, history.SourceCount{Origin: s.Origin, Raw: s.Raw, Accepted: s.Accepted})
		}
		entry.Accepted = rep.Stats.Accepted
		entry.Rejected = rep.Stats.Rejected
		entry.Duplicates = rep.Stats.Duplicates
		entry.Total = rep.Stats.Total
		if rep.Sync != nil {
			entry.SetCreated = rep.Sync.SetCreated
			entry.RuleAdded = rep.Sync.RuleInserted
		}
		if rep.Reconcile != nil {
			entry.Unbanned = rep.Reconcile.Unbanned
			entry.UnbanFailed = len(rep.Reconcile.Warnings)
		}
	}
	if err := r.deps.History.Record(entry); err != nil {
		r.logger.Warn("history not recorded", "error", err)
	}
}
