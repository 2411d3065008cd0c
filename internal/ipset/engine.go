package ipset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/ritsu/ipset-fail2ban/internal/model"
)

// FilterTable is the iptables table holding the blacklist rule.
const FilterTable = "filter"

// SetAPI is the subset of ipset the engine drives.
type SetAPI interface {
	ListNames(ctx context.Context) ([]string, error)
	Create(ctx context.Context, name string, p Params) error
	Restore(ctx context.Context, script string) error
}

// RuleTable is the iptables surface. *iptables.IPTables satisfies it.
type RuleTable interface {
	Exists(table, chain string, rulespec ...string) (bool, error)
	Insert(table, chain string, pos int, rulespec ...string) error
}

// State tracks how far a sync got.
type State int

const (
	Absent State = iota
	Created
	Populated
	Swapped
	Cleaned
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Created:
		return "created"
	case Populated:
		return "populated"
	case Swapped:
		return "swapped"
	case Cleaned:
		return "cleaned"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EngineConfig is the immutable engine configuration.
type EngineConfig struct {
	Handle      Handle
	Params      Params
	RestoreFile string
	Chain       string
	Position    int
}

// Engine synchronizes the live set and its firewall rule.
type Engine struct {
	cfg    EngineConfig
	sets   SetAPI
	rules  RuleTable
	logger *log.Logger
}

// NewEngine wires an engine. logger may be nil.
func NewEngine(cfg EngineConfig, sets SetAPI, rules RuleTable, logger *log.Logger) *Engine {
	if cfg.Chain == "" {
		cfg.Chain = "INPUT"
	}
	if cfg.Position < 1 {
		cfg.Position = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{cfg: cfg, sets: sets, rules: rules, logger: logger.WithPrefix("ipset")}
}

// Result reports a finished sync.
type Result struct {
	State        State
	// Transitions lists every state reached, in order.
	Transitions  []State
	SetCreated   bool
	RuleInserted bool
	Entries      int
	Script       Script
}

// RuleSpec is the iptables match dropping traffic from members of set.
func RuleSpec(set string) []string {
	return []string{"-m", "set", "--match-set", set, "src", "-j", "DROP"}
}

// EnsureSet creates the live set when it does not exist yet.
func (e *Engine) EnsureSet(ctx context.Context) (bool, error) {
	created, _, err := e.ensureSet(ctx)
	return created, err
}

// ensureSet also reports whether a staging set survived an aborted run.
func (e *Engine) ensureSet(ctx context.Context) (created, staleStaging bool, err error) {
	names, err := e.sets.ListNames(ctx)
	if err != nil {
		return false, false, &model.EnforcementError{Stage: "list sets", Err: err}
	}
	staleStaging = slices.Contains(names, e.cfg.Handle.Staging)
	if slices.Contains(names, e.cfg.Handle.Live) {
		return false, staleStaging, nil
	}
	if err := e.sets.Create(ctx, e.cfg.Handle.Live, e.cfg.Params); err != nil {
		return false, staleStaging, &model.EnforcementError{Stage: "create set", Err: err}
	}
	return true, staleStaging, nil
}

// EnsureRule inserts the DROP rule unless it is already present.
func (e *Engine) EnsureRule() (bool, error) {
	rule := RuleSpec(e.cfg.Handle.Live)
	exists, err := e.rules.Exists(FilterTable, e.cfg.Chain, rule...)
	if err != nil {
		return false, &model.EnforcementError{Stage: "query rules", Err: err}
	}
	if exists {
		return false, nil
	}
	if err := e.rules.Insert(FilterTable, e.cfg.Chain, e.cfg.Position, rule...); err != nil {
		return false, &model.EnforcementError{Stage: "insert rule", Err: err}
	}
	return true, nil
}

// WriteScript overwrites the restore file with s.
func (e *Engine) WriteScript(s Script) error {
	path := e.cfg.RestoreFile
	if path == "" {
		return &model.EnforcementError{Stage: "write restore script", Err: fmt.Errorf("no restore file configured")}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &model.EnforcementError{Stage: "write restore script", Err: err}
	}
	if err := os.WriteFile(path, []byte(s.String()), 0644); err != nil {
		return &model.EnforcementError{Stage: "write restore script", Err: err}
	}
	return nil
}

// Sync commits entries to the live set. The staging set is populated and
// swapped in by one restore batch, so the live set always holds either the
// previous or the new contents. The file on disk keeps the full script,
// live create included, so it can rebuild the set after a reboot.
func (e *Engine) Sync(ctx context.Context, entries []string) (Result, error) {
	res := Result{State: Absent, Entries: len(entries)}

	created, stale, err := e.ensureSet(ctx)
	if err != nil {
		return res, err
	}
	res.SetCreated = created
	e.advance(&res, Created)

	inserted, err := e.EnsureRule()
	if err != nil {
		return res, err
	}
	res.RuleInserted = inserted
	if inserted {
		e.logger.Info("inserted blacklist rule", "chain", e.cfg.Chain, "position", e.cfg.Position, "set", e.cfg.Handle.Live)
	}

	res.Script = BuildScript(e.cfg.Handle, e.cfg.Params, entries)
	if err := e.WriteScript(res.Script); err != nil {
		return res, err
	}

	batch := res.Script.Batch()
	if stale {
		// Left by an aborted run, possibly with other sizing.
		batch = Command{Op: OpDestroy, Args: []string{e.cfg.Handle.Staging}}.String() + "\n" + batch
	}
	if err := e.sets.Restore(ctx, batch); err != nil {
		return res, &model.EnforcementError{Stage: "restore", Err: err}
	}
	// ipset restore commits the batch in order: populate, swap, destroy.
	for _, st := range []State{Populated, Swapped, Cleaned} {
		e.advance(&res, st)
	}
	e.logger.Info("set synchronized", "set", e.cfg.Handle.Live, "entries", len(entries), "state", res.State, "restore_file", e.cfg.RestoreFile)
	return res, nil
}

func (e *Engine) advance(res *Result, st State) {
	res.State = st
	res.Transitions = append(res.Transitions, st)
	e.logger.Debug("set state", "set", e.cfg.Handle.Live, "state", st, "created", res.SetCreated)
}
