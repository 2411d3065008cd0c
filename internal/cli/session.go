package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/coreos/go-iptables/iptables"
	"github.com/spf13/pflag"

	"github.com/ritsu/ipset-fail2ban/internal/config"
	"github.com/ritsu/ipset-fail2ban/internal/history"
	"github.com/ritsu/ipset-fail2ban/internal/ipset"
	"github.com/ritsu/ipset-fail2ban/internal/logging"
	"github.com/ritsu/ipset-fail2ban/internal/model"
	"github.com/ritsu/ipset-fail2ban/internal/pipeline"
	"github.com/ritsu/ipset-fail2ban/internal/runlock"
	"github.com/ritsu/ipset-fail2ban/internal/tracker"
)

// overrides are the run flags shared by sync, script and watch. A flag
// only replaces the config value when it was set on the command line.
type overrides struct {
	jails       []string
	file        string
	set         string
	restoreFile string
	cleanup     bool
	hashSize    int
	maxElem     int
	chain       string
	position    int
	lockFile    string
	historyFile string
}

func (o *overrides) register(fs *pflag.FlagSet) {
	fs.StringSliceVarP(&o.jails, "jail", "j", nil, "fail2ban jail to read (repeatable)")
	fs.StringVarP(&o.file, "file", "f", "", "Blacklist file to read and rewrite (empty writes to stdout)")
	fs.StringVarP(&o.set, "set", "s", "", "ipset set name (enables enforcement)")
	fs.StringVarP(&o.restoreFile, "restore-file", "r", "", "Path for the generated ipset restore script")
	fs.BoolVarP(&o.cleanup, "cleanup", "c", false, "Unban collected addresses from their jails after a successful sync")
	fs.IntVar(&o.hashSize, "hashsize", 0, "Initial hash size of the set")
	fs.IntVar(&o.maxElem, "maxelem", 0, "Maximum number of set elements")
	fs.StringVar(&o.chain, "chain", "", "iptables chain for the DROP rule")
	fs.IntVar(&o.position, "position", 0, "Insert position of the DROP rule")
	fs.StringVar(&o.lockFile, "lock-file", "", "Run lock path (\"\" in config disables locking)")
	fs.StringVar(&o.historyFile, "history-file", "", "Append a hash-chained run record to this file")
}

func (o *overrides) apply(fs *pflag.FlagSet, cfg *config.Config) {
	if fs.Changed("jail") {
		cfg.Jails = o.jails
	}
	if fs.Changed("file") {
		cfg.BlacklistFile = o.file
	}
	if fs.Changed("set") {
		cfg.SetName = o.set
	}
	if fs.Changed("restore-file") {
		cfg.RestoreFile = o.restoreFile
	}
	if fs.Changed("cleanup") {
		cfg.Cleanup = o.cleanup
	}
	if fs.Changed("hashsize") {
		cfg.HashSize = o.hashSize
	}
	if fs.Changed("maxelem") {
		cfg.MaxElem = o.maxElem
	}
	if fs.Changed("chain") {
		cfg.Chain = o.chain
	}
	if fs.Changed("position") {
		cfg.RulePosition = o.position
	}
	if fs.Changed("lock-file") {
		cfg.LockFile = o.lockFile
	}
	if fs.Changed("history-file") {
		cfg.HistoryFile = o.historyFile
	}
}

// loadConfig reads --config and applies command line overrides.
func loadConfig(fs *pflag.FlagSet, o *overrides) (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	o.apply(fs, cfg)
	return cfg, nil
}

// session owns the process resources of a command: logger, history log
// and the collaborators handed to the pipeline.
type session struct {
	cfg     *config.Config
	logger  *log.Logger
	closers []io.Closer
	deps    pipeline.Deps
}

// newSession builds the logger and real clients for cfg. enforce requests
// the ipset and iptables clients when a set is configured.
func newSession(cfg *config.Config, stdout io.Writer, enforce bool) (*session, error) {
	logger, logCloser, err := logging.New(cfg.Log, verbose, os.Stderr)
	if err != nil {
		return nil, model.Configf("log", "%v", err)
	}
	s := &session{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}
	s.deps = pipeline.Deps{
		Tracker: tracker.NewClient(cfg.Fail2banClient, cfg.CommandTimeout),
		Stdout:  stdout,
		Logger:  logger,
	}

	if enforce && cfg.EnforcementEnabled() {
		ipt, err := iptables.New()
		if err != nil {
			s.Close()
			return nil, &model.EnforcementError{Stage: "setup", Err: fmt.Errorf("iptables: %w", err)}
		}
		s.deps.Sets = ipset.NewCLI(cfg.IpsetBinary, cfg.CommandTimeout)
		s.deps.Rules = ipt
	}

	if cfg.HistoryFile != "" {
		h, err := history.Open(cfg.HistoryFile)
		if err != nil {
			s.Close()
			return nil, &model.IOError{Op: "open history", Path: cfg.HistoryFile, Err: err}
		}
		s.deps.History = h
		s.closers = append(s.closers, h)
	}
	return s, nil
}

func (s *session) runner() *pipeline.Runner {
	return pipeline.New(s.cfg, s.deps)
}

// lock takes the run lock unless locking is disabled. The returned release
// func is always safe to call.
func (s *session) lock() (func(), error) {
	if s.cfg.LockFile == "" {
		return func() {}, nil
	}
	l, err := runlock.Acquire(s.cfg.LockFile)
	if err != nil {
		if errors.Is(err, runlock.ErrLocked) {
			return nil, &model.EnforcementError{Stage: "lock", Err: err}
		}
		return nil, &model.IOError{Op: "lock", Path: s.cfg.LockFile, Err: err}
	}
	return func() {
		if err := l.Release(); err != nil {
			s.logger.Warn("failed to release run lock", "path", s.cfg.LockFile, "error", err)
		}
	}, nil
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i].Close()
	}
}
