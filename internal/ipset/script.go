// Package ipset commits the canonical blacklist to a kernel ipset without
// ever exposing a partially populated live set.
package ipset

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// SetType is the ipset type holding both hosts and networks.
	SetType = "hash:net"
	// Family restricts the set to IPv4.
	Family = "inet"

	stagingSuffix = "-tmp"
	maxNameLen    = 31
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)

// Params sizes a set at creation time.
type Params struct {
	HashSize int
	MaxElem  int
}

// DefaultParams are used when the configuration leaves sizing unset.
var DefaultParams = Params{HashSize: 16384, MaxElem: 65536}

// Handle names the live set and its staging counterpart.
type Handle struct {
	Live    string
	Staging string
}

// NewHandle derives the staging name from live.
func NewHandle(live string) (Handle, error) {
	if err := ValidateName(live); err != nil {
		return Handle{}, err
	}
	return Handle{Live: live, Staging: live + stagingSuffix}, nil
}

// ValidateName checks that name and its staging name are usable ipset names.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("set name is empty")
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("set name %q contains invalid characters", name)
	}
	if len(name)+len(stagingSuffix) > maxNameLen {
		return fmt.Errorf("set name %q is too long (max %d characters)", name, maxNameLen-len(stagingSuffix))
	}
	return nil
}

// Op is one restore command verb.
type Op string

const (
	OpCreate  Op = "create"
	OpFlush   Op = "flush"
	OpAdd     Op = "add"
	OpSwap    Op = "swap"
	OpDestroy Op = "destroy"
)

// Command is one line of a restore script.
type Command struct {
	Op   Op
	Args []string
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return string(c.Op)
	}
	return string(c.Op) + " " + strings.Join(c.Args, " ")
}

// Script is a full `ipset restore` batch. It rebuilds the live set from
// nothing, so it is regenerated on every run and never appended to.
type Script struct {
	Handle   Handle
	Commands []Command
}

// BuildScript returns the create / flush / add / swap / destroy sequence
// that replaces the contents of h.Live with entries in one swap.
func BuildScript(h Handle, p Params, entries []string) Script {
	create := func(name string) Command {
		return Command{Op: OpCreate, Args: []string{
			name, SetType,
			"family", Family,
			"hashsize", fmt.Sprint(p.HashSize),
			"maxelem", fmt.Sprint(p.MaxElem),
			"-exist",
		}}
	}

	cmds := make([]Command, 0, len(entries)+5)
	cmds = append(cmds,
		create(h.Live),
		create(h.Staging),
		Command{Op: OpFlush, Args: []string{h.Staging}},
	)
	for _, e := range entries {
		cmds = append(cmds, Command{Op: OpAdd, Args: []string{h.Staging, e}})
	}
	cmds = append(cmds,
		Command{Op: OpSwap, Args: []string{h.Staging, h.Live}},
		Command{Op: OpDestroy, Args: []string{h.Staging}},
	)
	return Script{Handle: h, Commands: cmds}
}

// String renders the script in `ipset restore` format, one command per line.
func (s Script) String() string {
	var b strings.Builder
	for _, c := range s.Commands {
		b.WriteString(c.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Batch renders the script for a live set that already exists. The live
// create line is left out: `create -exist` fails when the existing set was
// built with other sizing, while swap only needs matching type and family.
// The staging set carries the current sizing into the live name.
func (s Script) Batch() string {
	var b strings.Builder
	for _, c := range s.Commands {
		if c.Op == OpCreate && len(c.Args) > 0 && c.Args[0] == s.Handle.Live {
			continue
		}
		b.WriteString(c.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Entries returns the addresses the script loads into the staging set.
func (s Script) Entries() []string {
	var out []string
	for _, c := range s.Commands {
		if c.Op == OpAdd && len(c.Args) == 2 {
			out = append(out, c.Args[1])
		}
	}
	return out
}
