package ipset

import (
	"bufio"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// FakeSets is an in-memory SetAPI that interprets restore scripts one
// command at a time. Observe, when set, is called with the live contents of
// every set after each command.
type FakeSets struct {
	mu         sync.Mutex
	Sets       map[string]map[string]struct{}
	Params     map[string]Params
	Restores   []string
	CreateErr  error
	RestoreErr error
	Observe    func(sets map[string][]string)
}

// NewFakeSets returns an empty FakeSets.
func NewFakeSets() *FakeSets {
	return &FakeSets{
		Sets:   make(map[string]map[string]struct{}),
		Params: make(map[string]Params),
	}
}

// ListNames implements SetAPI.
func (f *FakeSets) ListNames(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.Sets))
	for n := range f.Sets {
		names = append(names, n)
	}
	slices.Sort(names)
	return names, nil
}

// Create implements SetAPI.
func (f *FakeSets) Create(ctx context.Context, name string, p Params) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return f.CreateErr
	}
	return f.create(name, p)
}

func (f *FakeSets) create(name string, p Params) error {
	if _, ok := f.Sets[name]; ok {
		if f.Params[name] != p {
			return fmt.Errorf("set %s exists with different parameters", name)
		}
		return nil
	}
	f.Sets[name] = make(map[string]struct{})
	f.Params[name] = p
	return nil
}

// Restore implements SetAPI.
func (f *FakeSets) Restore(ctx context.Context, script string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Restores = append(f.Restores, script)
	if f.RestoreErr != nil {
		return f.RestoreErr
	}
	scanner := bufio.NewScanner(strings.NewReader(script))
	for line := 1; scanner.Scan(); line++ {
		if err := f.apply(strings.Fields(scanner.Text())); err != nil {
			return fmt.Errorf("restore line %d: %w", line, err)
		}
		if f.Observe != nil {
			f.Observe(f.snapshot())
		}
	}
	return scanner.Err()
}

// Members returns the sorted contents of set name.
func (f *FakeSets) Members(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return members(f.Sets[name])
}

func (f *FakeSets) snapshot() map[string][]string {
	out := make(map[string][]string, len(f.Sets))
	for n, m := range f.Sets {
		out[n] = members(m)
	}
	return out
}

func members(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (f *FakeSets) apply(fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	op, args := Op(fields[0]), fields[1:]
	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s: expected %d arguments", op, n)
		}
		for _, name := range args[:min(n, 1)] {
			if _, ok := f.Sets[name]; !ok && op != OpCreate {
				return fmt.Errorf("%s: set %s does not exist", op, name)
			}
		}
		return nil
	}
	switch op {
	case OpCreate:
		if err := need(1); err != nil {
			return err
		}
		var p Params
		for i := 1; i+1 < len(args); i++ {
			switch args[i] {
			case "hashsize":
				fmt.Sscan(args[i+1], &p.HashSize)
			case "maxelem":
				fmt.Sscan(args[i+1], &p.MaxElem)
			}
		}
		return f.create(args[0], p)
	case OpFlush:
		if err := need(1); err != nil {
			return err
		}
		f.Sets[args[0]] = make(map[string]struct{})
	case OpAdd:
		if err := need(2); err != nil {
			return err
		}
		f.Sets[args[0]][args[1]] = struct{}{}
	case OpSwap:
		if err := need(2); err != nil {
			return err
		}
		if _, ok := f.Sets[args[1]]; !ok {
			return fmt.Errorf("swap: set %s does not exist", args[1])
		}
		f.Sets[args[0]], f.Sets[args[1]] = f.Sets[args[1]], f.Sets[args[0]]
		f.Params[args[0]], f.Params[args[1]] = f.Params[args[1]], f.Params[args[0]]
	case OpDestroy:
		if err := need(1); err != nil {
			return err
		}
		delete(f.Sets, args[0])
		delete(f.Params, args[0])
	default:
		return fmt.Errorf("unknown command %q", op)
	}
	return nil
}

// FakeRules is an in-memory RuleTable keyed by "table/chain".
type FakeRules struct {
	mu        sync.Mutex
	Chains    map[string][]string
	ExistsErr error
	InsertErr error
}

// NewFakeRules returns an empty FakeRules.
func NewFakeRules() *FakeRules {
	return &FakeRules{Chains: make(map[string][]string)}
}

// Exists implements RuleTable.
func (f *FakeRules) Exists(table, chain string, rulespec ...string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ExistsErr != nil {
		return false, f.ExistsErr
	}
	return slices.Contains(f.Chains[table+"/"+chain], strings.Join(rulespec, " ")), nil
}

// Insert implements RuleTable.
func (f *FakeRules) Insert(table, chain string, pos int, rulespec ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InsertErr != nil {
		return f.InsertErr
	}
	key := table + "/" + chain
	rules := f.Chains[key]
	idx := min(max(pos-1, 0), len(rules))
	f.Chains[key] = slices.Insert(rules, idx, strings.Join(rulespec, " "))
	return nil
}

// Count returns how many times rulespec appears in table/chain.
func (f *FakeRules) Count(table, chain string, rulespec ...string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := strings.Join(rulespec, " ")
	n := 0
	for _, r := range f.Chains[table+"/"+chain] {
		if r == want {
			n++
		}
	}
	return n
}
