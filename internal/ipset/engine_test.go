package ipset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ritsu/ipset-fail2ban/internal/model"
)

func newTestEngine(t *testing.T, sets SetAPI, rules RuleTable) (*Engine, string) {
	t.Helper()
	restore := filepath.Join(t.TempDir(), "blacklist.restore")
	e := NewEngine(EngineConfig{
		Handle:      mustHandle(t, "blacklist"),
		Params:      DefaultParams,
		RestoreFile: restore,
		Chain:       "INPUT",
		Position:    1,
	}, sets, rules, nil)
	return e, restore
}

func TestSyncFromNothing(t *testing.T) {
	sets, rules := NewFakeSets(), NewFakeRules()
	e, restore := newTestEngine(t, sets, rules)

	res, err := e.Sync(context.Background(), []string{"1.2.3.4", "5.6.7.8"})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !res.SetCreated || !res.RuleInserted || res.State != Cleaned {
		t.Errorf("unexpected result %+v", res)
	}
	if !reflect.DeepEqual(sets.Members("blacklist"), []string{"1.2.3.4", "5.6.7.8"}) {
		t.Errorf("unexpected live set %v", sets.Members("blacklist"))
	}
	data, err := os.ReadFile(restore)
	if err != nil {
		t.Fatalf("restore file: %v", err)
	}
	if string(data) != res.Script.String() {
		t.Error("restore file differs from the applied script")
	}
	if len(sets.Restores) != 1 {
		t.Errorf("expected a single restore call, got %d", len(sets.Restores))
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	sets, rules := NewFakeSets(), NewFakeRules()
	e, restore := newTestEngine(t, sets, rules)
	ctx := context.Background()

	if _, err := e.Sync(ctx, []string{"1.2.3.4"}); err != nil {
		t.Fatal(err)
	}
	res, err := e.Sync(ctx, []string{"5.6.7.8"})
	if err != nil {
		t.Fatal(err)
	}
	if res.SetCreated || res.RuleInserted {
		t.Errorf("second run should not create or insert: %+v", res)
	}
	if n := rules.Count(FilterTable, "INPUT", RuleSpec("blacklist")...); n != 1 {
		t.Errorf("expected exactly one rule, got %d", n)
	}
	if !reflect.DeepEqual(sets.Members("blacklist"), []string{"5.6.7.8"}) {
		t.Errorf("unexpected live set %v", sets.Members("blacklist"))
	}
	data, _ := os.ReadFile(restore)
	if string(data) != res.Script.String() {
		t.Error("restore file should be overwritten, not appended")
	}
}

// Every observable state of the live set during a sync is either the full
// previous contents or the full new contents.
func TestSyncLiveSetNeverPartial(t *testing.T) {
	sets, rules := NewFakeSets(), NewFakeRules()
	e, _ := newTestEngine(t, sets, rules)
	ctx := context.Background()

	old := []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"}
	if _, err := e.Sync(ctx, old); err != nil {
		t.Fatal(err)
	}

	next := []string{"2.2.2.2", "4.4.4.4", "5.5.5.5", "6.6.6.6"}
	observed := 0
	sets.Observe = func(snapshot map[string][]string) {
		observed++
		live, ok := snapshot["blacklist"]
		if !ok {
			t.Fatal("live set disappeared during sync")
		}
		if !reflect.DeepEqual(live, old) && !reflect.DeepEqual(live, next) {
			t.Fatalf("live set observed in intermediate state %v", live)
		}
	}
	if _, err := e.Sync(ctx, next); err != nil {
		t.Fatal(err)
	}
	if observed == 0 {
		t.Fatal("observer never called")
	}
	if !reflect.DeepEqual(sets.Members("blacklist"), next) {
		t.Errorf("unexpected final set %v", sets.Members("blacklist"))
	}
}

func TestSyncKeepsExistingRulePosition(t *testing.T) {
	sets, rules := NewFakeSets(), NewFakeRules()
	rules.Chains["filter/INPUT"] = []string{"-j ACCEPT"}
	e, _ := newTestEngine(t, sets, rules)
	if _, err := e.Sync(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	chain := rules.Chains["filter/INPUT"]
	if len(chain) != 2 || chain[0] != "-m set --match-set blacklist src -j DROP" {
		t.Errorf("rule not inserted at position 1: %v", chain)
	}
}

func TestSyncEnforcementErrors(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		name  string
		setup func(*FakeSets, *FakeRules)
		stage string
	}{
		{"create", func(s *FakeSets, r *FakeRules) { s.CreateErr = boom }, "create set"},
		{"query rules", func(s *FakeSets, r *FakeRules) { r.ExistsErr = boom }, "query rules"},
		{"insert rule", func(s *FakeSets, r *FakeRules) { r.InsertErr = boom }, "insert rule"},
		{"restore", func(s *FakeSets, r *FakeRules) { s.RestoreErr = boom }, "restore"},
	}
	for _, tc := range cases {
		sets, rules := NewFakeSets(), NewFakeRules()
		tc.setup(sets, rules)
		e, _ := newTestEngine(t, sets, rules)
		_, err := e.Sync(context.Background(), []string{"1.2.3.4"})
		var enfErr *model.EnforcementError
		if !errors.As(err, &enfErr) {
			t.Errorf("%s: expected EnforcementError, got %v", tc.name, err)
			continue
		}
		if enfErr.Stage != tc.stage {
			t.Errorf("%s: stage = %q, want %q", tc.name, enfErr.Stage, tc.stage)
		}
		if !errors.Is(err, boom) {
			t.Errorf("%s: cause not preserved", tc.name)
		}
	}
}

func TestSyncWithoutRestoreFile(t *testing.T) {
	sets, rules := NewFakeSets(), NewFakeRules()
	e := NewEngine(EngineConfig{Handle: mustHandle(t, "blacklist"), Params: DefaultParams}, sets, rules, nil)
	_, err := e.Sync(context.Background(), []string{"1.2.3.4"})
	if model.ExitCode(err) != model.ExitUnavailable {
		t.Errorf("expected enforcement error, got %v", err)
	}
	if len(sets.Restores) != 0 {
		t.Error("restore must not run when the script cannot be written")
	}
}

func TestSyncAfterSizingChange(t *testing.T) {
	sets, rules := NewFakeSets(), NewFakeRules()
	e, _ := newTestEngine(t, sets, rules)
	ctx := context.Background()
	if _, err := e.Sync(ctx, []string{"1.2.3.4"}); err != nil {
		t.Fatal(err)
	}

	resized := Params{HashSize: DefaultParams.HashSize, MaxElem: 131072}
	restore := filepath.Join(t.TempDir(), "resized.restore")
	e = NewEngine(EngineConfig{
		Handle:      mustHandle(t, "blacklist"),
		Params:      resized,
		RestoreFile: restore,
		Chain:       "INPUT",
		Position:    1,
	}, sets, rules, nil)

	for run := 1; run <= 3; run++ {
		if _, err := e.Sync(ctx, []string{"1.2.3.4", "5.6.7.8"}); err != nil {
			t.Fatalf("run %d after resize: %v", run, err)
		}
	}
	if sets.Params["blacklist"] != resized {
		t.Errorf("live set sizing = %+v, want %+v", sets.Params["blacklist"], resized)
	}
	if !reflect.DeepEqual(sets.Members("blacklist"), []string{"1.2.3.4", "5.6.7.8"}) {
		t.Errorf("unexpected live set %v", sets.Members("blacklist"))
	}
	last := sets.Restores[len(sets.Restores)-1]
	if strings.HasPrefix(last, "create blacklist ") {
		t.Errorf("applied batch must not recreate the live set:\n%s", last)
	}
	data, err := os.ReadFile(restore)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "create blacklist hash:net family inet hashsize 16384 maxelem 131072 -exist\n") {
		t.Errorf("restore file must stay replayable from nothing:\n%s", data)
	}
}

func TestSyncReplacesLeftoverStagingSet(t *testing.T) {
	sets, rules := NewFakeSets(), NewFakeRules()
	ctx := context.Background()
	if err := sets.Create(ctx, "blacklist-tmp", Params{HashSize: 1024, MaxElem: 1024}); err != nil {
		t.Fatal(err)
	}
	sets.Sets["blacklist-tmp"]["9.9.9.9"] = struct{}{}

	e, _ := newTestEngine(t, sets, rules)
	if _, err := e.Sync(ctx, []string{"1.2.3.4"}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !reflect.DeepEqual(sets.Members("blacklist"), []string{"1.2.3.4"}) {
		t.Errorf("unexpected live set %v", sets.Members("blacklist"))
	}
	if _, ok := sets.Sets["blacklist-tmp"]; ok {
		t.Error("staging set should be destroyed after sync")
	}
}

func TestSyncTransitions(t *testing.T) {
	e, _ := newTestEngine(t, NewFakeSets(), NewFakeRules())
	res, err := e.Sync(context.Background(), []string{"1.2.3.4"})
	if err != nil {
		t.Fatal(err)
	}
	want := []State{Created, Populated, Swapped, Cleaned}
	if !reflect.DeepEqual(res.Transitions, want) {
		t.Errorf("transitions = %v, want %v", res.Transitions, want)
	}

	sets := NewFakeSets()
	sets.RestoreErr = errors.New("boom")
	e, _ = newTestEngine(t, sets, NewFakeRules())
	res, _ = e.Sync(context.Background(), []string{"1.2.3.4"})
	if res.State != Created {
		t.Errorf("failed restore should stop at created, got %v", res.State)
	}
}

func TestStateString(t *testing.T) {
	want := map[State]string{Absent: "absent", Created: "created", Populated: "populated", Swapped: "swapped", Cleaned: "cleaned", State(9): "state(9)"}
	for s, w := range want {
		if s.String() != w {
			t.Errorf("State(%d).String() = %q, want %q", int(s), s.String(), w)
		}
	}
}
