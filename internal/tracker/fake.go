package tracker

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Tracker for tests.
type Fake struct {
	mu       sync.Mutex
	Bans     map[string][]string
	JailsErr error
	// BannedErr makes Banned fail for the listed jails.
	BannedErr map[string]error
	// FailUnban makes Unban fail for the listed "jail/addr" keys.
	FailUnban map[string]error
	Unbanned  []string // "jail/addr" in call order
	Queried   []string // jails passed to Banned
}

// NewFake returns a Fake holding bans keyed by jail name.
func NewFake(bans map[string][]string) *Fake {
	return &Fake{Bans: bans}
}

// Jails implements Tracker. Order follows map iteration and is not stable.
func (f *Fake) Jails(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.JailsErr != nil {
		return nil, f.JailsErr
	}
	jails := make([]string, 0, len(f.Bans))
	for j := range f.Bans {
		jails = append(jails, j)
	}
	return jails, nil
}

// Banned implements Tracker.
func (f *Fake) Banned(ctx context.Context, jail string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Queried = append(f.Queried, jail)
	if err, ok := f.BannedErr[jail]; ok {
		return nil, err
	}
	entries, ok := f.Bans[jail]
	if !ok {
		return nil, fmt.Errorf("jail %q does not exist", jail)
	}
	return append([]string(nil), entries...), nil
}

// Unban implements Tracker.
func (f *Fake) Unban(ctx context.Context, jail, addr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := jail + "/" + addr
	f.Unbanned = append(f.Unbanned, key)
	if err, ok := f.FailUnban[key]; ok {
		return err
	}
	return nil
}
