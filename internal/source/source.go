// Package source collects raw ban entries from the persisted blacklist file
// and from every configured jail.
package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ritsu/ipset-fail2ban/internal/model"
	"github.com/ritsu/ipset-fail2ban/internal/tracker"
)

// FileOrigin names the batch read from the persisted blacklist file.
const FileOrigin = "persisted-file"

// Batch is the raw output of one source for the current run.
type Batch struct {
	Origin  string
	Entries []string
	// Jail is true when Origin names a fail2ban jail.
	Jail bool
}

// VerifyJails checks every configured jail against the tracker's jail list.
// It must run before any batch is read or any unban is issued.
func VerifyJails(ctx context.Context, t tracker.Tracker, jails []string) error {
	if len(jails) == 0 {
		return model.Configf("jails", "at least one jail is required")
	}
	known, err := t.Jails(ctx)
	if err != nil {
		return model.Configf("jails", "cannot list tracker jails: %v", err)
	}
	set := make(map[string]struct{}, len(known))
	for _, j := range known {
		set[j] = struct{}{}
	}
	for _, j := range jails {
		if _, ok := set[j]; !ok {
			return model.Configf("jails", "unknown jail %q (tracker has: %s)", j, strings.Join(known, ", "))
		}
	}
	return nil
}

// ReadFile loads the persisted blacklist. A missing or empty file is an
// empty batch. Blank lines and #-comments are skipped.
func ReadFile(path string) (Batch, error) {
	b := Batch{Origin: FileOrigin}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return b, nil
		}
		return b, &model.IOError{Op: "read", Path: path, Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		b.Entries = append(b.Entries, line)
	}
	if err := scanner.Err(); err != nil {
		return b, &model.IOError{Op: "read", Path: path, Err: err}
	}
	return b, nil
}

// maxConcurrentJails bounds parallel fail2ban-client invocations.
const maxConcurrentJails = 4

// Collect returns the file batch (when path is set) followed by one batch per
// jail, in configuration order. Jails are queried concurrently and must
// already be verified. The first failure cancels the remaining queries.
func Collect(ctx context.Context, t tracker.Tracker, jails []string, path string) ([]Batch, error) {
	var file []Batch
	if path != "" {
		b, err := ReadFile(path)
		if err != nil {
			return nil, err
		}
		file = append(file, b)
	}

	jailBatches := make([]Batch, len(jails))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentJails)
	for i, jail := range jails {
		i, jail := i, jail
		g.Go(func() error {
			entries, err := t.Banned(gctx, jail)
			if err != nil {
				return fmt.Errorf("collect %s: %w", jail, err)
			}
			jailBatches[i] = Batch{Origin: jail, Entries: entries, Jail: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return append(file, jailBatches...), nil
}
