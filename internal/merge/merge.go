// Package merge unions filtered source batches into the canonical blacklist.
package merge

import (
	"slices"

	"github.com/ritsu/ipset-fail2ban/internal/address"
	"github.com/ritsu/ipset-fail2ban/internal/source"
)

// Set is the canonical, deduplicated and ordered blacklist of one run.
type Set struct {
	entries []address.Entry
	origins map[string]map[string]struct{}
}

// SourceStats counts one batch.
type SourceStats struct {
	Origin   string
	Raw      int
	Accepted int
	Rejected int
}

// Stats summarizes a merge for logging.
type Stats struct {
	Sources    []SourceStats
	Accepted   int
	Rejected   int
	Duplicates int
	Total      int
}

// Merge filters every batch and unions the accepted entries. The result does
// not depend on batch order or on order within a batch.
func Merge(batches []source.Batch) (*Set, Stats) {
	s := &Set{origins: make(map[string]map[string]struct{})}
	var stats Stats
	byKey := make(map[string]address.Entry)

	for _, b := range batches {
		ss := SourceStats{Origin: b.Origin, Raw: len(b.Entries)}
		for _, raw := range b.Entries {
			e, ok := address.Parse(raw)
			if !ok {
				ss.Rejected++
				continue
			}
			ss.Accepted++
			key := e.String()
			if _, seen := byKey[key]; !seen {
				byKey[key] = e
				s.origins[key] = make(map[string]struct{})
			}
			s.origins[key][b.Origin] = struct{}{}
		}
		stats.Sources = append(stats.Sources, ss)
		stats.Accepted += ss.Accepted
		stats.Rejected += ss.Rejected
	}

	s.entries = make([]address.Entry, 0, len(byKey))
	for _, e := range byKey {
		s.entries = append(s.entries, e)
	}
	slices.SortFunc(s.entries, address.Compare)

	stats.Total = len(s.entries)
	stats.Duplicates = stats.Accepted - stats.Total
	return s, stats
}

// Len returns the number of unique entries.
func (s *Set) Len() int { return len(s.entries) }

// Entries returns the canonical entries in order.
func (s *Set) Entries() []address.Entry {
	return append([]address.Entry(nil), s.entries...)
}

// Strings returns the canonical text of every entry in order.
func (s *Set) Strings() []string {
	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.String()
	}
	return out
}

// Origins returns the sorted origins that contributed entry.
func (s *Set) Origins(entry string) []string {
	m, ok := s.origins[entry]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(m))
	for o := range m {
		out = append(out, o)
	}
	slices.Sort(out)
	return out
}

// Contains reports whether entry (canonical form) is in the set.
func (s *Set) Contains(entry string) bool {
	_, ok := s.origins[entry]
	return ok
}
