package merge

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/ritsu/ipset-fail2ban/internal/source"
)

func batch(origin string, entries ...string) source.Batch {
	return source.Batch{Origin: origin, Entries: entries, Jail: origin != source.FileOrigin}
}

func TestMergeFiltersAndSorts(t *testing.T) {
	set, stats := Merge([]source.Batch{
		batch(source.FileOrigin),
		batch("sshd", "1.2.3.4", "10.0.0.5"),
	})
	if !reflect.DeepEqual(set.Strings(), []string{"1.2.3.4"}) {
		t.Errorf("unexpected set %v", set.Strings())
	}
	if stats.Duplicates != 0 || stats.Total != 1 || stats.Rejected != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestMergeCountsDuplicates(t *testing.T) {
	set, stats := Merge([]source.Batch{
		batch(source.FileOrigin, "1.2.3.4"),
		batch("sshd", "1.2.3.4", "5.6.7.8"),
	})
	if !reflect.DeepEqual(set.Strings(), []string{"1.2.3.4", "5.6.7.8"}) {
		t.Errorf("unexpected set %v", set.Strings())
	}
	if stats.Duplicates != 1 {
		t.Errorf("expected 1 duplicate, got %d", stats.Duplicates)
	}
	if got := set.Origins("1.2.3.4"); !reflect.DeepEqual(got, []string{source.FileOrigin, "sshd"}) {
		t.Errorf("unexpected origins %v", got)
	}
	if got := set.Origins("5.6.7.8"); !reflect.DeepEqual(got, []string{"sshd"}) {
		t.Errorf("unexpected origins %v", got)
	}
}

func TestMergeDuplicatesWithinOneSource(t *testing.T) {
	set, stats := Merge([]source.Batch{batch("sshd", "1.2.3.4", "1.2.3.4", "001.2.3.4", "1.2.3.4/32")})
	if set.Len() != 1 {
		t.Errorf("expected one entry, got %v", set.Strings())
	}
	if stats.Accepted != 4 || stats.Duplicates != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestMergeNumericOrder(t *testing.T) {
	set, _ := Merge([]source.Batch{batch("sshd", "100.0.0.1", "9.0.0.1", "45.0.0.0/8", "45.0.0.0/16", "45.0.0.0", "2.2.2.2")})
	want := []string{"2.2.2.2", "9.0.0.1", "45.0.0.0/8", "45.0.0.0/16", "45.0.0.0", "100.0.0.1"}
	if !reflect.DeepEqual(set.Strings(), want) {
		t.Errorf("got %v, want %v", set.Strings(), want)
	}
}

func TestMergeIsDeterministic(t *testing.T) {
	base := []source.Batch{
		batch(source.FileOrigin, "1.2.3.4", "8.8.8.8", "44.0.0.0/8"),
		batch("sshd", "5.6.7.8", "1.2.3.4", "192.168.0.1", "junk"),
		batch("recidive", "8.8.8.8", "99.1.2.3"),
	}
	first, firstStats := Merge(base)
	second, secondStats := Merge(base)
	if !reflect.DeepEqual(first.Strings(), second.Strings()) || !reflect.DeepEqual(firstStats, secondStats) {
		t.Fatal("merging the same batches twice gave different results")
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]source.Batch, len(base))
		for j, b := range base {
			entries := append([]string(nil), b.Entries...)
			rng.Shuffle(len(entries), func(a, c int) { entries[a], entries[c] = entries[c], entries[a] })
			shuffled[j] = source.Batch{Origin: b.Origin, Entries: entries, Jail: b.Jail}
		}
		rng.Shuffle(len(shuffled), func(a, c int) { shuffled[a], shuffled[c] = shuffled[c], shuffled[a] })
		got, _ := Merge(shuffled)
		if !reflect.DeepEqual(got.Strings(), first.Strings()) {
			t.Fatalf("iteration %d: order-dependent result %v vs %v", i, got.Strings(), first.Strings())
		}
	}
}

func TestMergeDedupCountsAcrossSources(t *testing.T) {
	const sources = 5
	const unique = 40
	var batches []source.Batch
	accepted := 0
	for s := 0; s < sources; s++ {
		var entries []string
		for u := s; u < unique; u += s + 1 {
			entries = append(entries, fmt.Sprintf("20.0.%d.%d", u/256, u%256))
			accepted++
		}
		batches = append(batches, batch(fmt.Sprintf("jail%d", s), entries...))
	}
	set, stats := Merge(batches)
	if set.Len() != unique {
		t.Errorf("expected %d unique entries, got %d", unique, set.Len())
	}
	if stats.Accepted != accepted || stats.Duplicates != accepted-unique {
		t.Errorf("unexpected stats %+v (accepted=%d)", stats, accepted)
	}
}

func TestMergeEmpty(t *testing.T) {
	set, stats := Merge(nil)
	if set.Len() != 0 || stats.Total != 0 || stats.Duplicates != 0 {
		t.Errorf("unexpected result %v %+v", set.Strings(), stats)
	}
	if set.Contains("1.2.3.4") {
		t.Error("empty set should contain nothing")
	}
	if set.Origins("1.2.3.4") != nil {
		t.Error("unknown entry should have no origins")
	}
}
