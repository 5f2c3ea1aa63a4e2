package session

import "sort"

// MostRecentUnacknowledged returns the unacknowledged entry with the largest
// CreatedAt. When several share that timestamp the earliest one in entries
// wins; callers should not depend on which.
func MostRecentUnacknowledged(entries []Entry) (Entry, bool) {
	var (
		best  Entry
		found bool
	)
	for _, e := range entries {
		if e.Record.Ack {
			continue
		}
		if !found || e.Record.CreatedAt > best.Record.CreatedAt {
			best = e
			found = true
		}
	}
	return best, found
}

// SortNewestFirst orders entries by CreatedAt descending, keeping the
// relative order of equal timestamps.
func SortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Record.CreatedAt > entries[j].Record.CreatedAt
	})
}
