// Package aggregate merges members' scored weekly lists into group charts.
package aggregate

import (
	"sort"

	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/internal/domain/scoring"
)

// KeyedItem is a scored item with its canonical entry key.
type KeyedItem struct {
	EntryKey string
	scoring.Scored
}

// MemberList is one member's scored list for one category.
type MemberList struct {
	UserID string
	Items  []KeyedItem
}

type accumulator struct {
	entry model.ChartEntry
	users map[string]struct{}
}

// Merge sums contributions per entry key across members, orders the result
// and keeps the top chartSize entries. A non-positive chartSize keeps all.
//
// Ordering is contribution desc, summed plays desc, display name asc, then
// entry key asc. The Score field carries the summed contribution.
func Merge(mode scoring.Mode, lists []MemberList, chartSize int) []model.ChartEntry {
	byKey := make(map[string]*accumulator)
	var order []string

	for _, l := range lists {
		for _, it := range l.Items {
			if it.EntryKey == "" {
				continue
			}
			acc, ok := byKey[it.EntryKey]
			if !ok {
				acc = &accumulator{
					entry: model.ChartEntry{
						EntryKey:      it.EntryKey,
						DisplayName:   it.Item.Name,
						DisplayArtist: it.Item.Artist,
					},
					users: make(map[string]struct{}),
				}
				byKey[it.EntryKey] = acc
				order = append(order, it.EntryKey)
			}
			acc.entry.Score += mode.Contribution(it.Scored)
			acc.entry.Playcount += it.Item.Playcount
			acc.users[l.UserID] = struct{}{}
		}
	}

	out := make([]model.ChartEntry, 0, len(order))
	for _, k := range order {
		acc := byKey[k]
		acc.entry.Contributors = len(acc.users)
		out = append(out, acc.entry)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Playcount != b.Playcount {
			return a.Playcount > b.Playcount
		}
		if a.DisplayName != b.DisplayName {
			return a.DisplayName < b.DisplayName
		}
		return a.EntryKey < b.EntryKey
	})

	if chartSize > 0 && len(out) > chartSize {
		out = out[:chartSize]
	}
	for i := range out {
		out[i].Position = i + 1
	}
	return out
}

// ShouldAbort applies the partial-failure policy. Groups of five or fewer
// abort on any failure; larger groups abort once a third of the members
// (rounded up) have failed or been excluded.
func ShouldAbort(total, failedNow, excluded int) bool {
	failed := failedNow + excluded
	if failed <= 0 {
		return false
	}
	if total <= 5 {
		return true
	}
	return failed >= (total+2)/3
}
