package records

import (
	"time"

	"github.com/okian/tunechart/internal/domain/model"
)

// DefaultMinMembers is the smallest group that gets per-user records.
const DefaultMinMembers = 3

// minPeakRows is how many contribution rows a member needs to qualify as
// peak performer.
const minPeakRows = 5

type userTally struct {
	member     model.Member
	score      float64
	plays      int
	rows       int
	entries    map[string]struct{}
	weeks      map[time.Time]struct{}
	numberOnes int
	tasteMaker int
}

// UserSuperlatives computes the per-member records. It returns nil when the
// group has fewer than minMembers members. Rows from users who are no
// longer members are ignored.
func UserSuperlatives(members []model.Member, contributions []model.Contribution, history map[model.Category][]model.ChartEntryRecord, minMembers int) *UserRecords {
	if minMembers <= 0 {
		minMembers = DefaultMinMembers
	}
	if len(members) < minMembers {
		return nil
	}

	tallies := make(map[string]*userTally, len(members))
	for _, m := range members {
		tallies[m.UserID] = &userTally{
			member:  m,
			entries: make(map[string]struct{}),
			weeks:   make(map[time.Time]struct{}),
		}
	}

	for _, r := range contributions {
		t, ok := tallies[r.UserID]
		if !ok {
			continue
		}
		t.score += r.Score
		t.plays += r.Playcount
		t.rows++
		t.entries[string(r.Category)+"/"+r.EntryKey] = struct{}{}
		t.weeks[r.WeekStart] = struct{}{}
		if r.ChartPosition == 1 {
			t.numberOnes++
		}
	}

	for _, uid := range tasteMakers(contributions, history) {
		if t, ok := tallies[uid]; ok {
			t.tasteMaker++
		}
	}

	return &UserRecords{
		MostTotalScore:  topUser(tallies, func(t *userTally) (float64, bool) { return t.score, t.score > 0 }, false),
		MostTotalPlays:  topUser(tallies, func(t *userTally) (float64, bool) { return float64(t.plays), t.plays > 0 }, false),
		Mainstream:      topUser(tallies, func(t *userTally) (float64, bool) { return float64(len(t.entries)), len(t.entries) > 0 }, false),
		Niche:           topUser(tallies, func(t *userTally) (float64, bool) { return float64(len(t.entries)), len(t.entries) > 0 }, true),
		MostNumberOnes:  topUser(tallies, func(t *userTally) (float64, bool) { return float64(t.numberOnes), t.numberOnes > 0 }, false),
		MostActiveWeeks: topUser(tallies, func(t *userTally) (float64, bool) { return float64(len(t.weeks)), len(t.weeks) > 0 }, false),
		TasteMaker:      topUser(tallies, func(t *userTally) (float64, bool) { return float64(t.tasteMaker), t.tasteMaker > 0 }, false),
		PeakPerformer: topUser(tallies, func(t *userTally) (float64, bool) {
			if t.rows < minPeakRows {
				return 0, false
			}
			return t.score / float64(t.rows), true
		}, false),
	}
}

// topUser picks the member with the highest (or lowest) qualifying value.
// Ties go to the lower user id.
func topUser(tallies map[string]*userTally, f func(*userTally) (float64, bool), lowest bool) *UserHolder {
	var best *UserHolder
	for id, t := range tallies {
		v, ok := f(t)
		if !ok {
			continue
		}
		if best != nil {
			better := v > best.Value
			if lowest {
				better = v < best.Value
			}
			if !better && (v != best.Value || id > best.UserID) {
				continue
			}
		}
		best = &UserHolder{UserID: id, Username: t.member.Username, Value: v}
	}
	return best
}

// tasteMakers returns, for every entry that ever reached #1, the member who
// contributed most to it in its debut chart week.
func tasteMakers(contributions []model.Contribution, history map[model.Category][]model.ChartEntryRecord) []string {
	type ck struct {
		c   model.Category
		key string
	}
	debut := make(map[ck]time.Time)
	for c, recs := range history {
		reachedOne := make(map[string]bool)
		first := make(map[string]time.Time)
		for _, r := range recs {
			if r.Position == 1 {
				reachedOne[r.EntryKey] = true
			}
			if w, ok := first[r.EntryKey]; !ok || r.WeekStart.Before(w) {
				first[r.EntryKey] = r.WeekStart
			}
		}
		for key := range reachedOne {
			debut[ck{c, key}] = first[key]
		}
	}

	leader := make(map[ck]model.Contribution)
	for _, r := range contributions {
		k := ck{r.Category, r.EntryKey}
		w, ok := debut[k]
		if !ok || !r.WeekStart.Equal(w) {
			continue
		}
		cur, seen := leader[k]
		if !seen || firstContributor(r, cur) {
			leader[k] = r
		}
	}

	out := make([]string, 0, len(leader))
	for _, r := range leader {
		out = append(out, r.UserID)
	}
	return out
}

func firstContributor(a, b model.Contribution) bool {
	switch {
	case a.Score != b.Score:
		return a.Score > b.Score
	case a.Playcount != b.Playcount:
		return a.Playcount > b.Playcount
	}
	return a.UserID < b.UserID
}
