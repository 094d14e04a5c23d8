package records

import (
	"math"
	"sort"
	"time"

	"github.com/okian/tunechart/internal/domain/entrystats"
	"github.com/okian/tunechart/internal/domain/model"
)

// DefaultCandidateLimit bounds how many entries a full streak pass re-walks.
const DefaultCandidateLimit = 50

func atOne(p int) bool   { return p == 1 }
func inTop10(p int) bool { return p >= 1 && p <= 10 }

// byEntry groups a category's week-ordered history by entry key.
func byEntry(history []model.ChartEntryRecord) map[string][]model.ChartEntryRecord {
	out := make(map[string][]model.ChartEntryRecord)
	for _, r := range history {
		out[r.EntryKey] = append(out[r.EntryKey], r)
	}
	return out
}

// runAt returns the entry's longest run of consecutive weeks where ok holds.
func runAt(recs []model.ChartEntryRecord, ok func(int) bool) *Holder {
	var weeks []model.ChartEntryRecord
	for _, r := range recs {
		if ok(r.Position) {
			weeks = append(weeks, r)
		}
	}
	if len(weeks) == 0 {
		return nil
	}
	times := make([]time.Time, 0, len(weeks))
	for _, r := range weeks {
		times = append(times, r.WeekStart)
	}
	s := entrystats.LongestStreak(times)
	last := recs[len(recs)-1]
	return &Holder{
		EntryKey:      last.EntryKey,
		DisplayName:   last.DisplayName,
		DisplayArtist: last.DisplayArtist,
		Value:         float64(s.Length),
		Start:         s.Start,
		End:           s.End,
	}
}

// improve returns cand only when it strictly beats held.
func improve(held, cand *Holder) *Holder {
	if cand == nil {
		return held
	}
	if held == nil || cand.Value > held.Value {
		return cand
	}
	return held
}

func cloneHolder(h *Holder) *Holder {
	if h == nil {
		return nil
	}
	cp := *h
	return &cp
}

// ComputeStreaks computes the consecutive-week records at #1 and in the top
// 10 for every category, plus the longest gaps.
//
// With a previous slice and a non-empty hint the run is incremental: only
// hinted entries at #1 or in the top 10 are re-walked over their full
// history, and a held record is replaced only by a strictly longer run.
// Otherwise the top limit entries by raw weeks at the position are walked.
func ComputeStreaks(history map[model.Category][]model.ChartEntryRecord, prev map[model.Category]*StreakRecords, hint []model.ChartEntryRecord, limit int) (map[model.Category]*StreakRecords, RunMode) {
	mode := RunFull
	if prev != nil && len(hint) > 0 {
		mode = RunIncremental
	}
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	gaps := LongestGaps(history)

	out := make(map[model.Category]*StreakRecords, 3)
	for _, c := range model.Categories() {
		groups := byEntry(history[c])
		var sr *StreakRecords
		if mode == RunIncremental {
			sr = incremental(groups, prev[c], hint, c)
		} else {
			sr = &StreakRecords{
				ConsecutiveAtOne:   full(groups, atOne, limit),
				ConsecutiveInTop10: full(groups, inTop10, limit),
			}
		}
		sr.LongestGap = gaps[c]
		out[c] = sr
	}
	return out, mode
}

func incremental(groups map[string][]model.ChartEntryRecord, prev *StreakRecords, hint []model.ChartEntryRecord, c model.Category) *StreakRecords {
	sr := &StreakRecords{}
	if prev != nil {
		sr.ConsecutiveAtOne = cloneHolder(prev.ConsecutiveAtOne)
		sr.ConsecutiveInTop10 = cloneHolder(prev.ConsecutiveInTop10)
	}
	done := make(map[string]bool)
	for _, h := range hint {
		if h.Category != c || done[h.EntryKey] {
			continue
		}
		done[h.EntryKey] = true
		recs := groups[h.EntryKey]
		if len(recs) == 0 {
			continue
		}
		if atOne(h.Position) {
			sr.ConsecutiveAtOne = improve(sr.ConsecutiveAtOne, runAt(recs, atOne))
		}
		if inTop10(h.Position) {
			sr.ConsecutiveInTop10 = improve(sr.ConsecutiveInTop10, runAt(recs, inTop10))
		}
	}
	return sr
}

// full walks the top limit candidates by raw weeks satisfying ok.
func full(groups map[string][]model.ChartEntryRecord, ok func(int) bool, limit int) *Holder {
	type cand struct {
		key   string
		weeks int
	}
	var cands []cand
	for key, recs := range groups {
		n := 0
		for _, r := range recs {
			if ok(r.Position) {
				n++
			}
		}
		if n > 0 {
			cands = append(cands, cand{key, n})
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].weeks != cands[j].weeks {
			return cands[i].weeks > cands[j].weeks
		}
		return cands[i].key < cands[j].key
	})
	if len(cands) > limit {
		cands = cands[:limit]
	}

	var best *Holder
	for _, cd := range cands {
		h := runAt(groups[cd.key], ok)
		if h == nil {
			continue
		}
		if best == nil || beats(h.Value, h.EntryKey, best.Value, best.EntryKey) {
			best = h
		}
	}
	return best
}

// LongestGaps finds, per category, the longest absence in weeks between two
// successive appearances of the same entry. Back-to-back weeks are not gaps.
func LongestGaps(history map[model.Category][]model.ChartEntryRecord) map[model.Category]*Holder {
	out := make(map[model.Category]*Holder, 3)
	for _, c := range model.Categories() {
		var best *Holder
		for key, recs := range byEntry(history[c]) {
			for i := 1; i < len(recs); i++ {
				weeks := math.Round(recs[i].WeekStart.Sub(recs[i-1].WeekStart).Hours() / model.Week.Hours())
				if weeks <= 1 {
					continue
				}
				if best == nil || beats(weeks, key, best.Value, best.EntryKey) {
					best = &Holder{
						EntryKey:      key,
						DisplayName:   recs[i].DisplayName,
						DisplayArtist: recs[i].DisplayArtist,
						Value:         weeks,
						Start:         recs[i-1].WeekStart,
						End:           recs[i].WeekStart,
					}
				}
			}
		}
		if best != nil {
			out[c] = best
		}
	}
	return out
}
