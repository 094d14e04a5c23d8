// Package entrystats keeps the lazily recomputed all-time stats of each
// chartable entity.
package entrystats

import (
	"sort"
	"time"

	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/internal/domain/scoring"
)

// Streak is a run of consecutive chart weeks.
type Streak struct {
	Length int
	Start  time.Time
	End    time.Time
}

// LongestStreak walks weeks in ascending order. A gap of at most seven
// days extends the run; anything larger starts a new one. On ties the
// later run wins so an ongoing streak is reported as the longest.
func LongestStreak(weeks []time.Time) Streak {
	var best, cur Streak
	for i, w := range weeks {
		if i > 0 && model.WithinWeek(weeks[i-1], w) {
			cur.Length++
			cur.End = w
		} else {
			cur = Streak{Length: 1, Start: w, End: w}
		}
		if cur.Length >= best.Length {
			best = cur
		}
	}
	return best
}

// Compute derives an entity's stats from its chronological history.
// latestGroupWeek is the group's most recent generated week.
func Compute(history []model.ChartEntryRecord, latestGroupWeek, now time.Time) model.EntryStats {
	if len(history) == 0 {
		return model.EntryStats{}
	}
	sorted := append([]model.ChartEntryRecord(nil), history...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].WeekStart.Before(sorted[j].WeekStart) })

	first, last := sorted[0], sorted[len(sorted)-1]
	s := model.EntryStats{
		GroupID:            last.GroupID,
		Category:           last.Category,
		EntryKey:           last.EntryKey,
		DisplayName:        last.DisplayName,
		DisplayArtist:      last.DisplayArtist,
		PeakPosition:       first.Position,
		TotalWeeksCharting: len(sorted),
		DebutWeek:          first.WeekStart,
		LatestAppearance:   last.WeekStart,
	}

	weeks := make([]time.Time, len(sorted))
	for i, r := range sorted {
		weeks[i] = r.WeekStart
		s.TotalPlays += r.Playcount
		s.TotalScore += r.Score
		if r.Position < s.PeakPosition {
			s.PeakPosition = r.Position
		}
		if r.Position == 1 {
			s.WeeksAtOne++
		}
		if r.Position <= 10 {
			s.WeeksInTop10++
		}
	}
	for _, r := range sorted {
		if r.Position == s.PeakPosition {
			s.WeeksAtPeak++
		}
	}

	streak := LongestStreak(weeks)
	s.LongestStreak = streak.Length
	s.StreakStart = streak.Start
	s.StreakEnd = streak.End
	refresh(&s, latestGroupWeek, now)
	return s
}

// refresh recomputes the time-relative flags, which move without any new
// chart write for the entity.
func refresh(s *model.EntryStats, latestGroupWeek, now time.Time) {
	s.IsStreakOngoing = model.WithinWeek(s.LatestAppearance, now) && s.StreakEnd.Equal(s.LatestAppearance)
	s.CurrentlyCharting = !latestGroupWeek.IsZero() && s.LatestAppearance.Equal(latestGroupWeek)
}

// TopDriver sums each user's contributions under mode and returns the
// largest. Ties go to the lower user id.
func TopDriver(mode scoring.Mode, rows []model.Contribution) (model.MajorDriver, bool) {
	type acc struct {
		username string
		total    float64
	}
	sums := make(map[string]*acc)
	for _, r := range rows {
		a, ok := sums[r.UserID]
		if !ok {
			a = &acc{username: r.Username}
			sums[r.UserID] = a
		}
		a.total += mode.Contribution(scoring.Scored{
			Item:  model.RankedItem{Playcount: r.Playcount},
			Score: r.Score,
		})
	}

	var (
		best  model.MajorDriver
		found bool
	)
	for id, a := range sums {
		if !found || a.total > best.Contribution || (a.total == best.Contribution && id < best.UserID) {
			best = model.MajorDriver{UserID: id, Username: a.username, Contribution: a.total}
			found = true
		}
	}
	return best, found
}
