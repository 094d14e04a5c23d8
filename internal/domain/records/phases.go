package records

import (
	"strings"

	"github.com/okian/tunechart/internal/domain/model"
)

// beats orders candidates by value desc then key asc.
func beats(v float64, key string, best float64, bestKey string) bool {
	if v != best {
		return v > best
	}
	return key < bestKey
}

func holderFromStats(s model.EntryStats, v float64) *Holder {
	return &Holder{
		EntryKey:      s.EntryKey,
		DisplayName:   s.DisplayName,
		DisplayArtist: s.DisplayArtist,
		Value:         v,
	}
}

// topStat returns the entry with the largest positive value of f.
func topStat(rows []model.EntryStats, f func(model.EntryStats) float64) *Holder {
	var best *Holder
	for _, r := range rows {
		v := f(r)
		if v <= 0 {
			continue
		}
		if best == nil || beats(v, r.EntryKey, best.Value, best.EntryKey) {
			best = holderFromStats(r, v)
		}
	}
	return best
}

// AggregateScan reads the extreme cached aggregates of each category.
func AggregateScan(stats map[model.Category][]model.EntryStats) map[model.Category]*CachedAggregates {
	out := make(map[model.Category]*CachedAggregates, 3)
	for _, c := range model.Categories() {
		rows := stats[c]
		agg := &CachedAggregates{
			MostWeeksCharting: topStat(rows, func(s model.EntryStats) float64 { return float64(s.TotalWeeksCharting) }),
			MostWeeksInTop10:  topStat(rows, func(s model.EntryStats) float64 { return float64(s.WeeksInTop10) }),
			MostPlays:         topStat(rows, func(s model.EntryStats) float64 { return float64(s.TotalPlays) }),
		}
		for _, r := range rows {
			if r.LongestStreak <= 0 {
				continue
			}
			v := float64(r.LongestStreak)
			if agg.LongestStreak == nil || beats(v, r.EntryKey, agg.LongestStreak.Value, agg.LongestStreak.EntryKey) {
				h := holderFromStats(r, v)
				h.Start, h.End = r.StreakStart, r.StreakEnd
				agg.LongestStreak = h
			}
		}
		out[c] = agg
	}
	return out
}

// CountAggregations finds the weeks-at-#1 and total-score leaders and
// counts distinct number ones and distinct charted entries.
func CountAggregations(stats map[model.Category][]model.EntryStats) map[model.Category]*Counts {
	out := make(map[model.Category]*Counts, 3)
	for _, c := range model.Categories() {
		rows := stats[c]
		cnt := &Counts{
			MostWeeksAtOne:  topStat(rows, func(s model.EntryStats) float64 { return float64(s.WeeksAtOne) }),
			MostTotalScore:  topStat(rows, func(s model.EntryStats) float64 { return s.TotalScore }),
			DistinctEntries: len(rows),
		}
		for _, r := range rows {
			if r.WeeksAtOne > 0 {
				cnt.DistinctNumberOnes++
			}
		}
		out[c] = cnt
	}
	return out
}

// Popularity finds, per category, the charted entry with the most distinct
// contributing members. Ties go to total score then total plays.
func Popularity(stats map[model.Category][]model.EntryStats, contributions []model.Contribution) map[model.Category]*Holder {
	type ck struct {
		c   model.Category
		key string
	}
	users := make(map[ck]map[string]struct{})
	for _, r := range contributions {
		k := ck{r.Category, r.EntryKey}
		if users[k] == nil {
			users[k] = make(map[string]struct{})
		}
		users[k][r.UserID] = struct{}{}
	}

	out := make(map[model.Category]*Holder, 3)
	for _, c := range model.Categories() {
		var (
			best     *model.EntryStats
			bestUser int
		)
		for i := range stats[c] {
			s := &stats[c][i]
			n := len(users[ck{c, s.EntryKey}])
			if n == 0 {
				continue
			}
			if best == nil || morePopular(n, s, bestUser, best) {
				best, bestUser = s, n
			}
		}
		if best != nil {
			out[c] = holderFromStats(*best, float64(bestUser))
		}
	}
	return out
}

func morePopular(n int, s *model.EntryStats, bestN int, best *model.EntryStats) bool {
	switch {
	case n != bestN:
		return n > bestN
	case s.TotalScore != best.TotalScore:
		return s.TotalScore > best.TotalScore
	case s.TotalPlays != best.TotalPlays:
		return s.TotalPlays > best.TotalPlays
	}
	return s.EntryKey < best.EntryKey
}

type artistTally struct {
	display    string
	numberOnes int
	top10      int
	charted    int
}

func tallyArtists(rows []model.EntryStats) map[string]*artistTally {
	out := make(map[string]*artistTally)
	for _, r := range rows {
		key := strings.ToLower(strings.TrimSpace(r.DisplayArtist))
		if key == "" {
			continue
		}
		t, ok := out[key]
		if !ok {
			t = &artistTally{display: strings.TrimSpace(r.DisplayArtist)}
			out[key] = t
		}
		t.charted++
		if r.PeakPosition == 1 {
			t.numberOnes++
		}
		if r.PeakPosition > 0 && r.PeakPosition <= 10 {
			t.top10++
		}
	}
	return out
}

func topArtist(tallies map[string]*artistTally, f func(*artistTally) int) *ArtistHolder {
	var (
		best    *ArtistHolder
		bestKey string
	)
	for key, t := range tallies {
		v := float64(f(t))
		if v <= 0 {
			continue
		}
		if best == nil || beats(v, key, best.Value, bestKey) {
			best, bestKey = &ArtistHolder{Artist: t.display, Value: v}, key
		}
	}
	return best
}

// ArtistRollups groups tracks and albums by artist.
func ArtistRollups(stats map[model.Category][]model.EntryStats) *ArtistRecords {
	tracks := tallyArtists(stats[model.CategoryTracks])
	albums := tallyArtists(stats[model.CategoryAlbums])
	numberOnes := func(t *artistTally) int { return t.numberOnes }
	top10 := func(t *artistTally) int { return t.top10 }
	charted := func(t *artistTally) int { return t.charted }
	return &ArtistRecords{
		MostNumberOneTracks: topArtist(tracks, numberOnes),
		MostNumberOneAlbums: topArtist(albums, numberOnes),
		MostTop10Tracks:     topArtist(tracks, top10),
		MostTop10Albums:     topArtist(albums, top10),
		MostChartedTracks:   topArtist(tracks, charted),
		MostChartedAlbums:   topArtist(albums, charted),
	}
}
