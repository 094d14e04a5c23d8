// Package movement derives week-over-week chart metrics and writes them as
// the metrics cache.
package movement

import (
	"github.com/okian/tunechart/internal/domain/model"
)

// Prior summarises an entry's appearances in weeks before the one being computed.
type Prior struct {
	Weeks   int
	Highest int
}

// Compute derives one record per entry of current. previous is the nearest
// earlier snapshot of the same category and may be nil. prior is keyed by
// entry key and covers weeks strictly before current.
func Compute(current model.ChartSnapshot, previous *model.ChartSnapshot, prior map[string]Prior) []model.ChartEntryRecord {
	out := make([]model.ChartEntryRecord, 0, len(current.Entries))
	for _, e := range current.Entries {
		rec := model.ChartEntryRecord{
			GroupID:            current.GroupID,
			WeekStart:          current.WeekStart,
			Category:           current.Category,
			EntryKey:           e.EntryKey,
			DisplayName:        e.DisplayName,
			DisplayArtist:      e.DisplayArtist,
			Position:           e.Position,
			Playcount:          e.Playcount,
			Score:              e.Score,
			Contributors:       e.Contributors,
			TotalWeeksAppeared: 1,
			HighestPosition:    e.Position,
		}

		p, seen := prior[e.EntryKey]
		seen = seen && p.Weeks > 0
		if seen {
			rec.TotalWeeksAppeared += p.Weeks
			if p.Highest > 0 && p.Highest < rec.HighestPosition {
				rec.HighestPosition = p.Highest
			}
		}

		if prev, ok := previous.Find(e.EntryKey); ok {
			pos := e.Position - prev.Position
			plays := e.Playcount - prev.Playcount
			score := e.Score - prev.Score
			rec.PositionChange = &pos
			rec.PlaysChange = &plays
			rec.ScoreChange = &score
			rec.EntryType = model.EntryTypeContinuing
		} else if seen {
			rec.EntryType = model.EntryTypeReEntry
		} else {
			rec.EntryType = model.EntryTypeNew
		}

		out = append(out, rec)
	}
	return out
}
