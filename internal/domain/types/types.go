// Package types contains the JSON shapes served by the HTTP API.
package types

import (
	"time"

	"github.com/okian/tunechart/internal/domain/model"
)

// DateLayout formats week starts in responses and path parameters.
const DateLayout = "2006-01-02"

// ChartRow is one position of a group chart.
type ChartRow struct {
	Position       int      `json:"position"`
	EntryKey       string   `json:"entry_key"`
	Name           string   `json:"name"`
	Artist         string   `json:"artist,omitempty"`
	Playcount      int      `json:"playcount"`
	Score          float64  `json:"score"`
	Contributors   int      `json:"contributors"`
	PositionChange *int     `json:"position_change"`
	PlaysChange    *int     `json:"plays_change"`
	ScoreChange    *float64 `json:"score_change"`
	TotalWeeks     int      `json:"total_weeks"`
	Peak           int      `json:"peak"`
	EntryType      string   `json:"entry_type,omitempty"`
}

// Chart is a group's chart for one week and category.
type Chart struct {
	GroupID  string     `json:"group_id"`
	Week     string     `json:"week"`
	Category string     `json:"category"`
	Entries  []ChartRow `json:"entries"`
}

// NewChart converts stored rows.
func NewChart(groupID string, week time.Time, c model.Category, recs []model.ChartEntryRecord) Chart {
	out := Chart{
		GroupID:  groupID,
		Week:     week.UTC().Format(DateLayout),
		Category: string(c),
		Entries:  make([]ChartRow, 0, len(recs)),
	}
	for _, r := range recs {
		out.Entries = append(out.Entries, ChartRow{
			Position:       r.Position,
			EntryKey:       r.EntryKey,
			Name:           r.DisplayName,
			Artist:         r.DisplayArtist,
			Playcount:      r.Playcount,
			Score:          r.Score,
			Contributors:   r.Contributors,
			PositionChange: r.PositionChange,
			PlaysChange:    r.PlaysChange,
			ScoreChange:    r.ScoreChange,
			TotalWeeks:     r.TotalWeeksAppeared,
			Peak:           r.HighestPosition,
			EntryType:      string(r.EntryType),
		})
	}
	return out
}

// Driver is the member contributing most to an entry.
type Driver struct {
	UserID       string  `json:"user_id"`
	Username     string  `json:"username"`
	Contribution float64 `json:"contribution"`
}

// EntryStats is the long-running summary of one entry.
type EntryStats struct {
	GroupID           string  `json:"group_id"`
	Category          string  `json:"category"`
	EntryKey          string  `json:"entry_key"`
	Name              string  `json:"name"`
	Artist            string  `json:"artist,omitempty"`
	PeakPosition      int     `json:"peak_position"`
	WeeksAtPeak       int     `json:"weeks_at_peak"`
	WeeksAtOne        int     `json:"weeks_at_one"`
	WeeksInTop10      int     `json:"weeks_in_top10"`
	TotalWeeks        int     `json:"total_weeks"`
	DebutWeek         string  `json:"debut_week"`
	LatestAppearance  string  `json:"latest_appearance"`
	LongestStreak     int     `json:"longest_streak"`
	StreakStart       string  `json:"streak_start,omitempty"`
	StreakEnd         string  `json:"streak_end,omitempty"`
	StreakOngoing     bool    `json:"streak_ongoing"`
	CurrentlyCharting bool    `json:"currently_charting"`
	TotalPlays        int     `json:"total_plays"`
	TotalScore        float64 `json:"total_score"`
	MajorDriver       *Driver `json:"major_driver,omitempty"`
}

// NewEntryStats converts a stats row and an optional driver.
func NewEntryStats(st model.EntryStats, d *model.MajorDriver) EntryStats {
	out := EntryStats{
		GroupID:           st.GroupID,
		Category:          string(st.Category),
		EntryKey:          st.EntryKey,
		Name:              st.DisplayName,
		Artist:            st.DisplayArtist,
		PeakPosition:      st.PeakPosition,
		WeeksAtPeak:       st.WeeksAtPeak,
		WeeksAtOne:        st.WeeksAtOne,
		WeeksInTop10:      st.WeeksInTop10,
		TotalWeeks:        st.TotalWeeksCharting,
		DebutWeek:         date(st.DebutWeek),
		LatestAppearance:  date(st.LatestAppearance),
		LongestStreak:     st.LongestStreak,
		StreakStart:       date(st.StreakStart),
		StreakEnd:         date(st.StreakEnd),
		StreakOngoing:     st.IsStreakOngoing,
		CurrentlyCharting: st.CurrentlyCharting,
		TotalPlays:        st.TotalPlays,
		TotalScore:        st.TotalScore,
	}
	if d != nil {
		out.MajorDriver = &Driver{UserID: d.UserID, Username: d.Username, Contribution: d.Contribution}
	}
	return out
}

func date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

// RegenerateRequest is the body of a week regeneration.
type RegenerateRequest struct {
	Week    string   `json:"week" validate:"required,datetime=2006-01-02"`
	Exclude []string `json:"exclude,omitempty" validate:"dive,required"`
}

// RangeRequest is the body of a range regeneration.
type RangeRequest struct {
	WeeksBack int `json:"weeks_back" validate:"required,min=1"`
}

// WeekResult reports one regenerated week.
type WeekResult struct {
	GroupID       string         `json:"group_id"`
	Week          string         `json:"week"`
	RunID         string         `json:"run_id"`
	Entries       map[string]int `json:"entries"`
	Failed        []string       `json:"failed_members,omitempty"`
	RecordsStatus string         `json:"records_status,omitempty"`
	// Newer weeks exist whose movement was derived from the previous
	// version of this week.
	LaterWeeksStale bool `json:"later_weeks_stale,omitempty"`
}

// RangeResult reports a range regeneration.
type RangeResult struct {
	GroupID       string       `json:"group_id"`
	Weeks         []WeekResult `json:"weeks"`
	FailedWeek    string       `json:"failed_week,omitempty"`
	Error         string       `json:"error,omitempty"`
	RecordsStatus string       `json:"records_status,omitempty"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Code          string   `json:"code"`
	Error         string   `json:"error"`
	FailedMembers []string `json:"failed_members,omitempty"`
}
