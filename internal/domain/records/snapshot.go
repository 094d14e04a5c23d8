// Package records computes a group's all-time superlatives.
package records

import (
	"time"

	"github.com/okian/tunechart/internal/domain/model"
)

// Status is the lifecycle state of a group's records snapshot.
type Status string

const (
	StatusNone        Status = "none"
	StatusCalculating Status = "calculating"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// RunMode says whether phase three reused the previous snapshot.
type RunMode string

const (
	RunFull        RunMode = "full"
	RunIncremental RunMode = "incremental"
)

// Holder is an entry holding a record.
type Holder struct {
	EntryKey      string    `json:"entry_key"`
	DisplayName   string    `json:"display_name"`
	DisplayArtist string    `json:"display_artist,omitempty"`
	Value         float64   `json:"value"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
}

// UserHolder is a member holding a record.
type UserHolder struct {
	UserID   string  `json:"user_id"`
	Username string  `json:"username"`
	Value    float64 `json:"value"`
}

// ArtistHolder is an artist holding a roll-up record.
type ArtistHolder struct {
	Artist string  `json:"artist"`
	Value  float64 `json:"value"`
}

// CachedAggregates are the extremes read straight off the entry stats cache.
type CachedAggregates struct {
	MostWeeksCharting *Holder `json:"most_weeks_charting,omitempty"`
	LongestStreak     *Holder `json:"longest_streak,omitempty"`
	MostWeeksInTop10  *Holder `json:"most_weeks_in_top10,omitempty"`
	MostPlays         *Holder `json:"most_plays,omitempty"`
}

// Counts are per-category leaders and distinct counts.
type Counts struct {
	MostWeeksAtOne     *Holder `json:"most_weeks_at_one,omitempty"`
	MostTotalScore     *Holder `json:"most_total_score,omitempty"`
	DistinctNumberOnes int     `json:"distinct_number_ones"`
	DistinctEntries    int     `json:"distinct_entries"`
}

// StreakRecords are the consecutive-week records at an extreme position
// plus the longest absence between two appearances.
type StreakRecords struct {
	ConsecutiveAtOne   *Holder `json:"consecutive_at_one,omitempty"`
	ConsecutiveInTop10 *Holder `json:"consecutive_in_top10,omitempty"`
	LongestGap         *Holder `json:"longest_gap,omitempty"`
}

// ArtistRecords roll tracks and albums up to their artist.
type ArtistRecords struct {
	MostNumberOneTracks *ArtistHolder `json:"most_number_one_tracks,omitempty"`
	MostNumberOneAlbums *ArtistHolder `json:"most_number_one_albums,omitempty"`
	MostTop10Tracks     *ArtistHolder `json:"most_top10_tracks,omitempty"`
	MostTop10Albums     *ArtistHolder `json:"most_top10_albums,omitempty"`
	MostChartedTracks   *ArtistHolder `json:"most_charted_tracks,omitempty"`
	MostChartedAlbums   *ArtistHolder `json:"most_charted_albums,omitempty"`
}

// UserRecords are the per-member superlatives.
type UserRecords struct {
	MostTotalScore  *UserHolder `json:"most_total_score,omitempty"`
	MostTotalPlays  *UserHolder `json:"most_total_plays,omitempty"`
	Mainstream      *UserHolder `json:"mainstream,omitempty"`
	Niche           *UserHolder `json:"niche,omitempty"`
	MostNumberOnes  *UserHolder `json:"most_number_one_contributions,omitempty"`
	MostActiveWeeks *UserHolder `json:"most_active_weeks,omitempty"`
	TasteMaker      *UserHolder `json:"taste_maker,omitempty"`
	PeakPerformer   *UserHolder `json:"peak_performer,omitempty"`
}

// Snapshot is a group's records bundle and its run state.
type Snapshot struct {
	GroupID              string    `json:"group_id"`
	Status               Status    `json:"status"`
	RunID                string    `json:"run_id,omitempty"`
	Mode                 RunMode   `json:"mode,omitempty"`
	CalculationStartedAt time.Time `json:"calculation_started_at"`
	CompletedAt          time.Time `json:"completed_at"`
	UpdatedAt            time.Time `json:"updated_at"`
	Error                string    `json:"error,omitempty"`

	Aggregates map[model.Category]*CachedAggregates `json:"aggregates,omitempty"`
	Counts     map[model.Category]*Counts           `json:"counts,omitempty"`
	Streaks    map[model.Category]*StreakRecords    `json:"streaks,omitempty"`
	Popularity map[model.Category]*Holder           `json:"popularity,omitempty"`
	Artists    *ArtistRecords                       `json:"artists,omitempty"`
	Users      *UserRecords                         `json:"users,omitempty"`
}

// Parts holds every phase's freshly computed slice.
type Parts struct {
	Aggregates map[model.Category]*CachedAggregates
	Counts     map[model.Category]*Counts
	Streaks    map[model.Category]*StreakRecords
	Popularity map[model.Category]*Holder
	Artists    *ArtistRecords
	Users      *UserRecords
}

// Valid reports whether prev has the nested per-category shape an
// incremental run builds on.
func Valid(prev *Snapshot) bool {
	if prev == nil || prev.Status != StatusCompleted {
		return false
	}
	if prev.Aggregates == nil || prev.Counts == nil || prev.Streaks == nil {
		return false
	}
	for _, c := range model.Categories() {
		if prev.Aggregates[c] == nil || prev.Counts[c] == nil || prev.Streaks[c] == nil {
			return false
		}
	}
	return true
}

// Merge overlays every phase slice onto a copy of prev, field by field.
// Each slice replaces the previous one wholesale.
func Merge(prev *Snapshot, groupID string, p Parts) *Snapshot {
	out := &Snapshot{GroupID: groupID, Status: StatusNone}
	if prev != nil {
		cp := *prev
		out = &cp
	}
	out.Aggregates = p.Aggregates
	out.Counts = p.Counts
	out.Streaks = p.Streaks
	out.Popularity = p.Popularity
	out.Artists = p.Artists
	out.Users = p.Users
	return out
}

// Eligible decides whether a new run may start. It returns ErrInProgress
// while a calculation holds an unexpired lease, and false without error
// when a completed snapshot is still fresh and force is not set.
func Eligible(s *Snapshot, now time.Time, lease time.Duration, force bool) (bool, error) {
	if s == nil {
		return true, nil
	}
	switch s.Status {
	case StatusCalculating:
		if now.Sub(s.CalculationStartedAt) < lease {
			return false, ErrInProgress
		}
		return true, nil
	case StatusCompleted:
		if force {
			return true, nil
		}
		return now.Sub(s.CompletedAt) >= lease, nil
	}
	return true, nil
}
