// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// Category partitions every chart: artists, tracks or albums.
type Category string

const (
	CategoryArtists Category = "artists"
	CategoryTracks  Category = "tracks"
	CategoryAlbums  Category = "albums"
)

// Categories returns every chartable category in a stable order.
func Categories() []Category {
	return []Category{CategoryArtists, CategoryTracks, CategoryAlbums}
}

// ParseCategory validates a category string.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryArtists, CategoryTracks, CategoryAlbums:
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// ScoringMode selects how member contributions are summed into a group chart.
type ScoringMode string

const (
	ModePlaysOnly  ScoringMode = "plays_only"
	ModeVS         ScoringMode = "vs"
	ModeVSWeighted ScoringMode = "vs_weighted"
)

// Group is the read-only chart configuration of one listening group.
type Group struct {
	ID                string
	Name              string
	ChartSize         int
	TrackingDayOfWeek time.Weekday
	ScoringMode       ScoringMode
	CreatedAt         time.Time
}

// Member is one user of a group. SessionKey is an optional credential for
// the listening source.
type Member struct {
	GroupID    string
	UserID     string
	Username   string
	SessionKey string
	JoinedAt   time.Time
}

// RankedItem is a single row of a user's weekly top list.
type RankedItem struct {
	Name      string
	Artist    string // empty for artists
	Playcount int
}

// WeeklyListening is what the listening source returns for one user and week.
// Each list is ranked by playcount desc and holds at most 100 items.
type WeeklyListening struct {
	TopArtists []RankedItem
	TopTracks  []RankedItem
	TopAlbums  []RankedItem
}

// ByCategory returns the ranked list for c.
func (w WeeklyListening) ByCategory(c Category) []RankedItem {
	switch c {
	case CategoryArtists:
		return w.TopArtists
	case CategoryTracks:
		return w.TopTracks
	case CategoryAlbums:
		return w.TopAlbums
	}
	return nil
}

// FetchResult is the outcome of fetching one member's week.
type FetchResult struct {
	Member    Member
	Listening WeeklyListening
	Err       error
}

// WeeklyEntry is one raw, per-user, per-week scored item.
type WeeklyEntry struct {
	GroupID       string
	UserID        string
	WeekStart     time.Time
	Category      Category
	EntryKey      string
	DisplayName   string
	DisplayArtist string
	Playcount     int
	Position      int
	Score         float64
}

// ChartEntry is one aggregated row of a group chart.
type ChartEntry struct {
	EntryKey      string
	DisplayName   string
	DisplayArtist string
	Playcount     int
	Score         float64
	Position      int
	Contributors  int
}

// ChartSnapshot is the ranked chart for one group, week and category.
type ChartSnapshot struct {
	GroupID   string
	WeekStart time.Time
	Category  Category
	Entries   []ChartEntry
}

// Find returns the entry with the given key.
func (s *ChartSnapshot) Find(key string) (ChartEntry, bool) {
	if s == nil {
		return ChartEntry{}, false
	}
	for _, e := range s.Entries {
		if e.EntryKey == key {
			return e, true
		}
	}
	return ChartEntry{}, false
}

// EntryType classifies a chart appearance relative to the entry's history.
type EntryType string

const (
	EntryTypeNew        EntryType = "new"
	EntryTypeReEntry    EntryType = "re-entry"
	EntryTypeContinuing EntryType = ""
)

// ChartEntryRecord is the metrics cache row for one entry in one week.
// Change fields are nil when the entry was absent from the previous chart.
type ChartEntryRecord struct {
	GroupID            string
	WeekStart          time.Time
	Category           Category
	EntryKey           string
	DisplayName        string
	DisplayArtist      string
	Position           int
	Playcount          int
	Score              float64
	Contributors       int
	PositionChange     *int
	PlaysChange        *int
	ScoreChange        *float64
	TotalWeeksAppeared int
	HighestPosition    int
	EntryType          EntryType
}

// EntryStats is the long-running aggregate for one chartable entity.
type EntryStats struct {
	GroupID            string
	Category           Category
	EntryKey           string
	DisplayName        string
	DisplayArtist      string
	PeakPosition       int
	WeeksAtPeak        int
	WeeksAtOne         int
	WeeksInTop10       int
	TotalWeeksCharting int
	DebutWeek          time.Time
	LongestStreak      int
	StreakStart        time.Time
	StreakEnd          time.Time
	IsStreakOngoing    bool
	CurrentlyCharting  bool
	LatestAppearance   time.Time
	TotalPlays         int
	TotalScore         float64
	Stale              bool
	ComputedAt         time.Time
}

// MajorDriver is the member contributing the largest share to an entity.
type MajorDriver struct {
	GroupID      string
	Category     Category
	EntryKey     string
	UserID       string
	Username     string
	Contribution float64
	Stale        bool
	ComputedAt   time.Time
}

// Contribution is one member's raw weekly entry joined with the group chart
// position the entry held that week.
type Contribution struct {
	UserID        string
	Username      string
	WeekStart     time.Time
	Category      Category
	EntryKey      string
	DisplayArtist string
	Playcount     int
	Score         float64
	ChartPosition int
}
