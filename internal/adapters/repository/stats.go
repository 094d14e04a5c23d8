package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/okian/tunechart/internal/domain/model"
)

const statsColumns = `group_id, category, entry_key, display_name, display_artist,
    peak_position, weeks_at_peak, weeks_at_one, weeks_in_top10, total_weeks, debut_week,
    longest_streak, streak_start, streak_end, is_streak_ongoing, currently_charting,
    latest_appearance, total_plays, total_score, stale, computed_at`

func scanStats(scanner interface{ Scan(dest ...any) error }) (model.EntryStats, error) {
	var (
		st                           model.EntryStats
		cat                          string
		artist                       sql.NullString
		debut, start, end, latest    sql.NullString
		computed                     sql.NullString
		ongoing, charting, staleFlag int
	)
	if err := scanner.Scan(
		&st.GroupID, &cat, &st.EntryKey, &st.DisplayName, &artist,
		&st.PeakPosition, &st.WeeksAtPeak, &st.WeeksAtOne, &st.WeeksInTop10, &st.TotalWeeksCharting, &debut,
		&st.LongestStreak, &start, &end, &ongoing, &charting,
		&latest, &st.TotalPlays, &st.TotalScore, &staleFlag, &computed,
	); err != nil {
		return model.EntryStats{}, err
	}
	st.Category = model.Category(cat)
	st.DisplayArtist = artist.String
	st.DebutWeek = parseTime(debut)
	st.StreakStart = parseTime(start)
	st.StreakEnd = parseTime(end)
	st.LatestAppearance = parseTime(latest)
	st.ComputedAt = parseTime(computed)
	st.IsStreakOngoing = ongoing != 0
	st.CurrentlyCharting = charting != 0
	st.Stale = staleFlag != 0
	return st, nil
}

// GetStats returns the cached stats row for an entry.
func (s *Store) GetStats(ctx context.Context, groupID string, c model.Category, key string) (model.EntryStats, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+statsColumns+` FROM entry_stats WHERE group_id = ? AND category = ? AND entry_key = ?`,
		groupID, string(c), key)
	st, err := scanStats(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.EntryStats{}, false, nil
	}
	if err != nil {
		return model.EntryStats{}, false, fmt.Errorf("get stats: %w", err)
	}
	return st, true, nil
}

// ListStats returns every cached stats row of a category keyed by entry key.
func (s *Store) ListStats(ctx context.Context, groupID string, c model.Category) (map[string]model.EntryStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+statsColumns+` FROM entry_stats WHERE group_id = ? AND category = ?`,
		groupID, string(c))
	if err != nil {
		return nil, fmt.Errorf("list stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]model.EntryStats)
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		out[st.EntryKey] = st
	}
	return out, rows.Err()
}

// UpsertStats writes a stats row, taking its stale flag as given.
func (s *Store) UpsertStats(ctx context.Context, st model.EntryStats) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entry_stats (`+statsColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(group_id, category, entry_key) DO UPDATE SET
             display_name = excluded.display_name,
             display_artist = excluded.display_artist,
             peak_position = excluded.peak_position,
             weeks_at_peak = excluded.weeks_at_peak,
             weeks_at_one = excluded.weeks_at_one,
             weeks_in_top10 = excluded.weeks_in_top10,
             total_weeks = excluded.total_weeks,
             debut_week = excluded.debut_week,
             longest_streak = excluded.longest_streak,
             streak_start = excluded.streak_start,
             streak_end = excluded.streak_end,
             is_streak_ongoing = excluded.is_streak_ongoing,
             currently_charting = excluded.currently_charting,
             latest_appearance = excluded.latest_appearance,
             total_plays = excluded.total_plays,
             total_score = excluded.total_score,
             stale = excluded.stale,
             computed_at = excluded.computed_at`,
		st.GroupID, string(st.Category), st.EntryKey, st.DisplayName, nullableString(st.DisplayArtist),
		st.PeakPosition, st.WeeksAtPeak, st.WeeksAtOne, st.WeeksInTop10, st.TotalWeeksCharting, formatTime(st.DebutWeek),
		st.LongestStreak, nullableTime(st.StreakStart), nullableTime(st.StreakEnd),
		boolToInt(st.IsStreakOngoing), boolToInt(st.CurrentlyCharting),
		formatTime(st.LatestAppearance), st.TotalPlays, st.TotalScore, boolToInt(st.Stale), formatTime(st.ComputedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert stats: %w", err)
	}
	return nil
}

// MarkStatsStale flags an entry's stats for recompute. Missing rows are ignored.
func (s *Store) MarkStatsStale(ctx context.Context, groupID string, c model.Category, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE entry_stats SET stale = 1 WHERE group_id = ? AND category = ? AND entry_key = ?`,
		groupID, string(c), key); err != nil {
		return fmt.Errorf("mark stats stale: %w", err)
	}
	return nil
}

// GetDriver returns the cached major driver for an entry.
func (s *Store) GetDriver(ctx context.Context, groupID string, c model.Category, key string) (model.MajorDriver, bool, error) {
	var (
		d         model.MajorDriver
		username  sql.NullString
		staleFlag int
		computed  sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, contribution, stale, computed_at FROM entry_drivers
         WHERE group_id = ? AND category = ? AND entry_key = ?`,
		groupID, string(c), key).Scan(&d.UserID, &username, &d.Contribution, &staleFlag, &computed)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MajorDriver{}, false, nil
	}
	if err != nil {
		return model.MajorDriver{}, false, fmt.Errorf("get driver: %w", err)
	}
	d.GroupID, d.Category, d.EntryKey = groupID, c, key
	d.Username = username.String
	d.Stale = staleFlag != 0
	d.ComputedAt = parseTime(computed)
	return d, true, nil
}

// UpsertDriver writes a driver row.
func (s *Store) UpsertDriver(ctx context.Context, d model.MajorDriver) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entry_drivers (group_id, category, entry_key, user_id, username, contribution, stale, computed_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(group_id, category, entry_key) DO UPDATE SET
             user_id = excluded.user_id,
             username = excluded.username,
             contribution = excluded.contribution,
             stale = excluded.stale,
             computed_at = excluded.computed_at`,
		d.GroupID, string(d.Category), d.EntryKey, d.UserID, nullableString(d.Username),
		d.Contribution, boolToInt(d.Stale), formatTime(d.ComputedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert driver: %w", err)
	}
	return nil
}

// MarkDriverStale flags an entry's driver for recompute.
func (s *Store) MarkDriverStale(ctx context.Context, groupID string, c model.Category, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE entry_drivers SET stale = 1 WHERE group_id = ? AND category = ? AND entry_key = ?`,
		groupID, string(c), key); err != nil {
		return fmt.Errorf("mark driver stale: %w", err)
	}
	return nil
}
