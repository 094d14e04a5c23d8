package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/internal/domain/movement"
)

// ReplaceWeeklyEntries swaps a group's raw member rows for one week in a
// single transaction.
func (s *Store) ReplaceWeeklyEntries(ctx context.Context, groupID string, week time.Time, entries []model.WeeklyEntry) error {
	w := formatWeek(week)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM weekly_entries WHERE group_id = ? AND week_start = ?`, groupID, w); err != nil {
			return fmt.Errorf("delete weekly entries: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO weekly_entries (
                group_id, week_start, category, user_id, entry_key,
                display_name, display_artist, playcount, position, score
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare weekly entry insert: %w", err)
		}
		defer stmt.Close()
		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx,
				groupID, w, string(e.Category), e.UserID, e.EntryKey,
				e.DisplayName, nullableString(e.DisplayArtist), e.Playcount, e.Position, e.Score,
			); err != nil {
				return fmt.Errorf("insert weekly entry %s/%s: %w", e.UserID, e.EntryKey, err)
			}
		}
		return nil
	})
}

// ReplaceWeek deletes the chart rows of (group, week, category) and inserts
// records in one transaction. The week is recorded even when empty. It
// returns the entry keys of the deleted rows.
func (s *Store) ReplaceWeek(ctx context.Context, groupID string, c model.Category, week time.Time, records []model.ChartEntryRecord) ([]string, error) {
	w := formatWeek(week)
	var removed []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`DELETE FROM chart_entries WHERE group_id = ? AND week_start = ? AND category = ? RETURNING entry_key`,
			groupID, w, string(c))
		if err != nil {
			return fmt.Errorf("delete chart entries: %w", err)
		}
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				rows.Close()
				return fmt.Errorf("scan deleted entry: %w", err)
			}
			removed = append(removed, key)
		}
		if err := rows.Close(); err != nil {
			return fmt.Errorf("close deleted entries: %w", err)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("delete chart entries: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO chart_entries (
                group_id, week_start, category, entry_key, display_name, display_artist,
                position, playcount, score, contributors,
                position_change, plays_change, score_change,
                total_weeks_appeared, highest_position, entry_type
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare chart insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range records {
			if _, err := stmt.ExecContext(ctx,
				groupID, w, string(c), r.EntryKey, r.DisplayName, nullableString(r.DisplayArtist),
				r.Position, r.Playcount, r.Score, r.Contributors,
				nullableInt(r.PositionChange), nullableInt(r.PlaysChange), nullableFloat(r.ScoreChange),
				r.TotalWeeksAppeared, r.HighestPosition, nullableString(string(r.EntryType)),
			); err != nil {
				return fmt.Errorf("insert chart entry %s: %w", r.EntryKey, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chart_weeks (group_id, week_start, category, generated_at) VALUES (?, ?, ?, ?)
             ON CONFLICT(group_id, category, week_start) DO UPDATE SET generated_at = excluded.generated_at`,
			groupID, w, string(c), s.timestamp()); err != nil {
			return fmt.Errorf("record chart week: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

const recordColumns = `group_id, week_start, category, entry_key, display_name, display_artist,
    position, playcount, score, contributors, position_change, plays_change, score_change,
    total_weeks_appeared, highest_position, entry_type`

func scanRecord(scanner interface{ Scan(dest ...any) error }) (model.ChartEntryRecord, error) {
	var (
		r         model.ChartEntryRecord
		week      string
		cat       string
		artist    sql.NullString
		posChange sql.NullInt64
		plays     sql.NullInt64
		score     sql.NullFloat64
		entryType sql.NullString
	)
	if err := scanner.Scan(
		&r.GroupID, &week, &cat, &r.EntryKey, &r.DisplayName, &artist,
		&r.Position, &r.Playcount, &r.Score, &r.Contributors, &posChange, &plays, &score,
		&r.TotalWeeksAppeared, &r.HighestPosition, &entryType,
	); err != nil {
		return model.ChartEntryRecord{}, err
	}
	w, err := parseWeek(week)
	if err != nil {
		return model.ChartEntryRecord{}, fmt.Errorf("parse week %q: %w", week, err)
	}
	r.WeekStart = w
	r.Category = model.Category(cat)
	r.DisplayArtist = artist.String
	r.EntryType = model.EntryType(entryType.String)
	if posChange.Valid {
		v := int(posChange.Int64)
		r.PositionChange = &v
	}
	if plays.Valid {
		v := int(plays.Int64)
		r.PlaysChange = &v
	}
	if score.Valid {
		v := score.Float64
		r.ScoreChange = &v
	}
	return r, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]model.ChartEntryRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ChartEntryRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ChartRecords returns one week's chart ordered by position, or ErrNotFound
// when the week was never generated.
func (s *Store) ChartRecords(ctx context.Context, groupID string, week time.Time, c model.Category) ([]model.ChartEntryRecord, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM chart_weeks WHERE group_id = ? AND category = ? AND week_start = ?`,
		groupID, string(c), formatWeek(week)).Scan(&n); err != nil {
		return nil, fmt.Errorf("check chart week: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("chart %s %s: %w", formatWeek(week), c, ErrNotFound)
	}
	recs, err := s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM chart_entries
         WHERE group_id = ? AND week_start = ? AND category = ? ORDER BY position`,
		groupID, formatWeek(week), string(c))
	if err != nil {
		return nil, fmt.Errorf("chart records: %w", err)
	}
	return recs, nil
}

// PreviousSnapshot returns the nearest generated week strictly before week.
func (s *Store) PreviousSnapshot(ctx context.Context, groupID string, c model.Category, week time.Time) (*model.ChartSnapshot, error) {
	var prev sql.NullString
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(week_start) FROM chart_weeks WHERE group_id = ? AND category = ? AND week_start < ?`,
		groupID, string(c), formatWeek(week)).Scan(&prev); err != nil {
		return nil, fmt.Errorf("previous week: %w", err)
	}
	if !prev.Valid {
		return nil, nil
	}
	w, err := parseWeek(prev.String)
	if err != nil {
		return nil, fmt.Errorf("parse week %q: %w", prev.String, err)
	}
	recs, err := s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM chart_entries
         WHERE group_id = ? AND week_start = ? AND category = ? ORDER BY position`,
		groupID, prev.String, string(c))
	if err != nil {
		return nil, fmt.Errorf("previous snapshot: %w", err)
	}

	snap := &model.ChartSnapshot{GroupID: groupID, WeekStart: w, Category: c}
	for _, r := range recs {
		snap.Entries = append(snap.Entries, model.ChartEntry{
			EntryKey:      r.EntryKey,
			DisplayName:   r.DisplayName,
			DisplayArtist: r.DisplayArtist,
			Playcount:     r.Playcount,
			Score:         r.Score,
			Position:      r.Position,
			Contributors:  r.Contributors,
		})
	}
	return snap, nil
}

// PriorAppearances counts each entry's weeks and best position before week.
func (s *Store) PriorAppearances(ctx context.Context, groupID string, c model.Category, week time.Time) (map[string]movement.Prior, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT entry_key, COUNT(1), MIN(position) FROM chart_entries
         WHERE group_id = ? AND category = ? AND week_start < ?
         GROUP BY entry_key`,
		groupID, string(c), formatWeek(week))
	if err != nil {
		return nil, fmt.Errorf("prior appearances: %w", err)
	}
	defer rows.Close()

	out := make(map[string]movement.Prior)
	for rows.Next() {
		var (
			key string
			p   movement.Prior
		)
		if err := rows.Scan(&key, &p.Weeks, &p.Highest); err != nil {
			return nil, fmt.Errorf("scan prior: %w", err)
		}
		out[key] = p
	}
	return out, rows.Err()
}

// ChartHistory returns every chart row of a category ordered by week then position.
func (s *Store) ChartHistory(ctx context.Context, groupID string, c model.Category) ([]model.ChartEntryRecord, error) {
	recs, err := s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM chart_entries
         WHERE group_id = ? AND category = ? ORDER BY week_start, position`,
		groupID, string(c))
	if err != nil {
		return nil, fmt.Errorf("chart history: %w", err)
	}
	return recs, nil
}

// EntryHistory returns one entry's chart rows ordered by week.
func (s *Store) EntryHistory(ctx context.Context, groupID string, c model.Category, key string) ([]model.ChartEntryRecord, error) {
	recs, err := s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM chart_entries
         WHERE group_id = ? AND category = ? AND entry_key = ? ORDER BY week_start`,
		groupID, string(c), key)
	if err != nil {
		return nil, fmt.Errorf("entry history: %w", err)
	}
	return recs, nil
}

// ChartedKeys lists every entry key that has charted in a category.
func (s *Store) ChartedKeys(ctx context.Context, groupID string, c model.Category) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT entry_key FROM chart_entries WHERE group_id = ? AND category = ? ORDER BY entry_key`,
		groupID, string(c))
	if err != nil {
		return nil, fmt.Errorf("charted keys: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// LatestWeek returns the group's most recent generated week.
func (s *Store) LatestWeek(ctx context.Context, groupID string) (time.Time, bool, error) {
	var w sql.NullString
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(week_start) FROM chart_weeks WHERE group_id = ?`, groupID).Scan(&w); err != nil {
		return time.Time{}, false, fmt.Errorf("latest week: %w", err)
	}
	if !w.Valid {
		return time.Time{}, false, nil
	}
	t, err := parseWeek(w.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse week %q: %w", w.String, err)
	}
	return t, true, nil
}

// Weeks lists a group's generated weeks, newest first.
func (s *Store) Weeks(ctx context.Context, groupID string) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT week_start FROM chart_weeks WHERE group_id = ? ORDER BY week_start DESC`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list weeks: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan week: %w", err)
		}
		t, err := parseWeek(v)
		if err != nil {
			return nil, fmt.Errorf("parse week %q: %w", v, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Contributions returns every raw member row of the group joined with the
// chart position the entry held that week (zero when it did not chart).
func (s *Store) Contributions(ctx context.Context, groupID string) ([]model.Contribution, error) {
	return s.contributions(ctx,
		`WHERE w.group_id = ? ORDER BY w.week_start, w.category, w.user_id`, groupID)
}

// EntryContributions returns the raw member rows of one entry.
func (s *Store) EntryContributions(ctx context.Context, groupID string, c model.Category, key string) ([]model.Contribution, error) {
	return s.contributions(ctx,
		`WHERE w.group_id = ? AND w.category = ? AND w.entry_key = ? ORDER BY w.week_start, w.user_id`,
		groupID, string(c), key)
}

func (s *Store) contributions(ctx context.Context, where string, args ...any) ([]model.Contribution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT w.user_id, COALESCE(m.username, w.user_id), w.week_start, w.category, w.entry_key,
                w.display_artist, w.playcount, w.score, COALESCE(c.position, 0)
         FROM weekly_entries w
         LEFT JOIN group_members m ON m.group_id = w.group_id AND m.user_id = w.user_id
         LEFT JOIN chart_entries c ON c.group_id = w.group_id AND c.week_start = w.week_start
              AND c.category = w.category AND c.entry_key = w.entry_key
         `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("contributions: %w", err)
	}
	defer rows.Close()

	var out []model.Contribution
	for rows.Next() {
		var (
			r      model.Contribution
			week   string
			cat    string
			artist sql.NullString
		)
		if err := rows.Scan(&r.UserID, &r.Username, &week, &cat, &r.EntryKey, &artist, &r.Playcount, &r.Score, &r.ChartPosition); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		if r.WeekStart, err = parseWeek(week); err != nil {
			return nil, fmt.Errorf("parse week %q: %w", week, err)
		}
		r.Category = model.Category(cat)
		r.DisplayArtist = artist.String
		out = append(out, r)
	}
	return out, rows.Err()
}
