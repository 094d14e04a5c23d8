package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/okian/tunechart/internal/domain/model"
	"github.com/okian/tunechart/pkg/metrics"
)

// UpsertGroup creates or updates a group's chart configuration.
func (s *Store) UpsertGroup(ctx context.Context, g model.Group) error {
	if g.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidGroup)
	}
	created := g.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (id, name, chart_size, tracking_day, scoring_mode, created_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             name = excluded.name,
             chart_size = excluded.chart_size,
             tracking_day = excluded.tracking_day,
             scoring_mode = excluded.scoring_mode`,
		g.ID, g.Name, g.ChartSize, int(g.TrackingDayOfWeek), string(g.ScoringMode), formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("upsert group: %w", err)
	}
	s.refreshGroupCount(ctx)
	return nil
}

func (s *Store) refreshGroupCount(ctx context.Context) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM groups`).Scan(&n); err == nil {
		metrics.UpdateGroupsTotal(n)
	}
}

const groupColumns = "id, name, chart_size, tracking_day, scoring_mode, created_at"

func scanGroup(scanner interface{ Scan(dest ...any) error }) (model.Group, error) {
	var (
		g       model.Group
		day     int
		mode    string
		created sql.NullString
	)
	if err := scanner.Scan(&g.ID, &g.Name, &g.ChartSize, &day, &mode, &created); err != nil {
		return model.Group{}, err
	}
	g.TrackingDayOfWeek = time.Weekday(day)
	g.ScoringMode = model.ScoringMode(mode)
	g.CreatedAt = parseTime(created)
	return g, nil
}

// GetGroup returns one group or ErrNotFound.
func (s *Store) GetGroup(ctx context.Context, id string) (model.Group, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = ?`, id)
	g, err := scanGroup(row)
	if err != nil {
		return model.Group{}, notFound(err, "get group "+id)
	}
	return g, nil
}

// ListGroups returns every group ordered by id.
func (s *Store) ListGroups(ctx context.Context) ([]model.Group, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+groupColumns+` FROM groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var out []model.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// AddMember creates or updates a group member.
func (s *Store) AddMember(ctx context.Context, m model.Member) error {
	joined := m.JoinedAt
	if joined.IsZero() {
		joined = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, username, session_key, joined_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(group_id, user_id) DO UPDATE SET
             username = excluded.username,
             session_key = excluded.session_key`,
		m.GroupID, m.UserID, m.Username, nullableString(m.SessionKey), formatTime(joined),
	)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// RemoveMember deletes a member. Their historical rows are kept.
func (s *Store) RemoveMember(ctx context.Context, groupID, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("member %s: %w", userID, ErrNotFound)
	}
	return nil
}

// Members returns a group's members ordered by join time then user id.
func (s *Store) Members(ctx context.Context, groupID string) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_id, user_id, username, session_key, joined_at
         FROM group_members WHERE group_id = ? ORDER BY joined_at, user_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []model.Member
	for rows.Next() {
		var (
			m      model.Member
			key    sql.NullString
			joined sql.NullString
		)
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Username, &key, &joined); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.SessionKey = key.String
		m.JoinedAt = parseTime(joined)
		out = append(out, m)
	}
	return out, rows.Err()
}
