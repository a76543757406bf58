package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"matchpulse/internal/model"
	"matchpulse/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

const filterColumns = `id, user_id, name, description, is_active, is_shared,
	 notification_enabled, telegram_enabled, trigger_count, success_rate, created_at, updated_at`

// CreateFilter inserts a new filter with its conditions and populates its
// timestamps. The caller provides the ID.
func (s *SQLite) CreateFilter(ctx context.Context, f *model.Filter) error {
	now := time.Now().UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO filters (id, user_id, name, description, is_active, is_shared,
		 notification_enabled, telegram_enabled, trigger_count, success_rate, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.Name, f.Description, boolToInt(f.IsActive), boolToInt(f.IsShared),
		boolToInt(f.NotificationEnabled), boolToInt(f.TelegramEnabled),
		f.TriggerCount, f.SuccessRate, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert filter: %w", err)
	}

	if err := insertConditions(ctx, tx, f.ID, f.Conditions); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	f.CreatedAt, _ = time.Parse(timeLayout, now)
	f.UpdatedAt = f.CreatedAt
	return nil
}

// GetFilter returns a single filter with its conditions.
func (s *SQLite) GetFilter(ctx context.Context, id string) (*model.Filter, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+filterColumns+` FROM filters WHERE id = ?`, id)
	f, err := scanFilter(row)
	if err != nil {
		return nil, err
	}
	conds, err := s.loadConditions(ctx, []string{f.ID})
	if err != nil {
		return nil, err
	}
	f.Conditions = conds[f.ID]
	return f, nil
}

// ListFiltersForOwner returns all filters belonging to the given user.
func (s *SQLite) ListFiltersForOwner(ctx context.Context, userID string) ([]model.Filter, error) {
	return s.listFilters(ctx,
		`SELECT `+filterColumns+` FROM filters WHERE user_id = ? ORDER BY created_at, id`, userID)
}

// ListActiveFilters returns every filter eligible for evaluation.
func (s *SQLite) ListActiveFilters(ctx context.Context) ([]model.Filter, error) {
	return s.listFilters(ctx,
		`SELECT `+filterColumns+` FROM filters WHERE is_active = 1 ORDER BY created_at, id`)
}

func (s *SQLite) listFilters(ctx context.Context, query string, args ...any) ([]model.Filter, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query filters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var filters []model.Filter
	var ids []string
	for rows.Next() {
		f, err := scanFilter(rows)
		if err != nil {
			return nil, err
		}
		filters = append(filters, *f)
		ids = append(ids, f.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	conds, err := s.loadConditions(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range filters {
		filters[i].Conditions = conds[filters[i].ID]
	}
	return filters, nil
}

// UpdateFilter persists changes to a filter and replaces its conditions.
func (s *SQLite) UpdateFilter(ctx context.Context, f *model.Filter) error {
	now := time.Now().UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE filters SET name = ?, description = ?, is_active = ?, is_shared = ?,
		 notification_enabled = ?, telegram_enabled = ?, updated_at = ?
		 WHERE id = ?`,
		f.Name, f.Description, boolToInt(f.IsActive), boolToInt(f.IsShared),
		boolToInt(f.NotificationEnabled), boolToInt(f.TelegramEnabled), now, f.ID,
	)
	if err != nil {
		return fmt.Errorf("update filter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM filter_conditions WHERE filter_id = ?`, f.ID); err != nil {
		return fmt.Errorf("delete conditions: %w", err)
	}
	if err := insertConditions(ctx, tx, f.ID, f.Conditions); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	f.UpdatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// DeleteFilter removes a filter, its conditions, and its notifications.
func (s *SQLite) DeleteFilter(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM filter_conditions WHERE filter_id = ?`, id); err != nil {
		return fmt.Errorf("delete conditions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE filter_id = ?`, id); err != nil {
		return fmt.Errorf("delete notifications: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM filters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete filter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// UpdateFilterCounters sets the persisted trigger count and success rate.
func (s *SQLite) UpdateFilterCounters(ctx context.Context, id string, triggerCount int64, successRate *float64) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`UPDATE filters SET trigger_count = ?, success_rate = ?, updated_at = ? WHERE id = ?`,
		triggerCount, successRate, now, id,
	)
	if err != nil {
		return fmt.Errorf("update counters: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementTriggerCount atomically bumps the trigger count by one and
// returns the new value.
func (s *SQLite) IncrementTriggerCount(ctx context.Context, id string) (int64, error) {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`UPDATE filters SET trigger_count = trigger_count + 1, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return 0, fmt.Errorf("increment trigger count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}

	var count int64
	err = s.db.QueryRowContext(ctx, `SELECT trigger_count FROM filters WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("read trigger count: %w", err)
	}
	return count, nil
}

// RecordOutcome folds one resolved outcome into the filter's success rate
// and returns the new rate in [0, 100].
func (s *SQLite) RecordOutcome(ctx context.Context, id string, won bool) (float64, error) {
	now := time.Now().UTC().Format(timeLayout)
	wins := 0
	if won {
		wins = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE filters SET outcome_wins = outcome_wins + ?, outcome_total = outcome_total + 1,
		 success_rate = ROUND(100.0 * (outcome_wins + ?) / (outcome_total + 1), 2),
		 updated_at = ?
		 WHERE id = ?`,
		wins, wins, now, id,
	)
	if err != nil {
		return 0, fmt.Errorf("record outcome: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrNotFound
	}

	var rate float64
	err = s.db.QueryRowContext(ctx, `SELECT success_rate FROM filters WHERE id = ?`, id).Scan(&rate)
	if err != nil {
		return 0, fmt.Errorf("read success rate: %w", err)
	}
	return rate, nil
}

// CreateNotification persists a delivered in-app notification.
func (s *SQLite) CreateNotification(ctx context.Context, n *model.Notification) error {
	created := n.CreatedAt.UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO notifications (id, user_id, filter_id, match_id, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.FilterID, n.MatchID, n.Message, created,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the user's notifications, newest first.
func (s *SQLite) ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, filter_id, match_id, message, created_at
		 FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		var created string
		if err := rows.Scan(&n.ID, &n.UserID, &n.FilterID, &n.MatchID, &n.Message, &created); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, n)
	}
	return out, rows.Err()
}

// TelegramChatID returns the chat linked to the user, if any.
func (s *SQLite) TelegramChatID(ctx context.Context, userID string) (int64, bool, error) {
	var chatID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id FROM telegram_chats WHERE user_id = ?`, userID).Scan(&chatID)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("query telegram chat: %w", err)
	}
	return chatID, true, nil
}

// LinkTelegramChat associates a Telegram chat with a user, replacing any
// previous link.
func (s *SQLite) LinkTelegramChat(ctx context.Context, userID string, chatID int64) error {
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO telegram_chats (user_id, chat_id, linked_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET chat_id = excluded.chat_id, linked_at = excluded.linked_at`,
		userID, chatID, now,
	)
	if err != nil {
		return fmt.Errorf("link telegram chat: %w", err)
	}
	return nil
}

func insertConditions(ctx context.Context, tx *sql.Tx, filterID string, conds []model.Condition) error {
	for i, c := range conds {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO filter_conditions (filter_id, field, min_value, max_value, mode, sort_order)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			filterID, string(c.Field), c.Min, c.Max, string(c.Mode), i,
		)
		if err != nil {
			return fmt.Errorf("insert condition: %w", err)
		}
	}
	return nil
}

func (s *SQLite) loadConditions(ctx context.Context, filterIDs []string) (map[string][]model.Condition, error) {
	out := make(map[string][]model.Condition, len(filterIDs))
	if len(filterIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filterIDs)), ",")
	args := make([]any, len(filterIDs))
	for i, id := range filterIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT filter_id, field, min_value, max_value, mode
		 FROM filter_conditions WHERE filter_id IN (`+placeholders+`) ORDER BY filter_id, sort_order`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query conditions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var filterID, field, mode string
		var min, max sql.NullFloat64
		if err := rows.Scan(&filterID, &field, &min, &max, &mode); err != nil {
			return nil, fmt.Errorf("scan condition: %w", err)
		}
		c := model.Condition{Field: model.StatField(field), Mode: model.ComparisonMode(mode)}
		if min.Valid {
			v := min.Float64
			c.Min = &v
		}
		if max.Valid {
			v := max.Float64
			c.Max = &v
		}
		out[filterID] = append(out[filterID], c)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanFilter(row scannable) (*model.Filter, error) {
	var f model.Filter
	var isActive, isShared, notifEnabled, tgEnabled int
	var rate sql.NullFloat64
	var created, updated string
	err := row.Scan(&f.ID, &f.UserID, &f.Name, &f.Description, &isActive, &isShared,
		&notifEnabled, &tgEnabled, &f.TriggerCount, &rate, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan filter: %w", err)
	}
	f.IsActive = isActive == 1
	f.IsShared = isShared == 1
	f.NotificationEnabled = notifEnabled == 1
	f.TelegramEnabled = tgEnabled == 1
	if rate.Valid {
		v := rate.Float64
		f.SuccessRate = &v
	}
	f.CreatedAt, _ = time.Parse(timeLayout, created)
	f.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &f, nil
}
