package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
)

const logColumns = `id, package_name, channel_id, app_label, channel_name, importance, received_count, created, last_received`

func scanLog(row rowScanner) (domain.LogEntry, error) {
	var (
		e                      domain.LogEntry
		created, lastReceived int64
	)
	err := row.Scan(&e.ID, &e.PackageName, &e.ChannelID, &e.AppLabel, &e.ChannelName,
		&e.Importance, &e.ReceivedCount, &created, &lastReceived)
	e.Created = fromMillis(created)
	e.LastReceived = fromMillis(lastReceived)
	return e, err
}

// InsertOrCount records one received notification. An existing
// (package, channel) row gets its counter bumped; otherwise a row is
// inserted with a count of one and the log is trimmed to its limit.
func (s *SQLiteStore) InsertOrCount(ctx context.Context, entry domain.LogEntry) error {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	last := entry.LastReceived
	if last.IsZero() {
		last = time.Now()
	}

	updated, err := s.incrementCount(ctx, entry.PackageName, entry.ChannelID, last)
	if err != nil {
		return err
	}
	if updated {
		return nil
	}

	created := entry.Created
	if created.IsZero() {
		created = last
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notification_log
			(package_name, channel_id, app_label, channel_name, importance, received_count, created, last_received)
		 VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		entry.PackageName, entry.ChannelID, entry.AppLabel, entry.ChannelName, entry.Importance,
		toMillis(created), toMillis(last))
	if err != nil {
		if isUniqueViolation(err) {
			// Another writer got there first.
			_, err = s.incrementCount(ctx, entry.PackageName, entry.ChannelID, last)
			return err
		}
		return fmt.Errorf("inserting log %s/%s: %w", entry.PackageName, entry.ChannelID, err)
	}

	s.log.Debug("log: new entry %s/%s (%s)", entry.PackageName, entry.ChannelID, entry.AppLabel)
	return s.trimLogs(ctx)
}

func (s *SQLiteStore) incrementCount(ctx context.Context, packageName, channelID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notification_log SET received_count = received_count + 1, last_received = ?
		 WHERE package_name = ? AND channel_id = ?`,
		toMillis(at), packageName, channelID)
	if err != nil {
		return false, fmt.Errorf("counting log %s/%s: %w", packageName, channelID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// trimLogs keeps the newest logLimit rows.
func (s *SQLiteStore) trimLogs(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notification_log WHERE id NOT IN (
			SELECT id FROM notification_log ORDER BY id DESC LIMIT ?)`, s.logLimit)
	if err != nil {
		return fmt.Errorf("trimming log: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Debug("log: trimmed %d old entries", n)
	}
	return nil
}

// AppLabel returns the label stored for a package channel, or "".
func (s *SQLiteStore) AppLabel(ctx context.Context, packageName, channelID string) (string, error) {
	var label string
	err := s.db.QueryRowContext(ctx,
		`SELECT app_label FROM notification_log WHERE package_name = ? AND channel_id = ?`,
		packageName, channelID).Scan(&label)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading app label: %w", err)
	}
	return label, nil
}

// LatestLogs returns up to limit entries, newest first.
func (s *SQLiteStore) LatestLogs(ctx context.Context, limit int) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = s.logLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+logColumns+` FROM notification_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	var out []domain.LogEntry
	for rows.Next() {
		e, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning log: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetLog loads one log entry.
func (s *SQLiteStore) GetLog(ctx context.Context, id int64) (domain.LogEntry, error) {
	e, err := scanLog(s.db.QueryRowContext(ctx, `SELECT `+logColumns+` FROM notification_log WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LogEntry{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LogEntry{}, fmt.Errorf("loading log %d: %w", id, err)
	}
	return e, nil
}
