package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
)

// Preference keys.
const (
	prefFirstLaunch       = "is_first_launch"
	prefSortOrder         = "sort_list_order"
	prefNotificationTitle = "notification_title"
)

func (s *SQLiteStore) getPref(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM prefs WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading pref %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLiteStore) setPref(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO prefs (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("saving pref %s: %w", key, err)
	}
	return nil
}

// SortOrder returns the rule list order, SortNewest when unset.
func (s *SQLiteStore) SortOrder(ctx context.Context) (domain.SortOrder, error) {
	v, _, err := s.getPref(ctx, prefSortOrder)
	if err != nil {
		return domain.SortNewest, err
	}
	order, _ := domain.ParseSortOrder(v)
	return order, nil
}

// SetSortOrder persists the rule list order.
func (s *SQLiteStore) SetSortOrder(ctx context.Context, order domain.SortOrder) error {
	return s.setPref(ctx, prefSortOrder, order.String())
}

// NotificationTitle returns the title used for check notifications.
func (s *SQLiteStore) NotificationTitle(ctx context.Context) (string, error) {
	v, ok, err := s.getPref(ctx, prefNotificationTitle)
	if err != nil || !ok {
		return domain.DefaultNotificationTitle, err
	}
	return v, nil
}

// SetNotificationTitle persists the title used for check notifications.
func (s *SQLiteStore) SetNotificationTitle(ctx context.Context, title string) error {
	return s.setPref(ctx, prefNotificationTitle, title)
}

// FirstLaunch reports whether MarkLaunched was never called.
func (s *SQLiteStore) FirstLaunch(ctx context.Context) (bool, error) {
	v, ok, err := s.getPref(ctx, prefFirstLaunch)
	if err != nil || !ok {
		return true, err
	}
	first, err := strconv.ParseBool(v)
	if err != nil {
		return true, nil
	}
	return first, nil
}

// MarkLaunched records that first-launch setup ran.
func (s *SQLiteStore) MarkLaunched(ctx context.Context) error {
	return s.setPref(ctx, prefFirstLaunch, strconv.FormatBool(false))
}
