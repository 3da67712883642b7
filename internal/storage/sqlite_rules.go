package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
)

const ruleColumns = `id, package_name, app_label, channel_id, channel_name, srh_title, voice_msg, enabled`

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (domain.Rule, error) {
	var (
		r       domain.Rule
		enabled int
	)
	err := row.Scan(&r.ID, &r.PackageName, &r.AppLabel, &r.ChannelID, &r.ChannelName, &r.SrhTitle, &r.VoiceMsg, &enabled)
	r.Enabled = enabled != 0
	return r, err
}

// InsertRule adds a rule. A rule with the same package, channel and title
// yields domain.ErrDuplicateRule.
func (s *SQLiteStore) InsertRule(ctx context.Context, rule domain.Rule) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rules (package_name, app_label, channel_id, channel_name, srh_title, voice_msg, enabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rule.PackageName, rule.AppLabel, rule.ChannelID, rule.ChannelName, rule.SrhTitle, rule.VoiceMsg, boolInt(rule.Enabled))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, domain.ErrDuplicateRule
		}
		return 0, fmt.Errorf("inserting rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading rule id: %w", err)
	}
	s.log.Debug("inserted rule %d (%s/%s %q)", id, rule.PackageName, rule.ChannelID, rule.SrhTitle)
	return id, nil
}

// UpdateRule overwrites every field of the rule with the given id.
func (s *SQLiteStore) UpdateRule(ctx context.Context, rule domain.Rule) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET package_name = ?, app_label = ?, channel_id = ?, channel_name = ?,
			srh_title = ?, voice_msg = ?, enabled = ?
		 WHERE id = ?`,
		rule.PackageName, rule.AppLabel, rule.ChannelID, rule.ChannelName,
		rule.SrhTitle, rule.VoiceMsg, boolInt(rule.Enabled), rule.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateRule
		}
		return fmt.Errorf("updating rule %d: %w", rule.ID, err)
	}
	return expectOne(res, rule.ID)
}

// UpdateEnabled flips the enabled flag of a rule.
func (s *SQLiteStore) UpdateEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE rules SET enabled = ? WHERE id = ?`, boolInt(enabled), id)
	if err != nil {
		return fmt.Errorf("updating rule %d enabled: %w", id, err)
	}
	return expectOne(res, id)
}

// DeleteRule removes a rule.
func (s *SQLiteStore) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting rule %d: %w", id, err)
	}
	return expectOne(res, id)
}

// GetRule loads one rule.
func (s *SQLiteStore) GetRule(ctx context.Context, id int64) (domain.Rule, error) {
	return getRule(ctx, s.db, id)
}

func getRule(ctx context.Context, q queryer, id int64) (domain.Rule, error) {
	r, err := scanRule(q.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Rule{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Rule{}, fmt.Errorf("loading rule %d: %w", id, err)
	}
	return r, nil
}

// ListRules returns every rule in the requested order.
func (s *SQLiteStore) ListRules(ctx context.Context, order domain.SortOrder) ([]domain.Rule, error) {
	orderBy := "id DESC"
	if order == domain.SortByApp {
		orderBy = "app_label ASC, id ASC"
	}
	return s.queryRules(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY `+orderBy)
}

// RulesFor returns the rules of one package channel, blank title last.
func (s *SQLiteStore) RulesFor(ctx context.Context, packageName, channelID string) ([]domain.Rule, error) {
	return s.queryRules(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE package_name = ? AND channel_id = ? ORDER BY srh_title DESC`,
		packageName, channelID)
}

func (s *SQLiteStore) queryRules(ctx context.Context, query string, args ...any) ([]domain.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var out []domain.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertWithAutoNumber inserts base under the first free title among
// baseTitle, baseTitle-#01 … baseTitle-#50, all inside one transaction.
func (s *SQLiteStore) InsertWithAutoNumber(ctx context.Context, base domain.Rule, baseTitle string) (int64, string, error) {
	var (
		id      int64
		adopted string
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, adopted, err = insertWithAutoNumber(ctx, tx, base, baseTitle)
		return err
	})
	if err != nil {
		return 0, "", err
	}
	return id, adopted, nil
}

// DuplicateRule copies a rule as a disabled rule with an auto-numbered title.
func (s *SQLiteStore) DuplicateRule(ctx context.Context, id int64) (int64, string, error) {
	var (
		newID   int64
		adopted string
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		original, err := getRule(ctx, tx, id)
		if err != nil {
			return err
		}
		copied := original
		copied.ID = 0
		copied.Enabled = false
		newID, adopted, err = insertWithAutoNumber(ctx, tx, copied, original.SrhTitle)
		return err
	})
	if err != nil {
		return 0, "", err
	}
	s.log.Debug("duplicated rule %d as %d (%q)", id, newID, adopted)
	return newID, adopted, nil
}

func insertWithAutoNumber(ctx context.Context, q queryer, base domain.Rule, baseTitle string) (int64, string, error) {
	for i := 0; i <= domain.MaxAutoNumber; i++ {
		title := AutoNumberTitle(baseTitle, i)
		res, err := q.ExecContext(ctx,
			`INSERT OR IGNORE INTO rules (package_name, app_label, channel_id, channel_name, srh_title, voice_msg, enabled)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			base.PackageName, base.AppLabel, base.ChannelID, base.ChannelName, title, base.VoiceMsg, boolInt(base.Enabled))
		if err != nil {
			return 0, "", fmt.Errorf("inserting rule %q: %w", title, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, "", err
		}
		if n == 0 {
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, "", err
		}
		return id, title, nil
	}
	return 0, "", domain.ErrTooManySameNames
}

// AutoNumberTitle returns the i-th candidate title: base itself for 0,
// otherwise base-#NN.
func AutoNumberTitle(base string, i int) string {
	if i == 0 {
		return base
	}
	return fmt.Sprintf("%s-#%02d", base, i)
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func expectOne(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("rule %d: %w", id, domain.ErrNotFound)
	}
	return nil
}
