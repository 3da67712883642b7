// Package storage provides rule, notification log and preference
// persistence: SQLite for the daemon and an in-memory store for tests and
// throwaway runs.
package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/logger"
)

// Compile-time interface check.
var _ domain.Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory store. Safe for concurrent access.
type MemoryStore struct {
	mu       sync.RWMutex
	rules    map[int64]domain.Rule
	logs     map[int64]domain.LogEntry
	prefs    map[string]string
	nextRule int64
	nextLog  int64
	logLimit int
	log      *logger.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(log *logger.Logger) *MemoryStore {
	return &MemoryStore{
		rules:    make(map[int64]domain.Rule),
		logs:     make(map[int64]domain.LogEntry),
		prefs:    make(map[string]string),
		logLimit: domain.DefaultLogLimit,
		log:      log,
	}
}

// SetLogLimit changes how many log rows are kept.
func (s *MemoryStore) SetLogLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.logLimit = n
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// ── rules ────────────────────────────────────────────────────────

func (s *MemoryStore) conflictLocked(r domain.Rule) bool {
	for id, other := range s.rules {
		if id != r.ID && other.PackageName == r.PackageName && other.ChannelID == r.ChannelID && other.SrhTitle == r.SrhTitle {
			return true
		}
	}
	return false
}

func (s *MemoryStore) insertLocked(r domain.Rule) (int64, bool) {
	r.ID = 0
	if s.conflictLocked(r) {
		return 0, false
	}
	s.nextRule++
	r.ID = s.nextRule
	s.rules[r.ID] = r
	return r.ID, true
}

// InsertRule adds a rule.
func (s *MemoryStore) InsertRule(ctx context.Context, rule domain.Rule) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.insertLocked(rule)
	if !ok {
		return 0, domain.ErrDuplicateRule
	}
	s.log.Debug("inserted rule %d (%s/%s %q)", id, rule.PackageName, rule.ChannelID, rule.SrhTitle)
	return id, nil
}

// UpdateRule overwrites an existing rule.
func (s *MemoryStore) UpdateRule(ctx context.Context, rule domain.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[rule.ID]; !ok {
		return domain.ErrNotFound
	}
	if s.conflictLocked(rule) {
		return domain.ErrDuplicateRule
	}
	s.rules[rule.ID] = rule
	return nil
}

// UpdateEnabled flips the enabled flag of a rule.
func (s *MemoryStore) UpdateEnabled(ctx context.Context, id int64, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Enabled = enabled
	s.rules[id] = r
	return nil
}

// DeleteRule removes a rule.
func (s *MemoryStore) DeleteRule(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.rules, id)
	s.log.Debug("deleted rule %d", id)
	return nil
}

// GetRule loads one rule.
func (s *MemoryStore) GetRule(ctx context.Context, id int64) (domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return domain.Rule{}, domain.ErrNotFound
	}
	return r, nil
}

// ListRules returns every rule in the requested order.
func (s *MemoryStore) ListRules(ctx context.Context, order domain.SortOrder) ([]domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if order == domain.SortByApp {
			if out[i].AppLabel != out[j].AppLabel {
				return out[i].AppLabel < out[j].AppLabel
			}
			return out[i].ID < out[j].ID
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// RulesFor returns the rules of one package channel, blank title last.
func (s *MemoryStore) RulesFor(ctx context.Context, packageName, channelID string) ([]domain.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Rule
	for _, r := range s.rules {
		if r.PackageName == packageName && r.ChannelID == channelID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SrhTitle > out[j].SrhTitle })
	return out, nil
}

// InsertWithAutoNumber inserts base under the first free auto-numbered title.
func (s *MemoryStore) InsertWithAutoNumber(ctx context.Context, base domain.Rule, baseTitle string) (int64, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoNumberLocked(base, baseTitle)
}

func (s *MemoryStore) autoNumberLocked(base domain.Rule, baseTitle string) (int64, string, error) {
	for i := 0; i <= domain.MaxAutoNumber; i++ {
		title := AutoNumberTitle(baseTitle, i)
		candidate := base
		candidate.SrhTitle = title
		if id, ok := s.insertLocked(candidate); ok {
			return id, title, nil
		}
	}
	return 0, "", domain.ErrTooManySameNames
}

// DuplicateRule copies a rule as a disabled rule with an auto-numbered title.
func (s *MemoryStore) DuplicateRule(ctx context.Context, id int64) (int64, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.rules[id]
	if !ok {
		return 0, "", domain.ErrNotFound
	}
	copied := original
	copied.Enabled = false
	return s.autoNumberLocked(copied, original.SrhTitle)
}

// ── notification log ─────────────────────────────────────────────

// InsertOrCount records one received notification.
func (s *MemoryStore) InsertOrCount(ctx context.Context, entry domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := entry.LastReceived
	if last.IsZero() {
		last = time.Now()
	}
	for id, e := range s.logs {
		if e.PackageName == entry.PackageName && e.ChannelID == entry.ChannelID {
			e.ReceivedCount++
			e.LastReceived = last
			s.logs[id] = e
			return nil
		}
	}

	s.nextLog++
	entry.ID = s.nextLog
	entry.ReceivedCount = 1
	entry.LastReceived = last
	if entry.Created.IsZero() {
		entry.Created = last
	}
	s.logs[entry.ID] = entry

	// Trim to the newest logLimit ids.
	if len(s.logs) > s.logLimit {
		ids := make([]int64, 0, len(s.logs))
		for id := range s.logs {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
		for _, id := range ids[s.logLimit:] {
			delete(s.logs, id)
		}
	}
	return nil
}

// AppLabel returns the label stored for a package channel, or "".
func (s *MemoryStore) AppLabel(ctx context.Context, packageName, channelID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.logs {
		if e.PackageName == packageName && e.ChannelID == channelID {
			return e.AppLabel, nil
		}
	}
	return "", nil
}

// LatestLogs returns up to limit entries, newest first.
func (s *MemoryStore) LatestLogs(ctx context.Context, limit int) ([]domain.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LogEntry, 0, len(s.logs))
	for _, e := range s.logs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetLog loads one log entry.
func (s *MemoryStore) GetLog(ctx context.Context, id int64) (domain.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.logs[id]
	if !ok {
		return domain.LogEntry{}, domain.ErrNotFound
	}
	return e, nil
}

// ── preferences ──────────────────────────────────────────────────

// SortOrder returns the rule list order.
func (s *MemoryStore) SortOrder(ctx context.Context) (domain.SortOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, _ := domain.ParseSortOrder(s.prefs[prefSortOrder])
	return order, nil
}

// SetSortOrder stores the rule list order.
func (s *MemoryStore) SetSortOrder(ctx context.Context, order domain.SortOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[prefSortOrder] = order.String()
	return nil
}

// NotificationTitle returns the title used for check notifications.
func (s *MemoryStore) NotificationTitle(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.prefs[prefNotificationTitle]; ok {
		return v, nil
	}
	return domain.DefaultNotificationTitle, nil
}

// SetNotificationTitle stores the title used for check notifications.
func (s *MemoryStore) SetNotificationTitle(ctx context.Context, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[prefNotificationTitle] = title
	return nil
}

// FirstLaunch reports whether MarkLaunched was never called.
func (s *MemoryStore) FirstLaunch(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !strings.EqualFold(s.prefs[prefFirstLaunch], "false"), nil
}

// MarkLaunched records that first-launch setup ran.
func (s *MemoryStore) MarkLaunched(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[prefFirstLaunch] = "false"
	return nil
}
