// Package app is the application service behind the CLI and the HTTP
// API: rule editing, the notification log, preferences and the check
// notification.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/logger"
)

// DefaultDebounce is the quiet period before an edited rule is saved.
const DefaultDebounce = 500 * time.Millisecond

// Poster accepts notifications. *listener.Listener implements it.
type Poster interface {
	Post(n domain.Notification) error
}

// Option configures the App.
type Option func(*App)

// WithDebounce sets the quiet period of UpdateRuleDebounced.
func WithDebounce(d time.Duration) Option {
	return func(a *App) {
		a.debounceAfter = d
	}
}

// WithSelfPackage sets the package name used by SendCheck.
func WithSelfPackage(pkg string) Option {
	return func(a *App) {
		a.selfPackage = pkg
	}
}

// App coordinates the store and the listener for user-facing operations.
type App struct {
	store         domain.Store
	poster        Poster
	log           *logger.Logger
	selfPackage   string
	debounceAfter time.Duration

	mu         sync.Mutex
	debouncers map[int64]func(func())
	pending    map[int64]domain.Rule
	errs       chan error
}

// New creates the application service. poster may be nil for CLI-only use,
// in which case SendCheck fails.
func New(store domain.Store, poster Poster, log *logger.Logger, opts ...Option) *App {
	a := &App{
		store:         store,
		poster:        poster,
		log:           log,
		selfPackage:   domain.DefaultSelfPackage,
		debounceAfter: DefaultDebounce,
		debouncers:    make(map[int64]func(func())),
		pending:       make(map[int64]domain.Rule),
		errs:          make(chan error, 16),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ── rules ────────────────────────────────────────────────────────

// Rules lists every rule in the stored sort order.
func (a *App) Rules(ctx context.Context) ([]domain.Rule, error) {
	order, err := a.store.SortOrder(ctx)
	if err != nil {
		return nil, err
	}
	return a.store.ListRules(ctx, order)
}

// Rule loads one rule.
func (a *App) Rule(ctx context.Context, id int64) (domain.Rule, error) {
	return a.store.GetRule(ctx, id)
}

// AddRule stores a new rule. The app label is taken from the notification
// log when the rule does not carry one.
func (a *App) AddRule(ctx context.Context, rule domain.Rule) (domain.Rule, error) {
	rule = normalize(rule)
	if rule.PackageName == "" || rule.ChannelID == "" {
		return domain.Rule{}, domain.ErrInvalidRule
	}
	if rule.AppLabel == "" {
		label, err := a.store.AppLabel(ctx, rule.PackageName, rule.ChannelID)
		if err != nil {
			return domain.Rule{}, err
		}
		rule.AppLabel = label
	}
	id, err := a.store.InsertRule(ctx, rule)
	if err != nil {
		return domain.Rule{}, err
	}
	rule.ID = id
	a.log.Info("added rule %d for %s/%s", id, rule.PackageName, rule.ChannelID)
	return rule, nil
}

// DeleteRule removes a rule and drops any unsaved edit of it. A debounced
// save still scheduled finds nothing pending and does nothing.
func (a *App) DeleteRule(ctx context.Context, id int64) error {
	a.mu.Lock()
	delete(a.pending, id)
	delete(a.debouncers, id)
	a.mu.Unlock()

	if err := a.store.DeleteRule(ctx, id); err != nil {
		return err
	}
	a.log.Info("deleted rule %d", id)
	return nil
}

// SetEnabled switches a rule on or off.
func (a *App) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	return a.store.UpdateEnabled(ctx, id, enabled)
}

// UpdateRuleDebounced saves rule once no further edit of the same rule
// arrived for the debounce period. Save failures are delivered on Errors.
func (a *App) UpdateRuleDebounced(rule domain.Rule) {
	rule = normalize(rule)

	a.mu.Lock()
	a.pending[rule.ID] = rule
	d, ok := a.debouncers[rule.ID]
	if !ok {
		d = debounce.New(a.debounceAfter)
		a.debouncers[rule.ID] = d
	}
	a.mu.Unlock()

	id := rule.ID
	d(func() { a.flushRule(context.Background(), id) })
}

// UpdateRuleNow saves rule immediately, superseding any pending edit.
func (a *App) UpdateRuleNow(ctx context.Context, rule domain.Rule) error {
	rule = normalize(rule)

	a.mu.Lock()
	delete(a.pending, rule.ID)
	a.mu.Unlock()

	return a.save(ctx, rule)
}

// Flush saves every pending debounced edit now.
func (a *App) Flush(ctx context.Context) {
	a.mu.Lock()
	ids := make([]int64, 0, len(a.pending))
	for id := range a.pending {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	for _, id := range ids {
		a.flushRule(ctx, id)
	}
}

// Errors delivers failures of debounced saves.
func (a *App) Errors() <-chan error { return a.errs }

func (a *App) flushRule(ctx context.Context, id int64) {
	a.mu.Lock()
	rule, ok := a.pending[id]
	delete(a.pending, id)
	a.mu.Unlock()
	if !ok {
		return
	}
	if err := a.save(ctx, rule); err != nil {
		a.report(err)
	}
}

func (a *App) save(ctx context.Context, rule domain.Rule) error {
	if rule.PackageName == "" || rule.ChannelID == "" {
		return domain.ErrInvalidRule
	}
	err := a.store.UpdateRule(ctx, rule)
	switch {
	case err == nil:
		a.log.Debug("saved rule %d", rule.ID)
		return nil
	case errors.Is(err, domain.ErrDuplicateRule), errors.Is(err, domain.ErrNotFound):
		return err
	default:
		return fmt.Errorf("saving rule %d: %w", rule.ID, err)
	}
}

func (a *App) report(err error) {
	a.log.Warn("rule save failed: %v", err)
	select {
	case a.errs <- err:
	default:
		a.log.Warn("error channel full, dropped: %v", err)
	}
}

// AddRuleFromLog creates a disabled catch-all rule for the package channel
// of a log entry. The title is auto-numbered when a blank-titled rule for
// the channel already exists.
func (a *App) AddRuleFromLog(ctx context.Context, logID int64) (domain.Rule, error) {
	entry, err := a.store.GetLog(ctx, logID)
	if err != nil {
		return domain.Rule{}, err
	}
	rule := domain.Rule{
		PackageName: entry.PackageName,
		AppLabel:    entry.AppLabel,
		ChannelID:   entry.ChannelID,
		ChannelName: entry.ChannelName,
		Enabled:     false,
	}
	id, title, err := a.store.InsertWithAutoNumber(ctx, rule, "")
	if err != nil {
		return domain.Rule{}, err
	}
	rule.ID, rule.SrhTitle = id, title
	a.log.Info("added rule %d from log %d (%s/%s)", id, logID, entry.PackageName, entry.ChannelID)
	return rule, nil
}

// DuplicateRule copies rule id as a disabled rule and returns the copy.
func (a *App) DuplicateRule(ctx context.Context, id int64) (domain.Rule, error) {
	newID, _, err := a.store.DuplicateRule(ctx, id)
	if err != nil {
		return domain.Rule{}, err
	}
	return a.store.GetRule(ctx, newID)
}

// ── log ──────────────────────────────────────────────────────────

// Logs returns up to limit log entries, newest first. limit <= 0 returns
// the whole log.
func (a *App) Logs(ctx context.Context, limit int) ([]domain.LogEntry, error) {
	return a.store.LatestLogs(ctx, limit)
}

// ── preferences ──────────────────────────────────────────────────

// SortOrder returns the rule list order.
func (a *App) SortOrder(ctx context.Context) (domain.SortOrder, error) {
	return a.store.SortOrder(ctx)
}

// SetSortOrder changes the rule list order.
func (a *App) SetSortOrder(ctx context.Context, order domain.SortOrder) error {
	return a.store.SetSortOrder(ctx, order)
}

// NotificationTitle returns the title of check notifications.
func (a *App) NotificationTitle(ctx context.Context) (string, error) {
	return a.store.NotificationTitle(ctx)
}

// SetNotificationTitle changes the title of check notifications.
func (a *App) SetNotificationTitle(ctx context.Context, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.ErrBlankTitle
	}
	return a.store.SetNotificationTitle(ctx, title)
}

// SendCheck posts a notification from SmartNotifier itself on the check
// channel, titled with the stored notification title.
func (a *App) SendCheck(ctx context.Context) (domain.Notification, error) {
	if a.poster == nil {
		return domain.Notification{}, errors.New("no listener to post to")
	}
	title, err := a.store.NotificationTitle(ctx)
	if err != nil {
		return domain.Notification{}, err
	}
	n := domain.Notification{
		PackageName: a.selfPackage,
		ChannelID:   domain.CheckChannelID,
		ChannelName: domain.CheckChannelName,
		Title:       title,
		AppLabel:    domain.SelfAppLabel,
		Importance:  domain.DefaultImportance,
		PostedAt:    time.Now(),
	}
	if err := a.poster.Post(n); err != nil {
		return domain.Notification{}, err
	}
	a.log.Info("posted check notification %q", title)
	return n, nil
}

// Close saves pending edits.
func (a *App) Close(ctx context.Context) {
	a.Flush(ctx)
}

func normalize(r domain.Rule) domain.Rule {
	r.PackageName = strings.TrimSpace(r.PackageName)
	r.ChannelID = strings.TrimSpace(r.ChannelID)
	r.VoiceMsg = strings.TrimSpace(r.VoiceMsg)
	return r
}
