package domain

import "context"

// RuleStore persists announcement rules. Implementations can be in-memory
// or SQLite.
type RuleStore interface {
	InsertRule(ctx context.Context, rule Rule) (int64, error)
	UpdateRule(ctx context.Context, rule Rule) error
	UpdateEnabled(ctx context.Context, id int64, enabled bool) error
	DeleteRule(ctx context.Context, id int64) error
	GetRule(ctx context.Context, id int64) (Rule, error)
	ListRules(ctx context.Context, order SortOrder) ([]Rule, error)

	// RulesFor returns the rules of one package channel ordered by SrhTitle
	// descending, so a blank title is considered last.
	RulesFor(ctx context.Context, packageName, channelID string) ([]Rule, error)

	// InsertWithAutoNumber inserts base titled baseTitle, or baseTitle-#01
	// through baseTitle-#NN when taken. It returns the new id and the title
	// that was adopted, or ErrTooManySameNames.
	InsertWithAutoNumber(ctx context.Context, base Rule, baseTitle string) (int64, string, error)

	// DuplicateRule copies rule id as a disabled rule with an auto-numbered title.
	DuplicateRule(ctx context.Context, id int64) (int64, string, error)
}

// LogStore persists the bounded notification log.
type LogStore interface {
	// InsertOrCount bumps the counter of the (package, channel) row, or
	// inserts it and trims the log to its limit.
	InsertOrCount(ctx context.Context, entry LogEntry) error
	AppLabel(ctx context.Context, packageName, channelID string) (string, error)
	LatestLogs(ctx context.Context, limit int) ([]LogEntry, error)
	GetLog(ctx context.Context, id int64) (LogEntry, error)
}

// PrefStore persists user preferences.
type PrefStore interface {
	SortOrder(ctx context.Context) (SortOrder, error)
	SetSortOrder(ctx context.Context, order SortOrder) error
	NotificationTitle(ctx context.Context) (string, error)
	SetNotificationTitle(ctx context.Context, title string) error
	FirstLaunch(ctx context.Context) (bool, error)
	MarkLaunched(ctx context.Context) error
}

// Store is everything the daemon persists.
type Store interface {
	RuleStore
	LogStore
	PrefStore
	Close() error
}

// Speaker turns text into audible speech. Speak blocks until the utterance
// finished playing or ctx is done.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// LabelResolver maps a package name to a human-readable app label.
type LabelResolver interface {
	Resolve(ctx context.Context, packageName string) (string, error)
}
