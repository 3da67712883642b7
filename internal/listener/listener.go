// Package listener runs the notification pipeline: label resolution, the
// notification log, gating, rule matching and the voice queue.
package listener

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/logger"
	"github.com/hammamikhairi/smartnotifier/internal/matcher"
	"github.com/hammamikhairi/smartnotifier/internal/metrics"
)

// ErrClosed is returned by Post after Close.
var ErrClosed = errors.New("listener closed")

// Sayer accepts announcement text. *speech.Queue implements it.
type Sayer interface {
	Say(text string) bool
}

// Gate decides whether announcements may be spoken. *gate.Gate implements it.
type Gate interface {
	CanSpeak(now time.Time) bool
}

// Option configures the Listener.
type Option func(*Listener)

// WithResolver adds a label source consulted after the stored label and the
// label carried by the notification.
func WithResolver(r domain.LabelResolver) Option {
	return func(l *Listener) {
		l.resolver = r
	}
}

// WithClock overrides time.Now for gating and log timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Listener) {
		l.now = now
	}
}

// Listener receives notifications and drives them through the pipeline.
// Each Post is handled on its own goroutine.
type Listener struct {
	store    domain.Store
	gate     Gate
	queue    Sayer
	resolver domain.LabelResolver
	log      *logger.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

// New creates a listener.
func New(store domain.Store, g Gate, queue Sayer, log *logger.Logger, opts ...Option) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		store:  store,
		gate:   g,
		queue:  queue,
		log:    log,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[int]chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post hands a notification to the pipeline and returns immediately.
func (l *Listener) Post(n domain.Notification) error {
	if strings.TrimSpace(n.PackageName) == "" || strings.TrimSpace(n.ChannelID) == "" {
		return domain.ErrInvalidNotification
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.wg.Add(1)
	l.mu.Unlock()

	metrics.IncReceived()
	id := uuid.NewString()[:8]
	go func() {
		defer l.wg.Done()
		l.handle(l.ctx, id, n)
	}()
	return nil
}

// handle runs one notification through the pipeline. Failures are logged.
func (l *Listener) handle(ctx context.Context, id string, n domain.Notification) {
	label, err := l.resolveLabel(ctx, n)
	if err != nil {
		l.log.Warn("event %s: no app label for %s/%s, dropped: %v", id, n.PackageName, n.ChannelID, err)
		metrics.IncDropped()
		return
	}

	if n.PostedAt.IsZero() {
		n.PostedAt = l.now()
	}
	entry := domain.EntryFor(n, label)
	if err := l.store.InsertOrCount(ctx, entry); err != nil {
		l.log.Error("event %s: logging %s/%s: %v", id, n.PackageName, n.ChannelID, err)
		return
	}
	l.publish()

	if !l.gate.CanSpeak(l.now()) {
		l.log.Info("event %s: tts disabled, %s/%s not announced", id, n.PackageName, n.ChannelID)
		metrics.IncGated()
		return
	}

	rules, err := l.store.RulesFor(ctx, n.PackageName, n.ChannelID)
	if err != nil {
		l.log.Error("event %s: loading rules: %v", id, err)
		return
	}
	rule, ok := matcher.Match(rules, n)
	if !ok {
		l.log.Debug("event %s: no rule for %s/%s %q", id, n.PackageName, n.ChannelID, n.Title)
		return
	}
	metrics.IncMatched()

	msg := matcher.Message(rule)
	if l.queue.Say(msg) {
		l.log.Debug("event %s: rule %d queued %q", id, rule.ID, msg)
	} else {
		l.log.Debug("event %s: rule %d message already pending", id, rule.ID)
	}
}

// resolveLabel tries the stored label, the notification's own label, then
// the resolver.
func (l *Listener) resolveLabel(ctx context.Context, n domain.Notification) (string, error) {
	stored, err := l.store.AppLabel(ctx, n.PackageName, n.ChannelID)
	if err != nil {
		l.log.Warn("loading stored label for %s: %v", n.PackageName, err)
	}
	if label := strings.TrimSpace(stored); label != "" {
		return label, nil
	}
	if label := strings.TrimSpace(n.AppLabel); label != "" {
		return label, nil
	}
	if l.resolver == nil {
		return "", domain.ErrLabelUnknown
	}
	label, err := l.resolver.Resolve(ctx, n.PackageName)
	if err != nil {
		return "", err
	}
	if label = strings.TrimSpace(label); label == "" {
		return "", domain.ErrLabelUnknown
	}
	return label, nil
}

// Subscribe returns a channel signalled after every notification log
// change, and a function that ends the subscription. Signals coalesce.
func (l *Listener) Subscribe() (<-chan struct{}, func()) {
	l.subMu.Lock()
	defer l.subMu.Unlock()

	id := l.nextSub
	l.nextSub++
	ch := make(chan struct{}, 1)
	l.subs[id] = ch

	return ch, func() {
		l.subMu.Lock()
		defer l.subMu.Unlock()
		delete(l.subs, id)
	}
}

func (l *Listener) publish() {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- struct{}{}:
		default: // already signaled
		}
	}
}

// Wait blocks until every posted notification has been handled.
func (l *Listener) Wait() {
	l.wg.Wait()
}

// Close stops accepting notifications and waits for in-flight ones.
func (l *Listener) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.wg.Wait()
	l.cancel()
	l.log.Info("listener stopped")
}
