package speech

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/logger"
	"github.com/hammamikhairi/smartnotifier/internal/metrics"
)

// Readier is implemented by speakers that need time to start up. The queue
// waits for Ready before handing them text.
type Readier interface {
	Ready() bool
}

// QueueOption configures the Queue.
type QueueOption func(*Queue)

// WithDelay sets how long a Say request waits before it is spoken.
func WithDelay(d time.Duration) QueueOption {
	return func(q *Queue) {
		q.delay = d
	}
}

// WithCleanup sets how long a spoken text keeps blocking identical requests.
func WithCleanup(d time.Duration) QueueOption {
	return func(q *Queue) {
		q.cleanup = d
	}
}

// WithReadyTimeout bounds the wait for a Readier speaker.
func WithReadyTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		q.readyTimeout = d
	}
}

// Queue is the voice queue. Texts are deduplicated while pending, held for
// the configured delay, then spoken one at a time by a single consumer.
// SayNow requests skip the delay and are served before delayed ones.
type Queue struct {
	speaker      domain.Speaker
	log          *logger.Logger
	delay        time.Duration
	cleanup      time.Duration
	readyTimeout time.Duration

	mu       sync.Mutex
	pending  map[string]struct{}    // texts between Say and cleanup
	timers   map[string]*time.Timer // delay and cleanup timers by text
	queue    []SpeechRequest
	notify   chan struct{}
	speaking bool
	closed   bool
	stop     context.CancelFunc
	wg       sync.WaitGroup
}

// NewQueue creates a voice queue speaking through speaker. Call Start to
// begin consuming.
func NewQueue(speaker domain.Speaker, log *logger.Logger, opts ...QueueOption) *Queue {
	q := &Queue{
		speaker:      speaker,
		log:          log,
		delay:        DefaultDelay,
		cleanup:      DefaultCleanup,
		readyTimeout: DefaultReadyTimeout,
		pending:      make(map[string]struct{}),
		timers:       make(map[string]*time.Timer),
		notify:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the consumer goroutine. Non-blocking.
func (q *Queue) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.stop = cancel
	q.mu.Unlock()

	q.wg.Add(1)
	go q.processLoop(ctx)
	q.log.Info("voice queue started (delay=%s, cleanup=%s)", q.delay, q.cleanup)
}

// Say queues text to be spoken after the delay. It reports false when the
// text is blank, already pending, or the queue is closed.
func (q *Queue) Say(text string) bool {
	return q.add(text, PriorityNormal)
}

// SayNow queues text without the delay, ahead of delayed requests.
func (q *Queue) SayNow(text string) bool {
	return q.add(text, PriorityHigh)
}

func (q *Queue) add(text string, priority Priority) bool {
	text = cleanForSpeech(text)
	if text == "" {
		return false
	}

	req := SpeechRequest{
		ID:       uuid.NewString(),
		Text:     text,
		Priority: priority,
		QueuedAt: time.Now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if _, dup := q.pending[text]; dup {
		q.log.Debug("queue: %q already pending, skipped", truncate(text, 60))
		metrics.IncDeduplicated()
		return false
	}
	q.pending[text] = struct{}{}

	if priority == PriorityNormal && q.delay > 0 {
		q.timers[text] = time.AfterFunc(q.delay, func() { q.enqueue(req) })
		q.log.Debug("queue: %s held for %s: %s", req.ID[:8], q.delay, truncate(text, 60))
		return true
	}
	q.enqueueLocked(req)
	return true
}

// enqueue moves a delayed request onto the speaking queue.
func (q *Queue) enqueue(req SpeechRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	delete(q.timers, req.Text)
	q.enqueueLocked(req)
}

// enqueueLocked must be called with q.mu held.
func (q *Queue) enqueueLocked(req SpeechRequest) {
	q.queue = append(q.queue, req)
	q.log.Debug("queue: %s ready (priority=%d, queue_len=%d)", req.ID[:8], req.Priority, len(q.queue))
	select {
	case q.notify <- struct{}{}:
	default: // already signaled
	}
}

// processLoop waits for queued items and speaks them one at a time.
func (q *Queue) processLoop(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			q.log.Info("voice queue stopped")
			return
		case <-q.notify:
			q.drain(ctx)
		}
	}
}

// drain speaks everything queued, highest priority first.
func (q *Queue) drain(ctx context.Context) {
	for ctx.Err() == nil {
		req, ok := q.dequeue()
		if !ok {
			return
		}
		q.setSpeaking(true)
		q.process(ctx, req)
		q.setSpeaking(false)
	}
}

// dequeue removes the highest priority item, oldest first among equals.
func (q *Queue) dequeue() (SpeechRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queue) == 0 {
		return SpeechRequest{}, false
	}
	best := 0
	for i, item := range q.queue {
		if item.Priority > q.queue[best].Priority {
			best = i
		}
	}
	item := q.queue[best]
	q.queue = append(q.queue[:best], q.queue[best+1:]...)
	return item, true
}

func (q *Queue) process(ctx context.Context, req SpeechRequest) {
	if !q.waitReady(ctx) {
		q.log.Warn("queue: speaker not ready after %s, dropped %s", q.readyTimeout, req.ID[:8])
		metrics.IncSpeakFailed()
		q.release(req.Text)
		return
	}

	q.log.Debug("queue: speaking %s (waited=%s): %s",
		req.ID[:8], time.Since(req.QueuedAt).Round(time.Millisecond), truncate(req.Text, 60))

	start := time.Now()
	if err := q.speaker.Speak(ctx, req.Text); err != nil {
		q.log.Error("queue: speaking %s failed: %v", req.ID[:8], err)
		metrics.IncSpeakFailed()
	} else {
		metrics.IncSpoken(time.Since(start))
	}
	q.scheduleCleanup(req.Text)
}

// waitReady polls a Readier speaker until it is ready or the timeout passes.
func (q *Queue) waitReady(ctx context.Context) bool {
	r, ok := q.speaker.(Readier)
	if !ok || r.Ready() {
		return true
	}
	deadline := time.NewTimer(q.readyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(readyPoll)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return r.Ready()
		case <-tick.C:
			if r.Ready() {
				return true
			}
		}
	}
}

// scheduleCleanup keeps text pending for the cleanup period after speaking.
func (q *Queue) scheduleCleanup(text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		delete(q.pending, text)
		return
	}
	if q.cleanup <= 0 {
		delete(q.pending, text)
		return
	}
	q.timers[text] = time.AfterFunc(q.cleanup, func() { q.release(text) })
}

// release drops text from the pending set.
func (q *Queue) release(text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, text)
	delete(q.timers, text)
}

func (q *Queue) setSpeaking(v bool) {
	q.mu.Lock()
	q.speaking = v
	q.mu.Unlock()
}

// Close stops the consumer, cancels delayed requests and clears the pending
// set. Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for text, t := range q.timers {
		t.Stop()
		delete(q.timers, text)
	}
	q.pending = make(map[string]struct{})
	q.queue = nil
	stop := q.stop
	q.mu.Unlock()

	if stop != nil {
		stop()
	}
	q.wg.Wait()
}

// Pending returns the texts currently blocking repeats, sorted.
func (q *Queue) Pending() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.pending))
	for text := range q.pending {
		out = append(out, text)
	}
	sort.Strings(out)
	return out
}

// QueueLen returns the number of requests past their delay and not yet spoken.
func (q *Queue) QueueLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// IsSpeaking reports whether the speaker is busy.
func (q *Queue) IsSpeaking() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.speaking
}

var (
	ansiCodes  = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	whitespace = regexp.MustCompile(`\s+`)
)

// cleanForSpeech strips terminal escapes and collapses whitespace.
func cleanForSpeech(msg string) string {
	cleaned := ansiCodes.ReplaceAllString(msg, "")
	cleaned = whitespace.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// truncate shortens a string for logging.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
