package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/logger"
	"github.com/hammamikhairi/smartnotifier/internal/storage"
)

// mockPoster records posted notifications.
type mockPoster struct {
	mu     sync.Mutex
	posted []domain.Notification
}

func (m *mockPoster) Post(n domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted = append(m.posted, n)
	return nil
}

func newTestApp(t *testing.T, opts ...Option) (*App, *storage.MemoryStore, *mockPoster) {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	store := storage.NewMemoryStore(log)
	poster := &mockPoster{}
	a := New(store, poster, log, append([]Option{WithDebounce(30 * time.Millisecond)}, opts...)...)
	t.Cleanup(func() { a.Close(context.Background()) })
	return a, store, poster
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAddRuleTakesLabelFromLog(t *testing.T) {
	a, store, _ := newTestApp(t)
	ctx := context.Background()
	if err := store.InsertOrCount(ctx, domain.LogEntry{PackageName: "com.mail", ChannelID: "inbox", AppLabel: "Mail"}); err != nil {
		t.Fatal(err)
	}

	r, err := a.AddRule(ctx, domain.Rule{PackageName: " com.mail ", ChannelID: "inbox", SrhTitle: "invoice", Enabled: true})
	if err != nil {
		t.Fatalf("add rule: %v", err)
	}
	if r.ID == 0 || r.AppLabel != "Mail" || r.PackageName != "com.mail" {
		t.Fatalf("unexpected rule %+v", r)
	}

	if _, err := a.AddRule(ctx, domain.Rule{ChannelID: "inbox"}); !errors.Is(err, domain.ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
	if _, err := a.AddRule(ctx, domain.Rule{PackageName: "com.mail", ChannelID: " "}); !errors.Is(err, domain.ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule for blank channel, got %v", err)
	}
	if _, err := a.AddRule(ctx, domain.Rule{PackageName: "com.mail", ChannelID: "inbox", SrhTitle: "invoice"}); !errors.Is(err, domain.ErrDuplicateRule) {
		t.Fatalf("expected ErrDuplicateRule, got %v", err)
	}
}

func TestRulesFollowSortPreference(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()
	for _, r := range []domain.Rule{
		{PackageName: "p1", ChannelID: "c", AppLabel: "Zebra"},
		{PackageName: "p2", ChannelID: "c", AppLabel: "Alpha"},
		{PackageName: "p3", ChannelID: "c", AppLabel: "Mango"},
	} {
		if _, err := a.AddRule(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	labels := func() []string {
		rules, err := a.Rules(ctx)
		if err != nil {
			t.Fatal(err)
		}
		out := make([]string, len(rules))
		for i, r := range rules {
			out[i] = r.AppLabel
		}
		return out
	}

	if diff := cmp.Diff([]string{"Mango", "Alpha", "Zebra"}, labels()); diff != "" {
		t.Fatalf("newest order mismatch (-want +got):\n%s", diff)
	}
	if err := a.SetSortOrder(ctx, domain.SortByApp); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Alpha", "Mango", "Zebra"}, labels()); diff != "" {
		t.Fatalf("app order mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateRuleDebouncedSavesLastEdit(t *testing.T) {
	a, store, _ := newTestApp(t)
	ctx := context.Background()
	r, err := a.AddRule(ctx, domain.Rule{PackageName: "p", ChannelID: "c", AppLabel: "P"})
	if err != nil {
		t.Fatal(err)
	}

	for _, msg := range []string{"h", "he", "hel", "hello"} {
		r.VoiceMsg = msg
		a.UpdateRuleDebounced(r)
	}

	// Nothing saved inside the quiet period.
	got, _ := store.GetRule(ctx, r.ID)
	if got.VoiceMsg != "" {
		t.Fatalf("expected no save yet, got %q", got.VoiceMsg)
	}

	waitFor(t, "debounced save", func() bool {
		got, _ := store.GetRule(ctx, r.ID)
		return got.VoiceMsg == "hello"
	})
}

func TestUpdateRuleDebouncedReportsDuplicate(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()
	if _, err := a.AddRule(ctx, domain.Rule{PackageName: "p", ChannelID: "c", SrhTitle: "taken"}); err != nil {
		t.Fatal(err)
	}
	r, err := a.AddRule(ctx, domain.Rule{PackageName: "p", ChannelID: "c", SrhTitle: "free"})
	if err != nil {
		t.Fatal(err)
	}

	r.SrhTitle = "taken"
	a.UpdateRuleDebounced(r)

	select {
	case err := <-a.Errors():
		if !errors.Is(err, domain.ErrDuplicateRule) {
			t.Fatalf("expected ErrDuplicateRule, got %v", err)
		}
		if err.Error() != "a rule with the same name already exists" {
			t.Fatalf("unexpected message %q", err.Error())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a save error")
	}
}

func TestUpdateRuleNowSupersedesPending(t *testing.T) {
	a, store, _ := newTestApp(t, WithDebounce(time.Hour))
	ctx := context.Background()
	r, err := a.AddRule(ctx, domain.Rule{PackageName: "p", ChannelID: "c"})
	if err != nil {
		t.Fatal(err)
	}

	r.VoiceMsg = "draft"
	a.UpdateRuleDebounced(r)
	r.VoiceMsg = "final"
	if err := a.UpdateRuleNow(ctx, r); err != nil {
		t.Fatalf("update now: %v", err)
	}

	a.Flush(ctx)
	got, _ := store.GetRule(ctx, r.ID)
	if got.VoiceMsg != "final" {
		t.Fatalf("expected final, got %q", got.VoiceMsg)
	}
}

func TestFlushSavesPending(t *testing.T) {
	a, store, _ := newTestApp(t, WithDebounce(time.Hour))
	ctx := context.Background()
	r, err := a.AddRule(ctx, domain.Rule{PackageName: "p", ChannelID: "c"})
	if err != nil {
		t.Fatal(err)
	}

	r.VoiceMsg = "flushed"
	a.UpdateRuleDebounced(r)
	a.Flush(ctx)

	got, _ := store.GetRule(ctx, r.ID)
	if got.VoiceMsg != "flushed" {
		t.Fatalf("expected flushed, got %q", got.VoiceMsg)
	}
}

func TestAddRuleFromLog(t *testing.T) {
	a, store, _ := newTestApp(t)
	ctx := context.Background()
	if err := store.InsertOrCount(ctx, domain.LogEntry{PackageName: "com.chat", ChannelID: "dm", AppLabel: "Chat", ChannelName: "Direct"}); err != nil {
		t.Fatal(err)
	}
	logs, _ := store.LatestLogs(ctx, 0)

	first, err := a.AddRuleFromLog(ctx, logs[0].ID)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := a.AddRuleFromLog(ctx, logs[0].ID)
	if err != nil {
		t.Fatalf("second: %v", err)
	}

	want := domain.Rule{PackageName: "com.chat", AppLabel: "Chat", ChannelID: "dm", ChannelName: "Direct"}
	if diff := cmp.Diff(want, first, cmpopts.IgnoreFields(domain.Rule{}, "ID")); diff != "" {
		t.Fatalf("rule mismatch (-want +got):\n%s", diff)
	}
	if second.SrhTitle != "-#01" {
		t.Fatalf("expected auto-numbered title -#01, got %q", second.SrhTitle)
	}

	if _, err := a.AddRuleFromLog(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDuplicateRule(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()
	r, err := a.AddRule(ctx, domain.Rule{PackageName: "p", ChannelID: "c", AppLabel: "P", SrhTitle: "alarm", VoiceMsg: "wake up", Enabled: true})
	if err != nil {
		t.Fatal(err)
	}

	dup, err := a.DuplicateRule(ctx, r.ID)
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if dup.ID == r.ID || dup.Enabled || dup.SrhTitle != "alarm-#01" || dup.VoiceMsg != "wake up" {
		t.Fatalf("unexpected copy %+v", dup)
	}
	if _, err := a.DuplicateRule(ctx, 12345); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNotificationTitle(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	title, err := a.NotificationTitle(ctx)
	if err != nil || title != domain.DefaultNotificationTitle {
		t.Fatalf("expected default title, got %q (%v)", title, err)
	}
	if err := a.SetNotificationTitle(ctx, "   "); !errors.Is(err, domain.ErrBlankTitle) {
		t.Fatalf("expected ErrBlankTitle, got %v", err)
	}
	if err := a.SetNotificationTitle(ctx, " Ping "); err != nil {
		t.Fatal(err)
	}
	if title, _ := a.NotificationTitle(ctx); title != "Ping" {
		t.Fatalf("expected Ping, got %q", title)
	}
}

func TestSendCheck(t *testing.T) {
	a, _, poster := newTestApp(t, WithSelfPackage("me.notifier"))
	ctx := context.Background()
	if err := a.SetNotificationTitle(ctx, "Hello there"); err != nil {
		t.Fatal(err)
	}

	n, err := a.SendCheck(ctx)
	if err != nil {
		t.Fatalf("send check: %v", err)
	}
	if len(poster.posted) != 1 {
		t.Fatalf("expected one posted notification, got %d", len(poster.posted))
	}
	want := domain.Notification{
		PackageName: "me.notifier",
		ChannelID:   domain.CheckChannelID,
		ChannelName: domain.CheckChannelName,
		Title:       "Hello there",
		AppLabel:    domain.SelfAppLabel,
		Importance:  domain.DefaultImportance,
	}
	if diff := cmp.Diff(want, poster.posted[0], cmpopts.IgnoreFields(domain.Notification{}, "PostedAt")); diff != "" {
		t.Fatalf("check mismatch (-want +got):\n%s", diff)
	}
	if n.Title != "Hello there" {
		t.Fatalf("expected returned title, got %q", n.Title)
	}

	cli := New(storage.NewMemoryStore(logger.New(logger.LevelOff, nil)), nil, logger.New(logger.LevelOff, nil))
	if _, err := cli.SendCheck(ctx); err == nil {
		t.Fatal("expected error without a listener")
	}
}

func TestDeleteRuleDropsPendingEdit(t *testing.T) {
	a, store, _ := newTestApp(t, WithDebounce(time.Hour))
	ctx := context.Background()
	r, err := a.AddRule(ctx, domain.Rule{PackageName: "p", ChannelID: "c"})
	if err != nil {
		t.Fatal(err)
	}
	r.VoiceMsg = "edited"
	a.UpdateRuleDebounced(r)

	if err := a.DeleteRule(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	a.mu.Lock()
	left := len(a.debouncers)
	a.mu.Unlock()
	if left != 0 {
		t.Fatalf("expected no debouncers after delete, got %d", left)
	}
	a.Flush(ctx)
	if _, err := store.GetRule(ctx, r.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected rule to stay deleted, got %v", err)
	}
	select {
	case err := <-a.Errors():
		t.Fatalf("unexpected save error %v", err)
	default:
	}
}
