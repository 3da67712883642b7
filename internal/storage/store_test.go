package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/logger"
)

// storeFactories runs every contract test against both implementations.
func storeFactories(t *testing.T) map[string]func(limit int) domain.Store {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	return map[string]func(limit int) domain.Store{
		"memory": func(limit int) domain.Store {
			s := NewMemoryStore(log)
			s.SetLogLimit(limit)
			return s
		},
		"sqlite": func(limit int) domain.Store {
			path := filepath.Join(t.TempDir(), "test.db")
			s, err := OpenSQLite(path, log, WithLogLimit(limit))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func forEachStore(t *testing.T, limit int, fn func(t *testing.T, s domain.Store)) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(limit))
		})
	}
}

var ignoreID = cmpopts.IgnoreFields(domain.Rule{}, "ID")

func TestRuleCRUD(t *testing.T) {
	forEachStore(t, 100, func(t *testing.T, s domain.Store) {
		ctx := context.Background()
		rule := domain.Rule{
			PackageName: "com.chat",
			AppLabel:    "Chat",
			ChannelID:   "messages",
			SrhTitle:    "Alice",
			VoiceMsg:    "Alice wrote",
			Enabled:     true,
		}

		id, err := s.InsertRule(ctx, rule)
		if err != nil {
			t.Fatalf("insert: %v", err)
		}

		got, err := s.GetRule(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if diff := cmp.Diff(rule, got, ignoreID); diff != "" {
			t.Fatalf("rule mismatch (-want +got):\n%s", diff)
		}

		// Same key again.
		if _, err := s.InsertRule(ctx, rule); !errors.Is(err, domain.ErrDuplicateRule) {
			t.Fatalf("expected ErrDuplicateRule, got %v", err)
		}

		got.VoiceMsg = "changed"
		if err := s.UpdateRule(ctx, got); err != nil {
			t.Fatalf("update: %v", err)
		}
		if err := s.UpdateEnabled(ctx, id, false); err != nil {
			t.Fatalf("update enabled: %v", err)
		}
		reloaded, _ := s.GetRule(ctx, id)
		if reloaded.VoiceMsg != "changed" || reloaded.Enabled {
			t.Fatalf("unexpected rule after update: %+v", reloaded)
		}

		if err := s.DeleteRule(ctx, id); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.GetRule(ctx, id); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		if err := s.DeleteRule(ctx, id); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
		}
	})
}

func TestUpdateRuleToTakenTitle(t *testing.T) {
	forEachStore(t, 100, func(t *testing.T, s domain.Store) {
		ctx := context.Background()
		base := domain.Rule{PackageName: "p", ChannelID: "c"}

		a := base
		a.SrhTitle = "a"
		b := base
		b.SrhTitle = "b"
		if _, err := s.InsertRule(ctx, a); err != nil {
			t.Fatalf("insert a: %v", err)
		}
		idB, err := s.InsertRule(ctx, b)
		if err != nil {
			t.Fatalf("insert b: %v", err)
		}

		b.ID = idB
		b.SrhTitle = "a"
		if err := s.UpdateRule(ctx, b); !errors.Is(err, domain.ErrDuplicateRule) {
			t.Fatalf("expected ErrDuplicateRule, got %v", err)
		}
	})
}

func TestListRulesOrder(t *testing.T) {
	forEachStore(t, 100, func(t *testing.T, s domain.Store) {
		ctx := context.Background()
		for _, r := range []domain.Rule{
			{PackageName: "p1", AppLabel: "Zed", ChannelID: "c", SrhTitle: "1"},
			{PackageName: "p2", AppLabel: "Alpha", ChannelID: "c", SrhTitle: "2"},
			{PackageName: "p3", AppLabel: "Alpha", ChannelID: "c", SrhTitle: "3"},
		} {
			if _, err := s.InsertRule(ctx, r); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}

		titles := func(rules []domain.Rule) []string {
			var out []string
			for _, r := range rules {
				out = append(out, r.SrhTitle)
			}
			return out
		}

		newest, err := s.ListRules(ctx, domain.SortNewest)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if diff := cmp.Diff([]string{"3", "2", "1"}, titles(newest)); diff != "" {
			t.Fatalf("newest order (-want +got):\n%s", diff)
		}

		byApp, err := s.ListRules(ctx, domain.SortByApp)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if diff := cmp.Diff([]string{"2", "3", "1"}, titles(byApp)); diff != "" {
			t.Fatalf("by-app order (-want +got):\n%s", diff)
		}
	})
}

func TestRulesForPutsBlankTitleLast(t *testing.T) {
	forEachStore(t, 100, func(t *testing.T, s domain.Store) {
		ctx := context.Background()
		for _, title := range []string{"", "alpha", "beta"} {
			if _, err := s.InsertRule(ctx, domain.Rule{PackageName: "p", ChannelID: "c", SrhTitle: title}); err != nil {
				t.Fatalf("insert %q: %v", title, err)
			}
		}
		if _, err := s.InsertRule(ctx, domain.Rule{PackageName: "p", ChannelID: "other", SrhTitle: "x"}); err != nil {
			t.Fatalf("insert other: %v", err)
		}

		rules, err := s.RulesFor(ctx, "p", "c")
		if err != nil {
			t.Fatalf("rules for: %v", err)
		}
		var got []string
		for _, r := range rules {
			got = append(got, r.SrhTitle)
		}
		if diff := cmp.Diff([]string{"beta", "alpha", ""}, got); diff != "" {
			t.Fatalf("order (-want +got):\n%s", diff)
		}
	})
}

func TestInsertWithAutoNumber(t *testing.T) {
	forEachStore(t, 100, func(t *testing.T, s domain.Store) {
		ctx := context.Background()
		base := domain.Rule{PackageName: "p", ChannelID: "c"}

		want := []string{"", "-#01", "-#02"}
		for _, w := range want {
			_, title, err := s.InsertWithAutoNumber(ctx, base, "")
			if err != nil {
				t.Fatalf("auto number: %v", err)
			}
			if title != w {
				t.Fatalf("expected title %q, got %q", w, title)
			}
		}
	})
}

func TestInsertWithAutoNumberExhausted(t *testing.T) {
	forEachStore(t, 100, func(t *testing.T, s domain.Store) {
		ctx := context.Background()
		base := domain.Rule{PackageName: "p", ChannelID: "c"}

		for i := 0; i <= domain.MaxAutoNumber; i++ {
			if _, _, err := s.InsertWithAutoNumber(ctx, base, "t"); err != nil {
				t.Fatalf("attempt %d: %v", i, err)
			}
		}
		if _, _, err := s.InsertWithAutoNumber(ctx, base, "t"); !errors.Is(err, domain.ErrTooManySameNames) {
			t.Fatalf("expected ErrTooManySameNames, got %v", err)
		}
	})
}

func TestDuplicateRule(t *testing.T) {
	forEachStore(t, 100, func(t *testing.T, s domain.Store) {
		ctx := context.Background()
		id, err := s.InsertRule(ctx, domain.Rule{
			PackageName: "p", ChannelID: "c", SrhTitle: "Build", VoiceMsg: "done", Enabled: true,
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}

		newID, title, err := s.DuplicateRule(ctx, id)
		if err != nil {
			t.Fatalf("duplicate: %v", err)
		}
		if title != "Build-#01" {
			t.Fatalf("expected Build-#01, got %q", title)
		}
		copied, err := s.GetRule(ctx, newID)
		if err != nil {
			t.Fatalf("get copy: %v", err)
		}
		if copied.Enabled {
			t.Fatal("duplicate must start disabled")
		}
		if copied.VoiceMsg != "done" {
			t.Fatalf("expected voice message copied, got %q", copied.VoiceMsg)
		}

		if _, _, err := s.DuplicateRule(ctx, 9999); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestInsertOrCount(t *testing.T) {
	forEachStore(t, 100, func(t *testing.T, s domain.Store) {
		ctx := context.Background()
		first := time.UnixMilli(1_700_000_000_000)
		later := first.Add(time.Minute)

		entry := domain.LogEntry{
			PackageName: "com.mail", ChannelID: "inbox", AppLabel: "Mail",
			Importance: 4, Created: first, LastReceived: first,
		}
		if err := s.InsertOrCount(ctx, entry); err != nil {
			t.Fatalf("insert: %v", err)
		}
		entry.LastReceived = later
		if err := s.InsertOrCount(ctx, entry); err != nil {
			t.Fatalf("count: %v", err)
		}

		logs, err := s.LatestLogs(ctx, 10)
		if err != nil {
			t.Fatalf("latest: %v", err)
		}
		if len(logs) != 1 {
			t.Fatalf("expected 1 row, got %d", len(logs))
		}
		got := logs[0]
		if got.ReceivedCount != 2 {
			t.Fatalf("expected count 2, got %d", got.ReceivedCount)
		}
		if !got.Created.Equal(first) || !got.LastReceived.Equal(later) {
			t.Fatalf("unexpected timestamps: created=%v last=%v", got.Created, got.LastReceived)
		}

		label, err := s.AppLabel(ctx, "com.mail", "inbox")
		if err != nil || label != "Mail" {
			t.Fatalf("expected label Mail, got %q (%v)", label, err)
		}
		label, err = s.AppLabel(ctx, "com.mail", "missing")
		if err != nil || label != "" {
			t.Fatalf("expected empty label, got %q (%v)", label, err)
		}

		byID, err := s.GetLog(ctx, got.ID)
		if err != nil {
			t.Fatalf("get log: %v", err)
		}
		if diff := cmp.Diff(got, byID); diff != "" {
			t.Fatalf("get log mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestInsertOrCountConcurrentBurst(t *testing.T) {
	forEachStore(t, 100, func(t *testing.T, s domain.Store) {
		ctx := context.Background()
		const n = 25

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.InsertOrCount(ctx, domain.LogEntry{PackageName: "p", ChannelID: "c", AppLabel: "P"}); err != nil {
					t.Errorf("insert: %v", err)
				}
			}()
		}
		wg.Wait()

		logs, err := s.LatestLogs(ctx, 10)
		if err != nil {
			t.Fatalf("latest: %v", err)
		}
		if len(logs) != 1 || logs[0].ReceivedCount != n {
			t.Fatalf("expected one row counted %d times, got %+v", n, logs)
		}
	})
}

func TestLogTrim(t *testing.T) {
	forEachStore(t, 3, func(t *testing.T, s domain.Store) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			entry := domain.LogEntry{PackageName: fmt.Sprintf("p%d", i), ChannelID: "c", AppLabel: "x"}
			if err := s.InsertOrCount(ctx, entry); err != nil {
				t.Fatalf("insert %d: %v", i, err)
			}
		}

		logs, err := s.LatestLogs(ctx, 0)
		if err != nil {
			t.Fatalf("latest: %v", err)
		}
		var got []string
		for _, e := range logs {
			got = append(got, e.PackageName)
		}
		if diff := cmp.Diff([]string{"p4", "p3", "p2"}, got); diff != "" {
			t.Fatalf("trimmed log (-want +got):\n%s", diff)
		}
	})
}

func TestPrefs(t *testing.T) {
	forEachStore(t, 100, func(t *testing.T, s domain.Store) {
		ctx := context.Background()

		order, err := s.SortOrder(ctx)
		if err != nil || order != domain.SortNewest {
			t.Fatalf("expected default SortNewest, got %v (%v)", order, err)
		}
		if err := s.SetSortOrder(ctx, domain.SortByApp); err != nil {
			t.Fatalf("set sort: %v", err)
		}
		if order, _ := s.SortOrder(ctx); order != domain.SortByApp {
			t.Fatalf("expected SortByApp, got %v", order)
		}

		title, _ := s.NotificationTitle(ctx)
		if title != domain.DefaultNotificationTitle {
			t.Fatalf("expected default title, got %q", title)
		}
		if err := s.SetNotificationTitle(ctx, "Ping"); err != nil {
			t.Fatalf("set title: %v", err)
		}
		if title, _ := s.NotificationTitle(ctx); title != "Ping" {
			t.Fatalf("expected Ping, got %q", title)
		}

		if first, _ := s.FirstLaunch(ctx); !first {
			t.Fatal("expected first launch")
		}
		if err := s.MarkLaunched(ctx); err != nil {
			t.Fatalf("mark launched: %v", err)
		}
		if first, _ := s.FirstLaunch(ctx); first {
			t.Fatal("expected first launch to be cleared")
		}
	})
}

func TestSeedRunsOnce(t *testing.T) {
	forEachStore(t, 100, func(t *testing.T, s domain.Store) {
		ctx := context.Background()
		log := logger.New(logger.LevelOff, nil)

		for i := 0; i < 2; i++ {
			if err := Seed(ctx, s, "smartnotifier", log); err != nil {
				t.Fatalf("seed %d: %v", i, err)
			}
		}

		rules, err := s.RulesFor(ctx, "smartnotifier", domain.CheckChannelID)
		if err != nil {
			t.Fatalf("rules for: %v", err)
		}
		if len(rules) != 1 {
			t.Fatalf("expected one check rule, got %d", len(rules))
		}
		if rules[0].Enabled || rules[0].SrhTitle != domain.DefaultNotificationTitle {
			t.Fatalf("unexpected check rule: %+v", rules[0])
		}
	})
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	path := filepath.Join(t.TempDir(), "nested", "reopen.db")
	ctx := context.Background()

	s, err := OpenSQLite(path, log)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.InsertRule(ctx, domain.Rule{PackageName: "p", ChannelID: "c", SrhTitle: "t"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(path, log)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	rules, err := s.ListRules(ctx, domain.SortNewest)
	if err != nil || len(rules) != 1 {
		t.Fatalf("expected 1 rule after reopen, got %d (%v)", len(rules), err)
	}
}

func TestAutoNumberTitle(t *testing.T) {
	tests := []struct {
		base string
		i    int
		want string
	}{
		{"Build", 0, "Build"},
		{"Build", 1, "Build-#01"},
		{"", 12, "-#12"},
		{"x", 50, "x-#50"},
	}
	for _, tt := range tests {
		if got := AutoNumberTitle(tt.base, tt.i); got != tt.want {
			t.Errorf("AutoNumberTitle(%q, %d) = %q, want %q", tt.base, tt.i, got, tt.want)
		}
	}
}
