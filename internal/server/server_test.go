package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/smartnotifier/internal/app"
	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/gate"
	"github.com/hammamikhairi/smartnotifier/internal/listener"
	"github.com/hammamikhairi/smartnotifier/internal/logger"
	"github.com/hammamikhairi/smartnotifier/internal/storage"
)

// mockSayer records announcements.
type mockSayer struct {
	mu   sync.Mutex
	said []string
}

func (m *mockSayer) Say(text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.said = append(m.said, text)
	return true
}

func (m *mockSayer) messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.said...)
}

type testEnv struct {
	srv   *httptest.Server
	l     *listener.Listener
	sayer *mockSayer
	store *storage.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	store := storage.NewMemoryStore(log)
	g := gate.New(gate.RingerNormal, false, gate.Window{})
	sayer := &mockSayer{}
	l := listener.New(store, g, sayer, log)
	a := app.New(store, l, log, app.WithSelfPackage("smartnotifier"), app.WithDebounce(20*time.Millisecond))
	s := New(a, l, g, log)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Close()
		srv.Close()
		l.Close()
	})
	return &testEnv{srv: srv, l: l, sayer: sayer, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPostNotificationIsSpoken(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/v1/rules", domain.Rule{
		PackageName: "com.mail", ChannelID: "inbox", AppLabel: "Mail", SrhTitle: "invoice", VoiceMsg: "Invoice arrived", Enabled: true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/v1/notifications", domain.Notification{
		PackageName: "com.mail", ChannelID: "inbox", Title: "Your INVOICE #42", AppLabel: "Mail",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	e.l.Wait()

	require.Equal(t, []string{"Invoice arrived"}, e.sayer.messages())

	resp = e.do(t, http.MethodGet, "/v1/logs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	logs := decodeBody[[]domain.LogEntry](t, resp)
	require.Len(t, logs, 1)
	require.Equal(t, "Mail", logs[0].AppLabel)
	require.EqualValues(t, 1, logs[0].ReceivedCount)
}

func TestPostNotificationValidation(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/v1/notifications", map[string]string{"channel_id": "x"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/v1/notifications", map[string]string{"package_name": "com.mail"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/v1/notifications", strings.NewReader("{not json"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	require.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestRuleLifecycle(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/v1/rules", domain.Rule{PackageName: "p", ChannelID: "c", AppLabel: "P", SrhTitle: "alarm"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rule := decodeBody[domain.Rule](t, resp)
	require.NotZero(t, rule.ID)
	path := "/v1/rules/" + itoa(rule.ID)

	// Same (package, channel, title) again.
	resp = e.do(t, http.MethodPost, "/v1/rules", domain.Rule{PackageName: "p", ChannelID: "c", SrhTitle: "alarm"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "a rule with the same name already exists", decodeBody[errorBody](t, resp).Error)

	rule.VoiceMsg = "Wake up"
	resp = e.do(t, http.MethodPut, path, rule)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodPut, path+"/enabled", map[string]bool{"enabled": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decodeBody[domain.Rule](t, resp)
	require.True(t, got.Enabled)
	require.Equal(t, "Wake up", got.VoiceMsg)

	resp = e.do(t, http.MethodPost, path+"/duplicate", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	dup := decodeBody[domain.Rule](t, resp)
	require.Equal(t, "alarm-#01", dup.SrhTitle)
	require.False(t, dup.Enabled)

	resp = e.do(t, http.MethodGet, "/v1/rules", nil)
	require.Len(t, decodeBody[[]domain.Rule](t, resp), 2)

	resp = e.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = e.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/v1/rules/abc", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDebouncedUpdate(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(t, http.MethodPost, "/v1/rules", domain.Rule{PackageName: "p", ChannelID: "c"})
	rule := decodeBody[domain.Rule](t, resp)

	rule.VoiceMsg = "later"
	resp = e.do(t, http.MethodPut, "/v1/rules/"+itoa(rule.ID)+"?debounce=true", rule)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		got, err := e.store.GetRule(context.Background(), rule.ID)
		return err == nil && got.VoiceMsg == "later"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRuleFromLog(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodPost, "/v1/notifications", domain.Notification{PackageName: "com.chat", ChannelID: "dm", AppLabel: "Chat"})
	e.l.Wait()

	logs := decodeBody[[]domain.LogEntry](t, e.do(t, http.MethodGet, "/v1/logs?limit=10", nil))
	require.Len(t, logs, 1)

	resp := e.do(t, http.MethodPost, "/v1/logs/"+itoa(logs[0].ID)+"/rule", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rule := decodeBody[domain.Rule](t, resp)
	require.Equal(t, "com.chat", rule.PackageName)
	require.Equal(t, "Chat", rule.AppLabel)
	require.False(t, rule.Enabled)

	resp = e.do(t, http.MethodPost, "/v1/logs/999/rule", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = e.do(t, http.MethodGet, "/v1/logs?limit=-1", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPrefs(t *testing.T) {
	e := newTestEnv(t)

	prefs := decodeBody[prefsBody](t, e.do(t, http.MethodGet, "/v1/prefs", nil))
	require.Equal(t, "newest", *prefs.SortOrder)
	require.Equal(t, domain.DefaultNotificationTitle, *prefs.NotificationTitle)

	resp := e.do(t, http.MethodPut, "/v1/prefs", map[string]string{"sort_order": "app", "notification_title": "Ping"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	prefs = decodeBody[prefsBody](t, resp)
	require.Equal(t, "app", *prefs.SortOrder)
	require.Equal(t, "Ping", *prefs.NotificationTitle)

	resp = e.do(t, http.MethodPut, "/v1/prefs", map[string]string{"sort_order": "random"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = e.do(t, http.MethodPut, "/v1/prefs", map[string]string{"notification_title": "  "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGateSilencesSpeech(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodPost, "/v1/rules", domain.Rule{PackageName: "p", ChannelID: "c", AppLabel: "P", Enabled: true})

	resp := e.do(t, http.MethodPut, "/v1/gate", map[string]any{"ringer_mode": "silent"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	st := decodeBody[gate.State](t, resp)
	require.Equal(t, gate.RingerSilent, st.Ringer)

	e.do(t, http.MethodPost, "/v1/notifications", domain.Notification{PackageName: "p", ChannelID: "c", AppLabel: "P"})
	e.l.Wait()
	require.Empty(t, e.sayer.messages())

	resp = e.do(t, http.MethodPut, "/v1/gate", map[string]any{"ringer_mode": "normal", "quiet_hours": "99:00-01:00"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	st = decodeBody[gate.State](t, e.do(t, http.MethodGet, "/v1/gate", nil))
	require.Equal(t, gate.RingerSilent, st.Ringer, "a rejected update must not apply partially")
}

func TestCheckNotification(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	// First-launch seed installs the disabled check rule.
	require.NoError(t, storage.Seed(ctx, e.store, "smartnotifier", logger.New(logger.LevelOff, nil)))
	rules, err := e.store.RulesFor(ctx, "smartnotifier", domain.CheckChannelID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.NoError(t, e.store.UpdateEnabled(ctx, rules[0].ID, true))

	resp := e.do(t, http.MethodPost, "/v1/check", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	e.l.Wait()
	require.Equal(t, []string{domain.DefaultCheckVoiceMessage}, e.sayer.messages())
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, http.MethodPost, "/v1/notifications", domain.Notification{PackageName: "p", ChannelID: "c", AppLabel: "P"})
	e.l.Wait()

	resp := e.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "smartnotifier_notifications_received_total")
}

func TestLogStream(t *testing.T) {
	e := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/v1/logs/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var frame logFrame
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, "logs", frame.Type)
	require.Empty(t, frame.Logs)

	e.do(t, http.MethodPost, "/v1/notifications", domain.Notification{PackageName: "com.chat", ChannelID: "dm", AppLabel: "Chat"})

	require.NoError(t, conn.ReadJSON(&frame))
	require.Len(t, frame.Logs, 1)
	require.Equal(t, "com.chat", frame.Logs[0].PackageName)
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
