package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/gate"
)

func (s *Server) handlePostNotification(w http.ResponseWriter, r *http.Request) {
	var n domain.Notification
	if err := decode(w, r, &n); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(n.PackageName) == "" || strings.TrimSpace(n.ChannelID) == "" {
		s.writeError(w, badRequest{msg: "package_name and channel_id are required"})
		return
	}
	if err := s.ingest.Post(n); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// ── log ──────────────────────────────────────────────────────────

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, badRequest{msg: "invalid limit " + strconv.Quote(v)})
			return
		}
		limit = n
	}
	logs, err := s.app.Logs(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(logs))
}

func (s *Server) handleRuleFromLog(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rule, err := s.app.AddRuleFromLog(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

// ── rules ────────────────────────────────────────────────────────

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.app.Rules(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rules))
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.Rule
	if err := decode(w, r, &rule); err != nil {
		s.writeError(w, err)
		return
	}
	rule.ID = 0
	created, err := s.app.AddRule(r.Context(), rule)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rule, err := s.app.Rule(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleUpdateRule saves at once, or after the debounce period when
// ?debounce=true. Debounced failures surface on the app error channel.
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var rule domain.Rule
	if err := decode(w, r, &rule); err != nil {
		s.writeError(w, err)
		return
	}
	rule.ID = id

	if debounced, _ := strconv.ParseBool(r.URL.Query().Get("debounce")); debounced {
		s.app.UpdateRuleDebounced(rule)
		writeJSON(w, http.StatusAccepted, rule)
		return
	}
	if err := s.app.UpdateRuleNow(r.Context(), rule); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.app.DeleteRule(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type enabledBody struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var body enabledBody
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if body.Enabled == nil {
		s.writeError(w, badRequest{msg: "enabled is required"})
		return
	}
	if err := s.app.SetEnabled(r.Context(), id, *body.Enabled); err != nil {
		s.writeError(w, err)
		return
	}
	rule, err := s.app.Rule(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDuplicateRule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	dup, err := s.app.DuplicateRule(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dup)
}

// ── preferences, gate, check ─────────────────────────────────────

type prefsBody struct {
	SortOrder         *string `json:"sort_order,omitempty"`
	NotificationTitle *string `json:"notification_title,omitempty"`
}

func (s *Server) currentPrefs(r *http.Request) (prefsBody, error) {
	order, err := s.app.SortOrder(r.Context())
	if err != nil {
		return prefsBody{}, err
	}
	title, err := s.app.NotificationTitle(r.Context())
	if err != nil {
		return prefsBody{}, err
	}
	o := order.String()
	return prefsBody{SortOrder: &o, NotificationTitle: &title}, nil
}

func (s *Server) handleGetPrefs(w http.ResponseWriter, r *http.Request) {
	prefs, err := s.currentPrefs(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (s *Server) handlePutPrefs(w http.ResponseWriter, r *http.Request) {
	var body prefsBody
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	if body.SortOrder != nil {
		order, ok := domain.ParseSortOrder(*body.SortOrder)
		if !ok {
			s.writeError(w, badRequest{msg: "sort_order must be \"newest\" or \"app\""})
			return
		}
		if err := s.app.SetSortOrder(r.Context(), order); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if body.NotificationTitle != nil {
		if err := s.app.SetNotificationTitle(r.Context(), *body.NotificationTitle); err != nil {
			s.writeError(w, err)
			return
		}
	}
	s.handleGetPrefs(w, r)
}

type gateBody struct {
	RingerMode   *string `json:"ringer_mode,omitempty"`
	DoNotDisturb *bool   `json:"do_not_disturb,omitempty"`
	QuietHours   *string `json:"quiet_hours,omitempty"`
}

func (s *Server) handleGetGate(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.gate.State())
}

// handlePutGate validates every field before applying any of them.
func (s *Server) handlePutGate(w http.ResponseWriter, r *http.Request) {
	var body gateBody
	if err := decode(w, r, &body); err != nil {
		s.writeError(w, err)
		return
	}

	var (
		mode  gate.RingerMode
		quiet gate.Window
		err   error
	)
	if body.RingerMode != nil {
		if mode, err = gate.ParseRingerMode(*body.RingerMode); err != nil {
			s.writeError(w, badRequest{msg: err.Error()})
			return
		}
	}
	if body.QuietHours != nil {
		if quiet, err = gate.ParseWindow(*body.QuietHours); err != nil {
			s.writeError(w, badRequest{msg: err.Error()})
			return
		}
	}

	if body.RingerMode != nil {
		s.gate.SetRingerMode(mode)
	}
	if body.DoNotDisturb != nil {
		s.gate.SetDoNotDisturb(*body.DoNotDisturb)
	}
	if body.QuietHours != nil {
		s.gate.SetQuietHours(quiet)
	}
	st := s.gate.State()
	s.log.Info("gate: ringer=%s dnd=%v quiet=%q", st.Ringer, st.DoNotDisturb, st.QuietHours)
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	n, err := s.app.SendCheck(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, n)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
