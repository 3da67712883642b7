// Package matcher decides which rule, if any, announces a notification.
package matcher

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
)

// Match returns the rule that announces n. Candidates are considered in
// SrhTitle-descending order, so specific titles win over the blank
// catch-all. A rule matches when it is enabled, belongs to the same package
// channel, and its SrhTitle is blank or contained in the title ignoring case.
func Match(rules []domain.Rule, n domain.Notification) (domain.Rule, bool) {
	candidates := lo.Filter(rules, func(r domain.Rule, _ int) bool {
		return r.Enabled && r.PackageName == n.PackageName && r.ChannelID == n.ChannelID
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].SrhTitle > candidates[j].SrhTitle
	})

	return lo.Find(candidates, func(r domain.Rule) bool {
		return TitleMatches(r.SrhTitle, n.Title)
	})
}

// TitleMatches reports whether a rule's search title selects title.
func TitleMatches(srhTitle, title string) bool {
	if strings.TrimSpace(srhTitle) == "" {
		return true
	}
	return strings.Contains(strings.ToLower(title), strings.ToLower(srhTitle))
}

// Message is what gets spoken for a matched rule: its voice message, or a
// generic line naming the app.
func Message(r domain.Rule) string {
	if msg := strings.TrimSpace(r.VoiceMsg); msg != "" {
		return msg
	}
	return DefaultMessage(r.AppLabel)
}

// DefaultMessage is spoken for rules without a voice message.
func DefaultMessage(appLabel string) string {
	if appLabel == "" {
		return "New notification"
	}
	return "Notification from " + appLabel
}
