package domain

import "time"

// Notification is one observed notification event.
type Notification struct {
	PackageName string    `json:"package_name"`
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name,omitempty"`
	Title       string    `json:"title"`
	AppLabel    string    `json:"app_label,omitempty"` // optional, supplied by the sender
	Importance  int       `json:"importance,omitempty"`
	PostedAt    time.Time `json:"posted_at,omitempty"`
}

// DefaultImportance mirrors the "default" importance of a notification channel.
const DefaultImportance = 3

// LogEntry is one row of the notification log. Rows are keyed by
// (PackageName, ChannelID); repeated notifications bump ReceivedCount.
type LogEntry struct {
	ID            int64     `json:"id"`
	PackageName   string    `json:"package_name"`
	ChannelID     string    `json:"channel_id"`
	AppLabel      string    `json:"app_label"`
	ChannelName   string    `json:"channel_name"`
	Importance    int       `json:"importance"`
	ReceivedCount int64     `json:"received_count"`
	Created       time.Time `json:"created"`
	LastReceived  time.Time `json:"last_received"`
}

// EntryFor builds the log entry recorded for n under the resolved label.
func EntryFor(n Notification, label string) LogEntry {
	at := n.PostedAt
	if at.IsZero() {
		at = time.Now()
	}
	importance := n.Importance
	if importance == 0 {
		importance = DefaultImportance
	}
	return LogEntry{
		PackageName:   n.PackageName,
		ChannelID:     n.ChannelID,
		AppLabel:      label,
		ChannelName:   n.ChannelName,
		Importance:    importance,
		ReceivedCount: 1,
		Created:       at,
		LastReceived:  at,
	}
}
