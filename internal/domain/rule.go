package domain

// Rule says "speak VoiceMsg when PackageName posts on ChannelID with a title
// containing SrhTitle". (PackageName, ChannelID, SrhTitle) is unique.
type Rule struct {
	ID          int64  `json:"id"`
	PackageName string `json:"package_name"`
	AppLabel    string `json:"app_label"`
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	SrhTitle    string `json:"srh_title"`
	VoiceMsg    string `json:"voice_msg"`
	Enabled     bool   `json:"enabled"`
}

// SortOrder selects how rule lists are ordered.
type SortOrder int

const (
	// SortNewest lists the most recently added rules first.
	SortNewest SortOrder = iota
	// SortByApp lists rules by app label, then by insertion order.
	SortByApp
)

// String returns the preference value for the order.
func (o SortOrder) String() string {
	if o == SortByApp {
		return "app"
	}
	return "newest"
}

// ParseSortOrder is the inverse of SortOrder.String.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch s {
	case "newest", "":
		return SortNewest, true
	case "app":
		return SortByApp, true
	}
	return SortNewest, false
}

// MaxAutoNumber is how many "-#NN" suffixes are tried before giving up on a
// unique rule title.
const MaxAutoNumber = 50
