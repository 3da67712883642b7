package domain

// Preference and seed defaults.
const (
	DefaultNotificationTitle = "SmartNotifier check"
	DefaultCheckVoiceMessage = "Notifications are being read aloud"
	CheckChannelID           = "check"
	CheckChannelName         = "Test Notification"
	DefaultSelfPackage       = "smartnotifier"
	SelfAppLabel             = "SmartNotifier"
	DefaultLogLimit          = 100
)
