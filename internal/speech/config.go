package speech

import "time"

// Default voice for Azure TTS.
// Full list: https://learn.microsoft.com/en-us/azure/ai-services/speech-service/language-support
const DefaultVoice = "en-US-AvaNeural"

// Audio format returned by Azure and expected by the player.
const DefaultAudioFormat = "riff-24khz-16bit-mono-pcm"

// Audio parameters matching the default format.
const (
	SampleRate   = 24000
	ChannelCount = 1
	BitDepth     = 16
)

// Env var names for Azure Speech credentials.
const (
	EnvAzureSpeechKey    = "AZURE_SPEECH_KEY"
	EnvAzureSpeechRegion = "AZURE_SPEECH_REGION"
)

// Queue timing defaults.
const (
	// DefaultDelay is how long an announcement waits before it is spoken.
	DefaultDelay = 3 * time.Second
	// DefaultCleanup is how long a spoken message keeps blocking repeats.
	DefaultCleanup = 5 * time.Second
	// DefaultReadyTimeout bounds the wait for a speaker that is still
	// starting up.
	DefaultReadyTimeout = 3 * time.Second
	readyPoll           = 50 * time.Millisecond
)

// Priority levels for speech requests. Higher value = speaks first.
type Priority int

const (
	PriorityNormal Priority = iota // matched notifications
	PriorityHigh                   // manual playback
)

// SpeechRequest is a queued item waiting to be spoken.
type SpeechRequest struct {
	ID       string
	Text     string
	Priority Priority
	QueuedAt time.Time
}
