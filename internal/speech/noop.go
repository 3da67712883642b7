// Package speech turns matched notifications into audible announcements:
// a deduplicating voice queue in front of pluggable speakers.
package speech

import (
	"context"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/logger"
)

// Compile-time interface check.
var _ domain.Speaker = (*LogSpeaker)(nil)

// LogSpeaker only logs what it would say. Used when no audio backend is
// configured.
type LogSpeaker struct {
	log *logger.Logger
}

// NewLogSpeaker creates a speaker that writes to the log.
func NewLogSpeaker(log *logger.Logger) *LogSpeaker {
	return &LogSpeaker{log: log}
}

// Speak logs text at info level.
func (s *LogSpeaker) Speak(ctx context.Context, text string) error {
	s.log.Info("say: %s", text)
	return nil
}
