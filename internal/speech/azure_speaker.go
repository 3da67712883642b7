package speech

import (
	"context"
	"fmt"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/logger"
)

var (
	_ domain.Speaker = (*AzureSpeaker)(nil)
	_ Readier        = (*AzureSpeaker)(nil)
)

// audioPlayer is the playback side of AzureSpeaker. *Player implements it.
type audioPlayer interface {
	Ready() bool
	Play(ctx context.Context, wav []byte) error
}

// AzureSpeaker synthesizes through Azure, caches the audio and plays it.
// Notifications repeat a lot, so most announcements are served from the
// cache.
type AzureSpeaker struct {
	tts    *AzureClient
	cache  *AudioCache
	player audioPlayer
	log    *logger.Logger
}

// NewAzureSpeaker wires a TTS client, cache and player together.
func NewAzureSpeaker(tts *AzureClient, cache *AudioCache, player audioPlayer, log *logger.Logger) *AzureSpeaker {
	return &AzureSpeaker{tts: tts, cache: cache, player: player, log: log}
}

// Ready reports whether the audio device is open.
func (s *AzureSpeaker) Ready() bool { return s.player.Ready() }

// Speak synthesizes text (or loads it from the cache) and plays it.
func (s *AzureSpeaker) Speak(ctx context.Context, text string) error {
	audio, ok := s.cache.Get(text)
	if !ok {
		var err error
		audio, err = s.tts.Synthesize(ctx, text)
		if err != nil {
			return fmt.Errorf("synthesizing: %w", err)
		}
		s.cache.Put(text, audio)
	}
	if err := s.player.Play(ctx, audio); err != nil {
		return fmt.Errorf("playing: %w", err)
	}
	return nil
}
