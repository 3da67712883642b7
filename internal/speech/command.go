package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hammamikhairi/smartnotifier/internal/domain"
	"github.com/hammamikhairi/smartnotifier/internal/logger"
)

// DefaultCommand is the TTS program used by CommandSpeaker.
const DefaultCommand = "espeak-ng"

var (
	_ domain.Speaker = (*CommandSpeaker)(nil)
	_ Readier        = (*CommandSpeaker)(nil)
)

// CommandSpeaker speaks by running an external program with the text as
// its last argument, after a "--" so text starting with a dash is never
// read as an option.
type CommandSpeaker struct {
	name string
	args []string
	log  *logger.Logger
}

// NewCommandSpeaker creates a speaker for the given command line. An empty
// command line falls back to DefaultCommand.
func NewCommandSpeaker(command []string, log *logger.Logger) *CommandSpeaker {
	if len(command) == 0 {
		command = []string{DefaultCommand}
	}
	return &CommandSpeaker{
		name: command[0],
		args: append([]string(nil), command[1:]...),
		log:  log,
	}
}

// Ready reports whether the program can be found.
func (s *CommandSpeaker) Ready() bool {
	_, err := exec.LookPath(s.name)
	return err == nil
}

// Speak runs the program and waits for it to exit.
func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	args := append(append([]string(nil), s.args...), "--", text)
	cmd := exec.CommandContext(ctx, s.name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	s.log.Debug("command speaker: %s %s", s.name, strings.Join(s.args, " "))
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", s.name, err, msg)
		}
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return nil
}
