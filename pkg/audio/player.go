// Package audio plays synthesized speech through a local player program.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// ErrEmptyClip is returned when there is nothing to play.
var ErrEmptyClip = errors.New("audio: empty clip")

// CommandPlayer pipes each clip to a player program's stdin and waits for it
// to exit. Clips never overlap.
type CommandPlayer struct {
	name    string
	argsFor func(encoding string) []string
	logger  *slog.Logger

	mu sync.Mutex
}

// NewCommandPlayer returns a player running name with the arguments argsFor
// returns for each clip's encoding.
func NewCommandPlayer(name string, argsFor func(encoding string) []string, logger *slog.Logger) *CommandPlayer {
	if argsFor == nil {
		argsFor = func(string) []string { return nil }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandPlayer{
		name:    name,
		argsFor: argsFor,
		logger:  logger.With("component", "audio.player"),
	}
}

// NewFFPlay returns a player using ffplay without a window.
func NewFFPlay(logger *slog.Logger) *CommandPlayer {
	return NewCommandPlayer("ffplay", FFPlayArgs, logger)
}

// FFPlayArgs builds ffplay arguments reading a clip from stdin. Raw PCM
// encodings such as "pcm_24000" carry their sample rate in the name.
func FFPlayArgs(encoding string) []string {
	args := []string{"-nodisp", "-autoexit", "-loglevel", "error"}
	if rate, ok := strings.CutPrefix(encoding, "pcm_"); ok {
		if _, err := strconv.Atoi(rate); err == nil {
			args = append(args, "-f", "s16le", "-ar", rate, "-ac", "1")
		}
	}
	return append(args, "-i", "pipe:0")
}

// Play blocks until the clip has been played or ctx is done.
func (p *CommandPlayer) Play(ctx context.Context, clip []byte, encoding string) error {
	if len(clip) == 0 {
		return ErrEmptyClip
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.name, p.argsFor(encoding)...)
	cmd.Stdin = bytes.NewReader(clip)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("audio: %s: %w: %s", p.name, err, strings.TrimSpace(stderr.String()))
	}
	p.logger.Debug("clip played", "bytes", len(clip), "encoding", encoding)
	return nil
}
