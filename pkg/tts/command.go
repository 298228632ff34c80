package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const providerCommand = "command"

// Command synthesizes speech with a local program such as espeak-ng. The
// phrase is written to stdin and audio is read from stdout.
type Command struct {
	name     string
	args     []string
	encoding Encoding
}

// NewEspeak returns a Command provider for espeak-ng writing WAV to stdout.
func NewEspeak(voice string) *Command {
	if voice == "" {
		voice = "en"
	}
	return NewCommand(EncodingWAV, "espeak-ng", "-v", voice, "--stdin", "--stdout")
}

// NewCommand returns a provider running name with args for every phrase.
func NewCommand(enc Encoding, name string, args ...string) *Command {
	return &Command{name: name, args: args, encoding: enc}
}

// Synthesize runs the command for text.
func (c *Command) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, opError(providerCommand, opSynthesize, ErrEmptyText)
	}
	start := time.Now()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	cmd.Stdin = strings.NewReader(text)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, opError(providerCommand, opSynthesize, fmt.Errorf("%s: %w: %s", c.name, err, strings.TrimSpace(stderr.String())))
	}

	return &AudioResult{
		Audio: stdout.Bytes(),
		Format: AudioFormat{
			Encoding:   c.encoding,
			SampleRate: SampleRateFromEncoding(c.encoding),
			Channels:   1,
		},
		CharCount: len(text),
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Health checks that the program is installed.
func (c *Command) Health(context.Context) error {
	if _, err := exec.LookPath(c.name); err != nil {
		return opError(providerCommand, opHealth, err)
	}
	return nil
}

// Close is a no-op.
func (c *Command) Close() error {
	return nil
}

var _ Provider = (*Command)(nil)
