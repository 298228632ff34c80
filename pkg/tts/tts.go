// Package tts turns guidance phrases into audio.
//
// Providers synthesize a complete clip for a short phrase; Speaker drives a
// provider and an audio player and reports when each phrase has finished so
// the speech arbiter can reopen the microphone.
//
//	provider, _ := tts.NewOpenAI(tts.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	speaker := tts.NewSpeaker(provider, player, func(id string, err error) {
//	    session.SpeechDone(id)
//	})
package tts

import (
	"context"
	"time"
)

// Provider synthesizes speech.
type Provider interface {
	// Synthesize converts text to a complete audio clip.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult is a synthesized clip.
type AudioResult struct {
	Audio     []byte
	Format    AudioFormat
	Duration  time.Duration // estimated playback time, 0 if unknown
	CharCount int
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int // PCM only
}

// Encoding is an audio container or codec.
type Encoding string

const (
	EncodingMP3   Encoding = "mp3"
	EncodingWAV   Encoding = "wav"
	EncodingOpus  Encoding = "opus"
	EncodingPCM24 Encoding = "pcm_24000" // raw 24kHz mono PCM16
)

// SampleRateFromEncoding returns the usual sample rate of an encoding.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingMP3:
		return 44100
	case EncodingWAV:
		return 22050
	case EncodingOpus:
		return 48000
	default:
		return 24000
	}
}
