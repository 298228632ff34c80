package app

import (
	"context"
	"image"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-wayfinder/internal/config"
	"github.com/teslashibe/go-wayfinder/pkg/ocr"
	"github.com/teslashibe/go-wayfinder/pkg/tts"
)

type fakePlayer struct {
	mu    sync.Mutex
	clips int
}

func (p *fakePlayer) Play(context.Context, []byte, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clips++
	return nil
}

func (p *fakePlayer) Clips() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clips
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Port = "0"
	cfg.Model.DisableCamera = true
	cfg.Model.Labels = filepath.Join(t.TempDir(), "missing-labels.txt")
	return cfg
}

func TestNew_RequiresValidConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	cfg := config.Default()
	cfg.Port = ""
	_, err = New(cfg)
	require.Error(t, err)
}

func TestInit_DegradesMissingFiles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog = filepath.Join(t.TempDir(), "missing-catalog.yaml")

	a, err := New(cfg, WithProvider(tts.NewMock()), WithPlayer(&fakePlayer{}))
	require.NoError(t, err)
	require.NoError(t, a.Init())

	notice := a.Session().Snapshot().Notice
	assert.Contains(t, notice, NoticeNoLabels)
	assert.Contains(t, notice, NoticeNoCommands)
	assert.Nil(t, a.capture, "camera disabled")
}

func TestInit_NoSpeechProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.TTS.EspeakVoice = ""
	cfg.TTS.OpenAIKey = ""

	a, err := New(cfg, WithPlayer(&fakePlayer{}))
	require.NoError(t, err)
	assert.ErrorIs(t, a.Init(), tts.ErrProviderUnavailable)
}

func TestInit_ReaderWithoutKeyIsSilent(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, WithProvider(tts.NewMock()), WithPlayer(&fakePlayer{}))
	require.NoError(t, err)
	require.NoError(t, a.Init())

	assert.Equal(t, "", a.reader.ReadText(context.Background(), image.NewRGBA(image.Rect(0, 0, 8, 8))))
}

func TestRun_UtteranceIsSpoken(t *testing.T) {
	cfg := testConfig(t)
	provider := tts.NewMock()
	player := &fakePlayer{}
	reader := ocr.NewMock("")

	a, err := New(cfg, WithProvider(provider), WithPlayer(player), WithReader(reader))
	require.NoError(t, err)
	require.NoError(t, a.Init())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.NoError(t, a.Session().SubmitUtterance("estoy en franklin"))

	require.Eventually(t, func() bool {
		return a.Session().Snapshot().Origin == "franklin"
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return player.Clips() == 1 && len(provider.Phrases()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return !a.Session().Snapshot().Speaking
	}, 2*time.Second, 10*time.Millisecond, "playback completion reaches the session")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
	a.Shutdown()
}
