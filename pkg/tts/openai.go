package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-wayfinder/internal/httpc"
)

const (
	openAIBaseURL  = "https://api.openai.com/v1"
	providerOpenAI = "openai"

	opSynthesize = "synthesize"
	opHealth     = "health"
)

// OpenAI voices and models.
const (
	VoiceAlloy   = "alloy"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"

	ModelTTS1   = "tts-1"
	ModelTTS1HD = "tts-1-hd"
)

// OpenAI implements Provider with the OpenAI speech endpoint.
type OpenAI struct {
	config  Config
	client  *http.Client
	baseURL string
	logger  *slog.Logger
}

type openAIRequest struct {
	Model          string  `json:"model"`
	Voice          string  `json:"voice"`
	Input          string  `json:"input"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := newConfig(append([]Option{WithVoice(VoiceNova), WithModel(ModelTTS1)}, opts...)...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Voice == "" {
		cfg.Voice = VoiceNova
	}
	if cfg.Model == "" {
		cfg.Model = ModelTTS1
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = openAIBaseURL
	}

	return &OpenAI{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		baseURL: baseURL,
		logger:  cfg.Logger.With("component", "tts.openai"),
	}, nil
}

// Synthesize converts text to audio.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, opError(providerOpenAI, opSynthesize, ErrEmptyText)
	}
	start := time.Now()

	body, err := json.Marshal(openAIRequest{
		Model:          o.config.Model,
		Voice:          o.config.Voice,
		Input:          text,
		ResponseFormat: string(o.config.Format),
		Speed:          o.config.Speed,
	})
	if err != nil {
		return nil, opError(providerOpenAI, opSynthesize, fmt.Errorf("marshal payload: %w", err))
	}

	resp, err := o.send(ctx, http.MethodPost, o.baseURL+"/audio/speech", body)
	if err != nil {
		return nil, opError(providerOpenAI, opSynthesize, err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, opError(providerOpenAI, opSynthesize, fmt.Errorf("read response: %w", err))
	}
	latency := time.Since(start).Milliseconds()

	o.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", o.config.Voice,
	)

	enc := o.config.Format
	return &AudioResult{
		Audio: audio,
		Format: AudioFormat{
			Encoding:   enc,
			SampleRate: SampleRateFromEncoding(enc),
			Channels:   1,
		},
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Health checks API connectivity and the key.
func (o *OpenAI) Health(ctx context.Context) error {
	resp, err := o.send(ctx, http.MethodGet, o.baseURL+"/models", nil)
	if err != nil {
		return opError(providerOpenAI, opHealth, err)
	}
	return resp.Body.Close()
}

// Close releases idle connections.
func (o *OpenAI) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

func (o *OpenAI) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+o.config.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return o.client.Do(req)
}

// send performs the request, retrying throttled and failed attempts. Only a
// 200 response is returned; anything else becomes an *APIError.
func (o *OpenAI) send(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= o.config.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.config.wait(attempt)):
			}
		}

		resp, err := o.do(ctx, method, url, body)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}
		apiErr := parseOpenAIError(resp)
		resp.Body.Close()
		if !apiErr.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		o.logger.Warn("retrying request", "attempt", attempt+1, "status", resp.StatusCode)
	}
	return nil, lastErr
}

func parseOpenAIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	message := strings.TrimSpace(string(body))
	code := ""
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
		code = errResp.Error.Code
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Code:       code,
		Provider:   providerOpenAI,
	}
}

var _ Provider = (*OpenAI)(nil)
