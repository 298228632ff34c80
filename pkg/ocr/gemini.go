// Package ocr reads text from sign crops.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-wayfinder/internal/httpc"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-2.0-flash"

	// Prompt asks for a verbatim transcription so the direction text survives.
	Prompt = "Transcribe all text on this metro sign exactly as written, including arrows. " +
		"Reply with the text only, one line per line on the sign. Reply with nothing if there is no text."
)

// ErrNoAPIKey is returned by NewGemini without a key.
var ErrNoAPIKey = errors.New("ocr: API key required")

// Gemini reads sign text with a Gemini vision model.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
	timeout time.Duration
	quality int
	client  *http.Client
	logger  *slog.Logger
}

// Option configures a Gemini reader.
type Option func(*Gemini)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(g *Gemini) {
		g.apiKey = key
	}
}

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(g *Gemini) {
		g.model = model
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(g *Gemini) {
		g.baseURL = strings.TrimRight(url, "/")
	}
}

// WithTimeout bounds one request.
func WithTimeout(d time.Duration) Option {
	return func(g *Gemini) {
		g.timeout = d
	}
}

// WithJPEGQuality sets the crop encoding quality.
func WithJPEGQuality(q int) Option {
	return func(g *Gemini) {
		g.quality = q
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gemini) {
		g.logger = l
	}
}

// NewGemini creates a reader.
func NewGemini(opts ...Option) (*Gemini, error) {
	g := &Gemini{
		model:   defaultModel,
		baseURL: defaultBaseURL,
		timeout: 10 * time.Second,
		quality: 85,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	g.client = httpc.NewClient(g.timeout)
	g.logger = g.logger.With("component", "ocr.gemini")
	return g, nil
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateRequest struct {
	Contents []struct {
		Parts []part `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// ReadText returns the text on img, or "" on any failure.
func (g *Gemini) ReadText(ctx context.Context, img image.Image) string {
	text, err := g.Read(ctx, img)
	if err != nil {
		g.logger.Warn("sign read failed", "error", err)
		return ""
	}
	return text
}

// Read returns the text on img.
func (g *Gemini) Read(ctx context.Context, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: g.quality}); err != nil {
		return "", fmt.Errorf("ocr: encode crop: %w", err)
	}

	var req generateRequest
	req.Contents = make([]struct {
		Parts []part `json:"parts"`
	}, 1)
	req.Contents[0].Parts = []part{
		{Text: Prompt},
		{InlineData: &inlineData{MimeType: "image/jpeg", Data: base64.StdEncoding.EncodeToString(buf.Bytes())}},
	}
	req.GenerationConfig.Temperature = 0
	req.GenerationConfig.MaxOutputTokens = 200

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("ocr: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ocr: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ocr: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ocr: read response: %w", err)
	}

	var result generateResponse
	if err := json.Unmarshal(data, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("ocr: API error (status %d)", resp.StatusCode)
		}
		return "", fmt.Errorf("ocr: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || result.Error.Message != "" {
		return "", fmt.Errorf("ocr: API error (status %d): %s", resp.StatusCode, result.Error.Message)
	}

	var lines []string
	for _, c := range result.Candidates {
		for _, p := range c.Content.Parts {
			if t := strings.TrimSpace(p.Text); t != "" {
				lines = append(lines, t)
			}
		}
		if len(lines) > 0 {
			break
		}
	}
	text := strings.Join(lines, "\n")
	g.logger.Debug("sign read", "chars", len(text), "latency_ms", time.Since(start).Milliseconds())
	return text, nil
}
