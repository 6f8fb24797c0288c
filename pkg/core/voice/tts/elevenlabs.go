package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const (
	elevenLabsDefaultBaseURL = "https://api.elevenlabs.io/v1"
	elevenLabsDefaultModel   = "eleven_monolingual_v1"
)

// ElevenLabsError is a non-success response from the synthesis API.
type ElevenLabsError struct {
	StatusCode int
	Body       string
}

func (e *ElevenLabsError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("elevenlabs: status %d", e.StatusCode)
	}
	return fmt.Sprintf("elevenlabs: status %d: %s", e.StatusCode, e.Body)
}

type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type ElevenLabsProvider struct {
	apiKey        string
	voiceID       string
	modelID       string
	baseURL       string
	voiceSettings VoiceSettings
	httpClient    *http.Client
}

func NewElevenLabs(apiKey, voiceID string) *ElevenLabsProvider {
	return NewElevenLabsWithClient(apiKey, voiceID, nil)
}

func NewElevenLabsWithClient(apiKey, voiceID string, client *http.Client) *ElevenLabsProvider {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &ElevenLabsProvider{
		apiKey:        strings.TrimSpace(apiKey),
		voiceID:       strings.TrimSpace(voiceID),
		modelID:       elevenLabsDefaultModel,
		baseURL:       elevenLabsDefaultBaseURL,
		voiceSettings: VoiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
		httpClient:    client,
	}
}

func (e *ElevenLabsProvider) WithBaseURL(base string) *ElevenLabsProvider {
	if e == nil {
		return e
	}
	base = strings.TrimSpace(base)
	if base != "" {
		e.baseURL = strings.TrimRight(base, "/")
	}
	return e
}

func (e *ElevenLabsProvider) WithModel(modelID string) *ElevenLabsProvider {
	if e == nil {
		return e
	}
	if modelID = strings.TrimSpace(modelID); modelID != "" {
		e.modelID = modelID
	}
	return e
}

func (e *ElevenLabsProvider) WithVoiceSettings(vs VoiceSettings) *ElevenLabsProvider {
	if e == nil {
		return e
	}
	e.voiceSettings = vs
	return e
}

func (e *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

type elevenLabsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	LanguageCode  string        `json:"language_code,omitempty"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

func (e *ElevenLabsProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	ctx, span := tracer.Start(ctx, "elevenlabs.Synthesize")
	defer span.End()

	voice := strings.TrimSpace(opts.Voice)
	if voice == "" {
		voice = e.voiceID
	}
	if voice == "" {
		return nil, fmt.Errorf("elevenlabs: voice id is required")
	}
	format := opts.Format
	if format == "" {
		format = FormatPCM16k
	}
	span.SetAttributes(
		attribute.String("tts.voice", voice),
		attribute.String("tts.format", format),
		attribute.Int("tts.text_len", len(text)),
	)

	body, err := json.Marshal(elevenLabsRequest{
		Text:          text,
		ModelID:       e.modelID,
		VoiceSettings: e.voiceSettings,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	// output_format is a query parameter, not a body field.
	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s", e.baseURL, url.PathEscape(voice), url.QueryEscape(format))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		perr := &ElevenLabsError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		span.RecordError(perr)
		return nil, perr
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	span.SetAttributes(attribute.Int("tts.audio_bytes", len(audio)))

	contentType := ContentTypePCM
	if !strings.HasPrefix(format, "pcm_") {
		contentType = resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
	}
	return &Synthesis{
		Audio:       audio,
		Format:      format,
		ContentType: contentType,
	}, nil
}
