package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vango-go/cortes-live/pkg/core"
	"github.com/vango-go/cortes-live/pkg/core/types"
)

// Synthesizer turns text into PCM16 mono 16 kHz audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, lang types.Language) ([]byte, error)
}

// HTTPSynthesizer calls the gateway's POST /api/tts.
type HTTPSynthesizer struct {
	endpoint string
	client   *http.Client
}

func NewHTTPSynthesizer(baseURL string, client *http.Client) *HTTPSynthesizer {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &HTTPSynthesizer{
		endpoint: strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/api/tts",
		client:   client,
	}
}

type synthesizeRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang,omitempty"`
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string, lang types.Language) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text, Lang: string(lang)})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, core.NewTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, decodeErrorEnvelope(resp.StatusCode, raw)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewTransportError(fmt.Errorf("read audio: %w", err))
	}
	return audio, nil
}

func decodeErrorEnvelope(status int, raw []byte) error {
	var env struct {
		Error *core.Error `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		if env.Error.Type == "" {
			env.Error.Type = core.ErrProvider
		}
		return env.Error
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &core.Error{
		Type:    core.ErrProvider,
		Message: fmt.Sprintf("tts: status %d: %s", status, msg),
	}
}
