// Package simli bootstraps talking-avatar sessions with the Simli API.
package simli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// DefaultBaseURL is the Simli REST endpoint.
	DefaultBaseURL = "https://api.simli.ai"

	// DefaultSignalingURL is the WebRTC signaling websocket.
	DefaultSignalingURL = "wss://api.simli.ai/StartWebRTCSession"
)

// Error is a non-success response from the avatar API.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("simli: status %d: %s", e.StatusCode, e.Message)
}

// Client starts avatar sessions on behalf of browser clients. The master
// API key never leaves the server; callers receive only the session token.
type Client struct {
	apiKey     string
	faceID     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the REST endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimSpace(u); u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func New(apiKey, faceID string, opts ...Option) *Client {
	c := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		faceID:     strings.TrimSpace(faceID),
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FaceID returns the configured avatar face.
func (c *Client) FaceID() string { return c.faceID }

type startSessionRequest struct {
	APIKey        string `json:"apiKey"`
	FaceID        string `json:"faceId"`
	SyncAudio     bool   `json:"syncAudio"`
	HandleSilence bool   `json:"handleSilence"`
}

// StartSession requests an audio-to-video session and returns the
// provider's JSON response verbatim. The body carries the session_token the
// WebRTC signaling step needs.
func (c *Client) StartSession(ctx context.Context) (json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "simli.StartSession")
	defer span.End()

	body, err := json.Marshal(startSessionRequest{
		APIKey:        c.apiKey,
		FaceID:        c.faceID,
		SyncAudio:     true,
		HandleSilence: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/startAudioToVideoSession", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		span.RecordError(perr)
		return nil, perr
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("decode response: invalid json")
	}
	return json.RawMessage(raw), nil
}

// SessionToken extracts session_token from a StartSession response.
func SessionToken(raw json.RawMessage) (string, error) {
	var body struct {
		SessionToken string `json:"session_token"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", fmt.Errorf("decode session: %w", err)
	}
	if body.SessionToken == "" {
		return "", fmt.Errorf("session response has no session_token")
	}
	return body.SessionToken, nil
}
