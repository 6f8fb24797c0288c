package avatar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vango-go/cortes-live/pkg/core"
	"github.com/vango-go/cortes-live/pkg/core/providers/simli"
)

// TokenSource returns a fresh avatar session token.
type TokenSource func(ctx context.Context) (string, error)

// GatewayTokens fetches session tokens from the gateway's
// POST /api/simli-session, which holds the provider key.
func GatewayTokens(baseURL string, client *http.Client) TokenSource {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	endpoint := strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/api/simli-session"
	return func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return "", core.NewTransportError(err)
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return "", core.NewTransportError(err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return "", core.NewProviderError("simli", &simli.Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))})
		}
		return simli.SessionToken(raw)
	}
}
