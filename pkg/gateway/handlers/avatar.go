package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vango-go/cortes-live/pkg/core"
	"github.com/vango-go/cortes-live/pkg/gateway/apierror"
	"github.com/vango-go/cortes-live/pkg/gateway/metrics"
)

// AvatarStarter opens an avatar audio-to-video session.
type AvatarStarter interface {
	StartSession(ctx context.Context) (json.RawMessage, error)
}

// AvatarSessionHandler serves POST /api/simli-session and returns the
// provider's session JSON unchanged.
type AvatarSessionHandler struct {
	Avatar  AvatarStarter
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (h AvatarSessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if h.Avatar == nil {
		writeCoreError(w, r, http.StatusServiceUnavailable, core.NewConfigError("SIMLI_API_KEY", "avatar mode is not configured"))
		return
	}

	reqID := requestIDFromContext(r)
	raw, err := h.Avatar.StartSession(r.Context())
	if err != nil {
		ce, status := apierror.FromError(err, reqID)
		h.Metrics.RecordProviderError("simli", string(ce.Type))
		if h.Logger != nil {
			h.Logger.Warn("avatar session failed", "request_id", reqID, "error", err)
		}
		apierror.WriteError(w, status, ce)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
