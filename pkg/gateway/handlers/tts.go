package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/vango-go/cortes-live/pkg/core"
	"github.com/vango-go/cortes-live/pkg/core/types"
	"github.com/vango-go/cortes-live/pkg/core/voice/tts"
	"github.com/vango-go/cortes-live/pkg/gateway/apierror"
	"github.com/vango-go/cortes-live/pkg/gateway/config"
	"github.com/vango-go/cortes-live/pkg/gateway/metrics"
)

// TTSHandler serves POST /api/tts. The body is {"text","lang"} and the
// response is raw PCM16 mono 16 kHz.
type TTSHandler struct {
	Config  config.Config
	TTS     tts.Provider
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type ttsRequest struct {
	Text string `json:"text"`
	Lang string `json:"lang,omitempty"`
}

func (h TTSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	reqID := requestIDFromContext(r)

	if h.Config.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxBodyBytes)
	}
	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeCoreError(w, r, http.StatusRequestEntityTooLarge, &core.Error{Type: core.ErrInvalidRequest, Message: "request body too large", Code: "body_too_large"})
			return
		}
		writeCoreError(w, r, http.StatusBadRequest, core.NewInvalidRequestError("invalid JSON body"))
		return
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeCoreError(w, r, http.StatusBadRequest, core.NewInvalidRequestErrorWithParam("No text provided", "text"))
		return
	}
	if h.Config.MaxTTSTextBytes > 0 && len(text) > h.Config.MaxTTSTextBytes {
		writeCoreError(w, r, http.StatusBadRequest, core.NewInvalidRequestErrorWithParam("text is too long", "text"))
		return
	}
	if h.TTS == nil {
		writeCoreError(w, r, http.StatusServiceUnavailable, core.NewConfigError("ELEVENLABS_API_KEY", "speech synthesis is not configured"))
		return
	}

	lang := types.LanguageOr(req.Lang, types.DefaultLanguage)
	out, err := h.TTS.Synthesize(r.Context(), text, tts.SynthesizeOptions{
		Voice:    h.Config.VoiceID,
		Language: string(lang),
		Format:   tts.FormatPCM16k,
	})
	if err != nil {
		ce, status := apierror.FromError(err, reqID)
		h.Metrics.RecordProviderError(h.TTS.Name(), string(ce.Type))
		if h.Logger != nil {
			h.Logger.Warn("tts synthesis failed", "request_id", reqID, "lang", lang, "error", err)
		}
		apierror.WriteError(w, status, ce)
		return
	}

	contentType := out.ContentType
	if contentType == "" {
		contentType = tts.ContentTypePCM
	}
	h.Metrics.RecordTTSAudio(len(out.Audio))

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Audio)))
	w.Header().Set("X-Audio-Bytes", strconv.Itoa(len(out.Audio)))
	w.Header().Set("X-Audio-Duration-Ms", strconv.FormatInt(tts.PCMDuration(len(out.Audio)).Milliseconds(), 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Audio)
}
