package apierror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vango-go/cortes-live/pkg/core"
	"github.com/vango-go/cortes-live/pkg/core/providers/openai"
	"github.com/vango-go/cortes-live/pkg/core/providers/simli"
	"github.com/vango-go/cortes-live/pkg/core/voice/tts"
)

type Envelope struct {
	Error *core.Error `json:"error"`
}

func FromError(err error, requestID string) (*core.Error, int) {
	if err == nil {
		return nil, http.StatusOK
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &core.Error{
			Type:      core.ErrProvider,
			Message:   "provider timeout",
			Code:      "timeout",
			RequestID: requestID,
		}, http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   "request cancelled",
			Code:      "cancelled",
			RequestID: requestID,
		}, http.StatusRequestTimeout
	}

	var coreErr *core.Error
	if errors.As(err, &coreErr) && coreErr != nil {
		out := *coreErr
		out.RequestID = requestID
		return &out, statusFromType(coreErr.Type)
	}

	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) && openaiErr != nil {
		t := core.ErrProvider
		switch openaiErr.Type {
		case openai.ErrRateLimit:
			t = core.ErrRateLimit
		case openai.ErrOverloaded:
			t = core.ErrOverloaded
		}
		return &core.Error{
			Type:          t,
			Message:       openaiErr.Message,
			Code:          openaiErr.Code,
			Param:         openaiErr.Param,
			RequestID:     requestID,
			ProviderError: openaiErr.ProviderError,
			RetryAfter:    openaiErr.RetryAfter,
		}, statusFromType(t)
	}

	var ttsErr *tts.ElevenLabsError
	if errors.As(err, &ttsErr) && ttsErr != nil {
		return &core.Error{
			Type:      core.ErrProvider,
			Message:   fmt.Sprintf("ElevenLabs error: %d", ttsErr.StatusCode),
			Code:      "tts_failed",
			RequestID: requestID,
		}, http.StatusBadGateway
	}

	var simliErr *simli.Error
	if errors.As(err, &simliErr) && simliErr != nil {
		return &core.Error{
			Type:      core.ErrProvider,
			Message:   fmt.Sprintf("avatar session error: %d", simliErr.StatusCode),
			Code:      "avatar_failed",
			RequestID: requestID,
		}, http.StatusBadGateway
	}

	// Unknown errors: do not leak details.
	return &core.Error{
		Type:      core.ErrAPI,
		Message:   "internal error",
		RequestID: requestID,
	}, http.StatusInternalServerError
}

// Write maps err and writes the JSON envelope.
func Write(w http.ResponseWriter, err error, requestID string) {
	ce, status := FromError(err, requestID)
	WriteError(w, status, ce)
}

func WriteError(w http.ResponseWriter, status int, ce *core.Error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Error: ce})
}

func statusFromType(t core.ErrorType) int {
	switch t {
	case core.ErrInvalidRequest:
		return http.StatusBadRequest
	case core.ErrRateLimit:
		return http.StatusTooManyRequests
	case core.ErrOverloaded:
		return 529
	case core.ErrProvider, core.ErrAPI:
		return http.StatusBadGateway
	case core.ErrTransport:
		return http.StatusBadGateway
	case core.ErrConfig:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
