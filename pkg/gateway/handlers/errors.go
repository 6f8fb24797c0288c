package handlers

import (
	"net/http"

	"github.com/vango-go/cortes-live/pkg/core"
	"github.com/vango-go/cortes-live/pkg/gateway/apierror"
	"github.com/vango-go/cortes-live/pkg/gateway/mw"
)

func requestIDFromContext(r *http.Request) string {
	reqID, _ := mw.RequestIDFrom(r.Context())
	return reqID
}

func writeCoreError(w http.ResponseWriter, r *http.Request, status int, ce *core.Error) {
	if ce != nil && ce.RequestID == "" {
		ce.RequestID = requestIDFromContext(r)
	}
	apierror.WriteError(w, status, ce)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	writeCoreError(w, r, http.StatusMethodNotAllowed, &core.Error{
		Type:    core.ErrInvalidRequest,
		Message: "method not allowed",
		Code:    "method_not_allowed",
	})
}

type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeCoreError(w, r, http.StatusNotFound, &core.Error{
		Type:    core.ErrInvalidRequest,
		Message: "not found",
		Code:    "not_found",
	})
}
