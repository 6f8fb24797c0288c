package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/cortes-live/pkg/gateway/config"
)

// ConfigHandler serves GET /api/config: the public avatar settings the
// browser needs. The provider master key is never served; avatarApiKey is
// the separately configured client key and stays empty without one.
type ConfigHandler struct {
	Config config.Config
}

type configResponse struct {
	AvatarAPIKey string `json:"avatarApiKey"`
	AvatarFaceID string `json:"avatarFaceId"`
}

func (h ConfigHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	resp := configResponse{}
	if h.Config.AvatarEnabled() {
		if h.Config.SimliClientKey != h.Config.SimliAPIKey {
			resp.AvatarAPIKey = h.Config.SimliClientKey
		}
		resp.AvatarFaceID = h.Config.SimliFaceID
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(resp)
}
