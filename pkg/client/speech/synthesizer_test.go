package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vango-go/cortes-live/pkg/core"
	"github.com/vango-go/cortes-live/pkg/core/types"
)

func TestHTTPSynthesizer_ReturnsPCM(t *testing.T) {
	var got synthesizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/tts" {
			t.Errorf("request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/pcm")
		_, _ = w.Write([]byte{1, 2, 3, 4})
	}))
	defer srv.Close()

	s := NewHTTPSynthesizer(srv.URL+"/", srv.Client())
	pcm, err := s.Synthesize(context.Background(), "Olá", types.LangPortuguese)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(pcm) != 4 || got.Text != "Olá" || got.Lang != "pt" {
		t.Fatalf("pcm=%v req=%+v", pcm, got)
	}
}

func TestHTTPSynthesizer_DecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"type":"provider_error","message":"ElevenLabs error: 429","request_id":"req_1"}}`))
	}))
	defer srv.Close()

	_, err := NewHTTPSynthesizer(srv.URL, srv.Client()).Synthesize(context.Background(), "hi", types.LangEnglish)
	ce, ok := err.(*core.Error)
	if !ok {
		t.Fatalf("err=%T %v", err, err)
	}
	if ce.Type != core.ErrProvider || ce.Message != "ElevenLabs error: 429" || ce.RequestID != "req_1" {
		t.Fatalf("error=%+v", ce)
	}
}

func TestHTTPSynthesizer_NonJSONFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPSynthesizer(srv.URL, srv.Client()).Synthesize(context.Background(), "hi", types.LangEnglish)
	if core.TypeOf(err) != core.ErrProvider {
		t.Fatalf("err=%v", err)
	}
}
