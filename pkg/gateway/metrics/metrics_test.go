package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/api/tts", 200, time.Second)
	m.RecordLiveSessionStart()
	m.RecordLiveSessionEnd("closed", time.Second)
	m.RecordTurn("ok", time.Second)
	m.RecordLanguageChange("es")
	m.RecordTTSAudio(10)
	m.RecordProviderError("openai", "provider_error")
	if m.Registry() != nil {
		t.Fatalf("nil metrics registry should be nil")
	}
}

func TestMetrics_HandlerExposesCounters(t *testing.T) {
	m := New("cortes_test")
	m.RecordRequest("/api/tts", 200, 20*time.Millisecond)
	m.RecordLiveSessionStart()
	m.RecordTurn("fallback", 300*time.Millisecond)
	m.RecordLanguageChange("pt")
	m.RecordTTSAudio(32000)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		`cortes_test_http_requests_total{path="/api/tts",status="200"} 1`,
		`cortes_test_live_sessions_active 1`,
		`cortes_test_chat_turns_total{outcome="fallback"} 1`,
		`cortes_test_language_changes_total{lang="pt"} 1`,
		`cortes_test_tts_audio_bytes_total 32000`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q\n%s", want, text)
		}
	}
}
