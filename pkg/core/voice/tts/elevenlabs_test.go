package tts

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestElevenLabsSynthesize_PCMRequestShape(t *testing.T) {
	var gotPath, gotQuery, gotKey string
	var gotBody elevenLabsRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("output_format")
		gotKey = r.Header.Get("xi-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(make([]byte, 3200))
	}))
	defer server.Close()

	p := NewElevenLabsWithClient(" el-key ", "voice-123", server.Client()).WithBaseURL(server.URL)
	syn, err := p.Synthesize(t.Context(), "Hello", SynthesizeOptions{Language: "es"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(syn.Audio) != 3200 {
		t.Fatalf("audio bytes=%d", len(syn.Audio))
	}
	if syn.ContentType != ContentTypePCM || syn.Format != FormatPCM16k {
		t.Fatalf("synthesis=%+v", syn)
	}
	if gotPath != "/text-to-speech/voice-123" {
		t.Fatalf("path=%q", gotPath)
	}
	if gotQuery != FormatPCM16k {
		t.Fatalf("output_format=%q", gotQuery)
	}
	if gotKey != "el-key" {
		t.Fatalf("xi-api-key=%q", gotKey)
	}
	if gotBody.Text != "Hello" || gotBody.ModelID != elevenLabsDefaultModel {
		t.Fatalf("body=%+v", gotBody)
	}
	if gotBody.VoiceSettings.Stability != 0.5 || gotBody.VoiceSettings.SimilarityBoost != 0.75 {
		t.Fatalf("voice_settings=%+v", gotBody.VoiceSettings)
	}
}

func TestElevenLabsSynthesize_NonSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid api key"}`))
	}))
	defer server.Close()

	_, err := NewElevenLabsWithClient("bad", "v", server.Client()).WithBaseURL(server.URL).Synthesize(t.Context(), "Hello", SynthesizeOptions{})
	var perr *ElevenLabsError
	if !errors.As(err, &perr) {
		t.Fatalf("err=%T %v, want *ElevenLabsError", err, err)
	}
	if perr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d", perr.StatusCode)
	}
}

func TestElevenLabsSynthesize_RequiresVoice(t *testing.T) {
	if _, err := NewElevenLabs("k", "").Synthesize(t.Context(), "Hello", SynthesizeOptions{}); err == nil {
		t.Fatalf("expected error without voice id")
	}
}

func TestPCMDuration(t *testing.T) {
	if got := PCMDuration(32000); got != time.Second {
		t.Fatalf("PCMDuration(32000)=%v", got)
	}
	if got := PCMDuration(48000); got != 1500*time.Millisecond {
		t.Fatalf("PCMDuration(48000)=%v", got)
	}
	if got := PCMDuration(0); got != 0 {
		t.Fatalf("PCMDuration(0)=%v", got)
	}
}
