// Package tts provides text-to-speech synthesis.
package tts

import (
	"context"
	"time"
)

// Provider is the interface for text-to-speech services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to a complete audio payload.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)
}

const (
	FormatPCM16k = "pcm_16000"

	// ContentTypePCM is the media type served for raw PCM16 payloads.
	ContentTypePCM = "audio/pcm"

	// PCMSampleRate, PCMChannels and PCMBytesPerSample describe FormatPCM16k.
	PCMSampleRate     = 16000
	PCMChannels       = 1
	PCMBytesPerSample = 2

	// PCMBytesPerSecond is the byte rate of FormatPCM16k.
	PCMBytesPerSecond = PCMSampleRate * PCMChannels * PCMBytesPerSample
)

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice    string // Voice identifier; empty uses the provider default
	Language string // Language code
	Format   string // Output format; empty means FormatPCM16k
}

// Synthesis is the result of synthesis.
type Synthesis struct {
	Audio       []byte
	Format      string
	ContentType string
}

// PCMDuration estimates the playback length of a PCM16 mono 16kHz payload.
func PCMDuration(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / PCMBytesPerSecond
}
