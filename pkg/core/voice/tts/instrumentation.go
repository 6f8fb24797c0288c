package tts

import "go.opentelemetry.io/otel"

const scopeName = "github.com/vango-go/cortes-live/pkg/core/voice/tts"

var tracer = otel.Tracer(scopeName)
