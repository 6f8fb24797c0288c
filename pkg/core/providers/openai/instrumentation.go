package openai

import "go.opentelemetry.io/otel"

const scopeName = "github.com/vango-go/cortes-live/pkg/core/providers/openai"

var tracer = otel.Tracer(scopeName)
