package simli

import "go.opentelemetry.io/otel"

const scopeName = "github.com/vango-go/cortes-live/pkg/core/providers/simli"

var tracer = otel.Tracer(scopeName)
