package speech

import "go.opentelemetry.io/otel"

const scopeName = "github.com/vango-go/cortes-live/pkg/client/speech"

var tracer = otel.Tracer(scopeName)
