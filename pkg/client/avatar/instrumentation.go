package avatar

import "go.opentelemetry.io/otel"

const scopeName = "github.com/vango-go/cortes-live/pkg/client/avatar"

var tracer = otel.Tracer(scopeName)
