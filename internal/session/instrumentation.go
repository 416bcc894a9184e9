package session

import "go.opentelemetry.io/otel"

const scopeName = "github.com/markis/coach/internal/session"

var tracer = otel.Tracer(scopeName)
