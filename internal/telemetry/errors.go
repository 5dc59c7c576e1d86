package telemetry

import (
	"errors"

	"github.com/kstaniek/mdp-host/internal/metrics"
)

// Sentinel errors used for wrapping so callers can classify via errors.Is.
var (
	ErrListen    = errors.New("listen")
	ErrAccept    = errors.New("accept")
	ErrHandshake = errors.New("handshake")
	ErrConnWrite = errors.New("conn_write")
	ErrContext   = errors.New("context_cancelled")
)

func mapErrToMetric(err error) string {
	switch {
	case errors.Is(err, ErrConnWrite):
		return metrics.ErrTelemetryWrite
	case errors.Is(err, ErrHandshake):
		return metrics.ErrTelemetryHandshake
	default:
		return "telemetry_other"
	}
}
