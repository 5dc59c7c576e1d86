// Package metrics exposes Prometheus counters/gauges for the MDP driver,
// plus cheap atomic local mirrors for in-process snapshotting without going
// through the Prometheus registry.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/mdp-host/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Error label constants (stable values to bound label cardinality): the
// Framing*/Decode*/Validation* kinds label their own error vectors, the Err*
// values label the mdp_errors_total vector.
const (
	FramingBadMagic         = "framing_bad_magic"
	FramingShortSize        = "framing_short_size"
	FramingChecksumMismatch = "framing_checksum_mismatch"
	FramingOversizeBuffer   = "framing_oversize_buffer"

	DecodeUnknownType           = "decode_unknown_type"
	DecodePayloadTooShort       = "decode_payload_too_short"
	DecodePayloadLengthMismatch = "decode_payload_length_mismatch"

	ValidationOutOfRange     = "validation_out_of_range"
	ValidationUnknownMachine = "validation_unknown_machine"

	ErrSerialRead         = "serial_read"
	ErrSerialWrite        = "serial_write"
	ErrSerialOverflow     = "serial_tx_overflow"
	ErrTelemetryWrite     = "telemetry_write"
	ErrTelemetryHandshake = "telemetry_handshake"
	ErrCommandTimeout     = "command_timeout"
)

var (
	FramesDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mdp_frames_decoded_total",
		Help: "Total wire frames that passed checksum validation and decoded into a packet.",
	})
	PacketsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdp_packets_decoded_total",
		Help: "Total packets successfully decoded, by type.",
	}, []string{"type"})
	FramingErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdp_framing_errors_total",
		Help: "Total frame-scanner resync errors, by kind.",
	}, []string{"kind"})
	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdp_decode_errors_total",
		Help: "Total packet decode errors, by kind.",
	}, []string{"kind"})
	ValidationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdp_validation_errors_total",
		Help: "Total SYNTHESIZE record validation failures, by kind.",
	}, []string{"kind"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdp_errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	CommandsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mdp_commands_sent_total",
		Help: "Total outbound commands encoded and sent, by type.",
	}, []string{"type"})
	ChannelsOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mdp_channels_online",
		Help: "Current number of channel slots reporting online.",
	})
	WaveformSamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mdp_waveform_samples_total",
		Help: "Total waveform samples ingested across all channels.",
	})
	TelemetryClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mdp_telemetry_clients",
		Help: "Current number of connected telemetry relay observers.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mdp_build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

func IncFramingError(kind string) {
	FramingErrors.WithLabelValues(kind).Inc()
	atomic.AddUint64(&localFraming, 1)
}

func IncDecodeError(kind string) {
	DecodeErrors.WithLabelValues(kind).Inc()
	atomic.AddUint64(&localDecode, 1)
}

func IncValidationError(kind string) {
	ValidationErrors.WithLabelValues(kind).Inc()
	atomic.AddUint64(&localValidation, 1)
}

func IncError(where string) {
	Errors.WithLabelValues(where).Inc()
	atomic.AddUint64(&localErrors, 1)
}

func IncPacketDecoded(typeName string) {
	FramesDecoded.Inc()
	PacketsDecoded.WithLabelValues(typeName).Inc()
	atomic.AddUint64(&localFrames, 1)
}

func IncCommandSent(typeName string) {
	CommandsSent.WithLabelValues(typeName).Inc()
	atomic.AddUint64(&localCommands, 1)
}

func AddWaveformSamples(n int) {
	WaveformSamples.Add(float64(n))
	atomic.AddUint64(&localWaveform, uint64(n))
}

func SetChannelsOnline(n int) { ChannelsOnline.Set(float64(n)) }

func SetTelemetryClients(n int) { TelemetryClients.Set(float64(n)) }

// Local mirrored counters for cheap in-process logging snapshots.
var (
	localFrames     uint64
	localFraming    uint64
	localDecode     uint64
	localValidation uint64
	localErrors     uint64
	localCommands   uint64
	localWaveform   uint64
)

// Snapshot is a cheap copy of the local counters.
type Snapshot struct {
	Frames     uint64
	Framing    uint64
	Decode     uint64
	Validation uint64
	Errors     uint64
	Commands   uint64
	Waveform   uint64
}

func Snap() Snapshot {
	return Snapshot{
		Frames:     atomic.LoadUint64(&localFrames),
		Framing:    atomic.LoadUint64(&localFraming),
		Decode:     atomic.LoadUint64(&localDecode),
		Validation: atomic.LoadUint64(&localValidation),
		Errors:     atomic.LoadUint64(&localErrors),
		Commands:   atomic.LoadUint64(&localCommands),
		Waveform:   atomic.LoadUint64(&localWaveform),
	}
}

// InitBuildInfo sets the build info gauge and pre-registers common error
// label series so the first real error doesn't pay registration latency.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrSerialRead, ErrSerialWrite, ErrSerialOverflow,
		ErrTelemetryWrite, ErrTelemetryHandshake, ErrCommandTimeout,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}
