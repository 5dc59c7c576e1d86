package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/mdp-host/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"frames", snap.Frames,
					"framing_errors", snap.Framing,
					"decode_errors", snap.Decode,
					"validation_errors", snap.Validation,
					"errors", snap.Errors,
					"commands_sent", snap.Commands,
					"waveform_samples", snap.Waveform,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
