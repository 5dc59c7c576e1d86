package main

import (
	"context"

	"github.com/kstaniek/mdp-host/internal/telemetry"
)

// startMDNS advertises the telemetry relay via mDNS; a no-op if disabled.
func startMDNS(ctx context.Context, cfg *appConfig, port int) (func(), error) {
	if !cfg.mdnsEnable {
		return func() {}, nil
	}
	meta := []string{
		"version=" + version,
		"commit=" + commit,
	}
	return telemetry.AdvertiseMDNS(ctx, cfg.mdnsName, port, meta)
}
