package main

import (
	"os"
	"testing"
	"time"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := baseConfig()

	os.Setenv("MDPD_BAUD", "230400")
	os.Setenv("MDPD_MDNS_ENABLE", "true")
	os.Setenv("MDPD_SERIAL_READ_TIMEOUT", "100ms")
	os.Setenv("MDPD_LOG_METRICS_INTERVAL", "5s")
	t.Cleanup(func() {
		os.Unsetenv("MDPD_BAUD")
		os.Unsetenv("MDPD_MDNS_ENABLE")
		os.Unsetenv("MDPD_SERIAL_READ_TIMEOUT")
		os.Unsetenv("MDPD_LOG_METRICS_INTERVAL")
	})

	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.baud != 230400 {
		t.Fatalf("expected baud override, got %d", base.baud)
	}
	if !base.mdnsEnable {
		t.Fatalf("expected mdnsEnable true")
	}
	if base.serialReadTO != 100*time.Millisecond {
		t.Fatalf("expected serialReadTO 100ms got %v", base.serialReadTO)
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := baseConfig()
	base.baud = 115200
	os.Setenv("MDPD_BAUD", "230400")
	t.Cleanup(func() { os.Unsetenv("MDPD_BAUD") })

	if err := applyEnvOverrides(base, map[string]struct{}{"baud": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.baud != 115200 {
		t.Fatalf("expected baud unchanged 115200 got %d", base.baud)
	}
}

func TestApplyEnvOverrides_BadInt(t *testing.T) {
	base := baseConfig()
	os.Setenv("MDPD_TELEMETRY_BUFFER", "notint")
	t.Cleanup(func() { os.Unsetenv("MDPD_TELEMETRY_BUFFER") })

	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad integer")
	}
}

func TestApplyEnvOverrides_BadDuration(t *testing.T) {
	base := baseConfig()
	os.Setenv("MDPD_HANDSHAKE_TIMEOUT", "notaduration")
	t.Cleanup(func() { os.Unsetenv("MDPD_HANDSHAKE_TIMEOUT") })

	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad duration")
	}
}

func TestApplyEnvOverrides_MDNSNameIsSetWhenNotFlagged(t *testing.T) {
	base := baseConfig()
	os.Setenv("MDPD_MDNS_NAME", "bench-1")
	t.Cleanup(func() { os.Unsetenv("MDPD_MDNS_NAME") })

	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.mdnsName != "bench-1" {
		t.Fatalf("expected mdnsName bench-1, got %q", base.mdnsName)
	}
}
