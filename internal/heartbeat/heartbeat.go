// Package heartbeat runs the periodic liveness/machine-type probe
// scheduler: HEARTBEAT every 1000 ms while connected, plus a one-shot
// GET_MACHINE on connect.
package heartbeat

import (
	"context"
	"time"

	"github.com/kstaniek/mdp-host/internal/logging"
)

// Sender is the minimal command surface the scheduler needs.
type Sender interface {
	Heartbeat() error
	GetMachine() error
}

const defaultInterval = 1000 * time.Millisecond

// Scheduler is single-threaded and cooperative: it suspends at each tick
// wait and exits cleanly (no partial writes) when ctx is canceled.
type Scheduler struct {
	send     Sender
	interval time.Duration
}

// New returns a Scheduler with the default 1000 ms keepalive interval.
func New(send Sender) *Scheduler {
	return &Scheduler{send: send, interval: defaultInterval}
}

// Run emits one GET_MACHINE immediately (fire-and-forget) and then a
// HEARTBEAT every interval until ctx is canceled. If a send fails the task
// logs and continues; it only exits on context cancellation.
func (s *Scheduler) Run(ctx context.Context) {
	if err := s.send.GetMachine(); err != nil {
		logging.L().Warn("get_machine_send_error", "error", err)
	}
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.send.Heartbeat(); err != nil {
				logging.L().Warn("heartbeat_send_error", "error", err)
			}
		}
	}
}
