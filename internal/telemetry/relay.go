package telemetry

import (
	"context"
	"time"

	"github.com/kstaniek/mdp-host/internal/bus"
	"github.com/kstaniek/mdp-host/internal/logging"
	"github.com/kstaniek/mdp-host/internal/store"
)

const defaultSnapshotInterval = 1 * time.Second

// Relay subscribes to the decoded-event bus and a channel store, and
// forwards both as newline-JSON messages onto the telemetry hub. It carries
// no command surface: observers can watch but never write back.
type Relay struct {
	hub      *Hub
	store    *store.Store
	interval time.Duration
	cancel   bus.Cancel
}

// NewRelay wires a Relay to hub, b and st. The bus subscription starts
// here; the periodic snapshot ticker starts once Run is called.
func NewRelay(hub *Hub, b *bus.Bus, st *store.Store) *Relay {
	r := &Relay{hub: hub, store: st, interval: defaultSnapshotInterval}
	r.cancel = b.Subscribe(r.handleEvent)
	return r
}

// Close stops the bus subscription.
func (r *Relay) Close() { r.cancel() }

func (r *Relay) handleEvent(ev bus.Event) {
	kind := eventKind(ev)
	if kind == "" {
		return
	}
	msg, err := encode(kind, ev)
	if err != nil {
		logging.L().Warn("telemetry_encode_error", "kind", kind, "error", err)
		return
	}
	r.hub.Broadcast(msg)
}

// Run periodically broadcasts a full channel snapshot until ctx is
// canceled.
func (r *Relay) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.broadcastSnapshot()
		}
	}
}

func (r *Relay) broadcastSnapshot() {
	snap := snapshotMessage{
		Timestamp:   time.Now(),
		MachineType: r.store.MachineType().String(),
		ActiveChan:  r.store.ActiveChannel(),
		Channels:    r.store.SnapshotAll(),
	}
	msg, err := encode("snapshot", snap)
	if err != nil {
		logging.L().Warn("telemetry_snapshot_encode_error", "error", err)
		return
	}
	r.hub.Broadcast(msg)
}
