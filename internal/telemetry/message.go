package telemetry

import (
	"encoding/json"
	"time"

	"github.com/kstaniek/mdp-host/internal/bus"
	"github.com/kstaniek/mdp-host/internal/codec"
	"github.com/kstaniek/mdp-host/internal/mdp"
	"github.com/kstaniek/mdp-host/internal/store"
)

// message is one newline-terminated JSON line on the telemetry wire. Kind
// names the payload's shape; unrecognized kinds are forward-compatible for
// observers that only care about a subset.
type message struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

func encode(kind string, data any) ([]byte, error) {
	b, err := json.Marshal(message{Kind: kind, Data: data})
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// snapshotMessage is the periodic full-state broadcast; it is not tied to
// any single wire packet, so the relay builds it directly from the store.
type snapshotMessage struct {
	Timestamp   time.Time         `json:"timestamp"`
	MachineType string            `json:"machine_type"`
	ActiveChan  int               `json:"active_channel"`
	Channels    [mdp.NumChannels]store.Snapshot `json:"channels"`
}

// eventKind maps a bus event's concrete type to its wire "kind" string, or
// "" if the event is not part of the telemetry surface.
func eventKind(ev bus.Event) string {
	switch ev.(type) {
	case *codec.SynthesizePacket:
		return "synthesize"
	case *codec.WavePacket:
		return "wave"
	case *codec.AddrPacket:
		return "addr"
	case *codec.UpdatChPacket:
		return "updat_ch"
	case *codec.MachinePacket:
		return "machine"
	case *codec.Err240Packet:
		return "err_240"
	case store.ChannelChanged:
		return "channel_changed"
	case store.MachineTypeChanged:
		return "machine_type_changed"
	default:
		return ""
	}
}
