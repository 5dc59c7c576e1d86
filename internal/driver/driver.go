// Package driver owns one transport connection's lifetime: it wires the
// frame scanner, packet codec, event bus, channel store, waveform ingest,
// command layer and heartbeat scheduler together into a single owned
// instance rather than relying on process-wide state.
package driver

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/kstaniek/mdp-host/internal/bus"
	"github.com/kstaniek/mdp-host/internal/codec"
	"github.com/kstaniek/mdp-host/internal/command"
	"github.com/kstaniek/mdp-host/internal/frame"
	"github.com/kstaniek/mdp-host/internal/heartbeat"
	"github.com/kstaniek/mdp-host/internal/logging"
	"github.com/kstaniek/mdp-host/internal/mdp"
	"github.com/kstaniek/mdp-host/internal/metrics"
	"github.com/kstaniek/mdp-host/internal/store"
	"github.com/kstaniek/mdp-host/internal/transport"
	"github.com/kstaniek/mdp-host/internal/waveform"
)

const (
	readBufSize      = 512
	writerQueueDepth = 64
)

// Driver is the single owned instance that tracks one transport
// connection's lifetime end to end.
type Driver struct {
	port   transport.Port
	writer *transport.Writer

	Bus      *bus.Bus
	Store    *store.Store
	Waveform *waveform.Store
	Command  *command.Layer

	heartbeat *heartbeat.Scheduler

	wg sync.WaitGroup
}

// New constructs a Driver over an already-open port.
func New(port transport.Port) *Driver {
	b := bus.New()
	wf := waveform.NewStore()
	st := store.New(b, wf)

	d := &Driver{port: port, Bus: b, Store: st, Waveform: wf}
	d.writer = transport.NewWriter(context.Background(), port, writerQueueDepth)
	d.Command = command.New(d.writer, st, b)
	d.heartbeat = heartbeat.New(d.Command)
	return d
}

// Run starts the heartbeat scheduler and the read loop; it blocks until ctx
// is canceled or the transport fails/closes. Both the read loop and the
// heartbeat loop are canceled cleanly on return.
func (d *Driver) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.heartbeat.Run(ctx)
	}()

	err := d.readLoop(ctx)
	cancel()
	d.wg.Wait()
	return err
}

// Close releases the command layer's subscriptions and the transport
// writer; in-flight optimistic-toggle timers are dropped.
func (d *Driver) Close() {
	d.Command.Close()
	d.writer.Close()
	_ = d.port.Close()
}

func (d *Driver) readLoop(ctx context.Context) error {
	scanner := frame.NewScanner()
	buf := make([]byte, readBufSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		n, err := d.port.Read(buf)
		if n > 0 {
			scanner.Feed(buf[:n], func(f frame.Frame) {
				d.dispatch(f)
			})
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				continue // transient read timeout; tarm/serial returns these routinely
			}
			metrics.IncError(metrics.ErrSerialRead)
			logging.L().Error("serial_read_error", "error", err)
			return err
		}
	}
}

func (d *Driver) dispatch(f frame.Frame) {
	pkt, err := codec.Decode(f)
	if err != nil {
		var de *codec.DecodeError
		if errors.As(err, &de) {
			switch de.Kind {
			case codec.PayloadTooShort:
				metrics.IncDecodeError(metrics.DecodePayloadTooShort)
			case codec.PayloadLengthMismatch:
				metrics.IncDecodeError(metrics.DecodePayloadLengthMismatch)
			default:
				metrics.IncDecodeError(metrics.DecodeUnknownType)
			}
		}
		logging.L().Debug("packet_decode_error", "type", f.Type(), "error", err)
		return
	}
	metrics.IncPacketDecoded(mdp.PacketType(f.Type()).String())
	d.Bus.Publish(pkt)
}
