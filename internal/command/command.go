// Package command builds and sends MDP command frames and implements the
// optimistic output-toggle state machine. It is the only path by which a
// caller mutates device state; the channel store only ever reflects what
// the device (or this layer's own optimism) reports.
package command

import (
	"errors"
	"sync"
	"time"

	"github.com/kstaniek/mdp-host/internal/bus"
	"github.com/kstaniek/mdp-host/internal/codec"
	"github.com/kstaniek/mdp-host/internal/logging"
	"github.com/kstaniek/mdp-host/internal/mdp"
	"github.com/kstaniek/mdp-host/internal/metrics"
	"github.com/kstaniek/mdp-host/internal/store"
)

// ErrTogglePending is returned when a caller requests an output toggle on a
// channel that already has one in flight; the request is ignored rather
// than queued.
var ErrTogglePending = errors.New("command: output toggle already pending")

// Sender transmits one already-framed command. Implementations must
// serialize sends themselves (see internal/transport.AsyncTx) — the command
// layer issues one SendFrame call per command and does not interleave bytes
// on its own.
type Sender interface {
	SendFrame([]byte) error
}

const defaultToggleTimeout = 5 * time.Second

// OutputToggleTimedOut is published when a pending output toggle times out
// without device confirmation and the layer reverts the displayed state.
type OutputToggleTimedOut struct {
	Channel    int
	Desired    bool
	RevertedTo bool
}

type toggleState int

const (
	toggleIdle toggleState = iota
	togglePending
)

type toggle struct {
	mu         sync.Mutex
	state      toggleState
	desired    bool
	lastDevice bool // last device-reported value, captured before going optimistic
	timer      *time.Timer
}

// Layer encodes and sends MDP commands and owns the per-channel output
// (and, for L1060 loads, input) toggle state machines.
type Layer struct {
	send    Sender
	store   *store.Store
	bus     *bus.Bus
	timeout time.Duration

	toggles [mdp.NumChannels]*toggle

	cancel bus.Cancel
}

// New wires a Layer to send, store and bus. It installs the store's
// output-pending predicate so the optimistic toggle survives SYNTHESIZE
// packets that haven't caught up yet, and subscribes to SYNTHESIZE packets
// to detect confirmation.
func New(send Sender, st *store.Store, b *bus.Bus) *Layer {
	l := &Layer{send: send, store: st, bus: b, timeout: defaultToggleTimeout}
	for i := range l.toggles {
		l.toggles[i] = &toggle{}
	}
	st.SetOutputPendingFunc(l.isPending)
	l.cancel = b.Subscribe(l.handleEvent)
	return l
}

// Close stops the confirmation subscription and any in-flight timers
// (called on disconnect; cancellation is clean and returns every channel's
// toggle to Idle).
func (l *Layer) Close() {
	l.cancel()
	for _, t := range l.toggles {
		t.mu.Lock()
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		t.state = toggleIdle
		t.mu.Unlock()
	}
}

func (l *Layer) isPending(ch int) bool {
	t := l.toggles[ch]
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == togglePending
}

func (l *Layer) handleEvent(ev bus.Event) {
	pkt, ok := ev.(*codec.SynthesizePacket)
	if !ok {
		return
	}
	for i, r := range pkt.Records {
		t := l.toggles[i]
		t.mu.Lock()
		if t.state == togglePending && r.OutputOn == t.desired {
			t.state = toggleIdle
			if t.timer != nil {
				t.timer.Stop()
				t.timer = nil
			}
		}
		t.mu.Unlock()
	}
}

func (l *Layer) sendFrame(typeName string, frameBytes []byte) error {
	err := l.send.SendFrame(frameBytes)
	if err != nil {
		metrics.IncError(metrics.ErrSerialWrite)
		logging.L().Warn("command_send_error", "type", typeName, "error", err)
		return err
	}
	metrics.IncCommandSent(typeName)
	return nil
}

// SetActiveChannel encodes and sends SET_CH for ch, optimistically updates
// now_ch and primes the channel-switch debounce counter. Some head units
// are more reliable if SET_CH is sent twice in a row; callers that want
// that behavior may call this twice.
func (l *Layer) SetActiveChannel(ch int) error {
	if err := l.sendFrame(mdp.TypeSetCh.String(), codec.SetChannel(uint8(ch))); err != nil {
		return err
	}
	l.store.PrimeChannelSwitch(ch)
	return nil
}

// SetVoltage encodes and sends SET_V, then stages the host target.
func (l *Layer) SetVoltage(ch int, voltsV, currentA float64) error {
	if err := l.sendFrame(mdp.TypeSetV.String(), codec.SetVoltage(uint8(ch), voltsV, currentA)); err != nil {
		return err
	}
	l.store.SetTarget(ch, voltsV, currentA)
	return nil
}

// SetCurrent encodes and sends SET_I, then stages the host target.
func (l *Layer) SetCurrent(ch int, voltsV, currentA float64) error {
	if err := l.sendFrame(mdp.TypeSetI.String(), codec.SetCurrent(uint8(ch), voltsV, currentA)); err != nil {
		return err
	}
	l.store.SetTarget(ch, voltsV, currentA)
	return nil
}

// SetOutput requests the output (or, for an L1060 load, input) be switched
// to on/off, following the Idle -> Pending -> {Confirmed, Timeout, Errored}
// state machine. It returns ErrTogglePending if a toggle for this channel
// is already in flight.
func (l *Layer) SetOutput(ch int, on bool) error {
	t := l.toggles[ch]
	t.mu.Lock()
	if t.state == togglePending {
		t.mu.Unlock()
		return ErrTogglePending
	}
	t.state = togglePending
	t.desired = on
	t.lastDevice = l.store.Snapshot(ch).IsOutput // device-reported value before going optimistic
	t.mu.Unlock()

	l.store.SetIsOutput(ch, on) // optimistic

	if err := l.sendFrame(mdp.TypeSetIsOutput.String(), codec.SetOutput(uint8(ch), on)); err != nil {
		l.revert(ch, "toggle_send_error")
		return err
	}

	t.mu.Lock()
	t.timer = time.AfterFunc(l.timeout, func() { l.onTimeout(ch) })
	t.mu.Unlock()
	return nil
}

func (l *Layer) onTimeout(ch int) {
	t := l.toggles[ch]
	t.mu.Lock()
	if t.state != togglePending {
		t.mu.Unlock()
		return
	}
	t.state = toggleIdle
	t.timer = nil
	desired := t.desired
	revertTo := t.lastDevice
	t.mu.Unlock()
	l.store.SetIsOutput(ch, revertTo)
	metrics.IncError(metrics.ErrCommandTimeout)
	logging.L().Warn("output_toggle_timeout", "channel", ch)
	l.bus.Publish(OutputToggleTimedOut{Channel: ch, Desired: desired, RevertedTo: revertTo})
}

// revert reverts the displayed output state immediately (send-error path)
// and returns the channel's toggle to Idle.
func (l *Layer) revert(ch int, reason string) {
	t := l.toggles[ch]
	t.mu.Lock()
	t.state = toggleIdle
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	revertTo := t.lastDevice
	t.mu.Unlock()
	l.store.SetIsOutput(ch, revertTo)
	logging.L().Warn("output_toggle_errored", "channel", ch, "reason", reason)
}

// SetAddress encodes and sends SET_ADDR for one channel's remote address.
func (l *Layer) SetAddress(ch int, addr mdp.Address, freqMHz int) error {
	return l.sendFrame(mdp.TypeSetAddr.String(), codec.SetAddr(uint8(ch), addr, mdp.MHzToFreqOffset(freqMHz)))
}

// SetAllAddresses encodes and sends SET_ALL_ADDR for all six channels.
func (l *Layer) SetAllAddresses(addrs [mdp.NumChannels]mdp.Address, freqsMHz [mdp.NumChannels]int) error {
	var offsets [mdp.NumChannels]uint8
	for i, f := range freqsMHz {
		offsets[i] = mdp.MHzToFreqOffset(f)
	}
	return l.sendFrame(mdp.TypeSetAllAddr.String(), codec.SetAllAddr(addrs, offsets))
}

func (l *Layer) GetAddresses() error   { return l.sendFrame(mdp.TypeGetAddr.String(), codec.GetAddr()) }
func (l *Layer) GetMachine() error     { return l.sendFrame(mdp.TypeGetMachine.String(), codec.GetMachine()) }
func (l *Layer) StartAutoMatch() error { return l.sendFrame(mdp.TypeStartAutoMatch.String(), codec.StartAutoMatch()) }
func (l *Layer) StopAutoMatch() error  { return l.sendFrame(mdp.TypeStopAutoMatch.String(), codec.StopAutoMatch()) }
func (l *Layer) ResetToDFU() error     { return l.sendFrame(mdp.TypeResetToDFU.String(), codec.ResetToDFU()) }
func (l *Layer) RGB(on bool) error     { return l.sendFrame(mdp.TypeRGB.String(), codec.RGB(on)) }

// Heartbeat encodes and sends the HEARTBEAT keepalive.
func (l *Layer) Heartbeat() error { return l.sendFrame(mdp.TypeHeartbeat.String(), codec.Heartbeat()) }
