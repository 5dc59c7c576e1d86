// Package store maintains the six-slot channel state model: it mutates
// slots in response to decoded packets from the event bus, validates
// incoming SYNTHESIZE records, and exposes an observable snapshot plus a
// recording-control surface.
package store

import (
	"sync"

	"github.com/kstaniek/mdp-host/internal/bus"
	"github.com/kstaniek/mdp-host/internal/codec"
	"github.com/kstaniek/mdp-host/internal/logging"
	"github.com/kstaniek/mdp-host/internal/mdp"
	"github.com/kstaniek/mdp-host/internal/metrics"
	"github.com/kstaniek/mdp-host/internal/waveform"
)

const (
	minVoltage = 0.0
	maxVoltage = 50.0
	minCurrent = 0.0
	maxCurrent = 10.0
	minTempC   = -10.0
	maxTempC   = 85.0

	// defaultDebounce is the debounce counter value set after a
	// user-initiated SET_CH: each off-channel SYNTHESIZE packet decrements
	// it, and the packet that brings it to zero has its channel adopted as
	// now_ch (so the first two are absorbed and the third is adopted).
	defaultDebounce = 3
)

// Slot is one of the six remote-module positions managed by the head unit.
type Slot struct {
	Index int

	Online      bool
	MachineType mdp.MachineType

	OutputVoltage float64
	OutputCurrent float64
	OutputPower   float64
	InputVoltage  float64
	InputCurrent  float64

	SetVoltage float64 // device-reported set point
	SetCurrent float64

	TargetVoltage float64 // host-staged target
	TargetCurrent float64
	TargetPower   float64

	Temperature float64
	IsOutput    bool
	Mode        mdp.Mode

	ColorR, ColorG, ColorB uint8
	ErrorFlag              bool

	Address      mdp.Address
	Frequency    int
	AddressEmpty bool
}

// ChannelChanged is published whenever a slot's online state or mode flips.
type ChannelChanged struct {
	Channel int
	Online  bool
	Mode    mdp.Mode
}

// MachineTypeChanged is published when the global head-unit type changes.
type MachineTypeChanged struct {
	MachineType mdp.HeadType
}

// Store holds the six channel slots plus the global selection/debounce
// state for the active channel.
type Store struct {
	mu sync.RWMutex

	slots [mdp.NumChannels]Slot

	nowCh              int
	changeChannelCount int
	waitingSynthesize  bool
	machineType        mdp.HeadType

	bus      *bus.Bus
	waveform *waveform.Store

	// outputPendingFn, when set, lets the command layer's optimistic
	// output-toggle state machine suppress the SYNTHESIZE handler's normal
	// "isOutput mirrors the device" update for a channel that has a toggle
	// in flight, so the optimistic display survives until the command
	// layer itself resolves to Confirmed/Timeout/Errored.
	outputPendingFn func(ch int) bool
}

// SetOutputPendingFunc installs the predicate the SYNTHESIZE handler
// consults before overwriting a slot's displayed IsOutput flag.
func (s *Store) SetOutputPendingFunc(fn func(ch int) bool) {
	s.mu.Lock()
	s.outputPendingFn = fn
	s.mu.Unlock()
}

// New creates a Store with all six slots in their zero (offline) state,
// subscribed to bus for the packet types it cares about.
func New(b *bus.Bus, wf *waveform.Store) *Store {
	s := &Store{
		bus:               b,
		waveform:          wf,
		waitingSynthesize: true,
		machineType:       mdp.HeadNoType,
	}
	for i := range s.slots {
		s.slots[i] = Slot{Index: i}
	}
	b.Subscribe(s.handleEvent)
	return s
}

func (s *Store) handleEvent(ev bus.Event) {
	switch pkt := ev.(type) {
	case *codec.SynthesizePacket:
		s.handleSynthesize(pkt)
	case *codec.WavePacket:
		s.handleWave(pkt)
	case *codec.UpdatChPacket:
		s.handleUpdatCh(pkt)
	case *codec.AddrPacket:
		s.handleAddr(pkt)
	case *codec.MachinePacket:
		s.handleMachine(pkt)
	case *codec.Err240Packet:
		// No state mutation: the driver already published this packet once
		// (the store's own subscription is what's running right now), so
		// error-display subscribers see it directly without the store
		// re-publishing it back onto the same bus it listens on.
	}
}

// Snapshot is a read-only copy of one slot's state, safe to hand to a
// collaborator without exposing the live store.
type Snapshot = Slot

// Snapshot returns a copy of channel ch's current state.
func (s *Store) Snapshot(ch int) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots[ch]
}

// SnapshotAll returns a copy of all six slots' current state.
func (s *Store) SnapshotAll() [mdp.NumChannels]Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.slots
}

// ActiveChannel returns the currently selected channel index.
func (s *Store) ActiveChannel() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowCh
}

// MachineType returns the global head-unit type.
func (s *Store) MachineType() mdp.HeadType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.machineType
}

// WaitingSynthesize reports whether the store has not yet seen its first
// SYNTHESIZE packet.
func (s *Store) WaitingSynthesize() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.waitingSynthesize
}

// PrimeChannelSwitch optimistically sets the active channel to ch and arms
// the debounce counter; called by the command layer immediately after it
// sends SET_CH.
func (s *Store) PrimeChannelSwitch(ch int) {
	s.mu.Lock()
	s.nowCh = ch
	s.changeChannelCount = defaultDebounce
	s.mu.Unlock()
}

// SetTarget stages a host-requested set-point for channel ch; it does not
// send anything on its own (the command layer does that) and does not
// require any "pending" flag — the staged target value is itself the
// pending state.
func (s *Store) SetTarget(ch int, voltsV, currentA float64) {
	s.mu.Lock()
	s.slots[ch].TargetVoltage = voltsV
	s.slots[ch].TargetCurrent = currentA
	s.slots[ch].TargetPower = voltsV * currentA
	s.mu.Unlock()
}

// SetIsOutput overrides the displayed output state for channel ch; used by
// the command layer's optimistic toggle and its revert path.
func (s *Store) SetIsOutput(ch int, on bool) {
	s.mu.Lock()
	s.slots[ch].IsOutput = on
	s.mu.Unlock()
}

// StartRecording / StopRecording / ClearRecording delegate to the waveform
// store; the channel store is the public recording-control surface.
func (s *Store) StartRecording(ch int) { s.waveform.StartRecording(ch) }
func (s *Store) StopRecording(ch int)  { s.waveform.StopRecording(ch) }
func (s *Store) ClearRecording(ch int) { s.waveform.ClearRecording(ch) }

// Waveform returns the per-channel sample buffer for ch.
func (s *Store) Waveform(ch int) *waveform.Buffer { return s.waveform.Buffer(ch) }

func (s *Store) handleSynthesize(pkt *codec.SynthesizePacket) {
	s.mu.Lock()
	firstSynthesize := s.waitingSynthesize
	s.waitingSynthesize = false

	var onlineCount int
	var changes []ChannelChanged
	for i := range pkt.Records {
		r := pkt.Records[i]
		slot := &s.slots[i]
		wasOnline := slot.Online
		wasMode := slot.Mode

		voltage := mdp.MillivoltsToVolts(r.OutVoltRaw)
		current := mdp.MilliampsToAmps(r.OutCurrRaw)
		temp := mdp.TenthsToCelsius(r.TempRaw)

		valid := r.Online &&
			voltage >= minVoltage && voltage <= maxVoltage &&
			current >= minCurrent && current <= maxCurrent &&
			temp >= minTempC && temp <= maxTempC &&
			r.Type.Valid()

		if !valid {
			if r.Online {
				if !r.Type.Valid() {
					metrics.IncValidationError(metrics.ValidationUnknownMachine)
				} else {
					metrics.IncValidationError(metrics.ValidationOutOfRange)
				}
			}
			slot.Online = false
			slot.OutputVoltage = 0
			slot.OutputCurrent = 0
			slot.OutputPower = 0
			slot.InputVoltage = 0
			slot.InputCurrent = 0
			// Target/address metadata is preserved across an offline
			// transition; only live measurements are zeroed.
		} else {
			slot.Online = true
			slot.MachineType = r.Type
			slot.OutputVoltage = voltage
			slot.OutputCurrent = current
			slot.OutputPower = voltage * current
			slot.InputVoltage = mdp.MillivoltsToVolts(r.InVoltRaw)
			slot.InputCurrent = mdp.MilliampsToAmps(r.InCurrRaw)
			slot.SetVoltage = mdp.MillivoltsToVolts(r.SetVoltRaw)
			slot.SetCurrent = mdp.MilliampsToAmps(r.SetCurrRaw)
			slot.Temperature = temp
			if s.outputPendingFn == nil || !s.outputPendingFn(i) {
				slot.IsOutput = r.OutputOn
			}
			slot.Mode = mdp.DeriveMode(r.Type, r.Status)
			slot.ColorR, slot.ColorG, slot.ColorB = mdp.RGB565ToRGB8(uint16(r.ColorLo) | uint16(r.ColorHi)<<8)
			slot.ErrorFlag = r.Error
			onlineCount++
		}

		if slot.Online != wasOnline || slot.Mode != wasMode {
			changes = append(changes, ChannelChanged{Channel: i, Online: slot.Online, Mode: slot.Mode})
		}
	}

	if pkt.Channel != uint8(s.nowCh) {
		if s.changeChannelCount > 0 {
			s.changeChannelCount--
		}
		if s.changeChannelCount == 0 {
			s.nowCh = int(pkt.Channel)
		}
	}
	s.mu.Unlock()

	if firstSynthesize {
		logging.L().Info("first_synthesize_received")
	}
	metrics.SetChannelsOnline(onlineCount)
	for _, c := range changes {
		s.bus.Publish(c)
	}
}

func (s *Store) handleWave(pkt *codec.WavePacket) {
	if s.WaitingSynthesize() {
		return
	}
	s.waveform.Ingest(pkt)
}

func (s *Store) handleUpdatCh(pkt *codec.UpdatChPacket) {
	s.mu.Lock()
	s.nowCh = int(pkt.TargetChannel)
	s.mu.Unlock()
}

func (s *Store) handleAddr(pkt *codec.AddrPacket) {
	s.mu.Lock()
	for i, r := range pkt.Records {
		slot := &s.slots[i]
		slot.Address = r.Addr
		slot.Frequency = mdp.FreqOffsetToMHz(r.FreqOffset)
		slot.AddressEmpty = r.Addr.Empty()
	}
	s.mu.Unlock()
}

func (s *Store) handleMachine(pkt *codec.MachinePacket) {
	s.mu.Lock()
	s.machineType = mdp.DecodeHeadType(pkt.MachineType)
	mt := s.machineType
	s.mu.Unlock()
	s.bus.Publish(MachineTypeChanged{MachineType: mt})
}
