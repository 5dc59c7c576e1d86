// Package waveform appends WAVE sample groups to per-channel time series
// when the channel store has recording enabled for that slot.
package waveform

import (
	"sync"

	"github.com/kstaniek/mdp-host/internal/codec"
	"github.com/kstaniek/mdp-host/internal/mdp"
	"github.com/kstaniek/mdp-host/internal/metrics"
)

// Sample is one ingested (timestamp, voltage, current) point.
type Sample struct {
	TimestampMs float64
	VoltageV    float64
	CurrentA    float64
}

// Buffer is one channel's ordered sample sequence plus the running time
// counter used to turn each group's relative timestamp into an absolute one.
type Buffer struct {
	mu        sync.RWMutex
	samples   []Sample
	runningMs float64
}

// Samples returns a copy of the buffer's current contents.
func (b *Buffer) Samples() []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Sample, len(b.samples))
	copy(out, b.samples)
	return out
}

// Len returns the number of samples currently buffered.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// Clear empties the buffer and resets the running time counter.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = nil
	b.runningMs = 0
}

func (b *Buffer) append(s Sample) {
	b.mu.Lock()
	b.samples = append(b.samples, s)
	b.mu.Unlock()
}

// Store holds the per-channel waveform buffers plus the per-slot recording
// gate. It does not subscribe to the bus itself: the channel store forwards
// WAVE packets to Ingest once its waitingSynthesize gate has cleared, and
// Ingest applies the per-channel recording gate.
type Store struct {
	mu        sync.RWMutex
	buffers   [mdp.NumChannels]*Buffer
	recording [mdp.NumChannels]bool
}

// NewStore returns a Store with one empty Buffer per channel.
func NewStore() *Store {
	s := &Store{}
	for i := range s.buffers {
		s.buffers[i] = &Buffer{}
	}
	return s
}

// Buffer returns the Buffer for channel ch (0..5).
func (s *Store) Buffer(ch int) *Buffer { return s.buffers[ch] }

// StartRecording enables WAVE ingestion for channel ch.
func (s *Store) StartRecording(ch int) {
	s.mu.Lock()
	s.recording[ch] = true
	s.mu.Unlock()
}

// StopRecording disables WAVE ingestion for channel ch; buffered samples are
// preserved.
func (s *Store) StopRecording(ch int) {
	s.mu.Lock()
	s.recording[ch] = false
	s.mu.Unlock()
}

// ClearRecording empties channel ch's buffer without changing its recording
// flag.
func (s *Store) ClearRecording(ch int) { s.buffers[ch].Clear() }

// IsRecording reports whether channel ch currently has WAVE ingestion
// enabled.
func (s *Store) IsRecording(ch int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recording[ch]
}

// Ingest appends pkt's sample groups to the buffer for pkt.Channel, provided
// that channel currently has recording enabled. It returns the number of
// samples ingested (0 if recording is off for that channel).
//
// Each group's raw timestamp is interpreted as 0.1 ms elapsed since the
// previous group and divided evenly across the group's samples to produce
// an absolute, monotonically increasing per-channel timestamp.
func (s *Store) Ingest(pkt *codec.WavePacket) int {
	ch := int(pkt.Channel)
	if ch < 0 || ch >= mdp.NumChannels || !s.IsRecording(ch) {
		return 0
	}
	buf := s.buffers[ch]
	n := 0
	for _, g := range pkt.Groups {
		elapsedMs := float64(g.TimestampRaw) * 0.1
		samples := len(g.VoltRaw)
		if samples == 0 {
			continue
		}
		subMs := elapsedMs / float64(samples)
		for i := 0; i < samples; i++ {
			buf.mu.Lock()
			buf.runningMs += subMs
			ts := buf.runningMs
			buf.mu.Unlock()
			buf.append(Sample{
				TimestampMs: ts,
				VoltageV:    mdp.MillivoltsToVolts(g.VoltRaw[i]),
				CurrentA:    mdp.MilliampsToAmps(g.CurrRaw[i]),
			})
			n++
		}
	}
	metrics.AddWaveformSamples(n)
	return n
}
