package command

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/mdp-host/internal/bus"
	"github.com/kstaniek/mdp-host/internal/codec"
	"github.com/kstaniek/mdp-host/internal/mdp"
	"github.com/kstaniek/mdp-host/internal/store"
	"github.com/kstaniek/mdp-host/internal/waveform"
)

var errSendFailed = errors.New("send failed")

type fakeSender struct {
	mu   sync.Mutex
	sent [][]byte
	fail bool
}

func (f *fakeSender) SendFrame(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errSendFailed
	}
	f.sent = append(f.sent, b)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestLayer() (*Layer, *fakeSender, *store.Store, *bus.Bus) {
	b := bus.New()
	st := store.New(b, waveform.NewStore())
	send := &fakeSender{}
	l := New(send, st, b)
	return l, send, st, b
}

func publishConfirmation(b *bus.Bus, ch int, outputOn bool) {
	var records [mdp.NumChannels]codec.ChannelRecord
	records[ch] = codec.ChannelRecord{Online: true, Type: mdp.MachineNode, OutputOn: outputOn}
	b.Publish(&codec.SynthesizePacket{Channel: uint8(ch), Records: records})
}

func TestSetOutputIsOptimisticBeforeConfirmation(t *testing.T) {
	l, _, st, _ := newTestLayer()
	if err := l.SetOutput(0, true); err != nil {
		t.Fatalf("SetOutput returned %v", err)
	}
	if !st.Snapshot(0).IsOutput {
		t.Fatalf("output should be optimistically on before the device confirms")
	}
}

func TestSetOutputRejectsSecondRequestWhilePending(t *testing.T) {
	l, _, _, _ := newTestLayer()
	if err := l.SetOutput(0, true); err != nil {
		t.Fatalf("first SetOutput returned %v", err)
	}
	if err := l.SetOutput(0, false); err != ErrTogglePending {
		t.Fatalf("second SetOutput returned %v, want ErrTogglePending", err)
	}
}

func TestSetOutputConfirmedBySynthesizeClearsPending(t *testing.T) {
	l, _, st, b := newTestLayer()
	if err := l.SetOutput(1, true); err != nil {
		t.Fatalf("SetOutput returned %v", err)
	}
	publishConfirmation(b, 1, true)

	if l.isPending(1) {
		t.Fatalf("toggle should no longer be pending once the device confirms")
	}
	if !st.Snapshot(1).IsOutput {
		t.Fatalf("IsOutput should stay on after confirmation")
	}

	// A new toggle should now be accepted.
	if err := l.SetOutput(1, false); err != nil {
		t.Fatalf("SetOutput after confirmation returned %v", err)
	}
}

func TestSetOutputRevertsOnTimeout(t *testing.T) {
	l, _, st, b := newTestLayer()
	l.timeout = 20 * time.Millisecond

	var mu sync.Mutex
	var got *OutputToggleTimedOut
	b.Subscribe(func(ev bus.Event) {
		if to, ok := ev.(OutputToggleTimedOut); ok {
			mu.Lock()
			got = &to
			mu.Unlock()
		}
	})

	st.SetIsOutput(2, false) // device was last known off
	if err := l.SetOutput(2, true); err != nil {
		t.Fatalf("SetOutput returned %v", err)
	}
	if !st.Snapshot(2).IsOutput {
		t.Fatalf("output should be optimistically on immediately after SetOutput")
	}

	time.Sleep(60 * time.Millisecond)

	if st.Snapshot(2).IsOutput {
		t.Fatalf("output should revert to the last device-reported value after timeout")
	}
	if l.isPending(2) {
		t.Fatalf("toggle should return to idle after timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	if got == nil {
		t.Fatalf("expected an OutputToggleTimedOut event on the bus")
	}
	if got.Channel != 2 || got.Desired != true || got.RevertedTo != false {
		t.Fatalf("got %+v, want Channel=2 Desired=true RevertedTo=false", *got)
	}
}

func TestSetOutputRevertsOnSendError(t *testing.T) {
	l, send, st, _ := newTestLayer()
	st.SetIsOutput(3, false)
	send.mu.Lock()
	send.fail = true
	send.mu.Unlock()

	err := l.SetOutput(3, true)
	if err == nil {
		t.Fatalf("expected an error from SetOutput when the sender fails")
	}
	if st.Snapshot(3).IsOutput {
		t.Fatalf("output should revert immediately on a send error")
	}
	if l.isPending(3) {
		t.Fatalf("toggle should not be left pending after a send error")
	}
}

func TestCloseCancelsPendingTimersAndReturnsToIdle(t *testing.T) {
	l, _, _, _ := newTestLayer()
	l.timeout = time.Hour
	if err := l.SetOutput(4, true); err != nil {
		t.Fatalf("SetOutput returned %v", err)
	}
	l.Close()
	if l.isPending(4) {
		t.Fatalf("Close should return every channel's toggle to idle")
	}
}

func TestSetVoltageStagesTarget(t *testing.T) {
	l, send, st, _ := newTestLayer()
	if err := l.SetVoltage(0, 5.0, 2.0); err != nil {
		t.Fatalf("SetVoltage returned %v", err)
	}
	if send.count() != 1 {
		t.Fatalf("expected exactly one frame sent, got %d", send.count())
	}
	snap := st.Snapshot(0)
	if snap.TargetVoltage != 5.0 || snap.TargetCurrent != 2.0 {
		t.Fatalf("got target %v/%v, want 5.0/2.0", snap.TargetVoltage, snap.TargetCurrent)
	}
}

func TestSetActiveChannelPrimesDebounce(t *testing.T) {
	l, _, st, _ := newTestLayer()
	if err := l.SetActiveChannel(5); err != nil {
		t.Fatalf("SetActiveChannel returned %v", err)
	}
	if st.ActiveChannel() != 5 {
		t.Fatalf("ActiveChannel() = %d, want 5", st.ActiveChannel())
	}
}
