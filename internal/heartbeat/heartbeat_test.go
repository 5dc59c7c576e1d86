package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	mu             sync.Mutex
	heartbeats     int
	getMachineCalls int
}

func (f *fakeSender) Heartbeat() error {
	f.mu.Lock()
	f.heartbeats++
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) GetMachine() error {
	f.mu.Lock()
	f.getMachineCalls++
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) snapshot() (heartbeats, getMachineCalls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heartbeats, f.getMachineCalls
}

func TestRunSendsGetMachineImmediately(t *testing.T) {
	f := &fakeSender{}
	s := &Scheduler{send: f, interval: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, calls := f.snapshot(); calls == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if _, calls := f.snapshot(); calls != 1 {
		t.Fatalf("GetMachine calls = %d, want 1", calls)
	}
	cancel()
	<-done
}

func TestRunEmitsHeartbeatEveryInterval(t *testing.T) {
	f := &fakeSender{}
	s := &Scheduler{send: f, interval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(40 * time.Millisecond)
	cancel()
	<-done

	heartbeats, _ := f.snapshot()
	if heartbeats < 2 {
		t.Fatalf("heartbeats = %d, want at least 2", heartbeats)
	}
}

func TestRunExitsCleanlyOnCancel(t *testing.T) {
	f := &fakeSender{}
	s := New(f)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
