package frame

import "testing"

func buildFrame(t uint8, channel uint8, payload []byte) []byte {
	size := headerSize + len(payload)
	f := make([]byte, size)
	f[0] = magic0
	f[1] = magic1
	f[2] = t
	f[3] = byte(size)
	f[4] = channel
	f[5] = xorChecksum(payload)
	copy(f[headerSize:], payload)
	return f
}

func TestScannerSingleFrame(t *testing.T) {
	s := NewScanner()
	fr := buildFrame(0x22, 0xEE, nil)
	var got []Frame
	s.Feed(fr, func(f Frame) { got = append(got, f) })
	if len(got) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(got))
	}
	if got[0].Type() != 0x22 || got[0].Channel() != 0xEE {
		t.Fatalf("unexpected frame fields: %+v", got[0])
	}
}

func TestScannerFragmentedAcrossFeedCalls(t *testing.T) {
	s := NewScanner()
	fr := buildFrame(0x1A, 3, []byte{1, 2, 3, 4})
	var got []Frame
	for i := 0; i < len(fr); i++ {
		s.Feed(fr[i:i+1], func(f Frame) { got = append(got, f) })
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 frame after byte-by-byte feed, got %d", len(got))
	}
}

func TestScannerGarbageBeforeMagicIsResynced(t *testing.T) {
	s := NewScanner()
	fr := buildFrame(0x21, 0xEE, nil)
	input := append([]byte{0xFF, 0x00, 0x11, 0x77}, fr...)
	var got []Frame
	s.Feed(input, func(f Frame) { got = append(got, f) })
	if len(got) != 1 {
		t.Fatalf("expected 1 frame after garbage resync, got %d", len(got))
	}
	if got[0].Type() != 0x21 {
		t.Fatalf("unexpected type 0x%02X", got[0].Type())
	}
}

func TestScannerChecksumMismatchDropsFrame(t *testing.T) {
	s := NewScanner()
	fr := buildFrame(0x11, 0, []byte{1, 2, 3})
	fr[5] ^= 0xFF // corrupt checksum
	next := buildFrame(0x22, 0xEE, nil)
	var got []Frame
	s.Feed(append(fr, next...), func(f Frame) { got = append(got, f) })
	if len(got) != 1 {
		t.Fatalf("expected only the valid trailing frame, got %d", len(got))
	}
	if got[0].Type() != 0x22 {
		t.Fatalf("expected surviving frame to be the valid one")
	}
}

func TestScannerTwoFramesInOneFeed(t *testing.T) {
	s := NewScanner()
	a := buildFrame(0x1A, 1, []byte{1, 2, 3, 4})
	b := buildFrame(0x1B, 2, []byte{5, 6, 7, 8})
	var got []Frame
	s.Feed(append(a, b...), func(f Frame) { got = append(got, f) })
	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(got))
	}
	if got[0].Type() != 0x1A || got[1].Type() != 0x1B {
		t.Fatalf("frames emitted out of stream order")
	}
}

func TestScannerOversizeGarbageIsDiscarded(t *testing.T) {
	s := NewScanner()
	garbage := make([]byte, garbageCap+10)
	for i := range garbage {
		garbage[i] = 0xAB
	}
	fr := buildFrame(0x22, 0xEE, nil)
	var got []Frame
	s.Feed(append(garbage, fr...), func(f Frame) { got = append(got, f) })
	if len(got) != 1 {
		t.Fatalf("expected the trailing valid frame to survive, got %d", len(got))
	}
}
