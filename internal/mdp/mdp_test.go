package mdp

import "testing"

func TestRGB565ToRGB8Extremes(t *testing.T) {
	r, g, b := RGB565ToRGB8(0xFFFF)
	if r != 248 || g != 252 || b != 248 {
		t.Fatalf("0xFFFF -> (%d,%d,%d), want (248,252,248)", r, g, b)
	}
	r, g, b = RGB565ToRGB8(0x0000)
	if r != 0 || g != 0 || b != 0 {
		t.Fatalf("0x0000 -> (%d,%d,%d), want (0,0,0)", r, g, b)
	}
}

func TestReverseAddressIsItsOwnInverse(t *testing.T) {
	wire := [5]byte{0x01, 0x02, 0x03, 0x04, 0x05}
	addr := ReverseAddress(wire)
	back := ReverseAddress([5]byte(addr))
	if back != Address(wire) {
		t.Fatalf("ReverseAddress(ReverseAddress(x)) = %v, want %v", back, wire)
	}
}

func TestAddressEmpty(t *testing.T) {
	var a Address
	if !a.Empty() {
		t.Fatalf("zero address should be Empty")
	}
	a[2] = 1
	if a.Empty() {
		t.Fatalf("non-zero address should not be Empty")
	}
}

func TestMachineTypeValid(t *testing.T) {
	for _, mt := range []MachineType{MachineNode, MachineP905, MachineP906, MachineL1060} {
		if !mt.Valid() {
			t.Fatalf("%v should be valid", mt)
		}
	}
	if MachineType(0xFF).Valid() {
		t.Fatalf("0xFF should not be a valid machine type")
	}
}

func TestDecodeHeadType(t *testing.T) {
	if DecodeHeadType(0x10) != HeadHaveLCD {
		t.Fatalf("0x10 should decode to HeadHaveLCD (M01)")
	}
	for _, raw := range []uint8{0x11, 0x00, 0xFF} {
		if DecodeHeadType(raw) != HeadNoLCD {
			t.Fatalf("raw 0x%02X should decode to HeadNoLCD (M02)", raw)
		}
	}
}

func TestDeriveModeL1060(t *testing.T) {
	cases := map[uint8]Mode{0: ModeCC, 1: ModeCV, 2: ModeCR, 3: ModeCP, 9: ModeNormal}
	for status, want := range cases {
		if got := DeriveMode(MachineL1060, status); got != want {
			t.Fatalf("L1060 status %d -> %v, want %v", status, got, want)
		}
	}
}

func TestDeriveModeP906(t *testing.T) {
	cases := map[uint8]Mode{1: ModeCC, 2: ModeCV, 9: ModeNormal}
	for status, want := range cases {
		if got := DeriveMode(MachineP906, status); got != want {
			t.Fatalf("P906 status %d -> %v, want %v", status, got, want)
		}
	}
}

func TestDeriveModeP905AlwaysNormal(t *testing.T) {
	for status := uint8(0); status < 5; status++ {
		if got := DeriveMode(MachineP905, status); got != ModeNormal {
			t.Fatalf("P905 status %d -> %v, want Normal", status, got)
		}
	}
}

func TestFrequencyOffsetRoundTrip(t *testing.T) {
	for mhz := 2400; mhz <= 2483; mhz++ {
		offset := MHzToFreqOffset(mhz)
		if got := FreqOffsetToMHz(offset); got != mhz {
			t.Fatalf("round trip %d MHz -> offset %d -> %d MHz", mhz, offset, got)
		}
	}
}

func TestUnitConversions(t *testing.T) {
	if v := MillivoltsToVolts(12500); v != 12.5 {
		t.Fatalf("MillivoltsToVolts(12500) = %v, want 12.5", v)
	}
	if mv := VoltsToMillivolts(12.5); mv != 12500 {
		t.Fatalf("VoltsToMillivolts(12.5) = %v, want 12500", mv)
	}
	if c := TenthsToCelsius(235); c != 23.5 {
		t.Fatalf("TenthsToCelsius(235) = %v, want 23.5", c)
	}
}
