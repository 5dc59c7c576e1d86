package codec

import (
	"testing"

	"github.com/kstaniek/mdp-host/internal/frame"
	"github.com/kstaniek/mdp-host/internal/mdp"
)

func toFrame(raw []byte) frame.Frame { return frame.Frame(raw) }

func TestSetVoltageEncoding(t *testing.T) {
	raw := SetVoltage(2, 12.5, 1.25)
	if raw[0] != 0x5A || raw[1] != 0x5A {
		t.Fatalf("missing magic bytes")
	}
	if mdp.PacketType(raw[2]) != mdp.TypeSetV {
		t.Fatalf("wrong type byte 0x%02X", raw[2])
	}
	if raw[4] != 2 {
		t.Fatalf("wrong channel byte %d", raw[4])
	}
	if len(raw) != 10 {
		t.Fatalf("expected 10-byte frame, got %d", len(raw))
	}
	mv := uint16(raw[6]) | uint16(raw[7])<<8
	ma := uint16(raw[8]) | uint16(raw[9])<<8
	if mv != 12500 || ma != 1250 {
		t.Fatalf("got mv=%d ma=%d, want 12500/1250", mv, ma)
	}
}

func TestHeartbeatIsBroadcastNoPayload(t *testing.T) {
	raw := Heartbeat()
	if len(raw) != 6 {
		t.Fatalf("expected 6-byte heartbeat frame, got %d", len(raw))
	}
	if raw[4] != mdp.BroadcastChannel {
		t.Fatalf("expected broadcast channel, got 0x%02X", raw[4])
	}
	if raw[5] != 0 {
		t.Fatalf("checksum over empty payload must be 0")
	}
}

func TestDecodeSynthesizeRoundTrip(t *testing.T) {
	payload := make([]byte, mdp.NumChannels*channelRecordSize)
	rec := payload[0:channelRecordSize]
	rec[0] = 0
	rec[1], rec[2] = 0x88, 0x13 // little-endian 5000 -> 5.000 V
	rec[15] = 1                // online
	rec[16] = byte(mdp.MachineL1060)
	rec[18] = 1 // status -> CV for L1060
	rec[19] = 1 // output on

	raw := frame.Frame(append([]byte{0x5A, 0x5A, byte(mdp.TypeSynthesize), byte(6 + len(payload)), 0, xorOf(payload)}, payload...))
	pkt, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	sp, ok := pkt.(*SynthesizePacket)
	if !ok {
		t.Fatalf("expected *SynthesizePacket, got %T", pkt)
	}
	if !sp.Records[0].Online || !sp.Records[0].OutputOn {
		t.Fatalf("record 0 should be online and output-on")
	}
	if sp.Records[0].Type != mdp.MachineL1060 {
		t.Fatalf("expected MachineL1060, got %v", sp.Records[0].Type)
	}
}

func TestDecodeSynthesizeWrongLength(t *testing.T) {
	raw := frame.Frame([]byte{0x5A, 0x5A, byte(mdp.TypeSynthesize), 10, 0, 0, 1, 2, 3, 4})
	_, err := Decode(raw)
	if err == nil {
		t.Fatalf("expected a length-mismatch error")
	}
	var de *DecodeError
	if ok := asDecodeError(err, &de); !ok || de.Kind != PayloadLengthMismatch {
		t.Fatalf("expected PayloadLengthMismatch, got %v", err)
	}
}

func TestDecodeAddrReversesWireOrder(t *testing.T) {
	payload := make([]byte, 2+mdp.NumChannels*addrRecordSize)
	wire := [5]byte{0x01, 0x02, 0x03, 0x04, 0x05}
	copy(payload[2:7], wire[:])
	payload[7] = 42 // freq offset

	raw := frame.Frame(append([]byte{0x5A, 0x5A, byte(mdp.TypeAddr), byte(6 + len(payload)), 0, xorOf(payload)}, payload...))
	pkt, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	ap := pkt.(*AddrPacket)
	want := mdp.Address{0x05, 0x04, 0x03, 0x02, 0x01}
	if ap.Records[0].Addr != want {
		t.Fatalf("got address %v, want %v", ap.Records[0].Addr, want)
	}
	if ap.Records[0].FreqOffset != 42 {
		t.Fatalf("got freq offset %d, want 42", ap.Records[0].FreqOffset)
	}
}

func TestSetAddrEncodingMatchesDecodeAddr(t *testing.T) {
	addr := mdp.Address{0x05, 0x04, 0x03, 0x02, 0x01}
	raw := SetAddr(3, addr, 42)
	wirePayload := raw[6:12]
	want := [5]byte{0x01, 0x02, 0x03, 0x04, 0x05}
	for i := 0; i < 5; i++ {
		if wirePayload[i] != want[i] {
			t.Fatalf("wire byte %d = 0x%02X, want 0x%02X", i, wirePayload[i], want[i])
		}
	}
	if wirePayload[5] != 42 {
		t.Fatalf("freq offset byte = %d, want 42", wirePayload[5])
	}
}

func TestDecodeUnknownType(t *testing.T) {
	raw := frame.Frame([]byte{0x5A, 0x5A, 0xFF, 6, 0, 0})
	_, err := Decode(raw)
	var de *DecodeError
	if ok := asDecodeError(err, &de); !ok || de.Kind != UnknownType {
		t.Fatalf("expected UnknownType error, got %v", err)
	}
}

func TestDecodeWaveSampleCounts(t *testing.T) {
	payload := make([]byte, 10*(4+2*4))
	raw := frame.Frame(append([]byte{0x5A, 0x5A, byte(mdp.TypeWave), 126, 3, xorOf(payload)}, payload...))
	pkt, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	wp := pkt.(*WavePacket)
	if wp.SamplesPerGroup != 2 {
		t.Fatalf("expected 2 samples/group for a 126-byte frame, got %d", wp.SamplesPerGroup)
	}
	if wp.Channel != 3 {
		t.Fatalf("expected channel 3, got %d", wp.Channel)
	}
	totalSamples := 0
	for _, g := range wp.Groups {
		totalSamples += len(g.VoltRaw)
	}
	if totalSamples != 20 {
		t.Fatalf("expected 20 samples ingested (10 groups x 2 samples), got %d", totalSamples)
	}
}

func TestDecodeWaveFourSamplesPerGroup(t *testing.T) {
	payload := make([]byte, 10*(4+4*4))
	raw := frame.Frame(append([]byte{0x5A, 0x5A, byte(mdp.TypeWave), 206, 1, xorOf(payload)}, payload...))
	pkt, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	wp := pkt.(*WavePacket)
	if wp.SamplesPerGroup != 4 {
		t.Fatalf("expected 4 samples/group for a 206-byte frame, got %d", wp.SamplesPerGroup)
	}
}

func xorOf(b []byte) byte {
	var s byte
	for _, c := range b {
		s ^= c
	}
	return s
}

func asDecodeError(err error, target **DecodeError) bool {
	de, ok := err.(*DecodeError)
	if !ok {
		return false
	}
	*target = de
	return true
}
