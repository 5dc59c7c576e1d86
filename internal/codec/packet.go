// Package codec maps validated wire frames to tagged Packet variants and
// encodes outbound commands, per the MDP protocol's fixed per-type payload
// schemas.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/kstaniek/mdp-host/internal/frame"
	"github.com/kstaniek/mdp-host/internal/mdp"
)

// DecodeErrorKind classifies why Decode failed.
type DecodeErrorKind int

const (
	UnknownType DecodeErrorKind = iota
	PayloadTooShort
	PayloadLengthMismatch
)

// DecodeError reports a non-fatal decode failure; the frame it names was
// dropped, not crashed on.
type DecodeError struct {
	Kind     DecodeErrorKind
	Type     uint8
	Expected int
	Actual   int
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case UnknownType:
		return fmt.Sprintf("codec: unknown packet type 0x%02X", e.Type)
	case PayloadTooShort:
		return fmt.Sprintf("codec: type 0x%02X payload too short: got %d, need at least %d", e.Type, e.Actual, e.Expected)
	case PayloadLengthMismatch:
		return fmt.Sprintf("codec: type 0x%02X payload length mismatch: got %d, expected %d", e.Type, e.Actual, e.Expected)
	default:
		return "codec: decode error"
	}
}

// ChannelRecord is one of the six per-slot records carried by a SYNTHESIZE
// packet, with raw wire fields already widened but not yet converted to
// engineering units (that conversion is the channel store's job).
type ChannelRecord struct {
	Num        uint8
	OutVoltRaw uint16
	OutCurrRaw uint16
	InVoltRaw  uint16
	InCurrRaw  uint16
	SetVoltRaw uint16
	SetCurrRaw uint16
	TempRaw    uint16
	Online     bool
	Type       mdp.MachineType
	Lock       uint8
	Status     uint8
	OutputOn   bool
	ColorLo    uint8
	ColorHi    uint8
	Error      bool
}

// SynthesizePacket is the periodic aggregate telemetry packet.
type SynthesizePacket struct {
	Channel uint8 // header channel byte
	Records [mdp.NumChannels]ChannelRecord
}

// WaveGroup is one of the 10 sample groups in a WAVE packet.
type WaveGroup struct {
	TimestampRaw uint32
	VoltRaw      []uint16
	CurrRaw      []uint16
}

// WavePacket is the streaming sample packet for the currently focused
// channel.
type WavePacket struct {
	Channel        uint8
	SamplesPerGroup int
	Groups         [10]WaveGroup
}

// AddrRecord is one of the six per-slot address records in an ADDR packet.
type AddrRecord struct {
	Addr       mdp.Address
	FreqOffset uint8
}

type AddrPacket struct {
	Channel uint8
	Records [mdp.NumChannels]AddrRecord
}

type UpdatChPacket struct {
	Channel       uint8
	TargetChannel uint8
}

type MachinePacket struct {
	Channel     uint8
	MachineType uint8
}

type Err240Packet struct{}

// Decode maps a validated frame to exactly one tagged packet. The returned
// value is one of *SynthesizePacket, *WavePacket, *AddrPacket,
// *UpdatChPacket, *MachinePacket or *Err240Packet. Outbound-only types
// (SET_*, GET_*, RESET_TO_DFU, RGB, HEARTBEAT, START/STOP_AUTO_MATCH) and any
// unrecognized tag return an *DecodeError of kind UnknownType.
func Decode(f frame.Frame) (any, error) {
	t := f.Type()
	payload := f.Payload()
	switch mdp.PacketType(t) {
	case mdp.TypeSynthesize:
		return decodeSynthesize(f.Channel(), payload)
	case mdp.TypeWave:
		return decodeWave(f.Channel(), len(f), payload)
	case mdp.TypeAddr:
		return decodeAddr(payload)
	case mdp.TypeUpdatCh:
		return decodeUpdatCh(payload)
	case mdp.TypeMachine:
		return decodeMachine(payload)
	case mdp.TypeErr240:
		if len(payload) != 0 {
			return nil, &DecodeError{Kind: PayloadLengthMismatch, Type: t, Expected: 0, Actual: len(payload)}
		}
		return &Err240Packet{}, nil
	default:
		return nil, &DecodeError{Kind: UnknownType, Type: t}
	}
}

const channelRecordSize = 25

func decodeSynthesize(headerChannel uint8, payload []byte) (*SynthesizePacket, error) {
	const want = mdp.NumChannels * channelRecordSize
	if len(payload) != want {
		return nil, &DecodeError{Kind: PayloadLengthMismatch, Type: uint8(mdp.TypeSynthesize), Expected: want, Actual: len(payload)}
	}
	p := &SynthesizePacket{Channel: headerChannel}
	for i := 0; i < mdp.NumChannels; i++ {
		r := payload[i*channelRecordSize : (i+1)*channelRecordSize]
		p.Records[i] = ChannelRecord{
			Num:        r[0],
			OutVoltRaw: binary.LittleEndian.Uint16(r[1:3]),
			OutCurrRaw: binary.LittleEndian.Uint16(r[3:5]),
			InVoltRaw:  binary.LittleEndian.Uint16(r[5:7]),
			InCurrRaw:  binary.LittleEndian.Uint16(r[7:9]),
			SetVoltRaw: binary.LittleEndian.Uint16(r[9:11]),
			SetCurrRaw: binary.LittleEndian.Uint16(r[11:13]),
			TempRaw:    binary.LittleEndian.Uint16(r[13:15]),
			Online:     r[15] != 0,
			Type:       mdp.MachineType(r[16]),
			Lock:       r[17],
			Status:     r[18],
			OutputOn:   r[19] != 0,
			ColorLo:    r[20],
			ColorHi:    r[21],
			// r[22] is color_pad, unused.
			Error: r[23] != 0,
			// r[24] is end, unused.
		}
	}
	return p, nil
}

func decodeWave(headerChannel uint8, frameSize int, payload []byte) (*WavePacket, error) {
	var samplesPerGroup int
	switch frameSize {
	case 126:
		samplesPerGroup = 2
	case 206:
		samplesPerGroup = 4
	default:
		return nil, &DecodeError{Kind: PayloadLengthMismatch, Type: uint8(mdp.TypeWave), Expected: 126, Actual: frameSize}
	}
	want := 10 * (4 + samplesPerGroup*4)
	if len(payload) != want {
		return nil, &DecodeError{Kind: PayloadLengthMismatch, Type: uint8(mdp.TypeWave), Expected: want, Actual: len(payload)}
	}
	p := &WavePacket{Channel: headerChannel, SamplesPerGroup: samplesPerGroup}
	off := 0
	for g := 0; g < 10; g++ {
		ts := binary.LittleEndian.Uint32(payload[off : off+4])
		off += 4
		volts := make([]uint16, samplesPerGroup)
		currs := make([]uint16, samplesPerGroup)
		for s := 0; s < samplesPerGroup; s++ {
			volts[s] = binary.LittleEndian.Uint16(payload[off : off+2])
			off += 2
			currs[s] = binary.LittleEndian.Uint16(payload[off : off+2])
			off += 2
		}
		p.Groups[g] = WaveGroup{TimestampRaw: ts, VoltRaw: volts, CurrRaw: currs}
	}
	return p, nil
}

const addrRecordSize = 6

func decodeAddr(payload []byte) (*AddrPacket, error) {
	const want = 2 + mdp.NumChannels*addrRecordSize
	if len(payload) != want {
		return nil, &DecodeError{Kind: PayloadLengthMismatch, Type: uint8(mdp.TypeAddr), Expected: want, Actual: len(payload)}
	}
	p := &AddrPacket{Channel: payload[0]}
	off := 2
	for i := 0; i < mdp.NumChannels; i++ {
		var wire [5]byte
		copy(wire[:], payload[off:off+5])
		p.Records[i] = AddrRecord{
			Addr:       mdp.ReverseAddress(wire),
			FreqOffset: payload[off+5],
		}
		off += addrRecordSize
	}
	return p, nil
}

func decodeUpdatCh(payload []byte) (*UpdatChPacket, error) {
	const want = 3
	if len(payload) != want {
		return nil, &DecodeError{Kind: PayloadLengthMismatch, Type: uint8(mdp.TypeUpdatCh), Expected: want, Actual: len(payload)}
	}
	return &UpdatChPacket{Channel: payload[0], TargetChannel: payload[2]}, nil
}

func decodeMachine(payload []byte) (*MachinePacket, error) {
	const want = 3
	if len(payload) != want {
		return nil, &DecodeError{Kind: PayloadLengthMismatch, Type: uint8(mdp.TypeMachine), Expected: want, Actual: len(payload)}
	}
	return &MachinePacket{Channel: payload[0], MachineType: payload[2]}, nil
}
