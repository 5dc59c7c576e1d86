package codec

import (
	"encoding/binary"

	"github.com/kstaniek/mdp-host/internal/mdp"
)

// frameHeader builds the 6-byte MDP header plus payload, computing size and
// the XOR checksum over payload only (checksum 0 for an empty payload).
func frameHeader(t mdp.PacketType, channel uint8, payload []byte) []byte {
	size := 6 + len(payload)
	out := make([]byte, size)
	out[0] = 0x5A
	out[1] = 0x5A
	out[2] = byte(t)
	out[3] = byte(size)
	out[4] = channel
	var cs byte
	for _, b := range payload {
		cs ^= b
	}
	out[5] = cs
	copy(out[6:], payload)
	return out
}

// Heartbeat encodes the HEARTBEAT command: no payload, frame is exactly 6
// bytes, sent to the broadcast channel sentinel.
func Heartbeat() []byte {
	return frameHeader(mdp.TypeHeartbeat, mdp.BroadcastChannel, nil)
}

// SetVoltage encodes SET_V: payload is (voltage_mv, current_ma) little-endian.
func SetVoltage(channel uint8, voltsV, currentA float64) []byte {
	return frameHeader(mdp.TypeSetV, channel, encodeVI(voltsV, currentA))
}

// SetCurrent encodes SET_I: same payload shape as SET_V; the type
// distinguishes which side of the set-point the caller emphasized.
func SetCurrent(channel uint8, voltsV, currentA float64) []byte {
	return frameHeader(mdp.TypeSetI, channel, encodeVI(voltsV, currentA))
}

func encodeVI(voltsV, currentA float64) []byte {
	mv := uint16(voltsV*1000 + 0.5)
	ma := uint16(currentA*1000 + 0.5)
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint16(payload[0:2], mv)
	binary.LittleEndian.PutUint16(payload[2:4], ma)
	return payload
}

// SetOutput encodes SET_ISOUTPUT: payload is a single state byte.
func SetOutput(channel uint8, on bool) []byte {
	state := byte(0)
	if on {
		state = 1
	}
	return frameHeader(mdp.TypeSetIsOutput, channel, []byte{state})
}

// SetChannel encodes SET_CH: empty payload, the header channel byte selects
// the target.
func SetChannel(channel uint8) []byte {
	return frameHeader(mdp.TypeSetCh, channel, nil)
}

// SetAddr encodes SET_ADDR: payload is addr[5] in wire (byte-reversed)
// order followed by the frequency offset, mirroring decodeAddr.
func SetAddr(channel uint8, addr mdp.Address, freqOffset uint8) []byte {
	wire := mdp.ReverseAddress(addr)
	payload := make([]byte, 6)
	copy(payload[:5], wire[:])
	payload[5] = freqOffset
	return frameHeader(mdp.TypeSetAddr, channel, payload)
}

// SetAllAddr encodes SET_ALL_ADDR: payload is 6 x (addr[5] wire order,
// freq_offset).
func SetAllAddr(addrs [mdp.NumChannels]mdp.Address, freqOffsets [mdp.NumChannels]uint8) []byte {
	payload := make([]byte, mdp.NumChannels*6)
	for i := 0; i < mdp.NumChannels; i++ {
		off := i * 6
		wire := mdp.ReverseAddress(addrs[i])
		copy(payload[off:off+5], wire[:])
		payload[off+5] = freqOffsets[i]
	}
	return frameHeader(mdp.TypeSetAllAddr, mdp.BroadcastChannel, payload)
}

// RGB encodes the RGB command: payload is a single state byte.
func RGB(on bool) []byte {
	state := byte(0)
	if on {
		state = 1
	}
	return frameHeader(mdp.TypeRGB, mdp.BroadcastChannel, []byte{state})
}

func empty(t mdp.PacketType) []byte { return frameHeader(t, mdp.BroadcastChannel, nil) }

func GetAddr() []byte         { return empty(mdp.TypeGetAddr) }
func GetMachine() []byte      { return empty(mdp.TypeGetMachine) }
func ResetToDFU() []byte      { return empty(mdp.TypeResetToDFU) }
func StartAutoMatch() []byte  { return empty(mdp.TypeStartAutoMatch) }
func StopAutoMatch() []byte   { return empty(mdp.TypeStopAutoMatch) }
