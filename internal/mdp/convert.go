package mdp

// MillivoltsToVolts converts a raw wire millivolt reading to volts.
func MillivoltsToVolts(raw uint16) float64 { return float64(raw) / 1000 }

// MilliampsToAmps converts a raw wire milliamp reading to amps.
func MilliampsToAmps(raw uint16) float64 { return float64(raw) / 1000 }

// TenthsToCelsius converts a raw wire tenths-of-degree reading to Celsius.
func TenthsToCelsius(raw uint16) float64 { return float64(raw) / 10 }

// VoltsToMillivolts converts volts back to the raw wire millivolt encoding,
// rounding to the nearest integer.
func VoltsToMillivolts(v float64) uint16 { return uint16(v*1000 + 0.5) }

// AmpsToMilliamps converts amps back to the raw wire milliamp encoding,
// rounding to the nearest integer.
func AmpsToMilliamps(a float64) uint16 { return uint16(a*1000 + 0.5) }

// MHzToFreqOffset converts an absolute ISM-band frequency in MHz to the raw
// wire offset from 2400 MHz.
func MHzToFreqOffset(mhz int) uint8 { return uint8(mhz - 2400) }

// FreqOffsetToMHz converts a raw wire offset from 2400 MHz to an absolute
// frequency in MHz.
func FreqOffsetToMHz(offset uint8) int { return 2400 + int(offset) }
