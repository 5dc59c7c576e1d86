// Package transport abstracts the USB-CDC serial link and serializes
// command writes through a single goroutine, so the command layer and the
// heartbeat scheduler never interleave bytes on the wire.
package transport

import (
	"time"

	"github.com/tarm/serial"
)

// Port abstracts github.com/tarm/serial for testability.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Config carries the USB-CDC serial parameters the driver cares about;
// tarm/serial only takes Name/Baud/ReadTimeout, the rest (8 data bits, 1
// stop bit, no parity, no flow control) are its defaults.
type Config struct {
	Name        string
	Baud        int
	ReadTimeout time.Duration
}

// Open opens the USB-CDC serial device described by cfg.
func Open(cfg Config) (Port, error) {
	sc := &serial.Config{Name: cfg.Name, Baud: cfg.Baud, ReadTimeout: cfg.ReadTimeout}
	return serial.OpenPort(sc)
}
