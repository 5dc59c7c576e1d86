package transport

import (
	"context"
	"errors"

	"github.com/kstaniek/mdp-host/internal/logging"
	"github.com/kstaniek/mdp-host/internal/metrics"
)

// ErrTxOverflow is returned when the writer's outbound buffer is full.
var ErrTxOverflow = errors.New("transport: tx overflow")

// Writer funnels all outbound writes to a Port through one goroutine,
// serializing command and heartbeat sends onto the wire. It implements
// command.Sender.
type Writer struct{ base *AsyncTx }

// NewWriter creates a Writer over port with a buffered queue of size buf.
func NewWriter(parent context.Context, port Port, buf int) *Writer {
	send := func(b []byte) error {
		_, err := port.Write(b)
		return err
	}
	hooks := Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrSerialWrite)
			logging.L().Error("serial_write_error", "error", err)
		},
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSerialOverflow)
			return ErrTxOverflow
		},
	}
	return &Writer{base: NewAsyncTx(parent, buf, send, hooks)}
}

// SendFrame queues an already-encoded frame for asynchronous write.
func (w *Writer) SendFrame(b []byte) error { return w.base.SendFrame(b) }

// Close stops the writer and waits for the pending goroutine to exit.
func (w *Writer) Close() { w.base.Close() }
