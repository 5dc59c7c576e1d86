package telemetry

import (
	"log/slog"
	"net"
	"time"
)

// startReader only exists to detect when an observer disconnects; the
// telemetry wire carries no inbound commands, so anything actually read is
// discarded.
func (s *Server) startReader(ctxDone <-chan struct{}, conn net.Conn, cl *Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cl.Close()
		buf := make([]byte, 256)
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
			if _, err := conn.Read(buf); err != nil {
				return
			}
			select {
			case <-ctxDone:
				return
			default:
			}
		}
	}()
}
