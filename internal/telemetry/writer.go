package telemetry

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/kstaniek/mdp-host/internal/metrics"
)

// startWriter pushes hub messages to one client connection until the
// connection, the hub client or ctxDone closes.
func (s *Server) startWriter(ctxDone <-chan struct{}, conn net.Conn, cl *Client, logger *slog.Logger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = conn.Close()
			if s.Hub != nil {
				s.Hub.Remove(cl)
			}
			s.totalDisconnected.Add(1)
			logger.Info("telemetry_client_disconnected")
		}()
		for {
			select {
			case msg := <-cl.Out:
				if _, err := conn.Write(msg); err != nil {
					wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
					metrics.IncError(mapErrToMetric(wrap))
					return
				}
			case <-cl.Closed:
				return
			case <-ctxDone:
				return
			}
		}
	}()
}
