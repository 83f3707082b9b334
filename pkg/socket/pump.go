package socket

import (
	"context"
	"time"
)

// WritePump writes every message from send to the socket and pings it every
// period. Only one goroutine may run it per socket. It returns ErrClosed when
// send is closed, and the context or write error otherwise.
func WritePump(ctx context.Context, s Socket, send <-chan []byte, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-send:
			if !ok {
				return ErrClosed
			}
			if err := s.Write(data); err != nil {
				return err
			}
		case <-ticker.C:
			if err := s.Ping(); err != nil {
				return err
			}
		}
	}
}
