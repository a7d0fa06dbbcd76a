package entitystore

import (
	"log/slog"

	"github.com/danielorbach/go-component"
)

// Serve returns a component.Proc owning the lifecycle of s: it activates s,
// waits for the component to stop, and closes s on every exit path, including
// a failed activation.
func Serve(s *Store) component.Proc {
	return func(l *component.L) {
		defer s.Close()

		logger := component.Logger(l.Context())
		if err := s.Activate(l.Context()); err != nil {
			l.Fatal(err)
			return
		}
		<-l.Context().Done()
		logger.Debug("Stopping store...", slog.String("store", s.id.String()))
	}
}
