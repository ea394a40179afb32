package worker

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// HTTPServer serves Handler on Addr and shuts down gracefully when the
// context ends.
type HTTPServer struct {
	Addr          string
	Handler       http.Handler
	ShutdownGrace time.Duration

	// Listener, when set, is used instead of listening on Addr.
	Listener net.Listener
}

func (w *HTTPServer) Start(ctx context.Context) error {
	if w.ShutdownGrace <= 0 {
		w.ShutdownGrace = 10 * time.Second
	}
	srv := &http.Server{
		Addr:              w.Addr,
		Handler:           w.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln := w.Listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", w.Addr); err != nil {
			return err
		}
	}
	slog.Info("http: listening", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// Campaign sends run detached from request contexts; Shutdown waits for
	// their handlers to return within the grace period.
	sctx, cancel := context.WithTimeout(context.Background(), w.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		slog.Warn("http: shutdown incomplete", "err", err)
		return err
	}
	slog.Info("http: stopped")
	return nil
}
