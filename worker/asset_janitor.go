package worker

import (
	"context"
	"log/slog"
	"time"

	"storefront-newsletter/internal/imaging"
)

// AssetJanitor removes normalized header images older than MaxAge.
type AssetJanitor struct {
	Dir      string
	MaxAge   time.Duration
	Interval time.Duration
	Now      func() time.Time
}

func (w *AssetJanitor) Start(ctx context.Context) error {
	if w.Interval <= 0 {
		w.Interval = 6 * time.Hour
	}
	if w.Now == nil {
		w.Now = time.Now
	}
	// run immediately then on interval
	w.runOnce()

	t := time.NewTicker(w.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			w.runOnce()
		}
	}
}

func (w *AssetJanitor) runOnce() {
	n, err := imaging.Prune(w.Dir, w.MaxAge, w.Now())
	if err != nil {
		slog.Warn("janitor: prune failed", "dir", w.Dir, "err", err)
		return
	}
	if n > 0 {
		slog.Info("janitor: pruned assets", "dir", w.Dir, "removed", n)
	}
}
