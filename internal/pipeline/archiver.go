package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbdiscovery/internal/domain"
)

// Archiver copies newly persisted opportunity history to cold storage.
type Archiver struct {
	blobArchiver domain.Archiver
	logger       *slog.Logger
	now          func() time.Time
	since        time.Time
}

// NewArchiver creates an Archiver whose first run covers rows persisted
// since start.
func NewArchiver(blobArchiver domain.Archiver, start time.Time, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver: blobArchiver,
		logger:       logger.With(slog.String("component", "history_archiver")),
		now:          time.Now,
		since:        start,
	}
}

// Run executes a single archive run over [since, now). The window only
// advances when the run succeeds.
func (a *Archiver) Run(ctx context.Context) error {
	until := a.now().UTC()
	n, err := a.blobArchiver.ArchiveHistory(ctx, a.since, until)
	if err != nil {
		return fmt.Errorf("archiving history %v..%v: %w", a.since, until, err)
	}
	a.logger.Info("archived history",
		slog.Time("since", a.since),
		slog.Time("until", until),
		slog.Int64("rows", n),
	)
	a.since = until
	return nil
}

// RunLoop archives every interval until ctx is cancelled, with a final run
// on the way out.
func (a *Archiver) RunLoop(ctx context.Context, interval time.Duration) error {
	a.logger.Info("archiver started", slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := a.Run(final); err != nil {
				a.logger.Error("final archive run failed", slog.String("error", err.Error()))
			}
			cancel()
			return ctx.Err()
		case <-ticker.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
