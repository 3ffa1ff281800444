package cleanup

import (
	"context"
	"log"
	"time"
)

type SessionCleaner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

type ActiveSessionCleaner interface {
	DeleteOrphaned(ctx context.Context) (int64, error)
}

// Worker periodically reclaims expired sessions and the tracking records left
// pointing at them. Correctness does not depend on the sweep: login conflict
// detection joins against live sessions, so a lapsed session never blocks a
// fresh login in between runs.
type Worker struct {
	Sessions       SessionCleaner
	ActiveSessions ActiveSessionCleaner
	Interval       time.Duration
}

func NewWorker(sessions SessionCleaner, activeSessions ActiveSessionCleaner) *Worker {
	return &Worker{
		Sessions:       sessions,
		ActiveSessions: activeSessions,
		Interval:       1 * time.Hour,
	}
}

// Start runs one sweep immediately, then ticks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	log.Println("[CLEANUP] Background worker started")
	w.runCleanup(ctx)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.runCleanup(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// runCleanup executes the actual cleanup logic
func (w *Worker) runCleanup(ctx context.Context) {
	expired, err := w.Sessions.DeleteExpired(ctx)
	if err != nil {
		log.Printf("[CLEANUP] Error deleting expired sessions: %v", err)
	} else if expired > 0 {
		log.Printf("[CLEANUP] Removed %d expired sessions", expired)
	}

	// Tracking records must go second: a record only orphans once its
	// session row is gone.
	orphaned, err := w.ActiveSessions.DeleteOrphaned(ctx)
	if err != nil {
		log.Printf("[CLEANUP] Error deleting orphaned active session records: %v", err)
	} else if orphaned > 0 {
		log.Printf("[CLEANUP] Removed %d orphaned active session records", orphaned)
	}
}
