package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/carecrypt/carecrypt-server/internal/storage"
)

const (
	cleanupTimeout    = 2 * time.Minute
	referenceBatchLen = 500
)

type SessionPurger interface {
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type ResetTokenPurger interface {
	DeleteStale(ctx context.Context, now time.Time) (int64, error)
}

// FileReferences reports which stored filenames are still referenced by a
// row.
type FileReferences interface {
	ReferencedFilenames(ctx context.Context, filenames []string) ([]string, error)
}

// CleanupJob periodically removes idle sessions, spent reset tokens, and
// stored files that no row references. Orphans appear when a write fails
// after its files were stored or a delete fails after its rows were removed.
type CleanupJob struct {
	sessions    SessionPurger
	resetTokens ResetTokenPurger
	references  FileReferences
	store       storage.Store
	idleTimeout time.Duration
	orphanGrace time.Duration
	interval    time.Duration
	now         func() time.Time
	done        chan struct{}
}

func NewCleanupJob(
	sessions SessionPurger,
	resetTokens ResetTokenPurger,
	references FileReferences,
	store storage.Store,
	idleTimeout, orphanGrace, interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		sessions:    sessions,
		resetTokens: resetTokens,
		references:  references,
		store:       store,
		idleTimeout: idleTimeout,
		orphanGrace: orphanGrace,
		interval:    interval,
		now:         time.Now,
		done:        make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	j.runOnce(ctx)
}

func (j *CleanupJob) runOnce(ctx context.Context) {
	now := j.now()

	j.runCleanup(ctx, "idle sessions", func(ctx context.Context) (int64, error) {
		return j.sessions.DeleteIdleBefore(ctx, now.Add(-j.idleTimeout))
	})
	j.runCleanup(ctx, "reset tokens", func(ctx context.Context) (int64, error) {
		return j.resetTokens.DeleteStale(ctx, now)
	})
	j.runCleanup(ctx, "orphan files", func(ctx context.Context) (int64, error) {
		return j.sweepOrphans(ctx, now)
	})
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}

// sweepOrphans deletes stored files older than the grace period that no
// row references. Younger files may belong to a write still in flight.
func (j *CleanupJob) sweepOrphans(ctx context.Context, now time.Time) (int64, error) {
	objects, err := j.store.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := now.Add(-j.orphanGrace)
	var candidates []string
	for _, obj := range objects {
		if obj.ModTime.Before(cutoff) {
			candidates = append(candidates, obj.Name)
		}
	}

	var removed int64
	for start := 0; start < len(candidates); start += referenceBatchLen {
		end := min(start+referenceBatchLen, len(candidates))
		batch := candidates[start:end]

		referenced, err := j.references.ReferencedFilenames(ctx, batch)
		if err != nil {
			return removed, err
		}
		keep := make(map[string]struct{}, len(referenced))
		for _, name := range referenced {
			keep[name] = struct{}{}
		}

		for _, name := range batch {
			if _, ok := keep[name]; ok {
				continue
			}
			if err := j.store.Delete(ctx, name); err != nil {
				log.Warn().Err(err).Str("filename", name).Msg("failed to delete orphan file")
				continue
			}
			removed++
		}
	}
	return removed, nil
}
