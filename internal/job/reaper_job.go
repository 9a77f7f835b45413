package job

import (
	"context"
	"time"

	"go.uber.org/zap"

	"presence-service/internal/middleware"
)

// StaleMarker is the repository surface the reaper needs.
type StaleMarker interface {
	MarkStale(ctx context.Context, awayAfter, offlineAfter time.Duration) (int64, error)
}

// ReaperJob demotes presence rows left behind by sessions that died without a
// clean teardown: a crashed browser or a killed pod leaves an online row in
// the durable mirror forever. Rows idle past awayAfter become away; rows idle
// past offlineAfter become offline.
type ReaperJob struct {
	repo         StaleMarker
	awayAfter    time.Duration
	offlineAfter time.Duration
	logger       *zap.Logger
}

// NewReaperJob creates a new ReaperJob instance
func NewReaperJob(repo StaleMarker, awayAfter, offlineAfter time.Duration, logger *zap.Logger) *ReaperJob {
	return &ReaperJob{
		repo:         repo,
		awayAfter:    awayAfter,
		offlineAfter: offlineAfter,
		logger:       logger,
	}
}

// Run executes one reaping pass. Satisfies cron.Job.
func (j *ReaperJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	changed, err := j.repo.MarkStale(ctx, j.awayAfter, j.offlineAfter)
	if err != nil {
		j.logger.Error("Failed to reap stale presence rows", zap.Error(err))
		return
	}

	if changed == 0 {
		j.logger.Debug("No stale presence rows found")
		return
	}

	middleware.RecordReapedRows(float64(changed))
	j.logger.Info("Reaped stale presence rows", zap.Int64("count", changed))
}
