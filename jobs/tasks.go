// Package jobs contains the background task definitions and the Asynq worker
// that runs them.
package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/aegis-auth/aegis/internal/auth"
	"github.com/aegis-auth/aegis/internal/external"
	jobmetrics "github.com/aegis-auth/aegis/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionsPurge drops session records whose tokens have lapsed.
	TaskSessionsPurge = "sessions:purge"
	// TaskExternalWarmup refreshes the cached upstream user directory.
	TaskExternalWarmup = "external:warmup"
)

// NewSessionsPurgeTask constructs the purge task.
func NewSessionsPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskSessionsPurge, nil)
}

// NewExternalWarmupTask constructs the warmup task.
func NewExternalWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskExternalWarmup, nil)
}

// SessionsPurgeHandler processes TaskSessionsPurge tasks.
func SessionsPurgeHandler(svc *auth.Service, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskSessionsPurge)
		purged, err := svc.PurgeExpiredSessions(ctx)
		if err != nil {
			return tracker.End(err)
		}
		if logger != nil && purged > 0 {
			logger.Info("purged expired sessions", slog.Int64("count", purged))
		}
		return tracker.End(nil)
	}
}

// ExternalWarmupHandler processes TaskExternalWarmup tasks. An unreachable
// upstream is logged but not retried; the next scheduled run will try again.
func ExternalWarmupHandler(client *external.Client, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskExternalWarmup)
		if err := client.Refresh(ctx); err != nil {
			if logger != nil {
				logger.Warn("external warmup", slog.Any("error", err))
			}
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
		return tracker.End(nil)
	}
}
