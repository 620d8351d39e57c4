package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/vadimchubok/online-cinema-backend/pkg/logger"
)

// Activation tokens expire after 24h; give a grace period beyond that before
// dropping the account so support can still intervene.
const defaultActivationGrace = 7 * 24 * time.Hour

type accountCleaner interface {
	DeleteNeverActivatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AccountCleanupJobParams configure the stale account cleanup.
type AccountCleanupJobParams struct {
	Logger *logger.Logger
	Users  accountCleaner
	Grace  time.Duration
}

// NewAccountCleanupJob builds the job that removes accounts which never
// completed activation, freeing their email addresses.
func NewAccountCleanupJob(params AccountCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user repository required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = defaultActivationGrace
	}
	return &accountCleanupJob{
		logg:  params.Logger,
		users: params.Users,
		grace: grace,
		now:   time.Now,
	}, nil
}

type accountCleanupJob struct {
	logg  *logger.Logger
	users accountCleaner
	grace time.Duration
	now   func() time.Time
}

func (j *accountCleanupJob) Name() string { return "account-cleanup" }

func (j *accountCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	deleted, err := j.users.DeleteNeverActivatedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("account cleanup: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "stale account cleanup complete")
	return nil
}
