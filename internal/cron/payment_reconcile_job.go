package cron

import (
	"context"
	"fmt"

	"github.com/vadimchubok/online-cinema-backend/pkg/logger"
)

type staleReconciler interface {
	ReconcileStale(ctx context.Context) (int, error)
}

// PaymentReconcileJobParams configure the stale payment sweep.
type PaymentReconcileJobParams struct {
	Logger *logger.Logger
	Orders staleReconciler
}

// NewPaymentReconcileJob builds the job that settles payment attempts whose
// gateway outcome was never observed.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	return &paymentReconcileJob{
		logg:   params.Logger,
		orders: params.Orders,
	}, nil
}

type paymentReconcileJob struct {
	logg   *logger.Logger
	orders staleReconciler
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	resolved, err := j.orders.ReconcileStale(ctx)
	if err != nil {
		return fmt.Errorf("reconcile stale payments: %w", err)
	}
	logCtx := j.logg.WithField(ctx, "attempts_resolved", resolved)
	j.logg.Info(logCtx, "stale payment sweep complete")
	return nil
}
