package main

import (
	"github.com/sirupsen/logrus"

	"github.com/yourusername/club-portal/internal/config"
	"github.com/yourusername/club-portal/internal/jobs"
	"github.com/yourusername/club-portal/internal/payment"
)

// setupDispatcher は決済イベントの処理方法を返します。
// JOBS_INLINE が有効な場合は Webhook のリクエスト内で処理し、それ以外はキューに投入します。
func setupDispatcher(cfg *config.Config, a *app, logger logrus.FieldLogger) (payment.Dispatcher, error) {
	if cfg.JobsInline {
		logger.Warn("JOBS_INLINE is enabled; payment events are processed in the webhook request")
		return jobs.NewInline(a.registrations), nil
	}

	manager, err := jobs.NewManager(cfg.QueueRedisURL, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, manager.Close)
	return manager, nil
}
