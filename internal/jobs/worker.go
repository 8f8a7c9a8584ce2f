package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/club-portal/internal/registration"
)

// Worker はキューからジョブを取り出して処理します。
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor Processor
	logger    logrus.FieldLogger
}

// NewWorker は Worker を初期化します。
func NewWorker(redisURL string, concurrency int, processor Processor, logger logrus.FieldLogger) (*Worker, error) {
	if processor == nil {
		return nil, errors.New("processor is nil")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	w := &Worker{processor: processor, logger: logger, mux: asynq.NewServeMux()}
	w.server = asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueRegistrations: 1},
		Logger:      logger,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			logger.WithError(err).WithFields(logrus.Fields{
				"task":    task.Type(),
				"retried": retried,
			}).Warn("task failed")
		}),
	})
	w.mux.HandleFunc(TaskConfirmRegistration, w.handleConfirm)
	w.mux.HandleFunc(TaskExpireRegistration, w.handleExpire)
	return w, nil
}

// Run は ctx がキャンセルされるまでワーカーを実行します。
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	w.logger.WithField("queue", QueueRegistrations).Info("worker started")
	<-ctx.Done()
	w.server.Shutdown()
	w.logger.Info("worker stopped")
	return nil
}

func (w *Worker) handleConfirm(ctx context.Context, task *asynq.Task) error {
	p, err := decodePayload(task.Payload())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return permanent(w.processor.ConfirmPayment(ctx, p.RegistrationID, p.CheckoutSessionID))
}

func (w *Worker) handleExpire(ctx context.Context, task *asynq.Task) error {
	p, err := decodePayload(task.Payload())
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return permanent(w.processor.ExpireCheckout(ctx, p.RegistrationID, p.CheckoutSessionID))
}

// permanent は再試行しても解決しないエラーに SkipRetry を付けます。
func permanent(err error) error {
	if errors.Is(err, registration.ErrRegistrationNotFound) || errors.Is(err, registration.ErrCheckoutMismatch) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}
