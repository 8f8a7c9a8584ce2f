// Package jobs は決済イベントを非同期に処理するジョブキューを提供します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/club-portal/internal/registration"
)

const (
	maxRetry    = 10
	taskTimeout = 30 * time.Second
	// 同じ決済セッションのタスクはこの期間内に重複投入されない
	uniqueRetention = 24 * time.Hour
)

// Processor は登録の確定・失効処理です。registration.Service が実装します。
type Processor interface {
	ConfirmPayment(ctx context.Context, registrationID, sessionID string) error
	ExpireCheckout(ctx context.Context, registrationID, sessionID string) error
}

// Manager はジョブをキューに投入します。
type Manager struct {
	client *asynq.Client
	logger logrus.FieldLogger
}

// NewManager は Manager を初期化します。
func NewManager(redisURL string, logger logrus.FieldLogger) (*Manager, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{client: asynq.NewClient(opt), logger: logger}, nil
}

// Close はクライアントを閉じます。
func (m *Manager) Close() error {
	return m.client.Close()
}

// Confirm は登録確定ジョブを投入します。
func (m *Manager) Confirm(ctx context.Context, registrationID, sessionID string) error {
	return m.enqueue(ctx, TaskConfirmRegistration, TaskPayload{RegistrationID: registrationID, CheckoutSessionID: sessionID})
}

// Expire は登録失効ジョブを投入します。
func (m *Manager) Expire(ctx context.Context, registrationID, sessionID string) error {
	return m.enqueue(ctx, TaskExpireRegistration, TaskPayload{RegistrationID: registrationID, CheckoutSessionID: sessionID})
}

func (m *Manager) enqueue(ctx context.Context, taskType string, payload TaskPayload) error {
	if err := payload.validate(); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(taskType, body)
	info, err := m.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueRegistrations),
		asynq.TaskID(taskID(taskType, payload)),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(taskTimeout),
		asynq.Retention(uniqueRetention),
	)
	log := m.logger.WithFields(logrus.Fields{"task": taskType, "registration_id": payload.RegistrationID})
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		log.Debug("task already enqueued")
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	log.WithField("task_id", info.ID).Info("task enqueued")
	return nil
}

// taskID は Webhook の再送で同じタスクが重複しないよう決済セッション単位のIDを返します。
func taskID(taskType string, p TaskPayload) string {
	key := p.CheckoutSessionID
	if key == "" {
		key = p.RegistrationID
	}
	return taskType + ":" + key
}

// Inline はキューを使わずに同じリクエスト内で処理を実行します。
type Inline struct {
	processor Processor
}

// NewInline は Inline を作成します。
func NewInline(processor Processor) *Inline {
	return &Inline{processor: processor}
}

// Confirm は登録をその場で確定します。
func (i *Inline) Confirm(ctx context.Context, registrationID, sessionID string) error {
	return i.processor.ConfirmPayment(ctx, registrationID, sessionID)
}

// Expire は登録をその場で失効させます。
func (i *Inline) Expire(ctx context.Context, registrationID, sessionID string) error {
	return i.processor.ExpireCheckout(ctx, registrationID, sessionID)
}

var _ Processor = (*registration.Service)(nil)
