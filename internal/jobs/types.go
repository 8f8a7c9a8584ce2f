package jobs

import (
	"encoding/json"
	"fmt"
)

// キュー名とタスク種別
const (
	QueueRegistrations = "registrations"

	TaskConfirmRegistration = "registration:confirm"
	TaskExpireRegistration  = "registration:expire"
)

// TaskPayload は決済イベント処理ジョブのペイロードです。
type TaskPayload struct {
	RegistrationID    string `json:"registrationId"`
	CheckoutSessionID string `json:"checkoutSessionId"`
}

func (p TaskPayload) validate() error {
	if p.RegistrationID == "" {
		return fmt.Errorf("payload.RegistrationID is required")
	}
	return nil
}

func decodePayload(data []byte) (TaskPayload, error) {
	var p TaskPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode payload: %w", err)
	}
	return p, p.validate()
}
