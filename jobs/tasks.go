package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/haven-community/haven/internal/discord"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskWebhookDeliver delivers a Discord webhook embed.
	TaskWebhookDeliver = "webhook:deliver"
	// TaskRoleSync grants or revokes a guild role through the bot.
	TaskRoleSync = "discord:sync_role"
	// TaskIdempotencyCleanup prunes old idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// WebhookDeliverPayload describes a webhook delivery.
type WebhookDeliverPayload struct {
	EventID string                 `json:"event_id"`
	URL     string                 `json:"url"`
	Payload discord.WebhookPayload `json:"payload"`
}

// RoleSyncPayload describes a role grant or revoke.
type RoleSyncPayload struct {
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
	Grant  bool   `json:"grant"`
}

// NewWebhookDeliverTask constructs an Asynq task for webhook delivery.
func NewWebhookDeliverTask(payload WebhookDeliverPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWebhookDeliver, data), nil
}

// NewRoleSyncTask constructs an Asynq task for role sync.
func NewRoleSyncTask(payload RoleSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRoleSync, data), nil
}

// NewIdempotencyCleanupTask constructs the maintenance task registered on
// the scheduler.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
