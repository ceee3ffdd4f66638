package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/haven-community/haven/internal/discord"
	"github.com/haven-community/haven/internal/shared"
)

// WebhookSender is the slice of the Discord client webhook delivery uses.
type WebhookSender interface {
	ExecuteWebhook(ctx context.Context, webhookURL string, payload discord.WebhookPayload) error
}

// RoleSyncer is the slice of the Discord client role sync uses.
type RoleSyncer interface {
	AddMemberRole(ctx context.Context, userID, roleID string) error
	RemoveMemberRole(ctx context.Context, userID, roleID string) error
}

// IdempotencyGuard deduplicates deliveries across retries of the
// enqueueing request.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// Handlers bundles the task handlers and their dependencies.
type Handlers struct {
	Discord     WebhookSender
	Roles       RoleSyncer
	Idempotency IdempotencyGuard
	Logger      *slog.Logger
}

// HandleWebhookDeliver processes TaskWebhookDeliver tasks. Duplicate event
// IDs are dropped; a failed delivery releases the key so asynq can retry.
func (h *Handlers) HandleWebhookDeliver(ctx context.Context, t *asynq.Task) error {
	var payload WebhookDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.URL == "" {
		return asynq.SkipRetry
	}

	if payload.EventID != "" && h.Idempotency != nil {
		if err := h.Idempotency.CheckAndInsert(ctx, payload.EventID, "webhook"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				h.Logger.Info("webhook already delivered", slog.String("event_id", payload.EventID))
				return nil
			}
			return err
		}
	}

	if err := h.Discord.ExecuteWebhook(ctx, payload.URL, payload.Payload); err != nil {
		if payload.EventID != "" && h.Idempotency != nil {
			_ = h.Idempotency.Delete(ctx, payload.EventID)
		}
		h.Logger.Warn("webhook delivery failed", slog.String("event_id", payload.EventID), slog.Any("error", err))
		return err
	}
	return nil
}

// HandleRoleSync processes TaskRoleSync tasks.
func (h *Handlers) HandleRoleSync(ctx context.Context, t *asynq.Task) error {
	var payload RoleSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.UserID == "" || payload.RoleID == "" {
		return asynq.SkipRetry
	}
	var err error
	if payload.Grant {
		err = h.Roles.AddMemberRole(ctx, payload.UserID, payload.RoleID)
	} else {
		err = h.Roles.RemoveMemberRole(ctx, payload.UserID, payload.RoleID)
	}
	if err != nil {
		h.Logger.Warn("role sync failed",
			slog.String("user_id", payload.UserID),
			slog.String("role_id", payload.RoleID),
			slog.Bool("grant", payload.Grant),
			slog.Any("error", err))
	}
	return err
}

// HandleIdempotencyCleanup prunes idempotency keys older than two days.
func (h *Handlers) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) error {
	if h.Idempotency == nil {
		return nil
	}
	return h.Idempotency.Cleanup(ctx, 48*time.Hour)
}
