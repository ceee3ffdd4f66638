package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/haven-community/haven/internal/discord"
	"github.com/haven-community/haven/internal/shared"
	_ "github.com/haven-community/haven/testing"
)

type fakeSender struct {
	delivered []string
	fail      bool
}

func (f *fakeSender) ExecuteWebhook(ctx context.Context, url string, payload discord.WebhookPayload) error {
	if f.fail {
		return errors.New("boom")
	}
	f.delivered = append(f.delivered, url)
	return nil
}

type fakeGuard struct {
	seen    map[string]bool
	deleted []string
}

func newFakeGuard() *fakeGuard { return &fakeGuard{seen: make(map[string]bool)} }

func (f *fakeGuard) CheckAndInsert(ctx context.Context, key, module string) error {
	if f.seen[key] {
		return shared.ErrIdempotencyConflict
	}
	f.seen[key] = true
	return nil
}

func (f *fakeGuard) Delete(ctx context.Context, key string) error {
	delete(f.seen, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeGuard) Cleanup(ctx context.Context, olderThan time.Duration) error { return nil }

type fakeRoles struct {
	granted, revoked []string
}

func (f *fakeRoles) AddMemberRole(ctx context.Context, userID, roleID string) error {
	f.granted = append(f.granted, userID+":"+roleID)
	return nil
}

func (f *fakeRoles) RemoveMemberRole(ctx context.Context, userID, roleID string) error {
	f.revoked = append(f.revoked, userID+":"+roleID)
	return nil
}

func webhookTask(t *testing.T, payload WebhookDeliverPayload) *asynq.Task {
	t.Helper()
	task, err := NewWebhookDeliverTask(payload)
	require.NoError(t, err)
	return task
}

func TestWebhookDeliverDedupes(t *testing.T) {
	sender := &fakeSender{}
	guard := newFakeGuard()
	h := &Handlers{Discord: sender, Idempotency: guard, Logger: slog.Default()}

	task := webhookTask(t, WebhookDeliverPayload{EventID: "evt-1", URL: "https://hook"})
	require.NoError(t, h.HandleWebhookDeliver(context.Background(), task))
	require.NoError(t, h.HandleWebhookDeliver(context.Background(), task))
	require.Len(t, sender.delivered, 1)
}

func TestWebhookDeliverReleasesKeyOnFailure(t *testing.T) {
	sender := &fakeSender{fail: true}
	guard := newFakeGuard()
	h := &Handlers{Discord: sender, Idempotency: guard, Logger: slog.Default()}

	task := webhookTask(t, WebhookDeliverPayload{EventID: "evt-2", URL: "https://hook"})
	require.Error(t, h.HandleWebhookDeliver(context.Background(), task))
	require.Contains(t, guard.deleted, "evt-2")

	// A retry after the failure can claim the key again.
	sender.fail = false
	require.NoError(t, h.HandleWebhookDeliver(context.Background(), task))
	require.Len(t, sender.delivered, 1)
}

func TestWebhookDeliverSkipsMalformed(t *testing.T) {
	h := &Handlers{Discord: &fakeSender{}, Logger: slog.Default()}
	err := h.HandleWebhookDeliver(context.Background(), asynq.NewTask(TaskWebhookDeliver, []byte("{broken")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	// Missing URL is also unretryable.
	data, _ := json.Marshal(WebhookDeliverPayload{EventID: "evt-3"})
	err = h.HandleWebhookDeliver(context.Background(), asynq.NewTask(TaskWebhookDeliver, data))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRoleSync(t *testing.T) {
	roles := &fakeRoles{}
	h := &Handlers{Roles: roles, Logger: slog.Default()}

	grant, err := NewRoleSyncTask(RoleSyncPayload{UserID: "u", RoleID: "r", Grant: true})
	require.NoError(t, err)
	require.NoError(t, h.HandleRoleSync(context.Background(), grant))

	revoke, err := NewRoleSyncTask(RoleSyncPayload{UserID: "u", RoleID: "r"})
	require.NoError(t, err)
	require.NoError(t, h.HandleRoleSync(context.Background(), revoke))

	require.Equal(t, []string{"u:r"}, roles.granted)
	require.Equal(t, []string{"u:r"}, roles.revoked)
}
