package handlers

import (
	"context"

	"github.com/trussworks/terraform-aws-iam-sleuth/internal/models"
)

// UserDirectory lists IAM users with their keys, tags already applied.
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]*models.User, error)
}

// KeyDisabler deactivates a single access key.
type KeyDisabler interface {
	DisableKey(ctx context.Context, username, keyID string) error
}

// TopicPublisher delivers the plain-text report.
type TopicPublisher interface {
	Publish(ctx context.Context, text string) error
}

// WebhookNotifier delivers the structured report.
type WebhookNotifier interface {
	Notify(ctx context.Context, msg models.SlackMessage) error
}
