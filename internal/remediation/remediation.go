package remediation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/trussworks/terraform-aws-iam-sleuth/internal/models"
)

// KeyDisabler switches an access key to Inactive.
type KeyDisabler interface {
	DisableKey(ctx context.Context, username, keyID string) error
}

// RemediationError reports a single failed disable call.
type RemediationError struct {
	Username string
	KeyID    string
	Err      error
}

func (e *RemediationError) Error() string {
	return fmt.Sprintf("disable key %s for user %s: %v", e.KeyID, e.Username, e.Err)
}

func (e *RemediationError) Unwrap() error {
	return e.Err
}

// Remediate disables every key in an expired state when auto expire is
// enabled. A failure on one key is logged and does not block the rest.
// It returns the keys that were disabled.
func Remediate(ctx context.Context, disabler KeyDisabler, users []*models.User, autoExpire bool) []models.DisabledKey {
	if !autoExpire {
		slog.Warn("auto expire is disabled, expired keys will only be reported")
		return nil
	}

	var disabled []models.DisabledKey
	for _, u := range users {
		for _, k := range u.Keys {
			if !k.State.Expired() {
				continue
			}

			slog.Info("disabling access key",
				"username", u.Username,
				"key_id", k.KeyID,
				"state", k.State,
			)
			if err := disabler.DisableKey(ctx, u.Username, k.KeyID); err != nil {
				rerr := &RemediationError{Username: u.Username, KeyID: k.KeyID, Err: err}
				slog.Error("failed to disable access key",
					"username", u.Username,
					"key_id", k.KeyID,
					"error", rerr,
				)
				continue
			}
			disabled = append(disabled, models.DisabledKey{Username: u.Username, KeyID: k.KeyID})
		}
	}

	slog.Info("remediation completed", "disabled", len(disabled))
	return disabled
}
