package identity

import (
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/trussworks/terraform-aws-iam-sleuth/internal/models"
)

// UserFromIAM maps an IAM user to a domain user with no keys yet.
func UserFromIAM(u types.User) *models.User {
	return models.NewUser(aws.ToString(u.UserId), aws.ToString(u.UserName))
}

// KeyFromIAM maps IAM key metadata to a domain key. A nil lastUsed means the
// key was never used, so the creation date stands in for it. A nil create
// date stays zero and is rejected by the audit.
func KeyFromIAM(m types.AccessKeyMetadata, lastUsed *time.Time) *models.AccessKey {
	k := &models.AccessKey{
		KeyID:    aws.ToString(m.AccessKeyId),
		Username: aws.ToString(m.UserName),
		Status:   models.KeyStatus(m.Status),
	}
	if m.CreateDate != nil {
		k.CreatedAt = m.CreateDate.UTC()
	}
	if lastUsed != nil {
		k.LastUsedAt = lastUsed.UTC()
	} else {
		k.LastUsedAt = k.CreatedAt
	}
	return k
}

// TagMap flattens IAM tags into a map.
func TagMap(tags []types.Tag) map[string]string {
	out := make(map[string]string, len(tags))
	for _, t := range tags {
		out[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return out
}

// ApplyTags resolves the notify target and auto expire opt out of u.
// A missing Slack tag falls back to the username; a missing KeyAutoExpire
// tag leaves auto expire enabled.
func ApplyTags(u *models.User, tags map[string]string) {
	if slackID := strings.TrimSpace(tags[models.TagSlack]); slackID != "" {
		u.NotifyTarget = slackID
	} else {
		slog.Info("IAM user is missing Slack tag", "username", u.Username)
		u.NotifyTarget = u.Username
	}

	if v, ok := tags[models.TagKeyAutoExpire]; ok {
		u.AutoExpireOptOut = strings.EqualFold(strings.TrimSpace(v), "false")
	}
}
