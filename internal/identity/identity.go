package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"golang.org/x/sync/errgroup"

	"github.com/trussworks/terraform-aws-iam-sleuth/internal/models"
)

// IAMAPI is the subset of the IAM client used here.
type IAMAPI interface {
	ListUsers(ctx context.Context, params *iam.ListUsersInput, optFns ...func(*iam.Options)) (*iam.ListUsersOutput, error)
	ListAccessKeys(ctx context.Context, params *iam.ListAccessKeysInput, optFns ...func(*iam.Options)) (*iam.ListAccessKeysOutput, error)
	GetAccessKeyLastUsed(ctx context.Context, params *iam.GetAccessKeyLastUsedInput, optFns ...func(*iam.Options)) (*iam.GetAccessKeyLastUsedOutput, error)
	ListUserTags(ctx context.Context, params *iam.ListUserTagsInput, optFns ...func(*iam.Options)) (*iam.ListUserTagsOutput, error)
	UpdateAccessKey(ctx context.Context, params *iam.UpdateAccessKeyInput, optFns ...func(*iam.Options)) (*iam.UpdateAccessKeyOutput, error)
}

// Client wraps IAM operations for key auditing.
type Client struct {
	iam         IAMAPI
	concurrency int
}

// NewClient creates a new IAM client. concurrency bounds how many users are
// fetched at once; values below 1 mean one at a time.
func NewClient(api IAMAPI, concurrency int) *Client {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Client{iam: api, concurrency: concurrency}
}

// ListUsers returns every IAM user with its tags resolved and its keys
// attached, in IAM listing order. Failing to list users is fatal; a failure
// for a single user is logged and that user is skipped.
func (c *Client) ListUsers(ctx context.Context) ([]*models.User, error) {
	var iamUsers []types.User
	paginator := iam.NewListUsersPaginator(c.iam, &iam.ListUsersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("ListUsers: %w", err)
		}
		iamUsers = append(iamUsers, page.Users...)
	}

	slog.Info("found IAM users", "count", len(iamUsers))

	results := make([]*models.User, len(iamUsers))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, iu := range iamUsers {
		i, iu := i, iu
		g.Go(func() error {
			u, err := c.loadUser(ctx, iu)
			if err != nil {
				slog.Error("failed to load IAM user, skipping",
					"username", aws.ToString(iu.UserName),
					"error", err,
				)
				return nil
			}
			results[i] = u
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list IAM users: %w", err)
	}

	users := make([]*models.User, 0, len(results))
	for _, u := range results {
		if u != nil {
			users = append(users, u)
		}
	}
	return users, nil
}

func (c *Client) loadUser(ctx context.Context, iu types.User) (*models.User, error) {
	u := UserFromIAM(iu)

	tags, err := c.userTags(ctx, u.Username)
	if err != nil {
		return nil, err
	}
	ApplyTags(u, tags)

	keys, err := c.userKeys(ctx, u.Username)
	if err != nil {
		return nil, err
	}
	u.Keys = keys
	return u, nil
}

func (c *Client) userTags(ctx context.Context, username string) (map[string]string, error) {
	var tags []types.Tag
	paginator := iam.NewListUserTagsPaginator(c.iam, &iam.ListUserTagsInput{UserName: aws.String(username)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("ListUserTags %s: %w", username, err)
		}
		tags = append(tags, page.Tags...)
	}
	return TagMap(tags), nil
}

func (c *Client) userKeys(ctx context.Context, username string) ([]*models.AccessKey, error) {
	keys := []*models.AccessKey{}
	paginator := iam.NewListAccessKeysPaginator(c.iam, &iam.ListAccessKeysInput{UserName: aws.String(username)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("ListAccessKeys %s: %w", username, err)
		}
		for _, m := range page.AccessKeyMetadata {
			keys = append(keys, c.keyWithLastUsed(ctx, m))
		}
	}
	return keys, nil
}

// keyWithLastUsed leaves LastUsedAt zero when the lookup fails so the audit
// rejects the key rather than treating it as unused since creation.
func (c *Client) keyWithLastUsed(ctx context.Context, m types.AccessKeyMetadata) *models.AccessKey {
	out, err := c.iam.GetAccessKeyLastUsed(ctx, &iam.GetAccessKeyLastUsedInput{AccessKeyId: m.AccessKeyId})
	if err != nil {
		slog.Error("GetAccessKeyLastUsed failed",
			"username", aws.ToString(m.UserName),
			"key_id", aws.ToString(m.AccessKeyId),
			"error", err,
		)
		k := KeyFromIAM(m, nil)
		k.LastUsedAt = time.Time{}
		return k
	}

	var lastUsed *time.Time
	if out.AccessKeyLastUsed != nil {
		lastUsed = out.AccessKeyLastUsed.LastUsedDate
	}
	return KeyFromIAM(m, lastUsed)
}

// DisableKey sets the access key status to Inactive.
func (c *Client) DisableKey(ctx context.Context, username, keyID string) error {
	if username == "" || keyID == "" {
		return errors.New("username and key id are required")
	}
	_, err := c.iam.UpdateAccessKey(ctx, &iam.UpdateAccessKeyInput{
		UserName:    aws.String(username),
		AccessKeyId: aws.String(keyID),
		Status:      types.StatusTypeInactive,
	})
	if err != nil {
		return fmt.Errorf("UpdateAccessKey: %w", err)
	}
	slog.Info("access key disabled", "username", username, "key_id", keyID)
	return nil
}
