package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// urlFields are the JSON fields checked, in order, for a webhook URL.
var urlFields = []string{"url", "webhook_url", "slack_url"}

// FetchWebhookURL retrieves a webhook URL from Secrets Manager.
// The secret value can be either the plain URL or a JSON object holding it
// under one of urlFields.
func FetchWebhookURL(ctx context.Context, sm SecretsManagerAPI, secretARN string) (string, error) {
	out, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretARN,
	})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", secretARN, err)
	}

	secretString := ""
	if out.SecretString != nil {
		secretString = strings.TrimSpace(*out.SecretString)
	}

	if secretString == "" {
		return "", fmt.Errorf("secret %s has no string value", secretARN)
	}

	// Try to parse as JSON object.
	fields := map[string]string{}
	if err := json.Unmarshal([]byte(secretString), &fields); err == nil {
		for _, name := range urlFields {
			if v := fields[name]; v != "" {
				return v, nil
			}
		}
		return "", fmt.Errorf("secret %s has no %s field", secretARN, strings.Join(urlFields, "/"))
	}

	return secretString, nil
}

// ResolveWebhookURL returns directURL when set, otherwise the URL stored in
// secretARN. A failed lookup is logged and yields "" so the webhook is left
// off without stopping the other transports.
func ResolveWebhookURL(ctx context.Context, sm SecretsManagerAPI, directURL, secretARN string) string {
	if directURL != "" || secretARN == "" {
		return directURL
	}
	url, err := FetchWebhookURL(ctx, sm, secretARN)
	if err != nil {
		slog.Error("failed to fetch webhook URL, webhook disabled", "error", err)
		return ""
	}
	return url
}
