package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/trussworks/terraform-aws-iam-sleuth/internal/config"
	"github.com/trussworks/terraform-aws-iam-sleuth/internal/handlers"
	"github.com/trussworks/terraform-aws-iam-sleuth/internal/identity"
	"github.com/trussworks/terraform-aws-iam-sleuth/internal/notify"
	"github.com/trussworks/terraform-aws-iam-sleuth/internal/secrets"
	"github.com/trussworks/terraform-aws-iam-sleuth/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if cfg.Debug {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}

	ctx := context.Background()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	// Account id is log context only.
	stsClient := sts.NewFromConfig(awsCfg)
	if ident, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{}); err != nil {
		slog.Warn("failed to resolve account id", "error", err)
	} else {
		slog.SetDefault(logger.With("account_id", aws.ToString(ident.Account)))
	}

	iamClient := identity.NewClient(iam.NewFromConfig(awsCfg), cfg.FetchConcurrency)

	h := &handlers.Handler{
		Directory: iamClient,
		Disabler:  iamClient,
		Policy:    cfg.Policy,
		Titles:    cfg.Titles,
		Debug:     cfg.Debug,
	}

	if cfg.SNSTopic != "" {
		h.Topic = notify.NewPublisher(sns.NewFromConfig(awsCfg), cfg.SNSTopic)
	}

	webhookURL := secrets.ResolveWebhookURL(ctx, secretsmanager.NewFromConfig(awsCfg), cfg.SlackURL, cfg.SlackURLSecretARN)
	if webhookURL != "" {
		h.Webhook = webhook.NewClient(webhookURL)
	}

	slog.Info("starting IAM Sleuth Lambda",
		"auto_expire", cfg.Policy.AutoExpire,
		"sns", h.Topic != nil,
		"webhook", h.Webhook != nil,
	)
	lambda.Start(h.Handle)
}
