package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/trussworks/terraform-aws-iam-sleuth/internal/config"
	"github.com/trussworks/terraform-aws-iam-sleuth/internal/handlers"
	"github.com/trussworks/terraform-aws-iam-sleuth/internal/identity"
	"github.com/trussworks/terraform-aws-iam-sleuth/internal/models"
	"github.com/trussworks/terraform-aws-iam-sleuth/internal/notify"
	"github.com/trussworks/terraform-aws-iam-sleuth/internal/secrets"
	"github.com/trussworks/terraform-aws-iam-sleuth/internal/webhook"
)

var (
	dryRun   bool
	debug    bool
	noNotify bool
	profile  string
)

// spinnerDirectory shows progress while IAM users are fetched.
type spinnerDirectory struct {
	handlers.UserDirectory
}

func (d spinnerDirectory) ListUsers(ctx context.Context) ([]*models.User, error) {
	s := spinner.New(spinner.CharSets[9], 200*time.Millisecond)
	s.Suffix = " Fetching IAM users and access keys ..."
	s.Writer = os.Stderr
	s.Start()
	defer s.Stop()
	return d.UserDirectory.ListUsers(ctx)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "sleuthctl",
		Short: "Audit IAM access keys for age and inactivity",
	}

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Run one audit sweep using the Lambda's environment configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd.Context())
		},
	}
	auditCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report only, never disable keys")
	auditCmd.Flags().BoolVarP(&debug, "debug", "d", false, "Print the key table and debug logs")
	auditCmd.Flags().BoolVar(&noNotify, "no-notify", false, "Skip SNS and webhook delivery")
	auditCmd.Flags().StringVarP(&profile, "profile", "p", "", "AWS shared config profile")

	rootCmd.AddCommand(auditCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAudit(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dryRun {
		cfg.Policy.AutoExpire = false
	}
	if debug {
		cfg.Debug = true
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var opts []func(*awsconfig.LoadOptions) error
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load AWS config: %w", err)
	}

	iamClient := identity.NewClient(iam.NewFromConfig(awsCfg), cfg.FetchConcurrency)
	h := &handlers.Handler{
		Directory: spinnerDirectory{iamClient},
		Disabler:  iamClient,
		Policy:    cfg.Policy,
		Titles:    cfg.Titles,
		Debug:     cfg.Debug,
		Out:       os.Stdout,
	}

	if !noNotify {
		if cfg.SNSTopic != "" {
			h.Topic = notify.NewPublisher(sns.NewFromConfig(awsCfg), cfg.SNSTopic)
		}
		url := secrets.ResolveWebhookURL(ctx, secretsmanager.NewFromConfig(awsCfg), cfg.SlackURL, cfg.SlackURLSecretARN)
		if url != "" {
			h.Webhook = webhook.NewClient(url)
		}
	}

	res, err := h.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\nAudited %d keys across %d users: %d disabled, %d malformed, notified=%t\n",
		res.Keys, res.Users, len(res.Disabled), res.Malformed, res.Notified)
	return nil
}
