package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/trussworks/terraform-aws-iam-sleuth/internal/audit"
	"github.com/trussworks/terraform-aws-iam-sleuth/internal/models"
	"github.com/trussworks/terraform-aws-iam-sleuth/internal/remediation"
	"github.com/trussworks/terraform-aws-iam-sleuth/internal/report"
	"github.com/trussworks/terraform-aws-iam-sleuth/internal/table"
)

// Handler runs one audit sweep. Topic and Webhook may be nil, which turns
// that transport off.
type Handler struct {
	Directory UserDirectory
	Disabler  KeyDisabler
	Topic     TopicPublisher
	Webhook   WebhookNotifier

	Policy audit.Policy
	Titles report.Titles

	// Debug renders the audited keys as a table to Out (stdout when nil).
	Debug bool
	Out   io.Writer

	// Now defaults to time.Now.
	Now func() time.Time
}

// Result summarizes one run.
type Result struct {
	RunID            string                         `json:"run_id"`
	Users            int                            `json:"users"`
	Keys             int                            `json:"keys"`
	States           map[models.ComplianceState]int `json:"states"`
	Disabled         []models.DisabledKey           `json:"disabled"`
	Malformed        int                            `json:"malformed"`
	DeliveryFailures int                            `json:"delivery_failures"`
	Notified         bool                           `json:"notified"`
}

// Response is the Lambda reply.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Run audits every key, disables expired ones when allowed, and sends the
// report. Only an invalid policy or a failure to list users is returned as
// an error.
func (h *Handler) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:    uuid.New().String(),
		States:   map[models.ComplianceState]int{},
		Disabled: []models.DisabledKey{},
	}
	logger := slog.With("run_id", res.RunID)

	engine, err := audit.NewEngine(h.Policy, h.now())
	if err != nil {
		return nil, fmt.Errorf("audit policy: %w", err)
	}
	if engine.Policy().AutoExpire && h.Disabler == nil {
		return nil, errors.New("auto expire enabled without a key disabler")
	}

	logger.Info("audit run starting",
		"now", engine.Now().Format(time.RFC3339),
		"auto_expire", engine.Policy().AutoExpire,
	)

	users, err := h.Directory.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	for _, u := range users {
		res.Users++
		for _, err := range engine.AuditUser(u) {
			logger.Error("malformed access key excluded", "username", u.Username, "error", err)
			res.Malformed++
		}
		u.Keys = audited(u.Keys)
		for _, k := range u.Keys {
			res.Keys++
			res.States[k.State]++
		}
	}

	if h.Debug {
		table.Render(h.out(), users, engine.Now())
	}

	if disabled := remediation.Remediate(ctx, h.Disabler, users, engine.Policy().AutoExpire); disabled != nil {
		res.Disabled = disabled
	}

	rep := report.Build(users, h.Titles)
	h.send(ctx, logger, rep, res)

	logger.Info("audit run completed",
		"users", res.Users,
		"keys", res.Keys,
		"disabled", len(res.Disabled),
		"malformed", res.Malformed,
		"delivery_failures", res.DeliveryFailures,
		"notified", res.Notified,
	)
	return res, nil
}

// Handle is the Lambda handler invoked by EventBridge on a schedule.
func (h *Handler) Handle(ctx context.Context, event events.CloudWatchEvent) (Response, error) {
	slog.Info("scheduled event received", "event_id", event.ID, "time", event.Time)

	res, err := h.Run(ctx)
	if err != nil {
		slog.Error("audit run failed", "error", err)
		return Response{}, err
	}

	body, err := json.Marshal(res)
	if err != nil {
		return Response{}, fmt.Errorf("marshal result: %w", err)
	}
	return Response{StatusCode: 200, Body: string(body)}, nil
}

func (h *Handler) send(ctx context.Context, logger *slog.Logger, rep *report.Report, res *Result) {
	if h.Topic == nil && h.Webhook == nil {
		logger.Warn("no SNS topic or webhook configured, reports will not be sent")
	}
	if !rep.ShouldNotify {
		logger.Info("nothing to report")
		return
	}
	if h.Topic == nil && h.Webhook == nil {
		return
	}

	if h.Topic != nil {
		if err := h.Topic.Publish(ctx, rep.Text); err != nil {
			logger.Error("failed to publish report to SNS", "error", err)
			res.DeliveryFailures++
		} else {
			res.Notified = true
		}
	}

	if h.Webhook != nil {
		if err := h.Webhook.Notify(ctx, rep.SlackMessage()); err != nil {
			logger.Error("failed to send report to webhook", "error", err)
			res.DeliveryFailures++
		} else {
			res.Notified = true
		}
	}
}

// audited drops keys the engine could not measure.
func audited(keys []*models.AccessKey) []*models.AccessKey {
	kept := make([]*models.AccessKey, 0, len(keys))
	for _, k := range keys {
		if k.State != models.StateUnaudited {
			kept = append(kept, k)
		}
	}
	return kept
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) out() io.Writer {
	if h.Out != nil {
		return h.Out
	}
	return os.Stdout
}
