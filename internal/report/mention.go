package report

import (
	"fmt"
	"log/slog"
	"strings"
)

// FormatMention turns a Slack tag value into a mention.
//
// User ids ("U...") become <@U...>. Group ids are stored as "subteam-<id>"
// because IAM tag values cannot contain "^"; they become <!subteam^<id>>,
// prefixed with displayName so the message still names the IAM account.
// Anything else is returned unchanged.
func FormatMention(slackID, displayName string) string {
	if slackID == "" {
		slog.Warn("slack id is empty")
		return "UNKNOWN"
	}

	if strings.Contains(slackID, "subteam") && strings.Contains(slackID, "-") {
		group := strings.ReplaceAll(slackID, "-", "^")
		if displayName == "" {
			return fmt.Sprintf("(see log) <!%s>", group)
		}
		return fmt.Sprintf("%s (<!%s>)", displayName, group)
	}

	if slackID[0] == 'U' {
		return fmt.Sprintf("<@%s>", slackID)
	}

	if slackID != displayName {
		slog.Warn("unrecognized slack id, not a user or team id", "slack_id", slackID)
	}
	return slackID
}
