package table

import (
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/trussworks/terraform-aws-iam-sleuth/internal/models"
)

var header = table.Row{
	"UserName", "Slack ID", "Key ID", "Status", "State",
	"Age in Days", "Expires in Days", "Inactive Days", "Inactivity Expires in Days", "Created",
}

// Render writes one row per key to w. now anchors the relative creation
// times and should be the audit's pinned clock.
func Render(w io.Writer, users []*models.User, now time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(header)

	keys := 0
	for _, u := range users {
		for _, k := range u.Keys {
			keys++
			t.AppendRow(table.Row{
				u.Username,
				u.NotifyTarget,
				k.KeyID,
				string(k.Status),
				colorState(k.State),
				k.CreationAgeDays,
				k.DaysUntilExpiration,
				k.InactivityAgeDays,
				k.DaysUntilInactivityExpiration,
				humanize.RelTime(k.CreatedAt, now, "ago", "from now"),
			})
		}
	}

	t.AppendFooter(table.Row{"Users", strconv.Itoa(len(users)), "Keys", strconv.Itoa(keys)})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func colorState(s models.ComplianceState) string {
	switch s {
	case models.StateOldByAge, models.StateOldByInactivity:
		return text.FgYellow.Sprint(string(s))
	case models.StateExpiredByAge, models.StateExpiredByInactivity, models.StateDisabled:
		return text.FgRed.Sprint(string(s))
	}
	return string(s)
}
