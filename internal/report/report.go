package report

import (
	"fmt"
	"strings"

	"github.com/trussworks/terraform-aws-iam-sleuth/internal/models"
)

// Default header text used when a Titles field is empty.
const (
	DefaultAgeTitle        = "Key Rotation Instructions"
	DefaultAgeBody         = "Please run key rotation tool!"
	DefaultInactivityTitle = "Inactive Key Instructions"
	DefaultInactivityBody  = "Please log in to AWS to keep your access key from being disabled."
)

// Fixed section titles.
const (
	TitleOldByAge            = "IAM users with access keys expiring due to creation age"
	TitleExpiredByAge        = "IAM users with disabled access keys due to creation age"
	TitleOldByInactivity     = "IAM users with access keys expiring due to inactivity"
	TitleExpiredByInactivity = "IAM users with disabled access keys due to inactivity"
)

// Section colors.
const (
	ColorWarning = "#ffff00"
	ColorExpired = "#ff0000"
)

const usersFieldTitle = "Users"

// Titles customizes the header sections of a report.
type Titles struct {
	AgeTitle        string
	AgeBody         string
	InactivityTitle string
	InactivityBody  string
}

func (t Titles) withDefaults() Titles {
	if t.AgeTitle == "" {
		t.AgeTitle = DefaultAgeTitle
	}
	if t.AgeBody == "" {
		t.AgeBody = DefaultAgeBody
	}
	if t.InactivityTitle == "" {
		t.InactivityTitle = DefaultInactivityTitle
	}
	if t.InactivityBody == "" {
		t.InactivityBody = DefaultInactivityBody
	}
	return t
}

// Section is one block of the structured payload. Header sections have no
// color; category sections carry one entry per line in Body.
type Section struct {
	Title  string
	Body   string
	Color  string
	Header bool
}

// Report is the grouped result of an audit, ready for any transport.
type Report struct {
	OldByAge            []string
	ExpiredByAge        []string
	OldByInactivity     []string
	ExpiredByInactivity []string

	Sections     []Section
	Text         string
	ShouldNotify bool
}

// Build groups audited keys by state and renders both payload forms.
func Build(users []*models.User, titles Titles) *Report {
	titles = titles.withDefaults()
	r := &Report{}

	// Plain text keeps input order across old and expired entries.
	var ageMsgs, inactivityMsgs []string

	for _, u := range users {
		mention := FormatMention(u.NotifyTarget, u.Username)
		for _, k := range u.Keys {
			switch k.State {
			case models.StateOldByAge:
				msg := expiringMessage(mention, k.DaysUntilExpiration, "age")
				r.OldByAge = append(r.OldByAge, msg)
				ageMsgs = append(ageMsgs, msg)
			case models.StateExpiredByAge:
				msg := disabledMessage(mention, "age")
				r.ExpiredByAge = append(r.ExpiredByAge, msg)
				ageMsgs = append(ageMsgs, msg)
			case models.StateOldByInactivity:
				msg := expiringMessage(mention, k.DaysUntilExpiration, "inactivity")
				r.OldByInactivity = append(r.OldByInactivity, msg)
				inactivityMsgs = append(inactivityMsgs, msg)
			case models.StateExpiredByInactivity:
				msg := disabledMessage(mention, "inactivity")
				r.ExpiredByInactivity = append(r.ExpiredByInactivity, msg)
				inactivityMsgs = append(inactivityMsgs, msg)
			}
		}
	}

	if len(ageMsgs) > 0 {
		r.Sections = append(r.Sections, Section{Title: titles.AgeTitle, Body: titles.AgeBody, Header: true})
		r.Sections = appendCategory(r.Sections, TitleOldByAge, ColorWarning, r.OldByAge)
		r.Sections = appendCategory(r.Sections, TitleExpiredByAge, ColorExpired, r.ExpiredByAge)
		r.Text += textBlock(titles.AgeTitle, titles.AgeBody, ageMsgs)
	}
	if len(inactivityMsgs) > 0 {
		r.Sections = append(r.Sections, Section{Title: titles.InactivityTitle, Body: titles.InactivityBody, Header: true})
		r.Sections = appendCategory(r.Sections, TitleExpiredByInactivity, ColorExpired, r.ExpiredByInactivity)
		r.Sections = appendCategory(r.Sections, TitleOldByInactivity, ColorWarning, r.OldByInactivity)
		r.Text += textBlock(titles.InactivityTitle, titles.InactivityBody, inactivityMsgs)
	}

	r.ShouldNotify = len(ageMsgs)+len(inactivityMsgs) > 0
	return r
}

// SlackMessage converts the sections to Slack attachments.
func (r *Report) SlackMessage() models.SlackMessage {
	msg := models.SlackMessage{Attachments: make([]models.SlackAttachment, 0, len(r.Sections))}
	for _, s := range r.Sections {
		if s.Header {
			msg.Attachments = append(msg.Attachments, models.SlackAttachment{Title: s.Title, Text: s.Body})
			continue
		}
		msg.Attachments = append(msg.Attachments, models.SlackAttachment{
			Title:  s.Title,
			Color:  s.Color,
			Fields: []models.SlackField{{Title: usersFieldTitle, Value: s.Body}},
		})
	}
	return msg
}

func appendCategory(sections []Section, title, color string, msgs []string) []Section {
	if len(msgs) == 0 {
		return sections
	}
	return append(sections, Section{Title: title, Body: strings.Join(msgs, "\n"), Color: color})
}

func textBlock(title, body string, msgs []string) string {
	return fmt.Sprintf("%s:\n%s\n%s\n", title, body, strings.Join(msgs, "\n"))
}

func expiringMessage(mention string, days int, reason string) string {
	return fmt.Sprintf("%s's key expires in %d days due to %s.", mention, days, reason)
}

func disabledMessage(mention, reason string) string {
	return fmt.Sprintf("%s's key is disabled due to %s.", mention, reason)
}
