package models

import "time"

// KeyStatus mirrors IAM's own access key status.
type KeyStatus string

// Key status constants
const (
	KeyStatusActive   KeyStatus = "Active"
	KeyStatusInactive KeyStatus = "Inactive"
)

// ComplianceState is the audit classification of a key at a point in time.
type ComplianceState string

// Compliance state constants
const (
	StateUnaudited           ComplianceState = ""
	StateGood                ComplianceState = "good"
	StateOldByAge            ComplianceState = "old"
	StateOldByInactivity     ComplianceState = "stagnant"
	StateExpiredByAge        ComplianceState = "expire"
	StateExpiredByInactivity ComplianceState = "stagnant_expire"
	StateDisabled            ComplianceState = "disabled"
)

// Expired reports whether the state calls for the key to be disabled.
func (s ComplianceState) Expired() bool {
	return s == StateExpiredByAge || s == StateExpiredByInactivity
}

// Tag keys read from IAM users.
const (
	TagSlack         = "Slack"
	TagKeyAutoExpire = "KeyAutoExpire"
)

// AccessKey is an IAM access key discovered during a run.
type AccessKey struct {
	KeyID      string    `json:"key_id"`
	Username   string    `json:"username"`
	Status     KeyStatus `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`

	// Derived at audit time.
	CreationAgeDays               int             `json:"creation_age_days"`
	InactivityAgeDays             int             `json:"inactivity_age_days"`
	DaysUntilExpiration           int             `json:"days_until_expiration"`
	DaysUntilInactivityExpiration int             `json:"days_until_inactivity_expiration"`
	State                         ComplianceState `json:"state"`
}

// User is an IAM user together with the keys it owns for one run.
type User struct {
	UserID           string       `json:"user_id"`
	Username         string       `json:"username"`
	NotifyTarget     string       `json:"notify_target"`
	AutoExpireOptOut bool         `json:"auto_expire_opt_out"`
	Keys             []*AccessKey `json:"keys"`
}

// NewUser returns a user with its own empty key collection.
func NewUser(userID, username string) *User {
	return &User{
		UserID:       userID,
		Username:     username,
		NotifyTarget: username,
		Keys:         []*AccessKey{},
	}
}

// DisabledKey identifies a key that was switched to Inactive during a run.
type DisabledKey struct {
	Username string `json:"username"`
	KeyID    string `json:"key_id"`
}

// SlackMessage is the incoming-webhook payload posted to Slack.
type SlackMessage struct {
	Attachments []SlackAttachment `json:"attachments"`
}

// SlackAttachment is one titled, optionally colored block of a SlackMessage.
type SlackAttachment struct {
	Title  string       `json:"title"`
	Text   string       `json:"text,omitempty"`
	Color  string       `json:"color,omitempty"`
	Fields []SlackField `json:"fields,omitempty"`
}

// SlackField is a titled value inside an attachment.
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
}
