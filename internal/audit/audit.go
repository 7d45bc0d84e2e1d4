package audit

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/trussworks/terraform-aws-iam-sleuth/internal/models"
)

// Policy holds the thresholds for one run. Zero optional thresholds are unset.
type Policy struct {
	RotateAfterDays    int
	ExpireAfterDays    int
	MaxInactivityDays  int
	InactivityWarnDays int
	AutoExpire         bool
}

// withDefaults fills unset inactivity thresholds from the age thresholds.
func (p Policy) withDefaults() Policy {
	if p.MaxInactivityDays == 0 {
		p.MaxInactivityDays = p.ExpireAfterDays
	}
	if p.InactivityWarnDays == 0 {
		p.InactivityWarnDays = p.RotateAfterDays
	}
	return p
}

// Validate checks the threshold ordering after defaults are applied.
func (p Policy) Validate() error {
	p = p.withDefaults()
	if p.RotateAfterDays >= p.ExpireAfterDays {
		return &ConfigurationError{Reason: fmt.Sprintf("rotate age %d must be less than expiration age %d", p.RotateAfterDays, p.ExpireAfterDays)}
	}
	if p.MaxInactivityDays > p.ExpireAfterDays {
		return &ConfigurationError{Reason: fmt.Sprintf("inactivity age %d must not exceed expiration age %d", p.MaxInactivityDays, p.ExpireAfterDays)}
	}
	if p.InactivityWarnDays >= p.MaxInactivityDays {
		return &ConfigurationError{Reason: fmt.Sprintf("inactivity warning age %d must be less than inactivity age %d", p.InactivityWarnDays, p.MaxInactivityDays)}
	}
	return nil
}

// Classify maps key ages and provider status to a compliance state.
// Expiry dominates rotation warnings, and a provider-disabled key dominates
// everything when auto expire is on.
func Classify(p Policy, creationAgeDays, inactivityAgeDays int, status models.KeyStatus) (models.ComplianceState, error) {
	if err := p.Validate(); err != nil {
		return models.StateUnaudited, err
	}
	return classify(p.withDefaults(), creationAgeDays, inactivityAgeDays, status), nil
}

func classify(p Policy, creationAge, inactivityAge int, status models.KeyStatus) models.ComplianceState {
	var state models.ComplianceState
	switch {
	case creationAge >= p.ExpireAfterDays:
		state = models.StateExpiredByAge
	case inactivityAge >= p.MaxInactivityDays:
		state = models.StateExpiredByInactivity
	case creationAge >= p.RotateAfterDays:
		state = models.StateOldByAge
	case inactivityAge >= p.InactivityWarnDays:
		state = models.StateOldByInactivity
	default:
		state = models.StateGood
	}
	return disabledOverride(p, state, status)
}

func disabledOverride(p Policy, state models.ComplianceState, status models.KeyStatus) models.ComplianceState {
	if status == models.KeyStatusInactive && p.AutoExpire {
		return models.StateDisabled
	}
	return state
}

// Engine audits keys against one policy at one instant.
type Engine struct {
	policy Policy
	now    time.Time
}

// NewEngine validates the policy and pins "now" for every key in the run.
func NewEngine(p Policy, now time.Time) (*Engine, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Engine{policy: p.withDefaults(), now: now}, nil
}

// Policy returns the effective policy, with defaults applied.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Now returns the instant the engine measures ages from.
func (e *Engine) Now() time.Time {
	return e.now
}

// AuditKey fills in the derived ages and state of k.
func (e *Engine) AuditKey(k *models.AccessKey) error {
	return e.auditKey(k, false)
}

func (e *Engine) auditKey(k *models.AccessKey, optOut bool) error {
	if err := e.measure(k); err != nil {
		k.State = models.StateUnaudited
		return err
	}
	if optOut {
		k.State = disabledOverride(e.policy, models.StateGood, k.Status)
		return nil
	}
	k.State = classify(e.policy, k.CreationAgeDays, k.InactivityAgeDays, k.Status)
	return nil
}

func (e *Engine) measure(k *models.AccessKey) error {
	if k.CreatedAt.IsZero() {
		return &MalformedRecordError{Username: k.Username, KeyID: k.KeyID, Field: "created date"}
	}
	if k.LastUsedAt.IsZero() {
		return &MalformedRecordError{Username: k.Username, KeyID: k.KeyID, Field: "last used date"}
	}
	k.CreationAgeDays = wholeDays(e.now.Sub(k.CreatedAt))
	k.InactivityAgeDays = wholeDays(e.now.Sub(k.LastUsedAt))
	k.DaysUntilExpiration = e.policy.ExpireAfterDays - k.CreationAgeDays
	k.DaysUntilInactivityExpiration = e.policy.MaxInactivityDays - k.InactivityAgeDays
	return nil
}

// AuditUser audits every key owned by u. Users that opted out of auto expire
// get Good for every measurable key. One error is returned per malformed key.
func (e *Engine) AuditUser(u *models.User) []error {
	var errs []error
	for _, k := range u.Keys {
		if err := e.auditKey(k, u.AutoExpireOptOut); err != nil {
			errs = append(errs, err)
			continue
		}
		slog.Debug("key audited",
			"username", u.Username,
			"key_id", k.KeyID,
			"state", k.State,
			"creation_age_days", k.CreationAgeDays,
			"inactivity_age_days", k.InactivityAgeDays,
		)
	}
	return errs
}

func wholeDays(d time.Duration) int {
	return int(math.Floor(d.Hours() / 24))
}
