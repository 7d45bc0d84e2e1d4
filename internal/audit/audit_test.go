package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trussworks/terraform-aws-iam-sleuth/internal/models"
)

var now = time.Date(2019, 1, 16, 0, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return now.AddDate(0, 0, -n)
}

func newKey(status models.KeyStatus, createdDaysAgo, usedDaysAgo int) *models.AccessKey {
	return &models.AccessKey{
		KeyID:      "AKIAEXAMPLE",
		Username:   "user1",
		Status:     status,
		CreatedAt:  daysAgo(createdDaysAgo),
		LastUsedAt: daysAgo(usedDaysAgo),
	}
}

func TestAuditKey_Scenarios(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		key    *models.AccessKey
		want   models.ComplianceState
	}{
		{
			name:   "recent key is good",
			policy: Policy{RotateAfterDays: 60, ExpireAfterDays: 80, MaxInactivityDays: 20, InactivityWarnDays: 19},
			key:    newKey(models.KeyStatusActive, 15, 14),
			want:   models.StateGood,
		},
		{
			name:   "past rotate age is old",
			policy: Policy{RotateAfterDays: 60, ExpireAfterDays: 80, MaxInactivityDays: 20, InactivityWarnDays: 19},
			key:    newKey(models.KeyStatusActive, 65, 1),
			want:   models.StateOldByAge,
		},
		{
			name:   "unused past warning age is stagnant",
			policy: Policy{RotateAfterDays: 60, ExpireAfterDays: 80, MaxInactivityDays: 20, InactivityWarnDays: 10},
			key:    newKey(models.KeyStatusActive, 15, 15),
			want:   models.StateOldByInactivity,
		},
		{
			name:   "past expiration age is expired",
			policy: Policy{RotateAfterDays: 10, ExpireAfterDays: 11, MaxInactivityDays: 10, InactivityWarnDays: 8},
			key:    newKey(models.KeyStatusActive, 15, 14),
			want:   models.StateExpiredByAge,
		},
		{
			name:   "unused past inactivity age is stagnant expired",
			policy: Policy{RotateAfterDays: 60, ExpireAfterDays: 80, MaxInactivityDays: 20, InactivityWarnDays: 10},
			key:    newKey(models.KeyStatusActive, 30, 25),
			want:   models.StateExpiredByInactivity,
		},
		{
			name:   "inactive key with auto expire is disabled",
			policy: Policy{RotateAfterDays: 10, ExpireAfterDays: 11, MaxInactivityDays: 10, InactivityWarnDays: 8, AutoExpire: true},
			key:    newKey(models.KeyStatusInactive, 15, 14),
			want:   models.StateDisabled,
		},
		{
			name:   "inactive key without auto expire keeps computed state",
			policy: Policy{RotateAfterDays: 10, ExpireAfterDays: 11, MaxInactivityDays: 10, InactivityWarnDays: 8},
			key:    newKey(models.KeyStatusInactive, 15, 14),
			want:   models.StateExpiredByAge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := NewEngine(tt.policy, now)
			require.NoError(t, err)
			require.NoError(t, engine.AuditKey(tt.key))
			assert.Equal(t, tt.want, tt.key.State)
		})
	}
}

func TestAuditKey_DerivedFields(t *testing.T) {
	engine, err := NewEngine(Policy{RotateAfterDays: 60, ExpireAfterDays: 80, MaxInactivityDays: 20, InactivityWarnDays: 19}, now)
	require.NoError(t, err)

	key := newKey(models.KeyStatusActive, 15, 14)
	require.NoError(t, engine.AuditKey(key))

	assert.Equal(t, 15, key.CreationAgeDays)
	assert.Equal(t, 14, key.InactivityAgeDays)
	assert.Equal(t, 65, key.DaysUntilExpiration)
	assert.Equal(t, 6, key.DaysUntilInactivityExpiration)
}

func TestAuditKey_PartialDaysFloor(t *testing.T) {
	engine, err := NewEngine(Policy{RotateAfterDays: 60, ExpireAfterDays: 80}, now)
	require.NoError(t, err)

	key := &models.AccessKey{
		KeyID:      "AKIAPARTIAL",
		Status:     models.KeyStatusActive,
		CreatedAt:  now.Add(-(59*24*time.Hour + 23*time.Hour)),
		LastUsedAt: now.Add(-time.Hour),
	}
	require.NoError(t, engine.AuditKey(key))
	assert.Equal(t, 59, key.CreationAgeDays)
	assert.Equal(t, 0, key.InactivityAgeDays)
	assert.Equal(t, models.StateGood, key.State)
}

func TestNewEngine_InvalidPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
	}{
		{"rotate after expire", Policy{RotateAfterDays: 5, ExpireAfterDays: 1}},
		{"rotate equals expire", Policy{RotateAfterDays: 10, ExpireAfterDays: 10}},
		{"inactivity beyond expire", Policy{RotateAfterDays: 10, ExpireAfterDays: 20, MaxInactivityDays: 21, InactivityWarnDays: 5}},
		{"warning at inactivity", Policy{RotateAfterDays: 10, ExpireAfterDays: 20, MaxInactivityDays: 15, InactivityWarnDays: 15}},
		{"default warning above inactivity", Policy{RotateAfterDays: 10, ExpireAfterDays: 20, MaxInactivityDays: 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := NewEngine(tt.policy, now)
			assert.Nil(t, engine)
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %v", err)
		})
	}
}

func TestClassify_InvalidPolicy(t *testing.T) {
	_, err := Classify(Policy{RotateAfterDays: 5, ExpireAfterDays: 1}, 0, 0, models.KeyStatusActive)
	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestPolicy_Defaults(t *testing.T) {
	engine, err := NewEngine(Policy{RotateAfterDays: 80, ExpireAfterDays: 90}, now)
	require.NoError(t, err)

	p := engine.Policy()
	assert.Equal(t, 90, p.MaxInactivityDays)
	assert.Equal(t, 80, p.InactivityWarnDays)
}

func TestClassify_Totality(t *testing.T) {
	valid := map[models.ComplianceState]bool{
		models.StateGood:                true,
		models.StateOldByAge:            true,
		models.StateOldByInactivity:     true,
		models.StateExpiredByAge:        true,
		models.StateExpiredByInactivity: true,
		models.StateDisabled:            true,
	}
	policies := []Policy{
		{RotateAfterDays: 60, ExpireAfterDays: 80, MaxInactivityDays: 20, InactivityWarnDays: 19},
		{RotateAfterDays: 10, ExpireAfterDays: 11, MaxInactivityDays: 10, InactivityWarnDays: 8, AutoExpire: true},
		{RotateAfterDays: 85, ExpireAfterDays: 90, MaxInactivityDays: 30, InactivityWarnDays: 20},
	}

	for _, p := range policies {
		for _, status := range []models.KeyStatus{models.KeyStatusActive, models.KeyStatusInactive} {
			for creation := 0; creation <= 120; creation++ {
				for inactivity := 0; inactivity <= creation; inactivity += 3 {
					got, err := Classify(p, creation, inactivity, status)
					require.NoError(t, err)
					require.True(t, valid[got], "unexpected state %q", got)

					again, _ := Classify(p, creation, inactivity, status)
					require.Equal(t, got, again)
				}
			}
		}
	}
}

func TestClassify_AgeExpiryDominates(t *testing.T) {
	p := Policy{RotateAfterDays: 60, ExpireAfterDays: 80, MaxInactivityDays: 20, InactivityWarnDays: 10}
	for creation := 80; creation <= 200; creation += 7 {
		for _, inactivity := range []int{0, 9, 10, 19, 20, 150} {
			got, err := Classify(p, creation, inactivity, models.KeyStatusActive)
			require.NoError(t, err)
			assert.Equal(t, models.StateExpiredByAge, got, "creation=%d inactivity=%d", creation, inactivity)
		}
	}
}

func TestClassify_InactiveOverridesWithAutoExpire(t *testing.T) {
	p := Policy{RotateAfterDays: 60, ExpireAfterDays: 80, MaxInactivityDays: 20, InactivityWarnDays: 10, AutoExpire: true}
	for _, ages := range [][2]int{{0, 0}, {15, 12}, {65, 1}, {70, 25}, {300, 300}} {
		got, err := Classify(p, ages[0], ages[1], models.KeyStatusInactive)
		require.NoError(t, err)
		assert.Equal(t, models.StateDisabled, got)
	}
}

func TestAuditUser_OptOut(t *testing.T) {
	engine, err := NewEngine(Policy{RotateAfterDays: 10, ExpireAfterDays: 11, MaxInactivityDays: 10, InactivityWarnDays: 8, AutoExpire: true}, now)
	require.NoError(t, err)

	user := models.NewUser("AIDA1", "service-account")
	user.AutoExpireOptOut = true
	user.Keys = append(user.Keys,
		newKey(models.KeyStatusActive, 400, 300),
		newKey(models.KeyStatusActive, 15, 15),
	)

	errs := engine.AuditUser(user)
	assert.Empty(t, errs)
	for _, k := range user.Keys {
		assert.Equal(t, models.StateGood, k.State)
	}
	assert.Equal(t, 11-400, user.Keys[0].DaysUntilExpiration)
}

func TestAuditUser_OptOutKeepsProviderDisabled(t *testing.T) {
	engine, err := NewEngine(Policy{RotateAfterDays: 10, ExpireAfterDays: 11, AutoExpire: true}, now)
	require.NoError(t, err)

	user := models.NewUser("AIDA1", "service-account")
	user.AutoExpireOptOut = true
	user.Keys = append(user.Keys, newKey(models.KeyStatusInactive, 400, 300))

	assert.Empty(t, engine.AuditUser(user))
	assert.Equal(t, models.StateDisabled, user.Keys[0].State)
}

func TestAuditUser_MalformedKeyDoesNotStopOthers(t *testing.T) {
	engine, err := NewEngine(Policy{RotateAfterDays: 60, ExpireAfterDays: 80}, now)
	require.NoError(t, err)

	user := models.NewUser("AIDA2", "user2")
	broken := &models.AccessKey{KeyID: "AKIABROKEN", Username: "user2", Status: models.KeyStatusActive, LastUsedAt: daysAgo(1)}
	good := newKey(models.KeyStatusActive, 15, 1)
	user.Keys = append(user.Keys, broken, good)

	errs := engine.AuditUser(user)
	require.Len(t, errs, 1)

	var malformed *MalformedRecordError
	require.True(t, errors.As(errs[0], &malformed))
	assert.Equal(t, "AKIABROKEN", malformed.KeyID)
	assert.Equal(t, "user2", malformed.Username)

	assert.Equal(t, models.StateUnaudited, broken.State)
	assert.Equal(t, models.StateGood, good.State)
}

func TestAuditKey_ReauditOverwritesState(t *testing.T) {
	key := newKey(models.KeyStatusActive, 15, 1)

	strict, err := NewEngine(Policy{RotateAfterDays: 10, ExpireAfterDays: 11, MaxInactivityDays: 10, InactivityWarnDays: 8}, now)
	require.NoError(t, err)
	require.NoError(t, strict.AuditKey(key))
	assert.Equal(t, models.StateExpiredByAge, key.State)

	lenient, err := NewEngine(Policy{RotateAfterDays: 60, ExpireAfterDays: 80}, now)
	require.NoError(t, err)
	require.NoError(t, lenient.AuditKey(key))
	assert.Equal(t, models.StateGood, key.State)
}
