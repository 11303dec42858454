package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/appointment-engine/internal/model"
)

func TestDefaultsDescribeTheStandardDay(t *testing.T) {
	cfg, err := Defaults()
	require.NoError(t, err)

	hours, err := cfg.Scheduling.WorkingHours()
	require.NoError(t, err)
	assert.Equal(t, model.DefaultWorkingHours(), hours)
	assert.Equal(t, model.DefaultDurationMinutes, cfg.Scheduling.DefaultDurationMinutes)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)

	assert.Error(t, cfg.Validate(), "jwt secret is required")
	cfg.JWT.Secret = "s"
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	t.Setenv("APPT_JWT_SECRET", "from-env")
	t.Setenv("APPT_DATABASE_DRIVER", "memory")
	t.Setenv("APPT_SCHEDULING_WORK_START", "09:00")
	t.Setenv("APPT_SCHEDULING_SLOT_MINUTES", "15")
	t.Setenv("APPT_SMTP_PASSWORD", "hunter2")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "hunter2", cfg.Mail.Password)

	hours, err := cfg.Scheduling.WorkingHours()
	require.NoError(t, err)
	assert.Equal(t, model.MustTimeOfDay("09:00"), hours.Start)
	assert.Equal(t, 15*time.Minute, hours.Granularity)
}

func TestValidateRejectsBadScheduling(t *testing.T) {
	cfg, err := Defaults()
	require.NoError(t, err)
	cfg.JWT.Secret = "s"

	bad := *cfg
	bad.Scheduling.WorkStart = "18:00"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Scheduling.SlotMinutes = 0
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Scheduling.SlotMinutes = 40
	assert.ErrorContains(t, bad.Validate(), "does not divide")

	bad = *cfg
	bad.Scheduling.Timezone = "Mars/Olympus"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Database.Driver = "sqlite"
	assert.Error(t, bad.Validate())
}

func TestLocation(t *testing.T) {
	loc, err := SchedulingConfig{Timezone: "Europe/Berlin"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())

	loc, err = SchedulingConfig{}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}
