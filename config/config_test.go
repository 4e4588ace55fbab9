package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("SCHEDULER_BACKEND", "")
	t.Setenv("MEETING_ALLOW_RESCHEDULE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "redis", cfg.Scheduler.Backend)
	assert.Equal(t, time.Second, cfg.Scheduler.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.Meeting.ReminderOffset)
	assert.False(t, cfg.Meeting.AllowReschedule)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "BOLT")
	t.Setenv("SCHEDULER_BACKEND", "memory")
	t.Setenv("SCHEDULER_EMBEDDED", "true")
	t.Setenv("MEETING_REMINDER_OFFSET_MIN", "10")
	t.Setenv("MEETING_ALLOW_RESCHEDULE", "true")
	t.Setenv("MEETING_ORGANIZER_ROLES", "admin, organizer")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "bolt", cfg.Store.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Meeting.ReminderOffset)
	assert.True(t, cfg.Meeting.AllowReschedule)
	assert.Equal(t, []string{"admin", "organizer"}, cfg.Meeting.OrganizerRoles)
	assert.Equal(t, 2.5, cfg.Server.RateLimitRPS)
}

func TestLoadRejectsUnknownDrivers(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", "bolt")
	t.Setenv("SCHEDULER_BACKEND", "memory")
	t.Setenv("SCHEDULER_EMBEDDED", "false")
	_, err = Load()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "meetings", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/meetings?sslmode=disable", c.DSN())
	c.URL = "postgres://elsewhere/x"
	assert.Equal(t, "postgres://elsewhere/x", c.DSN())
}
