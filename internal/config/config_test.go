package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BUGGY_AUTH_DISABLED", "true")
	t.Setenv("BUGGY_STORE", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, time.Second, cfg.HTTP.BoardCache)

	def := Defaults()
	assert.Equal(t, def.Matching, cfg.Matching)
	assert.Equal(t, def.Driver, cfg.Driver)
	assert.Equal(t, def.Ride, cfg.Ride)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BUGGY_AUTH_DISABLED", "true")
	t.Setenv("BUGGY_STORE", "memory")
	t.Setenv("BUGGY_MATCH_COOLDOWN", "30")
	t.Setenv("BUGGY_AUTO_ASSIGN", "true")
	t.Setenv("BUGGY_COST_CHAIN_BONUS", "40")
	t.Setenv("BUGGY_CANCEL_LOCK", "20m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Matching.CooldownSeconds)
	assert.True(t, cfg.Matching.AutoAssignEnabled)
	assert.Equal(t, 40.0, cfg.Matching.ChainBonus)
	assert.Equal(t, 20*time.Minute, cfg.Ride.CancelLock)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("BUGGY_AUTH_DISABLED", "true")
	t.Setenv("BUGGY_STORE", "sqlite")
	_, err := Load()
	assert.ErrorContains(t, err, "BUGGY_STORE")

	t.Setenv("BUGGY_STORE", "memory")
	t.Setenv("BUGGY_MATCH_TICK", "0")
	_, err = Load()
	assert.ErrorContains(t, err, "BUGGY_MATCH_TICK")

	t.Setenv("BUGGY_MATCH_TICK", "3")
	t.Setenv("BUGGY_AUTH_DISABLED", "false")
	t.Setenv("BUGGY_FIREBASE_PROJECT_ID", "")
	_, err = Load()
	assert.ErrorContains(t, err, "BUGGY_FIREBASE_PROJECT_ID")
}

func TestLoadBoard(t *testing.T) {
	_, err := LoadBoard()
	if err == nil {
		t.Skip("BUGGY_BOARD_TOKEN set in the environment")
	}

	t.Setenv("BUGGY_BOARD_TOKEN", "s1:staff")
	t.Setenv("BUGGY_POLL_IDLE", "15s")
	cfg, err := LoadBoard()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.URL)
	assert.Equal(t, 3*time.Second, cfg.Foreground)
	assert.Equal(t, 15*time.Second, cfg.Idle)
}
