package caltoken

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/studybuddy/internal/config"
	"github.com/antigravity-dev/studybuddy/internal/store"
)

func openTestDB(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMint_EndpointPathUsesFactory(t *testing.T) {
	db := openTestDB(t)
	m := &Minter{
		Store:   db,
		Config:  &config.Config{CalendarTokenMintingPath: "endpoint"},
		NowFunc: func() time.Time { return time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC) },
		Factory: func() (string, error) { return "generated-token", nil },
	}

	record, err := m.Mint(context.Background(), "demo-user")
	require.NoError(t, err)
	require.Equal(t, "generated-token", record.Token)
	require.Equal(t, "demo-user", record.UserID)

	stored, err := db.GetCalendarToken(context.Background(), "generated-token")
	require.NoError(t, err)
	require.Equal(t, record, stored)
}

func TestMint_EnvPathUsesSeededToken(t *testing.T) {
	db := openTestDB(t)
	m := &Minter{
		Store: db,
		Config: &config.Config{
			CalendarTokenMintingPath: "env",
			CalendarToken:            "seeded-token",
			CalendarTokenUserID:      "demo-user",
		},
	}

	record, err := m.Mint(context.Background(), "demo-user")
	require.NoError(t, err)
	require.Equal(t, "seeded-token", record.Token)
}

func TestMint_EnvPathRejectsUserMismatch(t *testing.T) {
	db := openTestDB(t)
	m := &Minter{
		Store: db,
		Config: &config.Config{
			CalendarTokenMintingPath: "env",
			CalendarToken:            "seeded-token",
			CalendarTokenUserID:      "demo-user",
		},
	}

	_, err := m.Mint(context.Background(), "different-user")
	require.Error(t, err)
}

func TestMint_EnvPathAllowsUnsetUserBinding(t *testing.T) {
	db := openTestDB(t)
	m := &Minter{
		Store: db,
		Config: &config.Config{
			CalendarTokenMintingPath: "env",
			CalendarToken:            "seeded-token",
		},
	}

	record, err := m.Mint(context.Background(), "any-user")
	require.NoError(t, err)
	require.Equal(t, "any-user", record.UserID)
}

func TestResolve_TreatsRevokedTokenAsMissing(t *testing.T) {
	db := openTestDB(t)
	m := &Minter{
		Store:   db,
		Config:  &config.Config{CalendarTokenMintingPath: "endpoint"},
		NowFunc: func() time.Time { return time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC) },
		Factory: func() (string, error) { return "t1", nil },
	}
	record, err := m.Mint(context.Background(), "u1")
	require.NoError(t, err)

	_, err = m.Resolve(context.Background(), record.Token)
	require.NoError(t, err)

	require.NoError(t, m.Revoke(context.Background(), record.Token, ""))

	_, err = m.Resolve(context.Background(), record.Token)
	require.Error(t, err)
}
