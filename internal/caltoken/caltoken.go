// Package caltoken mints and resolves the opaque tokens that back a user's
// ICS calendar feed (spec §4.B), grounded on
// original_source/src/gurt/calendar_tokens/{minting,model,repository}.py.
package caltoken

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/antigravity-dev/studybuddy/internal/apperr"
	"github.com/antigravity-dev/studybuddy/internal/config"
	"github.com/antigravity-dev/studybuddy/internal/fsrs"
	"github.com/antigravity-dev/studybuddy/internal/models"
	"github.com/antigravity-dev/studybuddy/internal/store"
)

// TokenFactory produces a fresh opaque token for the endpoint minting path.
type TokenFactory func() (string, error)

// defaultTokenFactory mirrors default_token_factory's secrets.token_urlsafe(32):
// 32 random bytes, URL-safe base64, unpadded.
func defaultTokenFactory() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("caltoken: generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Minter mints and resolves calendar tokens against a Store.
type Minter struct {
	Store   *store.Store
	Config  *config.Config
	NowFunc func() time.Time
	Factory TokenFactory
}

func (m *Minter) now() time.Time {
	if m.NowFunc != nil {
		return m.NowFunc()
	}
	return time.Now().UTC()
}

func (m *Minter) factory() TokenFactory {
	if m.Factory != nil {
		return m.Factory
	}
	return defaultTokenFactory
}

// Mint implements spec §4.B's mint(userId, config) -> record. In the
// default "endpoint" path it generates a fresh random token; in the "env"
// path it reuses config.CalendarToken and rejects a mismatched user binding.
func (m *Minter) Mint(ctx context.Context, userID string) (models.CalendarTokenRecord, error) {
	if userID == "" {
		return models.CalendarTokenRecord{}, apperr.Validation("userId is required")
	}

	var token string
	if m.Config.CalendarTokenMintingPath == "env" {
		if m.Config.CalendarToken == "" {
			return models.CalendarTokenRecord{}, apperr.Misconfigured("CALENDAR_TOKEN is required when CALENDAR_TOKEN_MINTING_PATH=env")
		}
		if m.Config.CalendarTokenUserID != "" && m.Config.CalendarTokenUserID != userID {
			return models.CalendarTokenRecord{}, apperr.Validation("CALENDAR_TOKEN_USER_ID does not match requested userId")
		}
		token = m.Config.CalendarToken
	} else {
		t, err := m.factory()()
		if err != nil {
			return models.CalendarTokenRecord{}, err
		}
		token = t
	}

	now := fsrs.FormatRFC3339UTC(m.now())
	record := models.CalendarTokenRecord{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.Store.PutCalendarToken(ctx, record); err != nil {
		return models.CalendarTokenRecord{}, err
	}
	return record, nil
}

// Get resolves a token to its record. A feed lookup (see Resolve) treats
// revoked tokens as missing; Get itself returns the raw record so admin/
// revocation views can still see revoked tokens.
func (m *Minter) Get(ctx context.Context, token string) (models.CalendarTokenRecord, error) {
	return m.Store.GetCalendarToken(ctx, token)
}

// Resolve looks up a token for feed rendering: a revoked or unknown token
// is NotFound.
func (m *Minter) Resolve(ctx context.Context, token string) (models.CalendarTokenRecord, error) {
	record, err := m.Store.GetCalendarToken(ctx, token)
	if err != nil {
		return models.CalendarTokenRecord{}, err
	}
	if record.Revoked {
		return models.CalendarTokenRecord{}, apperr.NotFound("calendar token not found")
	}
	return record, nil
}

// Revoke marks a token revoked as of now (or the supplied revokedAt).
func (m *Minter) Revoke(ctx context.Context, token, revokedAt string) error {
	if revokedAt == "" {
		revokedAt = fsrs.FormatRFC3339UTC(m.now())
	}
	return m.Store.RevokeCalendarToken(ctx, token, revokedAt)
}
