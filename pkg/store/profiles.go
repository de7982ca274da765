package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const profileColumns = `id, email, username, account_index, wallet_id, created_at`

func scanProfile(row scanner) (Profile, error) {
	var (
		p       Profile
		created int64
	)
	if err := row.Scan(&p.ID, &p.Email, &p.Username, &p.AccountIndex, &p.WalletID, &created); err != nil {
		return Profile{}, err
	}
	p.CreatedAt = fromMillis(created)
	return p, nil
}

// GetProfile looks a profile up by id or, failing that, by email.
func (s *SQLStore) GetProfile(ctx context.Context, identifier string) (Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1 OR email = $1`, identifier)
	p, err := scanProfile(row)
	if err != nil {
		return Profile{}, notFound(err, "profile", identifier)
	}
	return p, nil
}

// CreateProfile inserts a profile, assigning an id when empty.
func (s *SQLStore) CreateProfile(ctx context.Context, p Profile) (Profile, error) {
	if p.ID == "" {
		p.ID = newID()
	}
	created := s.nowMillis()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Email, p.Username, p.AccountIndex, p.WalletID, created)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to create profile: %w", err)
	}
	p.CreatedAt = fromMillis(created)
	return p, nil
}

// VerifySessionToken returns the profile id owning a live session token.
func (s *SQLStore) VerifySessionToken(ctx context.Context, token string) (string, error) {
	var profileID string
	err := s.db.QueryRowContext(ctx,
		`SELECT profile_id FROM sessions WHERE token = $1 AND expires_at > $2`,
		token, s.nowMillis()).Scan(&profileID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidSession
	}
	if err != nil {
		return "", fmt.Errorf("failed to verify session: %w", err)
	}
	return profileID, nil
}

// CreateSession stores a token for profileID valid for ttl.
func (s *SQLStore) CreateSession(ctx context.Context, token, profileID string, ttl time.Duration) (Session, error) {
	expires := s.now().Add(ttl)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, profile_id, expires_at) VALUES ($1, $2, $3)`,
		token, profileID, expires.UnixMilli())
	if err != nil {
		return Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	return Session{Token: token, ProfileID: profileID, ExpiresAt: fromMillis(expires.UnixMilli())}, nil
}

// DeleteExpiredSessions removes sessions past their expiry and reports how many.
func (s *SQLStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, s.nowMillis())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
