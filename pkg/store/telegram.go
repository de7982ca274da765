package store

import (
	"context"
	"fmt"
	"strings"
)

const telegramColumns = `telegram_user_id, username, profile_id, is_registered, created_at`

func scanTelegramUser(row scanner) (TelegramUser, error) {
	var (
		u       TelegramUser
		created int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.ProfileID, &u.IsRegistered, &created); err != nil {
		return TelegramUser{}, err
	}
	u.CreatedAt = fromMillis(created)
	return u, nil
}

// CreateTelegramUser inserts a Telegram user.
func (s *SQLStore) CreateTelegramUser(ctx context.Context, u TelegramUser) (TelegramUser, error) {
	created := s.nowMillis()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO telegram_users (`+telegramColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, u.ProfileID, u.IsRegistered, created)
	if err != nil {
		return TelegramUser{}, fmt.Errorf("failed to create telegram user: %w", err)
	}
	u.CreatedAt = fromMillis(created)
	return u, nil
}

func (s *SQLStore) getTelegramUser(ctx context.Context, where, key string) (TelegramUser, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+telegramColumns+` FROM telegram_users WHERE `+where+` = $1`, key)
	u, err := scanTelegramUser(row)
	if err != nil {
		return TelegramUser{}, notFound(err, "telegram user", key)
	}
	return u, nil
}

func (s *SQLStore) GetTelegramUser(ctx context.Context, telegramUserID string) (TelegramUser, error) {
	return s.getTelegramUser(ctx, "telegram_user_id", telegramUserID)
}

func (s *SQLStore) GetTelegramUserByUsername(ctx context.Context, username string) (TelegramUser, error) {
	return s.getTelegramUser(ctx, "username", username)
}

func (s *SQLStore) GetTelegramUserByProfile(ctx context.Context, profileID string) (TelegramUser, error) {
	return s.getTelegramUser(ctx, "profile_id", profileID)
}

// GetAllRegisteredTelegramUsers returns users that completed registration.
func (s *SQLStore) GetAllRegisteredTelegramUsers(ctx context.Context) ([]TelegramUser, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+telegramColumns+` FROM telegram_users WHERE is_registered = $1 ORDER BY created_at, telegram_user_id`, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get registered telegram users: %w", err)
	}
	return collect(rows, scanTelegramUser)
}

// UpdateTelegramUser applies the non-nil fields of update.
func (s *SQLStore) UpdateTelegramUser(ctx context.Context, telegramUserID string, update TelegramUserUpdate) error {
	var (
		sets []string
		args []any
	)
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Username != nil {
		add("username", *update.Username)
	}
	if update.ProfileID != nil {
		add("profile_id", *update.ProfileID)
	}
	if update.IsRegistered != nil {
		add("is_registered", *update.IsRegistered)
	}
	if len(sets) == 0 {
		_, err := s.GetTelegramUser(ctx, telegramUserID)
		return err
	}

	args = append(args, telegramUserID)
	query := fmt.Sprintf(`UPDATE telegram_users SET %s WHERE telegram_user_id = $%d`, strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update telegram user %s: %w", telegramUserID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: telegram user %s", ErrNotFound, telegramUserID)
	}
	return nil
}
