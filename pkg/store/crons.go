package store

import (
	"context"
	"fmt"
)

const cronColumns = `c.id, c.profile_id, c.crew_id, c.schedule, c.input, c.enabled, c.created_at`

func scanCron(row scanner, extra ...any) (Cron, error) {
	var (
		c       Cron
		created int64
	)
	dest := append([]any{&c.ID, &c.ProfileID, &c.CrewID, &c.Schedule, &c.Input, &c.Enabled, &created}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Cron{}, err
	}
	c.CreatedAt = fromMillis(created)
	return c, nil
}

// CreateCron inserts a cron, assigning an id when empty.
func (s *SQLStore) CreateCron(ctx context.Context, c Cron) (Cron, error) {
	if c.ID == "" {
		c.ID = newID()
	}
	created := s.nowMillis()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crons (id, profile_id, crew_id, schedule, input, enabled, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.ProfileID, c.CrewID, c.Schedule, c.Input, c.Enabled, created)
	if err != nil {
		return Cron{}, fmt.Errorf("failed to create cron: %w", err)
	}
	c.CreatedAt = fromMillis(created)
	return c, nil
}

// SetCronEnabled toggles a cron.
func (s *SQLStore) SetCronEnabled(ctx context.Context, cronID string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE crons SET enabled = $1 WHERE id = $2`, enabled, cronID)
	if err != nil {
		return fmt.Errorf("failed to update cron %s: %w", cronID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: cron %s", ErrNotFound, cronID)
	}
	return nil
}

// GetEnabledCrons returns enabled crons, oldest first.
func (s *SQLStore) GetEnabledCrons(ctx context.Context) ([]Cron, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cronColumns+` FROM crons c WHERE c.enabled = $1 ORDER BY c.created_at, c.id`, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get enabled crons: %w", err)
	}
	return collect(rows, func(row scanner) (Cron, error) { return scanCron(row) })
}

// GetEnabledCronsExpanded returns enabled crons joined with profile and crew.
func (s *SQLStore) GetEnabledCronsExpanded(ctx context.Context) ([]ExpandedCron, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+cronColumns+`,
		        p.id, p.email, p.username, p.account_index, p.wallet_id, p.created_at,
		        w.id, w.profile_id, w.name, w.description, w.created_at
		 FROM crons c
		 JOIN profiles p ON p.id = c.profile_id
		 JOIN crews w ON w.id = c.crew_id
		 WHERE c.enabled = $1
		 ORDER BY c.created_at, c.id`, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get enabled crons: %w", err)
	}
	return collect(rows, func(row scanner) (ExpandedCron, error) {
		var (
			ec                          ExpandedCron
			profileCreated, crewCreated int64
		)
		p, w := &ec.Profile, &ec.Crew
		c, err := scanCron(row,
			&p.ID, &p.Email, &p.Username, &p.AccountIndex, &p.WalletID, &profileCreated,
			&w.ID, &w.ProfileID, &w.Name, &w.Description, &crewCreated)
		if err != nil {
			return ExpandedCron{}, err
		}
		ec.Cron = c
		p.CreatedAt = fromMillis(profileCreated)
		w.CreatedAt = fromMillis(crewCreated)
		return ec, nil
	})
}
