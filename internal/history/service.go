// Package history keeps the durable log of finished games. Entries are
// append-only; there is no update or delete path.
package history

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khainl1110/speedtrivia/internal/domain"
	"github.com/khainl1110/speedtrivia/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{
		db: c.DB,
	}
}

// Append stores one finished game.
func (s *Service) Append(ctx context.Context, e domain.LeaderboardEntry) error {
	const stmt = `INSERT INTO plays (name, score, played_at) VALUES ($1, $2, $3);`

	if _, err := s.db.Exec(ctx, stmt, e.Name, e.Score, e.PlayedAt); err != nil {
		return errors.New(errors.CodeInternal,
			errors.WithMessagef("append play: name=%s", e.Name),
			errors.WithCause(err),
		)
	}

	return nil
}

type ListPlaysRequest struct {
	Limit int
}

// ListPlays returns the most recent finished games, newest first.
func (s *Service) ListPlays(ctx context.Context, req ListPlaysRequest) ([]domain.LeaderboardEntry, error) {
	const stmt = `
SELECT name, score, played_at
FROM plays
ORDER BY played_at DESC
LIMIT $1;`

	rows, err := s.db.Query(ctx, stmt, req.Limit)
	if err != nil {
		return nil, errors.Internal(err)
	}

	entries, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.LeaderboardEntry, error) {
		var e domain.LeaderboardEntry
		if err := r.Scan(&e.Name, &e.Score, &e.PlayedAt); err != nil {
			return domain.LeaderboardEntry{}, err
		}
		return e, nil
	})
	if err != nil {
		return nil, errors.Internal(err)
	}

	return entries, nil
}
