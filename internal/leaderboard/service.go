package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/khainl1110/speedtrivia/internal/domain"
	"github.com/khainl1110/speedtrivia/internal/errors"
	"github.com/khainl1110/speedtrivia/internal/event"
)

// TopN is how many entries a ranked list is truncated to.
const TopN = 10

// History is the durable store entries are appended to before they enter
// the ranking. A failed append is surfaced to the caller, never swallowed.
type History interface {
	Append(ctx context.Context, e domain.LeaderboardEntry) error
}

type Config struct {
	EventBus *event.Bus
	History  History
	Redis    redis.UniversalClient
	Prefix   string

	// NowFunc stamps submissions, overridable in tests.
	NowFunc func() time.Time
}

type Service struct {
	eb      *event.Bus
	history History
	redis   redis.UniversalClient
	prefix  string
	now     func() time.Time
}

func NewService(c Config) *Service {
	now := c.NowFunc
	if now == nil {
		now = time.Now
	}

	return &Service{
		eb:      c.EventBus,
		history: c.History,
		redis:   c.Redis,
		prefix:  c.Prefix,
		now:     now,
	}
}

type SubmitRequest struct {
	Name  string
	Score int
}

// Submit appends one durable entry and returns the resulting top entries.
// The ranking is updated only after the durable append succeeds, so a
// persistence failure leaves the leaderboard untouched.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.Leaderboard, error) {
	entry := domain.LeaderboardEntry{
		Name:     strings.TrimSpace(req.Name),
		Score:    req.Score,
		PlayedAt: s.now().UTC(),
	}

	if s.history != nil {
		if err := s.history.Append(ctx, entry); err != nil {
			return nil, fmt.Errorf("submit score: %w", err)
		}
	}

	if err := s.redis.ZAdd(ctx, s.rankingKey(), redis.Z{
		Score:  float64(entry.Score),
		Member: encodeMember(entry),
	}).Err(); err != nil {
		return nil, errors.New(errors.CodeInternal,
			errors.WithMessagef("submit score: update ranking: name=%s", entry.Name),
			errors.WithCause(err),
		)
	}

	l, err := s.Query(ctx)
	if err != nil {
		return nil, err
	}

	if s.eb != nil {
		s.eb.Publish(ctx, domain.EventScoreSubmitted{Entry: entry})
		s.eb.Publish(ctx, domain.EventLeaderboardUpdated{Leaderboard: *l})
	}

	return l, nil
}

// Query returns the current top entries, score descending with the
// earliest play first on ties. Read-only.
func (s *Service) Query(ctx context.Context) (*domain.Leaderboard, error) {
	res, err := s.redis.ZRevRangeWithScores(ctx, s.rankingKey(), 0, -1).Result()
	if err != nil {
		return nil, errors.New(errors.CodeInternal,
			errors.WithMessagef("query leaderboard"),
			errors.WithCause(err),
		)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for _, z := range res {
		e, err := decodeMember(z.Member.(string), int(z.Score))
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	// ZSET ordering ties on the member string; re-sort so ties rank the
	// earliest play first.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].PlayedAt.Before(entries[j].PlayedAt)
	})

	if len(entries) > TopN {
		entries = entries[:TopN]
	}

	return &domain.Leaderboard{Entries: entries}, nil
}

func (s *Service) rankingKey() string {
	return fmt.Sprintf("%s:leaderboard", s.prefix)
}

// encodeMember folds the play timestamp and a fresh id into the ZSET member
// so one player can appear once per finished game, even when two games with
// the same name finish in the same millisecond.
func encodeMember(e domain.LeaderboardEntry) string {
	return fmt.Sprintf("%d:%s:%s", e.PlayedAt.UnixMilli(), uuid.NewString(), e.Name)
}

func decodeMember(member string, score int) (domain.LeaderboardEntry, error) {
	ms, rest, ok := strings.Cut(member, ":")
	if !ok {
		return domain.LeaderboardEntry{}, errors.New(errors.CodeInternal,
			errors.WithMessagef("malformed leaderboard member: %q", member))
	}

	// The name keeps any colons it contains; only the id is stripped.
	_, name, ok := strings.Cut(rest, ":")
	if !ok {
		return domain.LeaderboardEntry{}, errors.New(errors.CodeInternal,
			errors.WithMessagef("malformed leaderboard member: %q", member))
	}

	t, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return domain.LeaderboardEntry{}, errors.New(errors.CodeInternal,
			errors.WithMessagef("malformed leaderboard member: %q", member),
			errors.WithCause(err),
		)
	}

	return domain.LeaderboardEntry{
		Name:     name,
		Score:    score,
		PlayedAt: time.UnixMilli(t).UTC(),
	}, nil
}
