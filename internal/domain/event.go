package domain

const (
	EventNameScoreSubmitted     = "score.submitted"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventScoreSubmitted struct {
	Entry LeaderboardEntry
}

func (EventScoreSubmitted) Name() string { return EventNameScoreSubmitted }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
