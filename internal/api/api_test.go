package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khainl1110/speedtrivia/internal/api"
	"github.com/khainl1110/speedtrivia/internal/domain"
	"github.com/khainl1110/speedtrivia/internal/errors"
	"github.com/khainl1110/speedtrivia/internal/event"
	"github.com/khainl1110/speedtrivia/internal/fallback"
	"github.com/khainl1110/speedtrivia/internal/history"
	"github.com/khainl1110/speedtrivia/internal/leaderboard"
	"github.com/khainl1110/speedtrivia/internal/session"
)

type generatorFunc func(ctx context.Context, topic string, blocked []string) (domain.Question, error)

func (f generatorFunc) Generate(ctx context.Context, topic string, blocked []string) (domain.Question, error) {
	return f(ctx, topic, blocked)
}

func sequentialGenerator() generatorFunc {
	n := 0
	return func(ctx context.Context, topic string, blocked []string) (domain.Question, error) {
		n++
		return domain.Question{
			Text:         fmt.Sprintf("Question number %d about %s?", n, topic),
			Options:      []string{fmt.Sprintf("answer %d", n), "b", "c", "d", "e"},
			CorrectIndex: 0,
		}, nil
	}
}

func makeServer(t *testing.T, gen session.Generator, h leaderboard.History, opts ...func(*api.Config)) *httptest.Server {
	t.Helper()

	gin.SetMode(gin.TestMode)
	r := gin.New()

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{rs.Addr()}})

	ls := leaderboard.NewService(leaderboard.Config{
		EventBus: eb,
		History:  h,
		Redis:    rc,
		Prefix:   "test",
	})

	bank, err := fallback.NewBank()
	require.NoError(t, err)

	c := api.Config{
		Router:      r,
		EventBus:    eb,
		Generator:   gen,
		Leaderboard: ls,
		NewEngine: func() *session.Engine {
			return session.NewEngine(session.Config{Generator: gen, Bank: bank})
		},
	}
	for _, opt := range opts {
		opt(&c)
	}
	api.New(c)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

type testFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func send(t *testing.T, ws *websocket.Conn, event string, data any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(map[string]any{"event": event, "data": data}))
}

func read(t *testing.T, ws *websocket.Conn) testFrame {
	t.Helper()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f testFrame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func TestWS_GameFlow(t *testing.T) {
	srv := makeServer(t, sequentialGenerator(), nil)
	ws := dial(t, srv)

	// Start the game with a combined name+topic payload.
	send(t, ws, "chat message", map[string]any{"name": "Kim", "topic": "space"})

	f := read(t, ws)
	require.Equal(t, "chat message", f.Event)

	var q domain.Question
	require.NoError(t, json.Unmarshal(f.Data, &q))
	require.NoError(t, q.Validate())
	assert.Contains(t, q.Text, "space", "generation should use the selected topic")

	// A bare score delta keeps the topic and yields the next question.
	send(t, ws, "chat message", 10)

	f = read(t, ws)
	require.Equal(t, "chat message", f.Event)
	var q2 domain.Question
	require.NoError(t, json.Unmarshal(f.Data, &q2))
	assert.NotEqual(t, q.Text, q2.Text, "questions within a session must not repeat")

	// Submitting the final score yields the ranked list.
	send(t, ws, "submit score", map[string]any{"name": "Kim", "score": 10})

	f = read(t, ws)
	require.Equal(t, "leaderboard", f.Event)

	var entries []struct {
		Name  string `json:"name"`
		Score int    `json:"score"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Kim", entries[0].Name)
	assert.Equal(t, 10, entries[0].Score)

	// The game is over; further chat messages get the end summary.
	send(t, ws, "chat message", 0)

	for {
		f = read(t, ws)
		if f.Event == "leaderboard" { // broadcast from the submission above
			continue
		}
		break
	}
	require.Equal(t, "chat message", f.Event)

	var end struct {
		End   bool   `json:"end"`
		Score int    `json:"score"`
		Name  string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &end))
	assert.True(t, end.End)
	assert.Equal(t, "Kim", end.Name)
}

func TestWS_LeaderboardErrorIsSurfaced(t *testing.T) {
	failing := historyFunc(func(ctx context.Context, e domain.LeaderboardEntry) error {
		return errors.Internal(fmt.Errorf("connection refused"))
	})

	srv := makeServer(t, sequentialGenerator(), failing)
	ws := dial(t, srv)

	send(t, ws, "submit score", map[string]any{"name": "Kim", "score": 3})

	f := read(t, ws)
	assert.Equal(t, "leaderboard error", f.Event)

	var p struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &p))
	assert.NotEmpty(t, p.Message)
}

func TestWS_DisconnectCancelsGeneration(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	gen := generatorFunc(func(ctx context.Context, topic string, blocked []string) (domain.Question, error) {
		close(started)
		select {
		case <-ctx.Done():
			close(cancelled)
			return domain.Question{}, ctx.Err()
		case <-time.After(8 * time.Second):
			return domain.Question{}, fmt.Errorf("generation outlived the connection")
		}
	})

	srv := makeServer(t, gen, nil)
	ws := dial(t, srv)

	send(t, ws, "chat message", map[string]any{"name": "Kim", "topic": "space"})

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("generation never started")
	}

	require.NoError(t, ws.Close())

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("closing the socket must cancel in-flight generation")
	}
}

func TestHTTP_History(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var gotLimit int
	plays := playsFunc(func(ctx context.Context, req history.ListPlaysRequest) ([]domain.LeaderboardEntry, error) {
		gotLimit = req.Limit
		return []domain.LeaderboardEntry{
			{Name: "Kim", Score: 9, PlayedAt: at.Add(time.Minute)},
			{Name: "Lee", Score: 5, PlayedAt: at},
		}, nil
	})

	srv := makeServer(t, sequentialGenerator(), nil, func(c *api.Config) { c.History = plays })

	resp, err := srv.Client().Get(srv.URL + "/api/history")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 20, gotLimit, "an absent limit falls back to the default")

	var entries []domain.LeaderboardEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "Kim", entries[0].Name, "newest play comes first")

	// An explicit limit within bounds is passed through.
	resp2, err := srv.Client().Get(srv.URL + "/api/history?limit=5")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, 5, gotLimit)

	// Out-of-range limits fall back to the default.
	resp3, err := srv.Client().Get(srv.URL + "/api/history?limit=1000")
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, 20, gotLimit)
}

func TestHTTP_Generate(t *testing.T) {
	srv := makeServer(t, sequentialGenerator(), nil)

	resp, err := srv.Client().Get(srv.URL + "/api/generate?topic=space")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, 200, resp.StatusCode)

	var q domain.Question
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&q))
	assert.NoError(t, q.Validate())
}

func TestHTTP_GenerateFailure(t *testing.T) {
	gen := generatorFunc(func(ctx context.Context, topic string, blocked []string) (domain.Question, error) {
		return domain.Question{}, errors.Unavailable(fmt.Errorf("upstream down"))
	})

	srv := makeServer(t, gen, nil)

	resp, err := srv.Client().Get(srv.URL + "/api/generate?topic=space")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 500, resp.StatusCode)
}

type historyFunc func(ctx context.Context, e domain.LeaderboardEntry) error

func (f historyFunc) Append(ctx context.Context, e domain.LeaderboardEntry) error {
	return f(ctx, e)
}

type playsFunc func(ctx context.Context, req history.ListPlaysRequest) ([]domain.LeaderboardEntry, error)

func (f playsFunc) ListPlays(ctx context.Context, req history.ListPlaysRequest) ([]domain.LeaderboardEntry, error) {
	return f(ctx, req)
}
