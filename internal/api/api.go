package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/khainl1110/speedtrivia/internal/domain"
	"github.com/khainl1110/speedtrivia/internal/errors"
	"github.com/khainl1110/speedtrivia/internal/event"
	"github.com/khainl1110/speedtrivia/internal/history"
	"github.com/khainl1110/speedtrivia/internal/leaderboard"
	"github.com/khainl1110/speedtrivia/internal/session"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// History reads back the durable log of finished games.
type History interface {
	ListPlays(ctx context.Context, req history.ListPlaysRequest) ([]domain.LeaderboardEntry, error)
}

type Config struct {
	Router      *gin.Engine
	EventBus    *event.Bus
	Generator   session.Generator
	Leaderboard *leaderboard.Service
	History     History

	// NewEngine builds one session engine per websocket connection.
	NewEngine func() *session.Engine
}

type API struct {
	gen       session.Generator
	ls        *leaderboard.Service
	hist      History
	newEngine func() *session.Engine

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*conn
}

func New(c Config) *API {
	a := &API{
		gen:       c.Generator,
		ls:        c.Leaderboard,
		hist:      c.History,
		newEngine: c.NewEngine,
		upgrader: websocket.Upgrader{
			// The transport shell owns CORS; the upgrade itself accepts any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*conn),
	}

	c.Router.GET("/ws", a.handleWS)
	c.Router.GET("/api/generate", a.handleGenerate)
	c.Router.GET("/api/leaderboard", a.handleLeaderboard)
	if a.hist != nil {
		c.Router.GET("/api/history", a.handleHistory)
	}

	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.broadcastLeaderboard(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return a
}

func (a *API) handleGenerate(gc *gin.Context) {
	topic := strings.TrimSpace(gc.Query("topic"))
	if utf8.RuneCountInString(topic) < 3 {
		topic = session.DefaultTopic
	}

	q, err := a.gen.Generate(gc.Request.Context(), topic, nil)
	if err != nil {
		e := errors.Convert(err)
		gc.JSON(e.HTTPStatusCode(), gin.H{
			"error":   "question generation failed",
			"details": e.Message,
		})
		return
	}

	gc.JSON(http.StatusOK, q)
}

func (a *API) handleLeaderboard(gc *gin.Context) {
	l, err := a.ls.Query(gc.Request.Context())
	if err != nil {
		e := errors.Convert(err)
		gc.JSON(e.HTTPStatusCode(), gin.H{"error": e.Message})
		return
	}

	gc.JSON(http.StatusOK, rankedEntries(l))
}

func (a *API) handleHistory(gc *gin.Context) {
	limit := defaultHistoryLimit
	if q := gc.Query("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= maxHistoryLimit {
			limit = n
		}
	}

	entries, err := a.hist.ListPlays(gc.Request.Context(), history.ListPlaysRequest{Limit: limit})
	if err != nil {
		e := errors.Convert(err)
		gc.JSON(e.HTTPStatusCode(), gin.H{"error": e.Message})
		return
	}

	gc.JSON(http.StatusOK, entries)
}
