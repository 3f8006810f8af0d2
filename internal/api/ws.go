package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/khainl1110/speedtrivia/internal/domain"
	"github.com/khainl1110/speedtrivia/internal/errors"
	"github.com/khainl1110/speedtrivia/internal/leaderboard"
	"github.com/khainl1110/speedtrivia/internal/session"
)

const (
	EventChatMessage      = "chat message"
	EventReset            = "reset"
	EventSubmitScore      = "submit score"
	EventLeaderboard      = "leaderboard"
	EventLeaderboardError = "leaderboard error"
)

const maxBroadcast = 100

// frame is one message on the realtime channel, inbound or outbound.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// conn is one live websocket connection. Writes are serialized; gorilla
// allows at most one concurrent writer.
type conn struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(event string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ws.WriteJSON(outFrame{Event: event, Data: data})
}

func (a *API) handleWS(gc *gin.Context) {
	ws, err := a.upgrader.Upgrade(gc.Writer, gc.Request, nil)
	if err != nil {
		slog.ErrorContext(gc.Request.Context(), "api: websocket upgrade failed", "error", err)
		return
	}

	eng := a.newEngine()
	cn := &conn{id: eng.ID(), ws: ws}

	a.register(cn)
	defer func() {
		a.unregister(cn.id)
		eng.Close()
		_ = ws.Close()
	}()

	// net/http stops watching a hijacked connection, so the request
	// context alone never notices the peer going away. The read pump runs
	// on its own goroutine and cancels the session context the moment the
	// socket errors, which aborts any in-flight generation call.
	ctx, cancel := context.WithCancel(gc.Request.Context())
	defer cancel()

	slog.InfoContext(ctx, "api: client connected", "session", eng.ID())

	frames := make(chan []byte, 16)
	go func() {
		defer close(frames)
		defer cancel()

		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				slog.InfoContext(ctx, "api: client disconnected", "session", eng.ID(), "error", err)
				return
			}

			select {
			case frames <- raw:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Frames are dispatched one at a time, so replies within a session
	// keep request order.
	for raw := range frames {
		a.dispatch(ctx, eng, cn, raw)
	}
}

func (a *API) dispatch(ctx context.Context, eng *session.Engine, cn *conn, raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		slog.WarnContext(ctx, "api: malformed frame", "session", eng.ID(), "error", err)
		return
	}

	switch f.Event {
	case EventChatMessage:
		msg, err := session.DecodeMessage(f.Data)
		if err != nil {
			slog.WarnContext(ctx, "api: undecodable chat payload", "session", eng.ID(), "error", err)
			return
		}

		reply := eng.HandleChat(ctx, msg)

		var data any = reply.Question
		if reply.End != nil {
			data = reply.End
		}
		if err := cn.send(EventChatMessage, data); err != nil {
			slog.WarnContext(ctx, "api: send reply failed", "session", eng.ID(), "error", err)
		}

	case EventReset:
		eng.Reset()

	case EventSubmitScore:
		var p struct {
			Name  string `json:"name"`
			Score int    `json:"score"`
		}
		if err := json.Unmarshal(f.Data, &p); err != nil {
			slog.WarnContext(ctx, "api: malformed score submission", "session", eng.ID(), "error", err)
			return
		}

		eng.End(p.Name, p.Score)

		l, err := a.ls.Submit(ctx, leaderboard.SubmitRequest{Name: p.Name, Score: p.Score})
		if err != nil {
			slog.ErrorContext(ctx, "api: score submission failed", "session", eng.ID(), "error", err)
			e := errors.Convert(err)
			if err := cn.send(EventLeaderboardError, gin.H{"message": e.Message}); err != nil {
				slog.WarnContext(ctx, "api: send leaderboard error failed", "session", eng.ID(), "error", err)
			}
			return
		}

		if err := cn.send(EventLeaderboard, rankedEntries(l)); err != nil {
			slog.WarnContext(ctx, "api: send leaderboard failed", "session", eng.ID(), "error", err)
		}

	default:
		slog.WarnContext(ctx, "api: unknown event", "session", eng.ID(), "event", f.Event)
	}
}

func (a *API) register(c *conn) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.conns[c.id] = c
}

func (a *API) unregister(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.conns, id)
}

// broadcastLeaderboard pushes the updated ranking to every live
// connection, the way the original broadcast every state change.
func (a *API) broadcastLeaderboard(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	entries := entriesPayload(e.Leaderboard.Entries)

	a.mu.RLock()
	conns := make([]*conn, 0, len(a.conns))
	for _, c := range a.conns {
		conns = append(conns, c)
	}
	a.mu.RUnlock()

	var eg errgroup.Group
	eg.SetLimit(maxBroadcast)

	for _, c := range conns {
		c := c
		eg.Go(func() error {
			return c.send(EventLeaderboard, entries)
		})
	}

	return eg.Wait()
}

type rankedEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func rankedEntries(l *domain.Leaderboard) []rankedEntry {
	return entriesPayload(l.Entries)
}

func entriesPayload(entries []domain.LeaderboardEntry) []rankedEntry {
	out := make([]rankedEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, rankedEntry{Name: e.Name, Score: e.Score})
	}
	return out
}
