package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/events"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// LiveFeed upgrades to a websocket and forwards change-feed events for the
// caller's own channel, plus the free-slot channel of ?watch_doctor=<id>.
// Events are hints: clients refetch from the API on receipt.
type LiveFeed struct {
	feed     events.Subscriber
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewLiveFeed(feed events.Subscriber, allowedOrigins []string, logger zerolog.Logger) *LiveFeed {
	return &LiveFeed{
		feed: feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	_, wildcard := set["*"]
	if len(set) == 0 || wildcard {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func channelsFor(actor appointment.Actor, watchDoctor *uuid.UUID) []string {
	var channels []string
	switch actor.Role {
	case appointment.RoleDoctor:
		channels = append(channels, events.DoctorChannel(actor.UserID))
	case appointment.RolePatient:
		channels = append(channels, events.PatientChannel(actor.UserID))
	}
	if watchDoctor != nil {
		channels = append(channels, events.SlotsChannel(*watchDoctor))
	}
	return channels
}

func (f *LiveFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)

	var watch *uuid.UUID
	if v := r.URL.Query().Get("watch_doctor"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "watch_doctor must be a valid UUID", false)
			return
		}
		watch = &id
	}

	// Detach from the request context: it ends when the handler returns, but
	// the session lives until the socket closes.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))

	sub, err := f.feed.Subscribe(ctx, channelsFor(actor, watch)...)
	if err != nil {
		cancel()
		f.logger.Error().Err(err).Str("user_id", actor.UserID.String()).Msg("live feed subscribe failed")
		writeError(w, http.StatusServiceUnavailable, "feed_unavailable", "live updates are temporarily unavailable", true)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		_ = sub.Close()
		return
	}

	go f.writePump(ctx, conn, sub)
	go f.readPump(cancel, conn)
}

// readPump only watches for the client going away.
func (f *LiveFeed) readPump(cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (f *LiveFeed) writePump(ctx context.Context, conn *websocket.Conn, sub events.Stream) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = sub.Close()
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
