package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MrSnakeDoc/wagate/internal/domain"
	"github.com/MrSnakeDoc/wagate/internal/httpserver/deps"
	"github.com/MrSnakeDoc/wagate/internal/logger"
	"github.com/MrSnakeDoc/wagate/internal/utils"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsBuffer       = 64

	defaultRecentCount = 50
)

// EventsStream pushes lifecycle events over a websocket. ?instance=name
// restricts the stream to one instance.
func EventsStream(d deps.Deps) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return checkOrigin(r, d.AllowedHosts)
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("instance")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			d.Logger.Warn("failed to upgrade to websocket",
				logger.String("remote_ip", r.RemoteAddr),
				logger.String("origin", r.Header.Get("Origin")),
				logger.Error(err))
			return
		}
		defer utils.Close(conn)

		events, cancel := d.Hub.Subscribe(wsBuffer)
		defer cancel()

		d.Logger.Info("event stream opened",
			logger.String("remote_ip", r.RemoteAddr),
			logger.String("instance", filter))
		start := time.Now()

		// the reader only detects disconnects; clients never send data
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			conn.SetReadLimit(512)
			_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(wsPongWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						d.Logger.Debug("event stream read error", logger.Error(err))
					}
					return
				}
			}
		}()

		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if filter != "" && ev.Instance != filter {
					continue
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case <-closed:
				d.Logger.Info("event stream closed",
					logger.String("remote_ip", r.RemoteAddr),
					logger.Duration("duration", time.Since(start)))
				return
			}
		}
	}
}

// checkOrigin accepts non-browser clients, same-origin requests and, when
// configured, origins whose host is allowed.
func checkOrigin(r *http.Request, allowedHosts []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	for _, h := range allowedHosts {
		if h == u.Host {
			return true
		}
	}
	return false
}

type recentResponse struct {
	Count  int            `json:"count"`
	Events []domain.Event `json:"events"`
}

// RecentEvents returns the newest events kept in Redis
func RecentEvents(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Store == nil {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: errorBody{
				Code:    domain.CodeNotFound,
				Message: "event history requires redis",
			}})
			return
		}

		count := int64(defaultRecentCount)
		if v := r.URL.Query().Get("count"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n <= 0 {
				writeError(w, d.Logger, domain.InvalidArgument("count must be a positive integer"))
				return
			}
			count = n
		}
		if d.EventsRecentMax > 0 && count > d.EventsRecentMax {
			count = d.EventsRecentMax
		}

		events, err := d.Store.RecentEvents(r.Context(), count)
		if err != nil {
			d.Logger.Warn("failed to read recent events", logger.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: errorBody{
				Code:    "unavailable",
				Message: "event history unavailable",
			}})
			return
		}

		if filter := r.URL.Query().Get("instance"); filter != "" {
			kept := events[:0]
			for _, ev := range events {
				if ev.Instance == filter {
					kept = append(kept, ev)
				}
			}
			events = kept
		}

		writeJSON(w, http.StatusOK, recentResponse{Count: len(events), Events: events})
	}
}
