package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"ferrovia/internal/domain"
	"ferrovia/internal/hub"
	"ferrovia/internal/refresh"
)

// maxStationsPerSubscribe bounds the snapshot work one message can trigger.
const maxStationsPerSubscribe = 20

// ForcedRefresher starts a refresh that supersedes any in flight.
type ForcedRefresher interface {
	Refresh(ctx context.Context, stationID int64, day time.Time)
}

type WSHandler struct {
	hub       *hub.Hub
	boards    refresh.BoardBuilder
	refresher ForcedRefresher
	loc       *time.Location
	stats     *Stats
	now       func() time.Time
	logger    *slog.Logger

	// refreshCtx outlives client connections so a forced refresh is not
	// cancelled when the requesting client goes away.
	refreshCtx context.Context
}

func NewWSHandler(ctx context.Context, h *hub.Hub, boards refresh.BoardBuilder, refresher ForcedRefresher, loc *time.Location, stats *Stats, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		hub:        h,
		boards:     boards,
		refresher:  refresher,
		loc:        loc,
		stats:      stats,
		now:        time.Now,
		logger:     logger.With("handler", "websocket"),
		refreshCtx: ctx,
	}
}

type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StationsPayload is the payload of subscribe, unsubscribe and refresh.
type StationsPayload struct {
	StationIDs []int64 `json:"stationIds"`
}

type PongMessage struct {
	Type string `json:"type"`
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	clientID := uuid.New().String()
	client := hub.NewClient(clientID, 256)

	h.hub.Register(client)
	h.stats.IncWSConnections()
	defer h.stats.DecWSConnections()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, conn, client)

	h.readLoop(ctx, conn, client)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				h.logger.Debug("websocket read error", "client_id", client.ID, "error", err)
			}
			return
		}
		h.stats.IncWSMessagesIn()

		if msgType != websocket.MessageText {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("invalid message format", "client_id", client.ID, "error", err)
			continue
		}

		switch msg.Type {
		case "subscribe":
			ids, ok := stationIDs(msg.Payload)
			if !ok {
				continue
			}
			h.hub.Subscribe(client, ids)
			h.sendSnapshots(ctx, client, ids)

		case "unsubscribe":
			if ids, ok := stationIDs(msg.Payload); ok {
				h.hub.Unsubscribe(client, ids)
			}

		case "refresh":
			ids, ok := stationIDs(msg.Payload)
			if !ok || h.refresher == nil {
				continue
			}
			today := h.today()
			for _, id := range ids {
				if client.HasStation(id) {
					h.refresher.Refresh(h.refreshCtx, id, today)
				}
			}

		case "ping":
			h.sendPong(client)
		}
	}
}

func stationIDs(raw json.RawMessage) ([]int64, bool) {
	var payload StationsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}
	ids := make([]int64, 0, len(payload.StationIDs))
	for _, id := range payload.StationIDs {
		if id > 0 && len(ids) < maxStationsPerSubscribe {
			ids = append(ids, id)
		}
	}
	return ids, len(ids) > 0
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *hub.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
			h.stats.IncWSMessagesOut()

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) today() time.Time {
	return domain.ServiceDay(h.now(), h.loc)
}

func (h *WSHandler) sendSnapshots(ctx context.Context, client *hub.Client, ids []int64) {
	now := h.now()
	for _, id := range ids {
		board, err := h.boards.Board(ctx, id, now, now)
		if err != nil {
			h.logger.Warn("snapshot failed", "client_id", client.ID, "station_id", id, "error", err)
			continue
		}

		data, err := hub.EncodeBoard("snapshot", board)
		if err != nil {
			continue
		}

		select {
		case client.Send <- data:
		default:
			h.logger.Debug("failed to send snapshot, buffer full", "client_id", client.ID)
			return
		}
	}
}

func (h *WSHandler) sendPong(client *hub.Client) {
	msg := PongMessage{Type: "pong"}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case client.Send <- data:
	default:
	}
}
