package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"ferrovia/internal/schedule"
)

type Client struct {
	ID       string
	Send     chan []byte
	stations map[int64]struct{}
	mu       sync.RWMutex
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:       id,
		Send:     make(chan []byte, bufferSize),
		stations: make(map[int64]struct{}),
	}
}

func (c *Client) HasStation(stationID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.stations[stationID]
	return ok
}

func (c *Client) AddStations(ids []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.stations[id] = struct{}{}
	}
}

func (c *Client) RemoveStations(ids []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.stations, id)
	}
}

func (c *Client) Stations() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]int64, 0, len(c.stations))
	for id := range c.stations {
		ids = append(ids, id)
	}
	return ids
}

// Hub fans refreshed station boards out to the websocket clients subscribed
// to those stations.
type Hub struct {
	mu             sync.RWMutex
	clients        map[*Client]struct{}
	stationClients map[int64]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan *schedule.Board

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:        make(map[*Client]struct{}),
		stationClients: make(map[int64]map[*Client]struct{}),
		register:       make(chan *Client, 16),
		unregister:     make(chan *Client, 16),
		broadcast:      make(chan *schedule.Board, 256),
		logger:         logger.With("component", "hub"),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.ID, "total", total)

		case client := <-h.unregister:
			h.removeClient(client)

		case board := <-h.broadcast:
			h.fanoutBoard(board)
		}
	}
}

func (h *Hub) Subscribe(client *Client, stationIDs []int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.AddStations(stationIDs)

	for _, id := range stationIDs {
		if h.stationClients[id] == nil {
			h.stationClients[id] = make(map[*Client]struct{})
		}
		h.stationClients[id][client] = struct{}{}
	}
}

func (h *Hub) Unsubscribe(client *Client, stationIDs []int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.RemoveStations(stationIDs)
	h.detach(client, stationIDs)
}

// detach must be called with h.mu held.
func (h *Hub) detach(client *Client, stationIDs []int64) {
	for _, id := range stationIDs {
		if h.stationClients[id] != nil {
			delete(h.stationClients[id], client)
			if len(h.stationClients[id]) == 0 {
				delete(h.stationClients, id)
			}
		}
	}
}

// PublishBoard queues a board for every client subscribed to its station.
func (h *Hub) PublishBoard(board *schedule.Board) {
	if board == nil {
		return
	}
	select {
	case h.broadcast <- board:
	default:
		h.logger.Warn("broadcast channel full, dropping board", "station_id", board.StationID)
	}
}

// SubscribedStations lists stations with at least one subscriber.
func (h *Hub) SubscribedStations() []int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]int64, 0, len(h.stationClients))
	for id := range h.stationClients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BoardMessage is pushed to clients; Type is "board" for periodic updates
// and "snapshot" for the reply to a subscription.
type BoardMessage struct {
	Type    string          `json:"type"`
	Payload *schedule.Board `json:"payload"`
}

func EncodeBoard(msgType string, board *schedule.Board) ([]byte, error) {
	return json.Marshal(BoardMessage{Type: msgType, Payload: board})
}

func (h *Hub) fanoutBoard(board *schedule.Board) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.stationClients[board.StationID]
	if !ok {
		return
	}

	data, err := EncodeBoard("board", board)
	if err != nil {
		h.logger.Error("failed to encode board", "station_id", board.StationID, "error", err)
		return
	}

	for client := range clients {
		select {
		case client.Send <- data:
		default:
			h.logger.Debug("client send buffer full", "client_id", client.ID)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	h.detach(client, client.Stations())
	delete(h.clients, client)
	close(client.Send)
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]struct{})
	h.stationClients = make(map[int64]map[*Client]struct{})
}
