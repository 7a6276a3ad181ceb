// Package stream fans ride events out to websocket clients. With redis
// configured every broadcast goes through pub/sub so each API instance
// delivers to its own clients.
package stream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "ride:"
	channelSuffix  = ":live"
	channelPattern = channelPrefix + "*" + channelSuffix
	sendBuffer     = 64
)

// Envelope is the frame sent to clients.
type Envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type Hub struct {
	redis   *redis.Client
	log     *zap.Logger
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	pubsub  *redis.PubSub
	done    chan struct{}
}

type Client struct {
	RideID string
	UserID string
	Send   chan []byte
}

// NewHub returns a hub local to this process unless redisClient is set, in
// which case events published on any instance reach local subscribers.
func NewHub(redisClient *redis.Client, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		redis:   redisClient,
		log:     log.Named("stream"),
		clients: map[string]map[*Client]struct{}{},
		done:    make(chan struct{}),
	}

	if redisClient != nil {
		h.subscribe()
	} else {
		close(h.done)
	}
	return h
}

// subscribe waits for the PSUBSCRIBE confirmation so broadcasts issued right
// after NewHub are not lost.
func (h *Hub) subscribe() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	h.pubsub = h.redis.PSubscribe(context.Background(), channelPattern)
	if _, err := h.pubsub.Receive(ctx); err != nil {
		h.log.Warn("redis subscribe failed, delivering locally", zap.Error(err))
		_ = h.pubsub.Close()
		h.pubsub = nil
		close(h.done)
		return
	}
	go h.forward(h.pubsub.Channel())
}

func (h *Hub) forward(ch <-chan *redis.Message) {
	defer close(h.done)
	for msg := range ch {
		rideID := rideIDFromChannel(msg.Channel)
		if rideID == "" {
			continue
		}
		h.deliver(rideID, []byte(msg.Payload))
	}
}

func (h *Hub) Register(rideID, userID string) *Client {
	client := &Client{
		RideID: rideID,
		UserID: userID,
		Send:   make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[rideID] == nil {
		h.clients[rideID] = map[*Client]struct{}{}
	}
	h.clients[rideID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rideClients, ok := h.clients[client.RideID]
	if !ok {
		return
	}
	if _, ok := rideClients[client]; !ok {
		return
	}
	delete(rideClients, client)
	if len(rideClients) == 0 {
		delete(h.clients, client.RideID)
	}
	close(client.Send)
}

// Clients reports how many local connections follow a ride.
func (h *Hub) Clients(rideID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[rideID])
}

// Broadcast publishes payload to every follower of rideID.
func (h *Hub) Broadcast(rideID string, payload []byte) {
	if h.pubsub != nil {
		err := h.redis.Publish(context.Background(), redisChannel(rideID), payload).Err()
		if err == nil {
			return
		}
		h.log.Warn("redis publish failed, delivering locally", zap.String("ride_id", rideID), zap.Error(err))
	}
	h.deliver(rideID, payload)
}

// BroadcastJSON wraps v in an Envelope of the given kind.
func (h *Hub) BroadcastJSON(rideID, kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Envelope{Kind: kind, Data: data})
	if err != nil {
		return err
	}
	h.Broadcast(rideID, payload)
	return nil
}

// deliver never blocks; a client with a full buffer misses the frame.
func (h *Hub) deliver(rideID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[rideID] {
		select {
		case client.Send <- payload:
		default:
			h.log.Debug("dropping frame for slow client", zap.String("ride_id", rideID), zap.String("user_id", client.UserID))
		}
	}
}

// Close stops the redis subscription.
func (h *Hub) Close() error {
	if h.pubsub == nil {
		return nil
	}
	err := h.pubsub.Close()
	<-h.done
	return err
}

func redisChannel(rideID string) string {
	return channelPrefix + rideID + channelSuffix
}

func rideIDFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
