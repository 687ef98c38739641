package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/yourorg/finbook/internal/domain"
	redisRepo "github.com/yourorg/finbook/internal/repository/redis"
)

type assetSub struct {
	client     *Client
	identifier string
}

// Hub fans refreshed marks out to websocket clients. One redis subscription
// is held per asset identifier while at least one client watches it.
type Hub struct {
	clients      map[*Client]bool
	subs         map[string]map[*Client]bool
	redisCancels map[string]context.CancelFunc

	register    chan *Client
	unregister  chan *Client
	subscribe   chan assetSub
	unsubscribe chan assetSub
	broadcast   chan quoteMsg

	quotes *redisRepo.QuoteRepo
	logger *slog.Logger
}

func NewHub(quotes *redisRepo.QuoteRepo, logger *slog.Logger) *Hub {
	return &Hub{
		clients:      make(map[*Client]bool),
		subs:         make(map[string]map[*Client]bool),
		redisCancels: make(map[string]context.CancelFunc),
		register:     make(chan *Client, 64),
		unregister:   make(chan *Client, 64),
		subscribe:    make(chan assetSub, 64),
		unsubscribe:  make(chan assetSub, 64),
		broadcast:    make(chan quoteMsg, 256),
		quotes:       quotes,
		logger:       logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for identifier, clients := range h.subs {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						h.reapIfEmpty(identifier)
					}
				}
				close(client.send)
			}
		case sub := <-h.subscribe:
			if _, ok := h.subs[sub.identifier]; !ok {
				h.subs[sub.identifier] = make(map[*Client]bool)
				subCtx, cancel := context.WithCancel(ctx)
				h.redisCancels[sub.identifier] = cancel
				go h.pumpQuotes(subCtx, sub.identifier)
			}
			h.subs[sub.identifier][sub.client] = true
			h.sendLastQuote(ctx, sub)
		case sub := <-h.unsubscribe:
			if clients, ok := h.subs[sub.identifier]; ok {
				delete(clients, sub.client)
				h.reapIfEmpty(sub.identifier)
			}
		case msg := <-h.broadcast:
			h.fanOut(msg.identifier, msg.data)
		}
	}
}

func (h *Hub) reapIfEmpty(identifier string) {
	if len(h.subs[identifier]) > 0 {
		return
	}
	if cancel, ok := h.redisCancels[identifier]; ok {
		cancel()
		delete(h.redisCancels, identifier)
	}
	delete(h.subs, identifier)
}

// sendLastQuote pushes the cached mark so a new subscriber is not blind
// until the next refresh cycle.
func (h *Hub) sendLastQuote(ctx context.Context, sub assetSub) {
	for _, class := range []domain.AssetClass{domain.AssetStock, domain.AssetBond, domain.AssetCrypto} {
		tick, err := h.quotes.Cached(ctx, class, sub.identifier)
		if err != nil || tick == nil {
			continue
		}
		data, err := json.Marshal(tick)
		if err != nil {
			return
		}
		select {
		case sub.client.send <- data:
		default:
		}
		return
	}
}

type quoteMsg struct {
	identifier string
	data       []byte
}

// pumpQuotes relays one asset's redis channel into the hub loop; fan-out
// itself stays on the Run goroutine, which owns the subscription maps.
func (h *Hub) pumpQuotes(ctx context.Context, identifier string) {
	pubsub := h.quotes.Subscribe(ctx, identifier)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case h.broadcast <- quoteMsg{identifier: identifier, data: []byte(msg.Payload)}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *Hub) fanOut(identifier string, data []byte) {
	clients, ok := h.subs[identifier]
	if !ok {
		return
	}
	for client := range clients {
		select {
		case client.send <- data:
		default:
		}
	}
}
