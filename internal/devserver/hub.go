package devserver

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// hub tracks one live connection per party and routes deliveries. It does
// not scope delivery per conversation: a connected party receives events
// for every conversation it participates in, and the client filters.
type hub struct {
	log *zap.SugaredLogger

	// clients maps partyID → connection.
	clients map[string]*client

	register   chan *client
	unregister chan *client
	deliver    chan *delivery
}

type delivery struct {
	partyIDs []string
	data     []byte
}

func newHub(log *zap.SugaredLogger) *hub {
	return &hub{
		log:        log,
		clients:    make(map[string]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		deliver:    make(chan *delivery, 256),
	}
}

// run is the hub's event loop. Call in a goroutine; it exits when ctx is
// canceled.
func (h *hub) run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			if old, ok := h.clients[c.party.ID]; ok {
				old.stop()
			}
			h.clients[c.party.ID] = c
			h.log.Infow("party connected", "party", c.party.ID, "kind", c.party.Kind, "total", len(h.clients))

		case c := <-h.unregister:
			if cur, ok := h.clients[c.party.ID]; ok && cur == c {
				delete(h.clients, c.party.ID)
				h.log.Infow("party disconnected", "party", c.party.ID, "total", len(h.clients))
			}
			c.stop()

		case d := <-h.deliver:
			for _, id := range d.partyIDs {
				c, ok := h.clients[id]
				if !ok {
					continue
				}
				select {
				case c.send <- d.data:
				default:
					// Buffer full, drop the connection.
					delete(h.clients, id)
					c.stop()
				}
			}

		case <-ctx.Done():
			for id, c := range h.clients {
				delete(h.clients, id)
				c.stop()
			}
			return
		}
	}
}

// deliverTo sends an already-marshaled payload to the given parties'
// connections, if any.
func (h *hub) deliverTo(partyIDs []string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Errorw("hub marshal error", "error", err)
		return
	}
	h.deliver <- &delivery{partyIDs: partyIDs, data: data}
}
