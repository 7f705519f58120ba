package gateway

import (
	"log"
	"sync"

	"github.com/nodetalk/appview/internal/stats"
)

// Gateway is the WebSocket connection registry. Clients subscribe by room id
// and/or identity (DID); writers push events to whichever index matches. The
// registry holds references to connections, never their lifecycle: a client
// is removed only when its own read pump exits.
type Gateway struct {
	log   *log.Logger
	stats stats.StatsProvider

	mu         sync.RWMutex
	clients    map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
	identities map[string]map[*Client]struct{}
}

func NewGateway(logger *log.Logger, statsProvider stats.StatsProvider) *Gateway {
	return &Gateway{
		log:        logger,
		stats:      statsProvider,
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		identities: make(map[string]map[*Client]struct{}),
	}
}

func (g *Gateway) Register(c *Client) {
	g.mu.Lock()
	g.clients[c] = struct{}{}
	g.mu.Unlock()

	g.stats.Incr(stats.ActiveConnections)
	g.log.Printf("registered connection %q", c.id)
}

// unregister purges the client from every subscription index. Cleanup cost is
// proportional to the total number of subscriptions, which is acceptable at
// this scale.
func (g *Gateway) unregister(c *Client) {
	g.mu.Lock()
	if _, ok := g.clients[c]; !ok {
		g.mu.Unlock()
		return
	}
	delete(g.clients, c)

	for roomId, conns := range g.rooms {
		if _, ok := conns[c]; ok {
			delete(conns, c)
			g.stats.Decr(stats.RoomSubscriptions)
			if len(conns) == 0 {
				delete(g.rooms, roomId)
			}
		}
	}
	for did, conns := range g.identities {
		if _, ok := conns[c]; ok {
			delete(conns, c)
			g.stats.Decr(stats.IdentitySubscriptions)
			if len(conns) == 0 {
				delete(g.identities, did)
			}
		}
	}
	g.mu.Unlock()

	g.stats.Decr(stats.ActiveConnections)
	g.log.Printf("removed connection %q", c.id)
}

func (g *Gateway) subscribeRoom(c *Client, roomId string) {
	if roomId == "" {
		c.queueEvent(ErrorEvent("roomId is required"))
		return
	}

	g.mu.Lock()
	conns, ok := g.rooms[roomId]
	if !ok {
		conns = make(map[*Client]struct{})
		g.rooms[roomId] = conns
	}
	_, already := conns[c]
	conns[c] = struct{}{}
	g.mu.Unlock()

	if !already {
		g.stats.Incr(stats.RoomSubscriptions)
	}
	g.log.Printf("connection %q subscribed to room %q", c.id, roomId)
}

func (g *Gateway) unsubscribeRoom(c *Client, roomId string) {
	g.mu.Lock()
	if conns, ok := g.rooms[roomId]; ok {
		if _, subscribed := conns[c]; subscribed {
			delete(conns, c)
			g.stats.Decr(stats.RoomSubscriptions)
			if len(conns) == 0 {
				delete(g.rooms, roomId)
			}
		}
	}
	g.mu.Unlock()
}

func (g *Gateway) subscribeIdentity(c *Client, did string) {
	if did == "" {
		c.queueEvent(ErrorEvent("id is required"))
		return
	}

	g.mu.Lock()
	conns, ok := g.identities[did]
	if !ok {
		conns = make(map[*Client]struct{})
		g.identities[did] = conns
	}
	_, already := conns[c]
	conns[c] = struct{}{}
	g.mu.Unlock()

	if !already {
		g.stats.Incr(stats.IdentitySubscriptions)
	}
	g.log.Printf("connection %q subscribed to identity %q", c.id, did)
}

func (g *Gateway) unsubscribeIdentity(c *Client, did string) {
	g.mu.Lock()
	if conns, ok := g.identities[did]; ok {
		if _, subscribed := conns[c]; subscribed {
			delete(conns, c)
			g.stats.Decr(stats.IdentitySubscriptions)
			if len(conns) == 0 {
				delete(g.identities, did)
			}
		}
	}
	g.mu.Unlock()
}

// PushToRoom delivers an event to every live connection subscribed to the
// room. Delivery is best-effort and at-most-once per open connection; failed
// sends are logged and counted, never retried.
func (g *Gateway) PushToRoom(roomId string, event *ServerEvent) {
	g.push(g.snapshotRoom(roomId), event)
}

// PushToIdentity delivers an event to every live connection subscribed to
// the identity. Message fanout uses this per room member so delivery works
// before the recipient has the room open.
func (g *Gateway) PushToIdentity(did string, event *ServerEvent) {
	g.push(g.snapshotIdentity(did), event)
}

func (g *Gateway) snapshotRoom(roomId string) []*Client {
	g.mu.RLock()
	defer g.mu.RUnlock()

	conns := make([]*Client, 0, len(g.rooms[roomId]))
	for c := range g.rooms[roomId] {
		conns = append(conns, c)
	}
	return conns
}

func (g *Gateway) snapshotIdentity(did string) []*Client {
	g.mu.RLock()
	defer g.mu.RUnlock()

	conns := make([]*Client, 0, len(g.identities[did]))
	for c := range g.identities[did] {
		conns = append(conns, c)
	}
	return conns
}

func (g *Gateway) push(conns []*Client, event *ServerEvent) {
	for _, c := range conns {
		if c.queueEvent(event) {
			g.stats.Incr(stats.NotificationsSent)
		} else {
			g.stats.Incr(stats.FailedDeliveries)
		}
	}
}

// Shutdown stops every connected client's pumps.
func (g *Gateway) Shutdown() {
	g.mu.RLock()
	conns := make([]*Client, 0, len(g.clients))
	for c := range g.clients {
		conns = append(conns, c)
	}
	g.mu.RUnlock()

	for _, c := range conns {
		c.stopClient()
	}
}
