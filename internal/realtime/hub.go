package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/medinote/backend/internal/logger"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// GroupNotifier is the transport-level group addressing the coordinator
// depends on. The Hub implements it.
type GroupNotifier interface {
	JoinGroup(connID, group string)
	LeaveGroup(connID, group string)
	BroadcastGroup(group string, payload []byte) error
}

// wsWriter is the slice of *websocket.Conn the hub needs; tests substitute
// a recorder.
type wsWriter interface {
	WriteMessage(messageType int, data []byte) error
}

type hubConn struct {
	mu sync.Mutex
	ws wsWriter
}

func (c *hubConn) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.ws.(interface{ SetWriteDeadline(time.Time) error }); ok {
		_ = d.SetWriteDeadline(time.Now().Add(10 * time.Second))
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

const bridgeChannel = "realtime:events"

type bridgeEvent struct {
	Origin  string          `json:"origin"`
	Group   string          `json:"group"`
	Payload json.RawMessage `json:"payload"`
}

// Hub owns the process's websocket connections and their group
// memberships. Group broadcasts are delivered locally and, when a redis
// client is configured, republished so sibling instances forward them to
// their own members.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*hubConn
	groups map[string]map[string]struct{} // group -> connIDs

	instanceID string
	rdb        *redis.Client // optional
	log        *logrus.Entry
}

func NewHub(rdb *redis.Client, log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.New()
	}
	return &Hub{
		conns:      map[string]*hubConn{},
		groups:     map[string]map[string]struct{}{},
		instanceID: uuid.NewString(),
		rdb:        rdb,
		log:        logger.WithComponent(log, "realtime-hub"),
	}
}

func (h *Hub) Register(connID string, ws wsWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[connID] = &hubConn{ws: ws}
}

// Unregister drops the connection and all of its group memberships, the
// transport-side half of disconnect handling.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, connID)
	for group, members := range h.groups {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

func (h *Hub) JoinGroup(connID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[group]
	if !ok {
		members = map[string]struct{}{}
		h.groups[group] = members
	}
	members[connID] = struct{}{}
}

func (h *Hub) LeaveGroup(connID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.groups[group]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

func (h *Hub) SendToConn(connID string, payload []byte) error {
	h.mu.RLock()
	conn := h.conns[connID]
	h.mu.RUnlock()
	if conn == nil {
		return nil // connection already gone
	}
	return conn.write(payload)
}

// BroadcastGroup delivers to every local member and republishes through the
// redis bridge for other instances. Per-member write failures are logged
// and do not fail the broadcast.
func (h *Hub) BroadcastGroup(group string, payload []byte) error {
	h.broadcastLocal(group, payload)

	if h.rdb != nil {
		ev, _ := json.Marshal(bridgeEvent{
			Origin:  h.instanceID,
			Group:   group,
			Payload: payload,
		})
		if err := h.rdb.Publish(context.Background(), bridgeChannel, ev).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) broadcastLocal(group string, payload []byte) {
	h.mu.RLock()
	var targets []*hubConn
	for connID := range h.groups[group] {
		if c := h.conns[connID]; c != nil {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(payload); err != nil {
			h.log.WithError(err).WithField("group", group).Debug("group write failed")
		}
	}
}

// RunBridge forwards group events published by sibling instances to local
// members. Blocks until ctx is done; run it in its own goroutine.
func (h *Hub) RunBridge(ctx context.Context) {
	if h.rdb == nil {
		return
	}

	pubsub := h.rdb.Subscribe(ctx, bridgeChannel)
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
			var ev bridgeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				h.log.WithError(err).Debug("bad bridge event")
				continue
			}
			if ev.Origin == h.instanceID {
				continue
			}
			h.broadcastLocal(ev.Group, ev.Payload)
		}
	}
}
