package gateway

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

type Client struct {
	id      string
	conn    *websocket.Conn
	gateway *Gateway
	log     *log.Logger
	send    chan *ServerEvent
	stop    chan struct{}
}

func NewClient(conn *websocket.Conn, gw *Gateway, l *log.Logger) *Client {
	id, err := shortid.Generate()
	if err != nil {
		id = "conn"
	}

	return &Client{
		id:      id,
		conn:    conn,
		gateway: gw,
		log:     l,
		send:    make(chan *ServerEvent, 256),
		stop:    make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("write exiting for connection %q", c.id)
	}()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(event)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Printf("read exiting for connection %q", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueEvent(ErrorEvent("invalid message format"))
			continue
		}

		switch msg.Type {
		case MsgSubscribe:
			c.gateway.subscribeRoom(c, msg.RoomId)
		case MsgUnsubscribe:
			c.gateway.unsubscribeRoom(c, msg.RoomId)
		case MsgSubscribeIdentity:
			c.gateway.subscribeIdentity(c, msg.Id)
		case MsgUnsubscribeIdentity:
			c.gateway.unsubscribeIdentity(c, msg.Id)
		default:
			c.log.Printf("unknown message type %q from connection %q", msg.Type, c.id)
			c.queueEvent(ErrorEvent("unknown message type"))
		}
	}
}

// queueEvent offers the event to the client's send channel without blocking.
// A full channel drops the event; delivery is best-effort.
func (c *Client) queueEvent(event *ServerEvent) bool {
	select {
	case <-c.stop:
		return false
	default:
	}

	select {
	case c.send <- event:
	default:
		c.log.Printf("send channel full for connection %q, dropping event", c.id)
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

func (c *Client) cleanup() {
	c.gateway.unregister(c)
	c.stopClient()
}
