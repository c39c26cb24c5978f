package services

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jestadalan-dotcom/Jes-Bingo/utils/logger"
)

const writeWait = 10 * time.Second

// Keepalive cycle for the host pumps. A client that answers no ping within
// pongWait is treated as gone and unregistered, which frees its owner slot
// for a name-based reclaim. Vars so the cycle can be shortened under test.
var (
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

// Client is one player's websocket connection into a room. A client only
// gains an owner index after its JOIN_REQUEST is accepted.
type Client struct {
	room *Room
	conn *websocket.Conn
	send chan []byte
	once sync.Once

	ownerIndex int // -1 until joined
	name       string
}

func newClient(room *Room, conn *websocket.Conn) *Client {
	return &Client{
		room:       room,
		conn:       conn,
		send:       make(chan []byte, 32),
		ownerIndex: -1,
	}
}

func (c *Client) Close() {
	c.once.Do(func() {
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// --------------------
// Client read/write pumps
// --------------------
func (c *Client) readPump() {
	defer func() {
		c.room.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugf("[room %s] client owner=%d disconnected normally", c.room.Code, c.ownerIndex)
			} else {
				logger.Warnf("[room %s] client owner=%d read error: %v", c.room.Code, c.ownerIndex, err)
			}
			return
		}

		func(msg []byte) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("[room %s] recovered handling message from owner=%d: %v", c.room.Code, c.ownerIndex, r)
				}
			}()
			c.room.handleMessage(c, msg)
		}(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Warnf("[room %s] client owner=%d write error: %v", c.room.Code, c.ownerIndex, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
