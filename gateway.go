/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Seednode/showdown/games/battle"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket connection. Only readPump touches lobby, member
// and log, so they need no locking. connLog never changes and is safe to use
// from any goroutine.
type Client struct {
	id       string
	conn     *websocket.Conn
	send     chan any
	done     chan struct{}
	once     sync.Once
	registry *battle.Registry
	connLog  *logrus.Entry
	log      *logrus.Entry

	lobby  *battle.Lobby
	member battle.Member
}

func newClient(conn *websocket.Conn, registry *battle.Registry, log *logrus.Entry) *Client {
	id := uuid.NewString()
	connLog := log.WithField("conn", id)

	return &Client{
		id:       id,
		conn:     conn,
		send:     make(chan any, sendBuffer),
		done:     make(chan struct{}),
		registry: registry,
		connLog:  connLog,
		log:      connLog,
	}
}

// Send queues msg without blocking. A client that has fallen a full buffer
// behind is disconnected.
func (c *Client) Send(msg any) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- msg:
	default:
		c.connLog.Warn("send buffer full, dropping connection")
		c.shutdown()
	}
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
	})
}

// attach records the session established by a create, join or rejoin, and
// lets go of the previous one if it was a different identity.
func (c *Client) attach(l *battle.Lobby, m battle.Member) {
	if c.lobby != nil && (c.lobby != l || c.member.Username != m.Username) {
		c.lobby.Disconnect(c.member)
	}

	c.lobby = l
	c.member = m
	c.log = c.log.WithFields(logrus.Fields{
		"lobby": l.Code(),
		"user":  m.Username,
	})
}

func (c *Client) detach() {
	if c.lobby != nil {
		c.lobby.Disconnect(c.member)
	}

	c.lobby = nil
	c.member = battle.Member{}
}

// session resolves the lobby an event refers to, which must be the one this
// connection joined.
func (c *Client) session(code string) (*battle.Lobby, battle.Member, error) {
	if c.lobby == nil {
		return nil, battle.Member{}, battle.Errorf(battle.ErrInvalidState, "You are not in a lobby.")
	}

	normalized, err := battle.NormalizeCode(code)
	if err != nil {
		return nil, battle.Member{}, err
	}

	if normalized != c.lobby.Code() {
		return nil, battle.Member{}, battle.Errorf(battle.ErrUnauthorized, "You are not a member of lobby %s.", normalized)
	}

	return c.lobby, c.member, nil
}

// readPump dispatches frames until the connection drops. Frames longer than
// limit are drained and answered with a validation error.
func (c *Client) readPump(limit, imageLimit int64) {
	defer func() {
		c.detach()
		c.shutdown()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Debug("websocket read failed")
			}

			return
		}

		data, err := io.ReadAll(io.LimitReader(r, limit+1))
		if err != nil {
			c.log.WithError(err).Debug("websocket read failed")

			return
		}

		if int64(len(data)) > limit {
			if _, err := io.Copy(io.Discard, r); err != nil {
				c.log.WithError(err).Debug("websocket read failed")

				return
			}

			c.log.WithField("limit", humanize.Bytes(uint64(limit))).Debug("rejected oversized frame")
			c.Send(battle.NewErrorMessage(battle.Errorf(battle.ErrValidation,
				"Image is too large (max %s).", humanize.Bytes(uint64(imageLimit)))))

			continue
		}

		if err := c.dispatch(data); err != nil {
			c.log.WithError(err).Debug("rejected client event")
			c.Send(battle.NewErrorMessage(err))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.shutdown()

				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()

				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

			return
		}
	}
}

func serveWebSocket(cfg *Config, registry *battle.Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			cfg.logger.WithError(err).WithField("remote", realIP(r)).Debug("websocket upgrade failed")

			return
		}

		c := newClient(conn, registry, cfg.logger.WithField("remote", realIP(r)))

		c.log.Info("websocket connected")

		go c.writePump()
		c.readPump(cfg.readLimit(), cfg.imageLimit)

		c.log.Info("websocket disconnected")
	}
}
