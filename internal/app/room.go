// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	socketBufferSize = 1024
	// Frames buffered per client. When a client's buffer is full the
	// frame is dropped for that client, never queued unboundedly, so a
	// slow browser can't back-pressure the acquisition side.
	clientFrameBuffer = 10
)

var upgrader = &websocket.Upgrader{
	ReadBufferSize:  socketBufferSize,
	WriteBufferSize: socketBufferSize,
	// The viewer page is served from this same process.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// room fans frames out to every connected websocket client.
type room struct {
	// forward holds frames to be pushed to all clients.
	forward chan []byte
	// join is for clients wishing to join the room.
	join chan *client
	// leave is for clients wishing to leave the room.
	leave chan *client
	// clients holds all current clients.
	clients map[*client]bool
	// writeStall bounds how long one client write may block.
	writeStall time.Duration
}

func newRoom(writeStall time.Duration) *room {
	return &room{
		forward:    make(chan []byte),
		join:       make(chan *client),
		leave:      make(chan *client),
		clients:    make(map[*client]bool),
		writeStall: writeStall,
	}
}

func (r *room) run() {
	for {
		select {
		case c := <-r.join:
			r.clients[c] = true
			log.Info("web: viewer client joined")
		case c := <-r.leave:
			delete(r.clients, c)
			close(c.send)
			log.Info("web: viewer client left")
		case frame := <-r.forward:
			for c := range r.clients {
				select {
				case c.send <- frame:
				default:
					// Client can't keep up; drop this frame for it.
				}
			}
		}
	}
}

// broadcast hands a frame to the room without ever blocking the caller.
func (r *room) broadcast(frame []byte) {
	select {
	case r.forward <- frame:
	default:
	}
}

func (r *room) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Errorf("web: websocket upgrade: %v", err)
		return
	}
	c := &client{
		socket: socket,
		send:   make(chan []byte, clientFrameBuffer),
		room:   r,
	}
	r.join <- c
	defer func() { r.leave <- c }()
	go c.write()
	c.read()
}

type client struct {
	socket *websocket.Conn
	send   chan []byte
	room   *room
}

// read drains (and ignores) client messages until the socket closes.
func (c *client) read() {
	defer c.socket.Close()
	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) write() {
	defer c.socket.Close()
	for frame := range c.send {
		c.socket.SetWriteDeadline(time.Now().Add(c.room.writeStall))
		if err := c.socket.WriteMessage(websocket.TextMessage, frame); err != nil {
			return
		}
	}
}
