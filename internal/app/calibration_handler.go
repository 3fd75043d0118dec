// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lithammer/shortuuid/v4"

	"github.com/relabs-tech/thrust_magcal/internal/link"
	"github.com/relabs-tech/thrust_magcal/internal/magcal"
)

var (
	// ErrNoSession is returned for commands that need a running session.
	ErrNoSession = errors.New("no calibration running")
	// ErrSessionStopping is returned for commands that arrive while a session
	// is bringing the thrust down and fitting its result.
	ErrSessionStopping = errors.New("calibration is shutting down")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// StartFunc prepares a new session, the feed it reads from and a callback
// for its outcome.
type StartFunc func() (*Session, link.Feed, func(magcal.Result, error), error)

// Controller owns at most one running session and remembers the last one,
// so that the web UI can keep showing its series and result.
type Controller struct {
	ctx   context.Context
	start StartFunc

	mu       sync.Mutex
	id       string
	session  *Session
	commands chan Command // unbuffered, nil when no session is running
	done     chan struct{}
}

// NewController returns a controller whose sessions run until ctx is done.
func NewController(ctx context.Context, start StartFunc) *Controller {
	return &Controller{ctx: ctx, start: start}
}

// Next starts a new session if none is running and advances it.
func (c *Controller) Next() error {
	c.mu.Lock()
	if c.commands == nil {
		if err := c.startLocked(); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	commands, s := c.commands, c.session
	c.mu.Unlock()

	return send(commands, s.Stopped(), CommandNext)
}

// Abort stops the running session.
func (c *Controller) Abort() error {
	c.mu.Lock()
	commands, s := c.commands, c.session
	c.mu.Unlock()

	if commands == nil {
		return ErrNoSession
	}
	return send(commands, s.Stopped(), CommandAbort)
}

// send succeeds only once the session has taken cmd.
func send(commands chan<- Command, stopped <-chan struct{}, cmd Command) error {
	select {
	case <-stopped:
		return ErrSessionStopping
	default:
	}
	select {
	case commands <- cmd:
		return nil
	case <-stopped:
		return ErrSessionStopping
	}
}

func (c *Controller) startLocked() error {
	s, feed, onDone, err := c.start()
	if err != nil {
		return err
	}

	commands := make(chan Command)
	done := make(chan struct{})
	c.id = shortuuid.New()
	c.session, c.commands, c.done = s, commands, done
	log.Printf("calibration: session %s started", c.id)

	go func(id string) {
		res, err := s.Run(c.ctx, feed, commands)

		c.mu.Lock()
		if c.commands == commands {
			c.commands = nil
		}
		c.mu.Unlock()

		if onDone != nil {
			onDone(res, err)
		}
		close(done)
		log.Printf("calibration: session %s ended", id)
	}(c.id)
	return nil
}

// Done is closed when the current session ends. It is nil before the first
// session was started.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// SessionStatus is the status of the current or last session.
type SessionStatus struct {
	ID      string `json:"id,omitempty"`
	Running bool   `json:"running"`
	Status
}

// Status reports the current or last session.
func (c *Controller) Status() SessionStatus {
	c.mu.Lock()
	s, id, running := c.session, c.id, c.commands != nil
	c.mu.Unlock()

	if s == nil {
		return SessionStatus{Status: Status{Phase: PhaseIdle, Level: -1}}
	}
	return SessionStatus{ID: id, Running: running, Status: s.Status()}
}

// Series returns the corrected samples of the current or last session.
func (c *Controller) Series() []magcal.Series {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Series()
}

// Result returns the result of the last successful session.
func (c *Controller) Result() (magcal.Result, bool) {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()

	if s == nil {
		return magcal.Result{}, false
	}
	return s.Result()
}

// WebSocket message types
type WSMessage struct {
	Action string `json:"action"` // next, abort, status
}

type WSResponse struct {
	Type    string         `json:"type"` // status, error
	Status  *SessionStatus `json:"status,omitempty"`
	Results *magcal.Result `json:"results,omitempty"`
	Message string         `json:"message,omitempty"`
}

// statusPushInterval is how often a connected client gets a status update.
const statusPushInterval = 250 * time.Millisecond

// HandleCalibrationWS handles the WebSocket connection for calibration
func (c *Controller) HandleCalibrationWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("calibration: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(resp WSResponse) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(resp); err != nil {
			log.Printf("calibration: websocket write error: %v", err)
		}
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(statusPushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				write(c.statusResponse())
			}
		}
	}()

	// Main message loop
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("calibration: websocket read error: %v", err)
			}
			return
		}

		switch msg.Action {
		case "next":
			err = c.Next()
		case "abort":
			log.Printf("calibration: abort requested by web client")
			err = c.Abort()
		case "status":
			err = nil
		default:
			write(WSResponse{Type: "error", Message: "unknown action " + msg.Action})
			continue
		}

		if err != nil {
			write(WSResponse{Type: "error", Message: err.Error()})
			continue
		}
		write(c.statusResponse())
	}
}

func (c *Controller) statusResponse() WSResponse {
	st := c.Status()
	resp := WSResponse{Type: "status", Status: &st}
	if st.Phase == PhaseDone {
		if res, ok := c.Result(); ok {
			resp.Results = &res
		}
	}
	return resp
}
