// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/thrust_magcal/internal/link"
	"github.com/relabs-tech/thrust_magcal/internal/magcal"
)

type webFixture struct {
	ctrl   *Controller
	feed   *fakeFeed
	cmd    *recordingCommander
	srv    *httptest.Server
	done   chan error
	starts int
}

func newWebFixture(t *testing.T) *webFixture {
	t.Helper()
	return newWebFixtureWithOptions(t, testOptions())
}

func newWebFixtureWithOptions(t *testing.T, opts SessionOptions) *webFixture {
	t.Helper()
	f := &webFixture{
		feed: &fakeFeed{},
		cmd:  &recordingCommander{},
		done: make(chan error, 4),
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.ctrl = NewController(ctx, func() (*Session, link.Feed, func(magcal.Result, error), error) {
		f.starts++
		s, err := NewSession(opts, f.cmd, identity, nil)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, f.feed, func(_ magcal.Result, err error) { f.done <- err }, nil
	})
	f.srv = httptest.NewServer(NewWebHandler(f.ctrl, ""))

	t.Cleanup(func() {
		cancel()
		if done := f.ctrl.Done(); done != nil {
			<-done
		}
		f.srv.Close()
	})
	return f
}

func (f *webFixture) status() Status {
	return f.ctrl.Status().Status
}

func (f *webFixture) get(t *testing.T, path string, v any) int {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func (f *webFixture) capture(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < magcal.LevelCount; i++ {
		require.NoError(t, f.ctrl.Next())
		waitCapturing(t, f.status, f.feed, i)
		f.feed.push(ellipseSamples(levelCenter(i), n)...)
	}
	require.NoError(t, f.ctrl.Next())
}

func TestAPIBeforeAnySession(t *testing.T) {
	f := newWebFixture(t)

	var st SessionStatus
	require.Equal(t, http.StatusOK, f.get(t, "/api/status", &st))
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Equal(t, -1, st.Level)
	assert.False(t, st.Running)
	assert.Empty(t, st.ID)

	var series []magcal.Series
	require.Equal(t, http.StatusOK, f.get(t, "/api/series", &series))
	assert.Empty(t, series)

	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/result", nil))
	assert.ErrorIs(t, f.ctrl.Abort(), ErrNoSession)
}

func TestControllerRunsSessionToResult(t *testing.T) {
	f := newWebFixture(t)

	f.capture(t, 40)
	require.NoError(t, <-f.done)

	var st SessionStatus
	require.Equal(t, http.StatusOK, f.get(t, "/api/status", &st))
	assert.Equal(t, PhaseDone, st.Phase)
	assert.NotEmpty(t, st.ID)
	assert.Equal(t, magcal.LevelCount, st.Finalized)

	var series []magcal.Series
	require.Equal(t, http.StatusOK, f.get(t, "/api/series", &series))
	require.Len(t, series, magcal.LevelCount)
	for _, s := range series {
		assert.Len(t, s, 40)
	}

	var res magcal.Result
	require.Equal(t, http.StatusOK, f.get(t, "/api/result", &res))
	assert.Len(t, res.Centers, magcal.LevelCount)
	assert.InDelta(t, -60, res.Offsets[6].X, 0.5)

	assert.Eventually(t, func() bool { return !f.ctrl.Status().Running }, 2*time.Second, time.Millisecond)
	assert.ErrorIs(t, f.ctrl.Abort(), ErrNoSession)
}

func TestControllerAbortAndRestart(t *testing.T) {
	f := newWebFixture(t)

	require.NoError(t, f.ctrl.Next())
	waitCapturing(t, f.status, f.feed, 0)
	require.NoError(t, f.ctrl.Abort())
	assert.ErrorIs(t, <-f.done, magcal.ErrIncomplete)

	assert.Eventually(t, func() bool { return !f.ctrl.Status().Running }, 2*time.Second, time.Millisecond)
	firstID := f.ctrl.Status().ID

	// the next "next" starts over with a fresh session
	require.NoError(t, f.ctrl.Next())
	waitCapturing(t, f.status, f.feed, 0)
	assert.Equal(t, 2, f.starts)
	assert.NotEqual(t, firstID, f.ctrl.Status().ID)

	require.NoError(t, f.ctrl.Abort())
	<-f.done
}

func TestControllerRejectsCommandsWhileStopping(t *testing.T) {
	opts := testOptions()
	opts.ShutdownDelay = 300 * time.Millisecond
	f := newWebFixtureWithOptions(t, opts)

	require.NoError(t, f.ctrl.Next())
	waitCapturing(t, f.status, f.feed, 0)
	require.NoError(t, f.ctrl.Abort())

	require.Eventually(t, func() bool { return f.status().Phase == PhaseStopping }, 2*time.Second, time.Millisecond)
	assert.ErrorIs(t, f.ctrl.Next(), ErrSessionStopping)
	assert.ErrorIs(t, f.ctrl.Abort(), ErrSessionStopping)
	assert.Equal(t, 1, f.starts)

	assert.ErrorIs(t, <-f.done, magcal.ErrIncomplete)
	assert.False(t, f.ctrl.Status().Running)

	require.NoError(t, f.ctrl.Next())
	waitCapturing(t, f.status, f.feed, 0)
	assert.Equal(t, 2, f.starts)
	require.NoError(t, f.ctrl.Abort())
	<-f.done
}

func TestSendNeedsAReader(t *testing.T) {
	commands := make(chan Command)
	stopped := make(chan struct{})
	close(stopped)
	assert.ErrorIs(t, send(commands, stopped, CommandNext), ErrSessionStopping)

	go func() { <-commands }()
	assert.NoError(t, send(commands, make(chan struct{}), CommandNext))
}

func dialWS(t *testing.T, f *webFixture) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/calibration"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(WSResponse) bool) WSResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var resp WSResponse
		require.NoError(t, conn.ReadJSON(&resp))
		if match(resp) {
			return resp
		}
	}
}

func TestWebSocketActions(t *testing.T) {
	f := newWebFixture(t)
	conn := dialWS(t, f)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "status"}))
	resp := readUntil(t, conn, func(r WSResponse) bool { return r.Type == "status" })
	require.NotNil(t, resp.Status)
	assert.Equal(t, PhaseIdle, resp.Status.Phase)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "abort"}))
	resp = readUntil(t, conn, func(r WSResponse) bool { return r.Type == "error" })
	assert.Equal(t, ErrNoSession.Error(), resp.Message)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "jump"}))
	resp = readUntil(t, conn, func(r WSResponse) bool { return r.Type == "error" })
	assert.Equal(t, "unknown action jump", resp.Message)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "next"}))
	resp = readUntil(t, conn, func(r WSResponse) bool {
		return r.Type == "status" && r.Status.Running
	})
	assert.NotEmpty(t, resp.Status.ID)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "abort"}))
	resp = readUntil(t, conn, func(r WSResponse) bool {
		return r.Type == "status" && r.Status.Phase == PhaseFailed
	})
	assert.Contains(t, resp.Status.Error, "incomplete")
	assert.Nil(t, resp.Results)
	<-f.done
}

func TestWebSocketPushesResult(t *testing.T) {
	f := newWebFixture(t)
	conn := dialWS(t, f)

	f.capture(t, 30)
	require.NoError(t, <-f.done)

	resp := readUntil(t, conn, func(r WSResponse) bool {
		return r.Type == "status" && r.Status.Phase == PhaseDone
	})
	require.NotNil(t, resp.Results)
	assert.Len(t, resp.Results.Centers, magcal.LevelCount)
}
