package lifecycle_test

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/25kamalesh/YapOps/internal/delivery"
	"github.com/25kamalesh/YapOps/internal/lifecycle"
	"github.com/25kamalesh/YapOps/internal/presence"
	"github.com/25kamalesh/YapOps/pkg/chat"
	"github.com/25kamalesh/YapOps/pkg/state"
	"github.com/25kamalesh/YapOps/pkg/state/registry"
	"github.com/25kamalesh/YapOps/pkg/state/statetest"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type fixture struct {
	registry *registry.InMemory
	manager  *lifecycle.Manager
	delivery *delivery.Router
}

func newFixture() *fixture {
	logger := newTestLogger()
	reg := registry.NewInMemory(logger)
	broadcaster := presence.NewBroadcaster(reg, nil, logger)
	return &fixture{
		registry: reg,
		manager:  lifecycle.NewManager(reg, broadcaster, nil, logger),
		delivery: delivery.NewRouter(reg, nil, logger),
	}
}

// attach walks a connection through the full happy path.
func (f *fixture) attach(t *testing.T, userID state.UserID, conn *statetest.FakeConn) *lifecycle.Session {
	t.Helper()
	sess := f.manager.Begin()
	require.NoError(t, f.manager.Authenticate(sess, userID))
	require.NoError(t, f.manager.Activate(sess, conn))
	return sess
}

type frame struct {
	Type          string   `json:"type"`
	OnlineUserIDs []string `json:"onlineUserIds"`
	SenderID      string   `json:"senderId"`
	Payload       string   `json:"payload"`
}

func decodeFrames(t *testing.T, conn *statetest.FakeConn) []frame {
	t.Helper()
	raw := conn.Frames()
	out := make([]frame, len(raw))
	for i, b := range raw {
		require.NoError(t, json.Unmarshal(b, &out[i]))
	}
	return out
}

func presenceFrames(t *testing.T, conn *statetest.FakeConn) []frame {
	t.Helper()
	var out []frame
	for _, f := range decodeFrames(t, conn) {
		if f.Type == "presence" {
			out = append(out, f)
		}
	}
	return out
}

func TestAuthenticationFailureNeverTouchesRegistry(t *testing.T) {
	f := newFixture()
	sess := f.manager.Begin()

	err := f.manager.Authenticate(sess, "")
	assert.ErrorIs(t, err, lifecycle.ErrAuthenticationFailed)
	assert.Equal(t, lifecycle.StateClosed, sess.State())
	assert.Empty(t, f.registry.OnlineUserIDs())

	// The closed session cannot be activated afterwards.
	assert.ErrorIs(t, f.manager.Activate(sess, statetest.NewFakeConn()), lifecycle.ErrInvalidTransition)
}

func TestStateMachineHappyPath(t *testing.T) {
	f := newFixture()
	sess := f.manager.Begin()
	assert.Equal(t, lifecycle.StateConnecting, sess.State())

	require.NoError(t, f.manager.Authenticate(sess, "alice"))
	assert.Equal(t, lifecycle.StateAuthenticated, sess.State())

	conn := statetest.NewFakeConn()
	require.NoError(t, f.manager.Activate(sess, conn))
	assert.Equal(t, lifecycle.StateActive, sess.State())
	assert.Equal(t, []state.UserID{"alice"}, f.registry.OnlineUserIDs())

	f.manager.Close(sess, nil)
	assert.Equal(t, lifecycle.StateClosed, sess.State())
	assert.Empty(t, f.registry.OnlineUserIDs())
}

func TestConnectRouteDisconnectScenario(t *testing.T) {
	f := newFixture()

	// A connects: one broadcast to conn1 announcing {A}.
	conn1 := statetest.NewFakeConn()
	f.attach(t, "A", conn1)
	assert.Equal(t, []state.UserID{"A"}, f.registry.OnlineUserIDs())
	pf := presenceFrames(t, conn1)
	require.Len(t, pf, 1)
	assert.Equal(t, []string{"A"}, pf[0].OnlineUserIDs)

	// B connects: both connections hear {A, B}.
	conn2 := statetest.NewFakeConn()
	sessB := f.attach(t, "B", conn2)
	assert.Equal(t, []state.UserID{"A", "B"}, f.registry.OnlineUserIDs())
	pf = presenceFrames(t, conn1)
	require.Len(t, pf, 2)
	assert.Equal(t, []string{"A", "B"}, pf[1].OnlineUserIDs)
	pf = presenceFrames(t, conn2)
	require.Len(t, pf, 1)
	assert.Equal(t, []string{"A", "B"}, pf[0].OnlineUserIDs)

	// A messages B: only conn2 receives it.
	f.delivery.Notify(chat.NewMessageEvent("A", "B", "hi"))
	frames := decodeFrames(t, conn2)
	require.Len(t, frames, 2)
	assert.Equal(t, "message", frames[1].Type)
	assert.Equal(t, "A", frames[1].SenderID)
	assert.Equal(t, "hi", frames[1].Payload)
	for _, fr := range decodeFrames(t, conn1) {
		assert.NotEqual(t, "message", fr.Type, "sender's connection must not receive the message")
	}

	// B disconnects: conn1 hears {A} again.
	f.manager.Close(sessB, errors.New("client went away"))
	assert.Equal(t, []state.UserID{"A"}, f.registry.OnlineUserIDs())
	pf = presenceFrames(t, conn1)
	require.Len(t, pf, 3)
	assert.Equal(t, []string{"A"}, pf[2].OnlineUserIDs)
}

func TestSecondTabDoesNotBroadcast(t *testing.T) {
	f := newFixture()

	conn1 := statetest.NewFakeConn()
	f.attach(t, "A", conn1)
	require.Len(t, presenceFrames(t, conn1), 1)

	// Second tab: no transition, no broadcast.
	conn2 := statetest.NewFakeConn()
	sess2 := f.attach(t, "A", conn2)
	assert.Equal(t, []state.UserID{"A"}, f.registry.OnlineUserIDs())
	assert.Len(t, presenceFrames(t, conn1), 1)
	assert.Empty(t, presenceFrames(t, conn2))

	// Closing one of two tabs: still online, still no broadcast.
	f.manager.Close(sess2, nil)
	assert.Equal(t, []state.UserID{"A"}, f.registry.OnlineUserIDs())
	assert.Len(t, presenceFrames(t, conn1), 1)
}

func TestDuplicateCloseSignalsAreIdempotent(t *testing.T) {
	f := newFixture()

	conn1 := statetest.NewFakeConn()
	observer := statetest.NewFakeConn()
	sess := f.attach(t, "A", conn1)
	f.attach(t, "B", observer)

	f.manager.Close(sess, errors.New("transport error"))
	broadcasts := len(presenceFrames(t, observer))
	f.manager.Close(sess, errors.New("duplicate close"))

	assert.Equal(t, lifecycle.StateClosed, sess.State())
	assert.Len(t, presenceFrames(t, observer), broadcasts,
		"second close must not trigger another deregister/broadcast")
	assert.Equal(t, []state.UserID{"B"}, f.registry.OnlineUserIDs())
}

// Several users flap on and off concurrently while one observer stays
// connected. The observer's presence frames, projected onto any single
// user, must show that user's transitions in the order they occurred:
// exactly one online run per connect, never an offline announcement
// overtaking the online one. Meant to run under the race detector.
func TestConcurrentTransitionsAnnouncedInOrder(t *testing.T) {
	f := newFixture()
	observer := statetest.NewFakeConn()
	f.attach(t, "watcher", observer)

	const flaps = 25
	users := []state.UserID{"B", "C", "D"}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u state.UserID) {
			defer wg.Done()
			for i := 0; i < flaps; i++ {
				sess := f.manager.Begin()
				assert.NoError(t, f.manager.Authenticate(sess, u))
				assert.NoError(t, f.manager.Activate(sess, statetest.NewFakeConn()))
				f.manager.Close(sess, nil)
			}
		}(u)
	}
	wg.Wait()

	assert.Equal(t, []state.UserID{"watcher"}, f.registry.OnlineUserIDs())

	frames := presenceFrames(t, observer)
	for _, u := range users {
		// Run-length compress the user's membership across the frame
		// sequence: each online period must surface as exactly one run.
		var runs []bool
		for _, fr := range frames {
			present := slices.Contains(fr.OnlineUserIDs, string(u))
			if len(runs) == 0 || runs[len(runs)-1] != present {
				runs = append(runs, present)
			}
		}
		var online, offline int
		for _, p := range runs {
			if p {
				online++
			} else {
				offline++
			}
		}
		assert.Equal(t, flaps, online, "user %s online periods", u)
		assert.Equal(t, flaps+1, offline, "user %s offline periods", u)
		assert.False(t, runs[len(runs)-1], "user %s must end offline", u)
	}
}

func TestShutdownClosesEveryConnection(t *testing.T) {
	f := newFixture()
	conn1 := statetest.NewFakeConn()
	conn2 := statetest.NewFakeConn()
	f.attach(t, "A", conn1)
	f.attach(t, "B", conn2)

	f.manager.Shutdown(errors.New("graceful shutdown"))

	assert.True(t, conn1.Closed())
	assert.True(t, conn2.Closed())
}
