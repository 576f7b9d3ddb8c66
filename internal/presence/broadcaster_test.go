package presence_test

import (
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/25kamalesh/YapOps/internal/presence"
	"github.com/25kamalesh/YapOps/pkg/state/registry"
	"github.com/25kamalesh/YapOps/pkg/state/statetest"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func decodePresence(t *testing.T, frame []byte) presence.Event {
	t.Helper()
	var ev presence.Event
	require.NoError(t, json.Unmarshal(frame, &ev))
	return ev
}

func TestAnnounceSendsIdenticalSnapshotToAllConnections(t *testing.T) {
	reg := registry.NewInMemory(newTestLogger())
	b := presence.NewBroadcaster(reg, nil, newTestLogger())

	connA := statetest.NewFakeConn()
	connB1 := statetest.NewFakeConn()
	connB2 := statetest.NewFakeConn()
	reg.Register("alice", connA)
	reg.Register("bob", connB1)
	reg.Register("bob", connB2)

	b.Announce()

	for _, c := range []*statetest.FakeConn{connA, connB1, connB2} {
		frames := c.Frames()
		require.Len(t, frames, 1)
		ev := decodePresence(t, frames[0])
		assert.Equal(t, "presence", ev.Type)
		assert.Equal(t, []string{"alice", "bob"}, toStrings(ev.OnlineUserIDs),
			"every connection gets the same snapshot, no duplicates for two tabs")
	}
}

func TestAnnounceAfterDeregisterExcludesClosedConnection(t *testing.T) {
	reg := registry.NewInMemory(newTestLogger())
	b := presence.NewBroadcaster(reg, nil, newTestLogger())

	connA := statetest.NewFakeConn()
	connB := statetest.NewFakeConn()
	reg.Register("alice", connA)
	reg.Register("bob", connB)

	reg.Deregister(connB.ID())
	b.Announce()

	assert.Empty(t, connB.Frames(), "departed connection must not receive the farewell snapshot")
	frames := connA.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, []string{"alice"}, toStrings(decodePresence(t, frames[0]).OnlineUserIDs))
}

func TestAnnounceClosesStalledConnection(t *testing.T) {
	reg := registry.NewInMemory(newTestLogger())
	b := presence.NewBroadcaster(reg, nil, newTestLogger())

	healthy := statetest.NewFakeConn()
	stalled := statetest.NewFakeConn()
	stalled.FailSends = true
	reg.Register("alice", healthy)
	reg.Register("bob", stalled)

	b.Announce()

	// The stalled connection is closed off-goroutine.
	require.Eventually(t, stalled.Closed, time.Second, 5*time.Millisecond)
	assert.Len(t, healthy.Frames(), 1, "one bad peer must not affect delivery to others")
}

func toStrings[S ~string](in []S) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
