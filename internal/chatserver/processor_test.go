package chatserver

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/chatserver/internal/chatserver/chatv1"
)

// procEnv runs a Processor on a live shard pool.
type procEnv struct {
	*env
	proc *Processor
}

func newProcEnv(t *testing.T) *procEnv {
	t.Helper()
	e := newEnv(t)
	logger := zaptest.NewLogger(t)
	pool := NewShardPool(4, 16, logger)
	started := make(chan struct{})
	go func() {
		close(started)
		_ = pool.Start()
	}()
	<-started
	t.Cleanup(pool.Stop)
	return &procEnv{
		env:  e,
		proc: NewProcessor(e.disp, e.dir, pool, logger),
	}
}

func (p *procEnv) frame(t *testing.T, conn *fakeConn, requestID string, payload chatv1.ClientPayload) {
	t.Helper()
	require.NoError(t, p.proc.OnFrame(conn, chatv1.MarshalClient(&chatv1.ClientMessage{
		RequestId: requestID,
		Payload:   payload,
	})))
}

// awaitResponses blocks until conn has received at least n envelopes.
func awaitResponses(t *testing.T, conn *fakeConn, n int) []*chatv1.ServerMessage {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(conn.received(t)) >= n
	}, 5*time.Second, 5*time.Millisecond)
	return conn.received(t)
}

func TestProcessor_HelloOnConnect(t *testing.T) {
	p := newProcEnv(t)
	conn := newFakeConn("c1")

	require.NoError(t, p.proc.OnConnect(conn))

	msgs := awaitResponses(t, conn, 1)
	hello, ok := msgs[0].Payload.(*chatv1.Hello)
	require.True(t, ok)
	assert.Equal(t, chatv1.ServerRole, hello.ServerRole)
	assert.Equal(t, int32(chatv1.ProtocolVersion), hello.ProtocolVersion)
}

func TestProcessor_MalformedFrameKeepsConnectionOpen(t *testing.T) {
	p := newProcEnv(t)
	p.seedUser("alice")
	conn := newFakeConn("c1")

	require.NoError(t, p.proc.OnFrame(conn, []byte{0xff, 0x01, 0x02}))

	msgs := awaitResponses(t, conn, 1)
	assert.Equal(t, chatv1.StatusFailure, msgs[0].Status)
	assert.Equal(t, "malformed request", msgs[0].Message)

	// The connection still serves well-formed requests afterwards.
	p.frame(t, conn, "r2", &chatv1.InitialAuthRequest{Username: "alice"})
	msgs = awaitResponses(t, conn, 2)
	assert.Equal(t, chatv1.StatusSuccess, msgs[1].Status)
	assert.Equal(t, "r2", msgs[1].RequestId)
}

func TestProcessor_EmptyEnvelopeAnswered(t *testing.T) {
	p := newProcEnv(t)
	conn := newFakeConn("c1")

	p.frame(t, conn, "r1", nil)

	msgs := awaitResponses(t, conn, 1)
	assert.Equal(t, chatv1.StatusFailure, msgs[0].Status)
	assert.Equal(t, "r1", msgs[0].RequestId)
}

func TestProcessor_BackToBackOrdering(t *testing.T) {
	p := newProcEnv(t)
	alice := p.seedUser("alice")
	room := p.store.seedRoom("lobby", alice.ID)
	conn := newFakeConn("c-ordered")
	p.signIn(t, conn, "alice")

	// Unrelated connections generate concurrent traffic on other shards.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		other := newFakeConn(fmt.Sprintf("c-noise-%d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				p.frame(t, other, "n", &chatv1.ListRoomsRequest{})
			}
		}()
	}

	p.frame(t, conn, "join", &chatv1.JoinRoomRequest{RoomId: room.ID})
	p.frame(t, conn, "leave", &chatv1.LeaveRoomRequest{})
	wg.Wait()

	msgs := awaitResponses(t, conn, 2)
	require.Equal(t, "join", msgs[0].RequestId)
	assert.Equal(t, chatv1.StatusSuccess, msgs[0].Status)
	require.Equal(t, "leave", msgs[1].RequestId)
	assert.Equal(t, chatv1.StatusSuccess, msgs[1].Status)
	assert.Nil(t, conn.snapshot().Room)
}

func TestProcessor_DisconnectUnregistersOnce(t *testing.T) {
	p := newProcEnv(t)
	alice := p.seedUser("alice")
	room := p.store.seedRoom("lobby", alice.ID)
	conn := newFakeConn("c1")
	p.signIn(t, conn, "alice")
	p.join(t, conn, room.ID)

	require.NoError(t, p.proc.OnDisconnect(conn))
	require.NoError(t, p.proc.OnDisconnect(conn))

	require.Eventually(t, func() bool {
		return p.dir.ConnCountForUser(alice.ID) == 0 && p.dir.RoomOccupancy(room.ID) == 0
	}, 5*time.Second, 5*time.Millisecond)
}

func TestShardPool_PinningIsStable(t *testing.T) {
	pool := NewShardPool(4, 16, zaptest.NewLogger(t))
	for _, id := range []string{"a", "b", "c", "long-connection-id"} {
		first := pool.ShardFor(id)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, pool.ShardFor(id))
		}
		assert.GreaterOrEqual(t, first, 0)
		assert.Less(t, first, 4)
	}
}

func TestShardPool_TasksForOneConnRunInOrder(t *testing.T) {
	pool := NewShardPool(4, 128, zaptest.NewLogger(t))
	go func() { _ = pool.Start() }()
	defer pool.Stop()

	pinned := pool.ShardFor("same-conn")
	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.NoError(t, pool.Submit("same-conn", func(ctx context.Context) {
			shard, ok := ShardFromContext(ctx)
			assert.True(t, ok)
			assert.Equal(t, pinned, shard)
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 100
	}, 5*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		require.Equal(t, i, v, "tasks for one connection must run in submission order")
	}
}
