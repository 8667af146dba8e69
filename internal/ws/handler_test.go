package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/live-poll/internal/catalog"
	"github.com/DoyleJ11/live-poll/internal/engine"
	"github.com/DoyleJ11/live-poll/internal/poll"
	"github.com/DoyleJ11/live-poll/pkg/types"
)

func setup(t *testing.T, origins ...string) (*poll.Poll, string) {
	t.Helper()
	state := engine.NewState(catalog.Default(), engine.Rules{GraceWindow: time.Minute})
	p := poll.New(context.Background(), state)
	t.Cleanup(p.Close)

	srv := httptest.NewServer(Handler(p, zap.NewNop(), origins))
	t.Cleanup(srv.Close)
	return p, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func read(t *testing.T, conn *websocket.Conn) types.StateSnapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)

	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, types.MessageTypeState, msg.Type)
	require.NotNil(t, msg.Payload)
	return *msg.Payload
}

func TestHandler_PushesSnapshots(t *testing.T) {
	p, url := setup(t)
	ctx := context.Background()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	first := read(t, conn)
	assert.Nil(t, first.ActiveTopicID)

	_, err = p.Execute(ctx, engine.Command{Type: engine.CmdSelectTopic, TopicID: "vote1"})
	require.NoError(t, err)
	snap := read(t, conn)
	require.NotNil(t, snap.ActiveTopicID)
	assert.Equal(t, "vote1", *snap.ActiveTopicID)

	_, err = p.Execute(ctx, engine.Command{Type: engine.CmdStart})
	require.NoError(t, err)
	snap = read(t, conn)
	v, ok := snap.Topic("vote1")
	require.True(t, ok)
	assert.Equal(t, string(engine.StatusOpen), v.Status)
}

func TestHandler_LeavesOnDisconnect(t *testing.T) {
	p, url := setup(t)
	ctx := context.Background()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	read(t, conn)

	view, err := p.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, view.NumClients)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))

	assert.Eventually(t, func() bool {
		v, err := p.View(ctx)
		return err == nil && v.NumClients == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_ShutdownClosesConnection(t *testing.T) {
	p, url := setup(t)
	ctx := context.Background()

	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()
	read(t, conn)

	p.Close()

	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, _, err = conn.Read(rctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestHandler_OriginPolicy(t *testing.T) {
	_, url := setup(t, "*.poll.example")
	ctx := context.Background()

	dial := func(origin string) error {
		conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
			HTTPHeader: http.Header{"Origin": []string{origin}},
		})
		if err == nil {
			conn.CloseNow()
		}
		return err
	}

	assert.NoError(t, dial("https://screen.poll.example"))
	assert.Error(t, dial("https://evil.example"))
}
