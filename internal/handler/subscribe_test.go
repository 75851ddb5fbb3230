package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/tripmate/internal/handler"
	"github.com/pkordes/tripmate/internal/notify"
)

func startSubscribeServer(t *testing.T) (*notify.Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := notify.NewHub()
	go hub.Run(ctx)

	h := handler.NewServer(handler.Deps{State: &mockStateServicer{}, Hub: hub, Logger: discardLogger()}).
		Routes(handler.RouteOptions{})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSubscribeState_receivesBroadcast(t *testing.T) {
	hub, base := startSubscribeServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/v1/trips/trip_ab12cd34/state/subscribe", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers("trip_ab12cd34") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(context.Background(), "trip_other", []byte(`{"key":"trip_other"}`))
	hub.Broadcast(context.Background(), "trip_ab12cd34", []byte(`{"key":"trip_ab12cd34"}`))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"trip_ab12cd34"}`, string(msg), "only the subscribed room is delivered")
}

func TestSubscribeState_leavesRoomOnClose(t *testing.T) {
	hub, base := startSubscribeServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/v1/trips/trip_1/state/subscribe", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Subscribers("trip_1") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return hub.Subscribers("trip_1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribeState_invalidKey(t *testing.T) {
	_, base := startSubscribeServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(base+"/v1/trips/bad%20key/state/subscribe", nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
