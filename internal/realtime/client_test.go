package realtime

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
)

// fakeHub upgrades one socket and speaks the hub protocol: it acks
// subscriptions except for channels listed in denied, and replays queued
// broadcasts for a channel after acking it.
type fakeHub struct {
	denied     map[string]bool
	broadcasts map[string][]*ServerEvent
}

func (h *fakeHub) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if strings.TrimPrefix(auth, "Bearer ") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for {
			var cmd ClientCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			switch cmd.Action {
			case ActionSubscribe:
				if h.denied[cmd.Channel] {
					conn.WriteJSON(&ServerEvent{Event: EventError, Channel: cmd.Channel, Timestamp: time.Now()})
					continue
				}
				conn.WriteJSON(&ServerEvent{Event: EventSubscribed, Channel: cmd.Channel, Timestamp: time.Now()})
				for _, ev := range h.broadcasts[cmd.Channel] {
					conn.WriteJSON(ev)
				}
			case ActionUnsubscribe:
				conn.WriteJSON(&ServerEvent{Event: EventUnsubscribed, Channel: cmd.Channel, Timestamp: time.Now()})
			case ActionPing:
				conn.WriteJSON(&ServerEvent{Event: EventPong, Timestamp: time.Now()})
			}
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSubscribeDeliversBroadcasts(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{"hello": "world"})
	hub := &fakeHub{
		broadcasts: map[string][]*ServerEvent{
			"audio-call-test": {{Event: "signaling", Channel: "audio-call-test", Payload: payload, Timestamp: time.Now()}},
		},
	}
	srv := httptest.NewServer(hub.handler(t))
	defer srv.Close()

	client, err := Dial(context.Background(), wsURL(srv), "token")
	require.NoError(t, err)
	defer client.Close()

	sub, err := client.Subscribe(context.Background(), "audio-call-test")
	require.NoError(t, err)
	defer sub.Close()

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "signaling", ev.Event)
		assert.JSONEq(t, string(payload), string(ev.Payload))
	case <-time.After(3 * time.Second):
		t.Fatal("broadcast never arrived")
	}
}

func TestSubscribeDeniedSurfacesError(t *testing.T) {
	hub := &fakeHub{denied: map[string]bool{"user:someone-else": true}}
	srv := httptest.NewServer(hub.handler(t))
	defer srv.Close()

	client, err := Dial(context.Background(), wsURL(srv), "token")
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Subscribe(context.Background(), "user:someone-else")
	require.Error(t, err)
}

func TestDialRejectedWithoutToken(t *testing.T) {
	hub := &fakeHub{}
	srv := httptest.NewServer(hub.handler(t))
	defer srv.Close()

	_, err := Dial(context.Background(), wsURL(srv), "")
	require.Error(t, err)
}

func TestSubscriptionClosesOnDisconnect(t *testing.T) {
	hub := &fakeHub{}
	srv := httptest.NewServer(hub.handler(t))
	defer srv.Close()

	client, err := Dial(context.Background(), wsURL(srv), "token")
	require.NoError(t, err)

	sub, err := client.Subscribe(context.Background(), "audio-call-x")
	require.NoError(t, err)

	require.NoError(t, client.Close())

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok, "events channel must close with the socket")
	case <-time.After(3 * time.Second):
		t.Fatal("events channel never closed")
	}
}
