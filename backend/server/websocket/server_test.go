package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adwski/tandem/backend/model"
	"github.com/adwski/tandem/backend/service"
	"github.com/adwski/tandem/backend/storage/memory"
	sw "github.com/adwski/tandem/backend/switch"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const readTimeout = 3 * time.Second

func newTestServer(t *testing.T) (*service.Service, string) {
	t.Helper()
	logger := zerolog.Nop()
	switchboard := sw.NewSwitch(&logger)
	svc := service.NewService(service.Config{
		Queue:    memory.NewQueue(),
		Rooms:    memory.NewRooms(nil),
		Notifier: switchboard,
		Logger:   &logger,
	})
	srv := NewServer(Config{
		Logger:           &logger,
		SignalingService: svc,
		Switch:           switchboard,
	})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		srv.sessCancel()
		ts.Close()
	})
	return svc, "ws" + strings.TrimPrefix(ts.URL, "http") + "/signal"
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

func dial(t *testing.T, url string) *client {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	c := &client{t: t, conn: conn}
	welcome := c.read()
	require.Equal(t, model.EventWelcome, welcome.Type)
	require.NotEmpty(t, welcome.Participant)
	c.id = welcome.Participant
	return c
}

func (c *client) read() model.Event {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(readTimeout)))
	var ev model.Event
	require.NoError(c.t, c.conn.ReadJSON(&ev))
	return ev
}

func (c *client) send(msg string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func (c *client) sendJSON(msg model.Inbound) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

func TestSignaling_Scenario(t *testing.T) {
	svc, url := newTestServer(t)

	p1 := dial(t, url)
	p1.send(`{"type":"join","topic":"es","role":"seeker"}`)
	waiting := p1.read()
	assert.Equal(t, model.EventWaiting, waiting.Type)
	assert.Equal(t, "es", waiting.Topic)

	p2 := dial(t, url)
	assert.NotEqual(t, p1.id, p2.id)
	p2.send(`{"type":"join","topic":"es","role":"helper"}`)

	m1 := p1.read()
	m2 := p2.read()
	require.Equal(t, model.EventMatch, m1.Type)
	require.Equal(t, model.EventMatch, m2.Type)
	require.NotEmpty(t, m1.Room)
	assert.Equal(t, m1.Room, m2.Room)
	require.NotNil(t, m1.OfferSide)
	require.NotNil(t, m2.OfferSide)
	assert.True(t, *m1.OfferSide)
	assert.False(t, *m2.OfferSide)
	room := m1.Room

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 4611731400430051336 2 IN IP4 127.0.0.1\r\n"}`)
	p1.sendJSON(model.Inbound{Type: model.EventOffer, Room: room, Payload: offer})
	got := p2.read()
	assert.Equal(t, model.EventOffer, got.Type)
	assert.Equal(t, room, got.Room)
	assert.JSONEq(t, string(offer), string(got.Payload))

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0\r\n"}`)
	p2.sendJSON(model.Inbound{Type: model.EventAnswer, Room: room, Payload: answer})
	got = p1.read()
	assert.Equal(t, model.EventAnswer, got.Type)
	assert.JSONEq(t, string(answer), string(got.Payload))

	candidate := json.RawMessage(`{"candidate":"candidate:842163049 1 udp 1677729535 1.2.3.4 3478 typ srflx","sdpMLineIndex":0}`)
	p2.sendJSON(model.Inbound{Type: model.EventCandidate, Room: room, Payload: candidate})
	got = p1.read()
	assert.Equal(t, model.EventCandidate, got.Type)
	assert.JSONEq(t, string(candidate), string(got.Payload))

	require.NoError(t, p1.conn.Close())
	closed := p2.read()
	assert.Equal(t, model.EventRoomClosed, closed.Type)
	assert.Equal(t, model.ReasonPeerDisconnected, closed.Reason)
	assert.Equal(t, room, closed.Room)

	assert.Eventually(t, func() bool {
		_, ok := svc.Participant(p1.id)
		return !ok
	}, readTimeout, 10*time.Millisecond)
	assert.Zero(t, svc.Stats().Rooms)
}

func TestSignaling_Errors(t *testing.T) {
	_, url := newTestServer(t)
	c := dial(t, url)

	tests := []struct {
		name string
		msg  string
		code string
	}{
		{name: "malformed json", msg: `{"type":`, code: CodeBadMessage},
		{name: "unknown type", msg: `{"type":"hello"}`, code: CodeUnknownType},
		{name: "invalid role", msg: `{"type":"join","topic":"es","role":"tutor"}`, code: CodeInvalidJoin},
		{name: "missing topic", msg: `{"type":"join","role":"seeker"}`, code: CodeInvalidJoin},
		{name: "unknown room", msg: `{"type":"offer","room":"nope","payload":{}}`, code: CodeRelayFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.send(tt.msg)
			ev := c.read()
			assert.Equal(t, model.EventError, ev.Type)
			assert.Equal(t, tt.code, ev.Code)
		})
	}

	// connection stays usable after errors
	c.send(`{"type":"join","topic":"es","role":"seeker"}`)
	assert.Equal(t, model.EventWaiting, c.read().Type)
}

func TestSignaling_ForeignRoom(t *testing.T) {
	_, url := newTestServer(t)

	a := dial(t, url)
	b := dial(t, url)
	intruder := dial(t, url)

	a.send(`{"type":"join","topic":"de","role":"helper"}`)
	require.Equal(t, model.EventWaiting, a.read().Type)
	b.send(`{"type":"join","topic":"de","role":"seeker"}`)
	room := a.read().Room
	require.Equal(t, room, b.read().Room)

	intruder.sendJSON(model.Inbound{Type: model.EventOffer, Room: room, Payload: json.RawMessage(`{}`)})
	ev := intruder.read()
	assert.Equal(t, model.EventError, ev.Type)
	assert.Equal(t, CodeRelayFailed, ev.Code)

	// members keep relaying
	a.sendJSON(model.Inbound{Type: model.EventOffer, Room: room, Payload: json.RawMessage(`{"sdp":"a"}`)})
	got := b.read()
	assert.Equal(t, model.EventOffer, got.Type)
	assert.JSONEq(t, `{"sdp":"a"}`, string(got.Payload))
}

func TestSignaling_Leave(t *testing.T) {
	_, url := newTestServer(t)

	a := dial(t, url)
	b := dial(t, url)
	a.send(`{"type":"join","topic":"it","role":"seeker"}`)
	require.Equal(t, model.EventWaiting, a.read().Type)
	b.send(`{"type":"join","topic":"it","role":"helper"}`)
	require.Equal(t, model.EventMatch, a.read().Type)
	require.Equal(t, model.EventMatch, b.read().Type)

	b.send(`{"type":"leave"}`)
	for _, c := range []*client{a, b} {
		ev := c.read()
		assert.Equal(t, model.EventRoomClosed, ev.Type)
		assert.Equal(t, model.ReasonPeerLeft, ev.Reason)
	}
}
