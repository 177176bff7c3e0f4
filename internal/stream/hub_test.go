package stream

import (
	"encoding/binary"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/bouncesim/internal/particles"
	"github.com/san-kum/bouncesim/internal/sim"
)

func TestFrameCodec(t *testing.T) {
	f := sim.Frame{
		Step:      42,
		Time:      0.042,
		Positions: []particles.Vec2{{X: 1.5, Y: -2}, {X: 1200, Y: 800}},
	}

	data := EncodeFrame(f)
	require.Len(t, data, headerSize+16)
	assert.Equal(t, OpCodeFrame, data[0])

	got, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.Equal(t, f.Step, got.Step)
	assert.Equal(t, f.Time, got.Time)
	assert.Equal(t, f.Positions, got.Positions)

	_, err = DecodeFrame(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrShortFrame)
	_, err = DecodeFrame([]byte{0x02})
	assert.ErrorIs(t, err, ErrShortFrame)
}

func TestDecodeFrameRejectsBadCount(t *testing.T) {
	data := EncodeFrame(sim.Frame{Step: 1, Positions: []particles.Vec2{{X: 1, Y: 2}}})

	huge := append([]byte(nil), data...)
	binary.LittleEndian.PutUint32(huge[17:], math.MaxUint32)
	_, err := DecodeFrame(huge)
	assert.ErrorIs(t, err, ErrShortFrame)

	extra := append(append([]byte(nil), data...), make([]byte, 8)...)
	_, err = DecodeFrame(extra)
	assert.ErrorIs(t, err, ErrShortFrame)

	empty := EncodeFrame(sim.Frame{Step: 7})
	got, err := DecodeFrame(empty)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.Step)
	assert.Empty(t, got.Positions)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubBroadcast(t *testing.T) {
	info := Info{Device: "cpu", Particles: 2, Width: 10, Height: 10, Dt: 0.01}
	hub := NewHub(info, HubOptions{})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	mt, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	var hello Info
	require.NoError(t, jsoniter.Unmarshal(msg, &hello))
	assert.Equal(t, info, hello)
	assert.Equal(t, 1, hub.Clients())

	frame := sim.Frame{Step: 7, Time: 0.07, Positions: []particles.Vec2{{X: 1, Y: 2}, {X: 3, Y: 4}}}
	require.NoError(t, hub.OnFrame(frame))

	mt, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	got, err := DecodeFrame(msg)
	require.NoError(t, err)
	assert.Equal(t, frame.Positions, got.Positions)
	assert.Equal(t, uint64(7), got.Step)

	hub.Close()
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error %v", err)
	assert.Equal(t, 0, hub.Clients())
}

func TestHubRejectsWhenFull(t *testing.T) {
	hub := NewHub(Info{}, HubOptions{MaxClients: 1})
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	first := dial(t, srv)
	_ = first.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := first.ReadMessage()
	require.NoError(t, err)

	second := dial(t, srv)
	_ = second.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = second.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "unexpected error %v", err)
}

func TestHubDropsForSlowClients(t *testing.T) {
	hub := NewHub(Info{}, HubOptions{})
	c := &client{send: make(chan []byte, sendBuffer)}
	hub.clients[c] = struct{}{}

	for i := 0; i < 5; i++ {
		require.NoError(t, hub.OnFrame(sim.Frame{Step: uint64(i)}))
	}

	sent, dropped := hub.Stats()
	assert.Equal(t, uint64(sendBuffer), sent)
	assert.Equal(t, uint64(5-sendBuffer), dropped)

	first, err := DecodeFrame(<-c.send)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first.Step, "oldest frames are kept")
}

func TestHubFrameRateCap(t *testing.T) {
	hub := NewHub(Info{}, HubOptions{FPS: 1})
	c := &client{send: make(chan []byte, 10)}
	hub.clients[c] = struct{}{}

	for i := 0; i < 5; i++ {
		require.NoError(t, hub.OnFrame(sim.Frame{Step: uint64(i)}))
	}
	assert.Len(t, c.send, 1)
}

func TestHubWithoutClients(t *testing.T) {
	hub := NewHub(Info{}, HubOptions{})
	assert.NoError(t, hub.OnFrame(sim.Frame{Positions: make([]particles.Vec2, 10)}))
	sent, dropped := hub.Stats()
	assert.Zero(t, sent)
	assert.Zero(t, dropped)
	hub.Close()
}
