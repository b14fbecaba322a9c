package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regionalert/internal/adapter/stream"
	"regionalert/internal/domain/alert"
	"regionalert/internal/domain/geo"
	"regionalert/internal/domain/location"
	locationsvc "regionalert/internal/service/location"
)

type fakeResponder struct {
	mu    sync.Mutex
	calls []alert.Response
	ids   []string
	err   error
}

func (f *fakeResponder) RecordResponse(_ context.Context, alertID string, r alert.Response) (*alert.EmergencyAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.ids = append(f.ids, alertID)
	f.calls = append(f.calls, r)
	return &alert.EmergencyAlert{
		ID:     alertID,
		Status: alert.StatusActive,
		Source: alert.Source{VerificationStatus: alert.VerificationPending},
	}, nil
}

type fakeLocator struct {
	mu      sync.Mutex
	updates []locationsvc.Update
}

func (f *fakeLocator) UpdateLocation(_ context.Context, userID string, u locationsvc.Update) (*location.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, u)
	return &location.Record{
		UserID:      userID,
		Coordinates: u.Coordinates,
		Region:      geo.Region{Name: "Greater Sydney"},
		Source:      u.Source,
		LastUpdated: time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC),
	}, nil
}

type wsFixture struct {
	bus       *stream.LocalBus
	responder *fakeResponder
	locator   *fakeLocator
	server    *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	f := &wsFixture{
		bus:       stream.NewLocalBus(),
		responder: &fakeResponder{},
		locator:   &fakeLocator{},
	}
	h := NewAlertStreamHandler(f.bus, f.responder, f.locator, DefaultWebSocketConfig(), nil, nil)
	f.server = httptest.NewServer(h)
	t.Cleanup(f.server.Close)
	return f
}

func (f *wsFixture) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	welcome := readMessage(t, conn)
	require.Equal(t, "welcome", welcome["type"])
	require.Equal(t, userID, welcome["userId"])
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

// waitForPublish publishes on subject and returns the next message the client
// reads. Subscriptions exist by the time the welcome message arrives.
func waitForPublish(t *testing.T, bus *stream.LocalBus, conn *websocket.Conn, subject string, payload []byte) map[string]any {
	t.Helper()
	require.NoError(t, bus.Publish(subject, payload))
	return readMessage(t, conn)
}

func TestAlertStream_RequiresUser(t *testing.T) {
	f := newWSFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestAlertStream_RejectsWildcardUser(t *testing.T) {
	f := newWSFixture(t)
	base := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/?user_id="

	for _, userID := range []string{"%3E", "*", "alice.bob", "a%20b"} {
		_, resp, err := websocket.DefaultDialer.Dial(base+userID, nil)
		require.Error(t, err, userID)
		require.NotNil(t, resp, userID)
		assert.Equal(t, 400, resp.StatusCode, userID)
	}

	// A legitimate client must not see another user's targeted alert.
	conn := f.dial(t, "alice")
	require.NoError(t, f.bus.Publish(alert.UserTopic("victim"), []byte(`{"type":"targeted_alert"}`)))
	msg := waitForPublish(t, f.bus, conn, alert.BroadcastTopic, []byte(`{"type":"alert_created"}`))
	assert.Equal(t, "alert_created", msg["type"])
}

func TestAlertStream_DeliversGlobalAndOwnTopics(t *testing.T) {
	f := newWSFixture(t)
	alice := f.dial(t, "alice")

	msg := waitForPublish(t, f.bus, alice, alert.BroadcastTopic, []byte(`{"type":"alert_created","alert":{"id":"a1"}}`))
	assert.Equal(t, "alert_created", msg["type"])

	require.NoError(t, f.bus.Publish(alert.UserTopic("bob"), []byte(`{"type":"targeted_alert","for":"bob"}`)))
	msg = waitForPublish(t, f.bus, alice, alert.UserTopic("alice"), []byte(`{"type":"targeted_alert","for":"alice"}`))
	assert.Equal(t, "alice", msg["for"], "messages for other users must not reach alice")
}

func TestAlertStream_RecordsResponses(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")

	send(t, conn, map[string]any{
		"type": "response", "alertId": "a1", "responseType": "need_help",
		"message": "trapped by water", "latitude": -33.7, "longitude": 150.3,
	})

	msg := readMessage(t, conn)
	assert.Equal(t, "response_recorded", msg["type"])
	assert.Equal(t, "a1", msg["alertId"])

	f.responder.mu.Lock()
	defer f.responder.mu.Unlock()
	require.Len(t, f.responder.calls, 1)
	got := f.responder.calls[0]
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, alert.ResponseNeedHelp, got.Type)
	require.NotNil(t, got.Coordinates)
	assert.Equal(t, -33.7, got.Coordinates.Latitude)
}

func TestAlertStream_ResponseErrors(t *testing.T) {
	f := newWSFixture(t)
	f.responder.err = eris.Wrap(alert.ErrNotFound, "a404")
	conn := f.dial(t, "alice")

	send(t, conn, map[string]any{"type": "response", "alertId": "a404", "responseType": "safe"})
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["details"], "not found")

	send(t, conn, map[string]any{"type": "response", "responseType": "safe"})
	assert.Equal(t, "alertId is required", readMessage(t, conn)["error"])

	f.responder.mu.Lock()
	f.responder.err = eris.New("database unavailable")
	f.responder.mu.Unlock()
	send(t, conn, map[string]any{"type": "response", "alertId": "a1", "responseType": "safe"})
	msg = readMessage(t, conn)
	assert.Equal(t, "failed to record response", msg["error"])
	assert.NotContains(t, msg, "details")
}

func TestAlertStream_UpdatesLocation(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")

	send(t, conn, map[string]any{"type": "location", "latitude": -33.87, "longitude": 151.21, "accuracyMeters": 8})

	msg := readMessage(t, conn)
	assert.Equal(t, "location_updated", msg["type"])
	assert.Equal(t, "Greater Sydney", msg["region"])

	f.locator.mu.Lock()
	defer f.locator.mu.Unlock()
	require.Len(t, f.locator.updates, 1)
	assert.Equal(t, location.SourceGPS, f.locator.updates[0].Source)
	require.NotNil(t, f.locator.updates[0].AccuracyMeters)
	assert.Equal(t, 8.0, *f.locator.updates[0].AccuracyMeters)
}

func TestAlertStream_LocationRequiresCoordinates(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")

	send(t, conn, map[string]any{"type": "location", "latitude": -33.87})
	assert.Equal(t, "latitude and longitude are required", readMessage(t, conn)["error"])
}

func TestAlertStream_WatchAndUnwatch(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")

	send(t, conn, map[string]any{"type": "watch", "alertId": "a1"})
	assert.Equal(t, "watching", readMessage(t, conn)["type"])

	msg := waitForPublish(t, f.bus, conn, alert.StatusTopic("a1"), []byte(`{"type":"status_changed","alertId":"a1"}`))
	assert.Equal(t, "status_changed", msg["type"])

	msg = waitForPublish(t, f.bus, conn, alert.ResponsesTopic("a1"), []byte(`{"type":"response_counts","alertId":"a1"}`))
	assert.Equal(t, "response_counts", msg["type"])

	send(t, conn, map[string]any{"type": "unwatch", "alertId": "a1"})
	// Unwatch has no reply; a follow-up message proves it was processed.
	send(t, conn, map[string]any{"type": "bogus"})
	assert.Equal(t, "error", readMessage(t, conn)["type"])

	require.NoError(t, f.bus.Publish(alert.StatusTopic("a1"), []byte(`{"type":"status_changed","alertId":"a1"}`)))
	msg = waitForPublish(t, f.bus, conn, alert.BroadcastTopic, []byte(`{"type":"alert_created"}`))
	assert.Equal(t, "alert_created", msg["type"])
}

func TestAlertStream_WatchRejectsWildcard(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")

	for _, id := range []string{"*", ">", "a1.status"} {
		send(t, conn, map[string]any{"type": "watch", "alertId": id})
		msg := readMessage(t, conn)
		assert.Equal(t, "error", msg["type"], id)
		assert.Equal(t, "invalid alertId", msg["error"], id)
	}

	require.NoError(t, f.bus.Publish(alert.StatusTopic("a1"), []byte(`{"type":"status_changed","alertId":"a1"}`)))
	msg := waitForPublish(t, f.bus, conn, alert.BroadcastTopic, []byte(`{"type":"alert_created"}`))
	assert.Equal(t, "alert_created", msg["type"])
}

func TestAlertStream_InvalidJSON(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{oops")))
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "invalid message", msg["error"])
}
