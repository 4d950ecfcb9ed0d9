package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkoraadmin/internal/models"
)

type memStore struct {
	mu    sync.Mutex
	items []models.Notification
	fail  bool
}

func (m *memStore) InsertNotification(_ context.Context, n models.Notification) (models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return models.Notification{}, errors.New("disk full")
	}
	m.items = append(m.items, n)
	return n, nil
}

func (m *memStore) ListNotifications(_ context.Context, adminID string, includeDismissed bool, _ int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.items {
		if n.AdminID == adminID && (includeDismissed || n.DismissedAt == nil) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memStore) DismissNotification(_ context.Context, adminID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id && m.items[i].AdminID == adminID {
			now := time.Now()
			m.items[i].DismissedAt = &now
			return nil
		}
	}
	return errors.New("not found")
}

func TestCenterPersistsAndDismisses(t *testing.T) {
	st := &memStore{}
	c := NewCenter(st, nil, nil)

	n := c.Notify(t.Context(), models.Notification{AdminID: "a1", Kind: models.NotifyError, Message: "Failed to approve user"})
	assert.NotEmpty(t, n.ID)
	assert.False(t, n.CreatedAt.IsZero())

	list, err := c.List(t.Context(), "a1", false, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, c.Dismiss(t.Context(), "a1", n.ID))
	list, err = c.List(t.Context(), "a1", false, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Error(t, c.Dismiss(t.Context(), "a2", n.ID))
}

func TestCenterStillReturnsNotificationWhenStoreFails(t *testing.T) {
	c := NewCenter(&memStore{fail: true}, nil, nil)
	n := c.Notify(t.Context(), models.Notification{AdminID: "a1", Kind: models.NotifySuccess, Message: "ok"})
	assert.Equal(t, "ok", n.Message)
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func TestHubStreamsNotificationsToAdmin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub(nil, nil)
	go hub.Run(ctx)
	center := NewCenter(&memStore{}, hub, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, r.URL.Query().Get("admin"), map[string]int{"unread": 0})
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?admin=a1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, OpReady, readEvent(t, conn).Op)
	require.Eventually(t, func() bool { return hub.Connections("a1") == 1 }, time.Second, 10*time.Millisecond)

	center.Notify(t.Context(), models.Notification{AdminID: "a2", Kind: models.NotifyInfo, Message: "not yours"})
	center.Notify(t.Context(), models.Notification{AdminID: "a1", Kind: models.NotifySuccess, Message: "User approved"})

	ev := readEvent(t, conn)
	assert.Equal(t, OpNotification, ev.Op)
	data, ok := ev.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "User approved", data["message"])

	require.NoError(t, conn.WriteJSON(Event{Op: OpHeartbeat}))
	assert.Equal(t, OpHeartbeatAck, readEvent(t, conn).Op)
}
