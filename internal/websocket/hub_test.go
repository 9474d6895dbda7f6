package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicore/internal/config"
	"clinicore/internal/license"
)

func testHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(config.WebSocketConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		PingPeriod:      30 * time.Second,
		PongWait:        60 * time.Second,
	}, nil)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(server.Close)
	return hub, server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func checkResult(status license.Status, canProceed bool) license.CheckResult {
	return license.CheckResult{
		ValidationResult: license.ValidationResult{Status: status},
		CanProceed:       canProceed,
		CheckedAt:        time.Now(),
	}
}

func TestHubBroadcast(t *testing.T) {
	hub, server := testHub(t)
	conn := dial(t, server)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	hub.BroadcastLicenseStatus(checkResult(license.StatusValid, true))

	msg := readMessage(t, conn)
	assert.Equal(t, "license_status", msg.Type)

	data := msg.Data.(map[string]interface{})
	assert.Equal(t, "VALID", data["status"])
	assert.Equal(t, true, data["can_proceed"])
}

func TestHubReplaysLastStatus(t *testing.T) {
	hub, server := testHub(t)

	hub.BroadcastLicenseStatus(checkResult(license.StatusExpired, false))

	// A client connecting after the transition still learns about it.
	conn := dial(t, server)
	msg := readMessage(t, conn)

	assert.Equal(t, "license_status", msg.Type)
	data := msg.Data.(map[string]interface{})
	assert.Equal(t, "EXPIRED", data["status"])
	assert.Equal(t, false, data["can_proceed"])
}

func TestHubClientLifecycle(t *testing.T) {
	hub, server := testHub(t)
	assert.Zero(t, hub.ClientCount())

	conn := dial(t, server)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}

func TestHubBroadcastWithoutClients(t *testing.T) {
	hub, _ := testHub(t)
	// Must not panic or block with nobody listening.
	hub.BroadcastLicenseStatus(checkResult(license.StatusValid, true))
	assert.Zero(t, hub.ClientCount())
}
