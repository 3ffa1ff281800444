package presence

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presence-deck/server/internal/domain"
)

// wsPair returns a connected server/client websocket pair.
func wsPair(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	serverConns := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	server = <-serverConns
	t.Cleanup(func() { server.Close() })
	return server, client
}

func readMessage(t *testing.T, conn *websocket.Conn) domain.ServerMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg domain.ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func assertNoMessage(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var msg domain.ServerMessage
	err := conn.ReadJSON(&msg)
	require.Error(t, err, "expected no push, got %+v", msg)
}

var (
	adminIdentity = domain.Identity{UserID: 1, Username: "root", Role: domain.RoleAdmin}
	aliceIdentity = domain.Identity{UserID: 2, Username: "alice", Role: domain.RoleUser}
)

func TestAdminReceivesUserListOnJoin(t *testing.T) {
	reg := NewRegistry()

	adminSrv, adminCli := wsPair(t)
	reg.Join("conn-admin", adminSrv, adminIdentity)

	// The admin's own join triggers a push to the admin partition.
	msg := readMessage(t, adminCli)
	assert.Equal(t, domain.EventUpdateUserList, msg.Type)
	require.Len(t, msg.Users, 1)
	assert.Equal(t, "root", msg.Users[0].Username)

	userSrv, _ := wsPair(t)
	reg.Join("conn-alice", userSrv, aliceIdentity)

	msg = readMessage(t, adminCli)
	assert.Equal(t, domain.EventUpdateUserList, msg.Type)
	assert.Len(t, msg.Users, 2)
}

func TestRegularUserReceivesNoPush(t *testing.T) {
	reg := NewRegistry()

	userSrv, userCli := wsPair(t)
	reg.Join("conn-alice", userSrv, aliceIdentity)

	otherSrv, _ := wsPair(t)
	reg.Join("conn-other", otherSrv, domain.Identity{UserID: 3, Username: "bob", Role: domain.RoleUser})

	// alice appears in the payload sent to admins, but being role=user she
	// is never an addressee herself.
	assertNoMessage(t, userCli)
}

func TestLeaveBroadcastsAndIsIdempotent(t *testing.T) {
	reg := NewRegistry()

	adminSrv, adminCli := wsPair(t)
	reg.Join("conn-admin", adminSrv, adminIdentity)
	readMessage(t, adminCli)

	userSrv, _ := wsPair(t)
	reg.Join("conn-alice", userSrv, aliceIdentity)
	readMessage(t, adminCli)

	reg.Leave("conn-alice")
	msg := readMessage(t, adminCli)
	assert.Equal(t, domain.EventUpdateUserList, msg.Type)
	require.Len(t, msg.Users, 1)
	assert.Equal(t, "root", msg.Users[0].Username)

	// Second leave for the same key is a no-op: no broadcast.
	reg.Leave("conn-alice")
	assertNoMessage(t, adminCli)

	// Unknown key is a no-op too.
	reg.Leave("never-registered")
	assert.Equal(t, 1, reg.Count())
}

func TestDisconnectUserClosesAllConnections(t *testing.T) {
	reg := NewRegistry()

	srv1, cli1 := wsPair(t)
	srv2, cli2 := wsPair(t)
	reg.Join("tab-1", srv1, aliceIdentity)
	reg.Join("tab-2", srv2, aliceIdentity)
	require.Equal(t, 2, reg.Count())

	reg.DisconnectUser(aliceIdentity.UserID, "Logged in from another device")

	for _, cli := range []*websocket.Conn{cli1, cli2} {
		msg := readMessage(t, cli)
		assert.Equal(t, domain.EventForceDisconnect, msg.Type)
		assert.Equal(t, "Logged in from another device", msg.Message)
	}
	assert.Equal(t, 0, reg.Count())

	// Disconnecting an absent user does nothing.
	reg.DisconnectUser(999, "noop")
}

func TestUserListSnapshot(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.UserList())

	srv, _ := wsPair(t)
	reg.Join("conn-alice", srv, aliceIdentity)

	list := reg.UserList()
	require.Len(t, list, 1)
	assert.Equal(t, aliceIdentity.UserID, list[0].UserID)
	assert.Equal(t, domain.RoleUser, list[0].Role)
	assert.WithinDuration(t, time.Now(), list[0].ConnectedAt, 5*time.Second)
}
