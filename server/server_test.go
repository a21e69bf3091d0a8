package server

import (
	"io"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatd/config"
	"chatd/db"
	"chatd/protocol"
)

func setupTestServer(t *testing.T, maxClients int) *Server {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	cfg := &config.Config{
		Addr:         ":0",
		MaxClients:   maxClients,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
	return New(cfg, database)
}

// dial wires a pipe into the server's connection handler and consumes the
// welcome banner.
func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	go srv.handleConnection(server)
	t.Cleanup(func() { client.Close() })

	banner := readLine(t, client)
	require.True(t, strings.HasPrefix(banner, "100 "), "unexpected banner: %q", banner)
	return client
}

// readLine reads one response line. Every server write is exactly one
// complete line, so a single read suffices on a pipe.
func readLine(t *testing.T, conn net.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, protocol.MaxMessageLength)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return strings.TrimSuffix(string(buf[:n]), "\r\n")
}

func send(t *testing.T, conn net.Conn, line string) {
	t.Helper()
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err := conn.Write([]byte(line + protocol.Delimiter))
	require.NoError(t, err)
}

// request sends a command and returns the next line from the server.
func request(t *testing.T, conn net.Conn, line string) string {
	t.Helper()
	send(t, conn, line)
	return readLine(t, conn)
}

// loginNewUser registers a fresh account and logs it in on a new connection.
func loginNewUser(t *testing.T, srv *Server, name string) net.Conn {
	t.Helper()
	conn := dial(t, srv)
	resp := request(t, conn, "REGISTER "+name+" pw123")
	require.True(t, strings.HasPrefix(resp, "101 "), "register: %q", resp)
	resp = request(t, conn, "LOGIN "+name+" pw123")
	require.Equal(t, "102 Welcome "+name, resp)
	return conn
}

// befriend runs the full request/accept handshake between two logged-in
// connections.
func befriend(t *testing.T, a, b net.Conn, aName, bName string) {
	t.Helper()
	send(t, a, "FRIEND_REQ "+bName)
	readLine(t, b) // push to the addressee
	readLine(t, a)
	send(t, b, "FRIEND_ACCEPT "+aName)
	readLine(t, a) // push to the requester
	readLine(t, b)
}

func TestRegisterAndLogin(t *testing.T) {
	srv := setupTestServer(t, 10)
	conn := dial(t, srv)

	resp := request(t, conn, "REGISTER alice pw123")
	assert.Equal(t, "101 Registration successful for alice", resp)

	resp = request(t, conn, "REGISTER alice other")
	assert.Equal(t, "201 ", resp)

	resp = request(t, conn, "LOGIN alice wrong")
	assert.Equal(t, "202 ", resp)

	resp = request(t, conn, "LOGIN alice pw123")
	assert.Equal(t, "102 Welcome alice", resp)

	// A second connection cannot take over the user.
	other := dial(t, srv)
	resp = request(t, other, "LOGIN alice pw123")
	assert.Equal(t, "304 ", resp)
}

func TestRegisterValidation(t *testing.T) {
	srv := setupTestServer(t, 10)
	conn := dial(t, srv)

	resp := request(t, conn, "REGISTER")
	assert.True(t, strings.HasPrefix(resp, "500 "), resp)

	resp = request(t, conn, "REGISTER alice")
	assert.True(t, strings.HasPrefix(resp, "500 "), resp)

	resp = request(t, conn, "REGISTER bad!name pw123")
	assert.Equal(t, "301 ", resp)

	resp = request(t, conn, "REGISTER "+strings.Repeat("a", 51)+" pw123")
	assert.True(t, strings.HasPrefix(resp, "301 "), resp)

	resp = request(t, conn, "REGISTER alice "+strings.Repeat("p", 101))
	assert.True(t, strings.HasPrefix(resp, "302 "), resp)
}

func TestCommandsRequireLogin(t *testing.T) {
	srv := setupTestServer(t, 10)
	conn := dial(t, srv)

	for _, cmd := range []string{
		"LOGOUT", "FRIEND_REQ bob", "FRIEND_LIST", "MSG bob hi",
		"GROUP_CREATE devs", "GROUP_MSG devs hi", "GET_OFFLINE_MSG",
	} {
		assert.Equal(t, "305 ", request(t, conn, cmd), cmd)
	}
}

func TestUnknownCommand(t *testing.T) {
	srv := setupTestServer(t, 10)
	conn := dial(t, srv)

	resp := request(t, conn, "FROBNICATE now")
	assert.Equal(t, "500 Unknown command", resp)
}

func TestLogout(t *testing.T) {
	srv := setupTestServer(t, 10)
	conn := loginNewUser(t, srv, "alice")

	resp := request(t, conn, "LOGOUT")
	assert.Equal(t, "103 Logout successful", resp)

	resp = request(t, conn, "FRIEND_LIST")
	assert.Equal(t, "305 ", resp)

	// The connection survives and can log in again.
	resp = request(t, conn, "LOGIN alice pw123")
	assert.Equal(t, "102 Welcome alice", resp)
}

func TestFriendLifecycle(t *testing.T) {
	srv := setupTestServer(t, 10)
	alice := loginNewUser(t, srv, "alice")
	bob := loginNewUser(t, srv, "bob")

	send(t, alice, "FRIEND_REQ bob")
	assert.Equal(t, "104 Friend request from alice", readLine(t, bob))
	assert.Equal(t, "104 Friend request sent to bob", readLine(t, alice))

	// A duplicate in either direction is refused while pending.
	assert.Equal(t, "401 ", request(t, alice, "FRIEND_REQ bob"))
	assert.Equal(t, "401 ", request(t, bob, "FRIEND_REQ alice"))

	assert.Equal(t, "117 alice", request(t, bob, "FRIEND_PENDING"))

	// Nobody asked alice for anything.
	assert.Equal(t, "402 ", request(t, alice, "FRIEND_ACCEPT bob"))

	send(t, bob, "FRIEND_ACCEPT alice")
	assert.Equal(t, "105 bob accepted your friend request", readLine(t, alice))
	assert.Equal(t, "105 Friend request from alice accepted", readLine(t, bob))

	assert.Equal(t, "108 bob:on", request(t, alice, "FRIEND_LIST"))
	assert.Equal(t, "117 No pending friend requests", request(t, bob, "FRIEND_PENDING"))

	assert.Equal(t, "306 ", request(t, alice, "FRIEND_REQ bob"))

	assert.Equal(t, "107 bob removed from friends", request(t, alice, "FRIEND_REMOVE bob"))
	assert.Equal(t, "108 You don't have any friends yet", request(t, alice, "FRIEND_LIST"))
	assert.Equal(t, "403 ", request(t, alice, "FRIEND_REMOVE bob"))
}

func TestFriendDecline(t *testing.T) {
	srv := setupTestServer(t, 10)
	alice := loginNewUser(t, srv, "alice")
	bob := loginNewUser(t, srv, "bob")

	send(t, alice, "FRIEND_REQ bob")
	readLine(t, bob)
	readLine(t, alice)

	assert.Equal(t, "106 Friend request from alice declined", request(t, bob, "FRIEND_DECLINE alice"))
	assert.Equal(t, "402 ", request(t, bob, "FRIEND_DECLINE alice"))

	// A declined request can be sent again.
	send(t, alice, "FRIEND_REQ bob")
	readLine(t, bob)
	assert.Equal(t, "104 Friend request sent to bob", readLine(t, alice))
}

func TestFriendTargetErrors(t *testing.T) {
	srv := setupTestServer(t, 10)
	alice := loginNewUser(t, srv, "alice")

	assert.Equal(t, "303 ", request(t, alice, "FRIEND_REQ ghost"))
	assert.Equal(t, "500 Cannot target yourself", request(t, alice, "FRIEND_REQ alice"))
	assert.Equal(t, "500 Target username required", request(t, alice, "FRIEND_REQ"))
}

func TestDirectMessage(t *testing.T) {
	srv := setupTestServer(t, 10)
	alice := loginNewUser(t, srv, "alice")
	bob := loginNewUser(t, srv, "bob")

	// Messaging requires an accepted friendship.
	assert.Equal(t, "403 ", request(t, alice, "MSG bob hello"))

	befriend(t, alice, bob, "alice", "bob")

	send(t, alice, "MSG bob hello there")
	assert.Equal(t, "201 NEW_MESSAGE from alice: hello there", readLine(t, bob))
	assert.Equal(t, "109 Message sent to bob", readLine(t, alice))

	// The live push marked the message delivered; it is not queued too.
	assert.Equal(t, "116 0 offline message(s)", request(t, bob, "GET_OFFLINE_MSG"))

	assert.Equal(t, "303 ", request(t, alice, "MSG ghost hi"))
	assert.Equal(t, "500 Message text required", request(t, alice, "MSG bob"))
}

func TestOfflineMessageDelivery(t *testing.T) {
	srv := setupTestServer(t, 10)
	alice := loginNewUser(t, srv, "alice")
	bob := loginNewUser(t, srv, "bob")
	befriend(t, alice, bob, "alice", "bob")

	assert.Equal(t, "103 Logout successful", request(t, bob, "LOGOUT"))

	// No push goes out while bob is away; the sender sees the same ack.
	assert.Equal(t, "109 Message sent to bob", request(t, alice, "MSG bob first"))
	assert.Equal(t, "109 Message sent to bob", request(t, alice, "MSG bob second"))

	// Queued messages come out in order, before the login ack.
	send(t, bob, "LOGIN bob pw123")
	assert.Equal(t, "201 NEW_MESSAGE from alice: first", readLine(t, bob))
	assert.Equal(t, "201 NEW_MESSAGE from alice: second", readLine(t, bob))
	assert.Equal(t, "102 Welcome bob", readLine(t, bob))

	// Delivery happens exactly once.
	assert.Equal(t, "116 0 offline message(s)", request(t, bob, "GET_OFFLINE_MSG"))
}

func TestGetOfflineMessagesBySender(t *testing.T) {
	srv := setupTestServer(t, 10)
	alice := loginNewUser(t, srv, "alice")
	bob := loginNewUser(t, srv, "bob")
	carol := loginNewUser(t, srv, "carol")
	befriend(t, alice, carol, "alice", "carol")
	befriend(t, bob, carol, "bob", "carol")

	assert.Equal(t, "103 Logout successful", request(t, carol, "LOGOUT"))
	assert.Equal(t, "109 Message sent to carol", request(t, alice, "MSG carol from alice"))
	assert.Equal(t, "109 Message sent to carol", request(t, bob, "MSG carol from bob"))

	send(t, carol, "LOGIN carol pw123")
	assert.Equal(t, "201 NEW_MESSAGE from alice: from alice", readLine(t, carol))
	assert.Equal(t, "201 NEW_MESSAGE from bob: from bob", readLine(t, carol))
	assert.Equal(t, "102 Welcome carol", readLine(t, carol))

	assert.Equal(t, "116 0 offline message(s)", request(t, carol, "GET_OFFLINE_MSG bob"))
	assert.Equal(t, "303 ", request(t, carol, "GET_OFFLINE_MSG ghost"))
}

func TestGroupLifecycle(t *testing.T) {
	srv := setupTestServer(t, 10)
	alice := loginNewUser(t, srv, "alice")
	bob := loginNewUser(t, srv, "bob")
	carol := loginNewUser(t, srv, "carol")

	assert.Equal(t, "110 Group devs created", request(t, alice, "GROUP_CREATE devs"))
	assert.Equal(t, "415 ", request(t, bob, "GROUP_CREATE devs"))
	assert.Equal(t, "500 Invalid group name", request(t, alice, "GROUP_CREATE ab"))

	send(t, alice, "GROUP_INVITE devs bob")
	assert.Equal(t, "111 You were added to group devs by alice", readLine(t, bob))
	assert.Equal(t, "111 bob added to group devs", readLine(t, alice))

	assert.Equal(t, "418 ", request(t, alice, "GROUP_INVITE devs bob"))
	assert.Equal(t, "419 ", request(t, alice, "GROUP_INVITE nosuch bob"))
	assert.Equal(t, "421 ", request(t, carol, "GROUP_INVITE devs carol"))

	// carol asks to join; the owner is notified.
	send(t, carol, "GROUP_JOIN devs")
	assert.Equal(t, "112 carol requested to join group devs", readLine(t, alice))
	assert.Equal(t, "112 Join request sent to group devs", readLine(t, carol))

	assert.Equal(t, "401 ", request(t, carol, "GROUP_JOIN devs"))
	assert.Equal(t, "418 ", request(t, bob, "GROUP_JOIN devs"))

	// Only the owner sees and resolves join requests.
	assert.Equal(t, "417 ", request(t, bob, "LIST_JOIN_REQUESTS devs"))
	assert.Equal(t, "109 carol", request(t, alice, "LIST_JOIN_REQUESTS devs"))

	send(t, alice, "GROUP_APPROVE devs carol")
	assert.Equal(t, "112 Your request to join group devs was approved", readLine(t, carol))
	assert.Equal(t, "109 Join request from carol approved", readLine(t, alice))

	assert.Equal(t, "109 No pending join requests", request(t, alice, "LIST_JOIN_REQUESTS devs"))
	assert.Equal(t, "402 ", request(t, alice, "GROUP_APPROVE devs carol"))

	// The owner can neither leave nor be kicked, by anyone.
	assert.Equal(t, "417 ", request(t, alice, "GROUP_LEAVE devs"))
	assert.Equal(t, "422 ", request(t, alice, "GROUP_KICK devs alice"))
	assert.Equal(t, "422 ", request(t, bob, "GROUP_KICK devs alice"))
	assert.Equal(t, "417 ", request(t, bob, "GROUP_KICK devs carol"))

	assert.Equal(t, "113 Left group devs", request(t, carol, "GROUP_LEAVE devs"))
	assert.Equal(t, "421 ", request(t, carol, "GROUP_LEAVE devs"))

	send(t, alice, "GROUP_KICK devs bob")
	assert.Equal(t, "114 You were kicked from group devs by alice", readLine(t, bob))
	assert.Equal(t, "114 bob kicked from group devs", readLine(t, alice))
	assert.Equal(t, "421 ", request(t, alice, "GROUP_KICK devs bob"))
}

func TestGroupJoinReject(t *testing.T) {
	srv := setupTestServer(t, 10)
	alice := loginNewUser(t, srv, "alice")
	bob := loginNewUser(t, srv, "bob")

	require.Equal(t, "110 Group devs created", request(t, alice, "GROUP_CREATE devs"))

	send(t, bob, "GROUP_JOIN devs")
	readLine(t, alice)
	readLine(t, bob)

	send(t, alice, "GROUP_REJECT devs bob")
	assert.Equal(t, "112 Your request to join group devs was rejected", readLine(t, bob))
	assert.Equal(t, "109 Join request from bob rejected", readLine(t, alice))

	// A rejected user may ask again.
	send(t, bob, "GROUP_JOIN devs")
	readLine(t, alice)
	assert.Equal(t, "112 Join request sent to group devs", readLine(t, bob))
}

func TestGroupMessage(t *testing.T) {
	srv := setupTestServer(t, 10)
	alice := loginNewUser(t, srv, "alice")
	bob := loginNewUser(t, srv, "bob")
	carol := loginNewUser(t, srv, "carol")

	require.Equal(t, "110 Group devs created", request(t, alice, "GROUP_CREATE devs"))
	send(t, alice, "GROUP_INVITE devs bob")
	readLine(t, bob)
	readLine(t, alice)

	send(t, alice, "GROUP_MSG devs status: all green")
	assert.Equal(t, "115 GROUP_MSG devs alice: status: all green", readLine(t, bob))
	assert.Equal(t, "115 Message sent to group devs", readLine(t, alice))

	assert.Equal(t, "421 ", request(t, carol, "GROUP_MSG devs hi"))
	assert.Equal(t, "419 ", request(t, alice, "GROUP_MSG nosuch hi"))
	assert.Equal(t, "500 Message text required", request(t, alice, "GROUP_MSG devs"))
}

func TestGroupOfflineCatchUp(t *testing.T) {
	srv := setupTestServer(t, 10)
	alice := loginNewUser(t, srv, "alice")
	bob := loginNewUser(t, srv, "bob")

	require.Equal(t, "110 Group devs created", request(t, alice, "GROUP_CREATE devs"))
	send(t, alice, "GROUP_INVITE devs bob")
	readLine(t, bob)
	readLine(t, alice)

	assert.Equal(t, "103 Logout successful", request(t, bob, "LOGOUT"))

	assert.Equal(t, "115 Message sent to group devs", request(t, alice, "GROUP_MSG devs missed me?"))

	assert.Equal(t, "102 Welcome bob", request(t, bob, "LOGIN bob pw123"))

	send(t, bob, "GROUP_OFFLINE_MSG devs")
	assert.Equal(t, "115 GROUP_MSG devs alice: missed me?", readLine(t, bob))
	assert.Equal(t, "116 1 offline message(s)", readLine(t, bob))

	// Catch-up is idempotent, under either spelling of the command.
	assert.Equal(t, "116 0 offline message(s)", request(t, bob, "GROUP_OFFLINE_MSG devs"))
	assert.Equal(t, "116 0 offline message(s)", request(t, bob, "GROUP_SEND_OFFLINE_MSG devs"))
}

func TestOfflineNotificationReplay(t *testing.T) {
	srv := setupTestServer(t, 10)
	alice := loginNewUser(t, srv, "alice")
	bob := loginNewUser(t, srv, "bob")

	require.Equal(t, "110 Group devs created", request(t, alice, "GROUP_CREATE devs"))
	assert.Equal(t, "103 Logout successful", request(t, bob, "LOGOUT"))

	// The invite lands while bob is away.
	assert.Equal(t, "111 bob added to group devs", request(t, alice, "GROUP_INVITE devs bob"))

	send(t, bob, "LOGIN bob pw123")
	assert.Equal(t, "111 You were added to group devs by alice", readLine(t, bob))
	assert.Equal(t, "102 Welcome bob", readLine(t, bob))

	// Replay happens exactly once.
	assert.Equal(t, "103 Logout successful", request(t, bob, "LOGOUT"))
	assert.Equal(t, "102 Welcome bob", request(t, bob, "LOGIN bob pw123"))
}

func TestConnectionLimit(t *testing.T) {
	srv := setupTestServer(t, 1)
	dial(t, srv)

	client, server := net.Pipe()
	defer client.Close()
	go srv.handleConnection(server)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := client.Read(make([]byte, 64))
	assert.ErrorIs(t, err, io.EOF)
}

func TestReceiveBufferOverflowDropsConnection(t *testing.T) {
	srv := setupTestServer(t, 10)
	conn := dial(t, srv)

	junk := make([]byte, protocol.BufferCapacity)
	for i := range junk {
		junk[i] = 'x'
	}
	conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err := conn.Write(junk)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(make([]byte, 64))
	assert.ErrorIs(t, err, io.EOF)
}

func TestPipelinedCommands(t *testing.T) {
	srv := setupTestServer(t, 10)
	conn := dial(t, srv)

	// Two commands in one write are answered in order.
	send(t, conn, "REGISTER alice pw123\r\nLOGIN alice pw123")
	assert.Equal(t, "101 Registration successful for alice", readLine(t, conn))
	assert.Equal(t, "102 Welcome alice", readLine(t, conn))
}

func TestStats(t *testing.T) {
	srv := setupTestServer(t, 10)
	loginNewUser(t, srv, "alice")
	dial(t, srv)

	assert.Equal(t, "connections: 2, authenticated: 1", srv.GetStats())
}
