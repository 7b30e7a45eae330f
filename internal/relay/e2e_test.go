package relay_test

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/serhatdk/passage/internal/protocol"
	"github.com/serhatdk/passage/internal/registry"
	"github.com/serhatdk/passage/internal/relay"
	"github.com/serhatdk/passage/internal/sshx"
	"github.com/serhatdk/passage/internal/sshx/sshtest"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu     sync.Mutex
	events []protocol.ServerEvent
}

func (s *memSink) Emit(ev protocol.ServerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memSink) snapshot() []protocol.ServerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.ServerEvent(nil), s.events...)
}

// Full session round trip: connect, shell, command, output, disconnect,
// empty registry.
func TestShellSessionRoundTrip(t *testing.T) {
	server, err := sshtest.New("testuser", "testpass")
	require.NoError(t, err)
	defer server.Close()

	client, err := sshx.Dial(sshx.Credentials{
		Host:     "127.0.0.1",
		Port:     server.Port(),
		Username: "testuser",
		Password: "testpass",
	})
	require.NoError(t, err)

	reg := registry.New()
	const sid = "web-session-1"
	reg.SetTransport(sid, client)

	sink := &memSink{}
	var closedCount int32

	shell, err := relay.Open(client, "", sink, func(closed *relay.Shell) {
		atomic.AddInt32(&closedCount, 1)
		reg.ClearShell(sid, closed)
	})
	require.NoError(t, err)
	reg.SetShell(sid, shell)

	// The connected notification precedes any output.
	events := sink.snapshot()
	require.NotEmpty(t, events)
	require.Equal(t, protocol.EventConnected, events[0].Type)

	require.NoError(t, shell.Send("echo hi"))

	require.Eventually(t, func() bool {
		for _, ev := range sink.snapshot() {
			if ev.Type == protocol.EventOutput && strings.Contains(ev.Data, "hi") {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond, "command output must reach the client channel")

	// Client disconnect: full teardown, idempotent.
	reg.Close(sid)
	reg.Close(sid)
	require.Equal(t, 0, reg.Len(), "registry must not retain the session")

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&closedCount) == 1
	}, 5*time.Second, 10*time.Millisecond, "close fires exactly once")
}

func TestOpenQuotesWorkdir(t *testing.T) {
	server, err := sshtest.New("testuser", "testpass")
	require.NoError(t, err)
	defer server.Close()

	var mu sync.Mutex
	var cmds []string
	server.SetExec(func(cmd string) (string, string, int) {
		mu.Lock()
		cmds = append(cmds, cmd)
		mu.Unlock()
		return "", "", 0
	})

	client, err := sshx.Dial(sshx.Credentials{
		Host:     "127.0.0.1",
		Port:     server.Port(),
		Username: "testuser",
		Password: "testpass",
	})
	require.NoError(t, err)
	defer client.Close()

	shell, err := relay.Open(client, `/srv/$data and spaces`, &memSink{}, nil)
	require.NoError(t, err)
	defer shell.Close()

	// The working directory change must reach the shell with substitution
	// characters escaped, not interpolated.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, cmd := range cmds {
			if cmd == `cd "/srv/\$data and spaces"` {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}

func TestOpenFailsOnDeadTransport(t *testing.T) {
	server, err := sshtest.New("testuser", "testpass")
	require.NoError(t, err)

	client, err := sshx.Dial(sshx.Credentials{
		Host:     "127.0.0.1",
		Port:     server.Port(),
		Username: "testuser",
		Password: "testpass",
	})
	require.NoError(t, err)

	server.Close()
	client.Close()

	sink := &memSink{}
	_, err = relay.Open(client, "", sink, nil)
	require.Error(t, err)

	// A failed open emits no connected notification.
	for _, ev := range sink.snapshot() {
		require.NotEqual(t, protocol.EventConnected, ev.Type)
	}
}
