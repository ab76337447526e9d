package systemd

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierWithoutSocketIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	var n Notifier
	sent, err := n.Ready()
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Zero(t, n.WatchdogInterval())

	done := make(chan struct{})
	go func() {
		n.Watchdog(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watchdog must return when disabled")
	}
}

func TestNotifierSendsToSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	require.NoError(t, err)
	defer conn.Close()
	t.Setenv("NOTIFY_SOCKET", path)

	var n Notifier
	read := func() string {
		t.Helper()
		buf := make([]byte, 256)
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		k, err := conn.Read(buf)
		require.NoError(t, err)
		return string(buf[:k])
	}

	sent, err := n.Ready()
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, "READY=1", read())

	_, err = n.Status("running")
	require.NoError(t, err)
	assert.Equal(t, "STATUS=running", read())

	_, err = n.Stopping()
	require.NoError(t, err)
	assert.Equal(t, "STOPPING=1", read())
}
