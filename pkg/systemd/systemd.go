// Package systemd reports service lifecycle state to the service manager.
//
// Every call is a no-op when the process was not started with NOTIFY_SOCKET.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Notifier sends sd_notify(3) messages. The zero value is ready to use.
type Notifier struct {
	// UnsetEnv clears NOTIFY_SOCKET after the first message, so children do not inherit it.
	UnsetEnv bool
}

// Ready reports READY=1 (startup finished).
func (n Notifier) Ready() (bool, error) { return daemon.SdNotify(n.UnsetEnv, daemon.SdNotifyReady) }

// Stopping reports STOPPING=1 (shutdown started).
func (n Notifier) Stopping() (bool, error) {
	return daemon.SdNotify(n.UnsetEnv, daemon.SdNotifyStopping)
}

// Status sets the free-form status line shown by systemctl status.
func (n Notifier) Status(msg string) (bool, error) {
	return daemon.SdNotify(n.UnsetEnv, "STATUS="+msg)
}

// WatchdogInterval returns how often the service must ping the watchdog, or 0 when disabled.
func (n Notifier) WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0
	}
	return d
}

// Watchdog pings WATCHDOG=1 at half the configured interval until ctx is done.
// It returns immediately when the watchdog is disabled.
func (n Notifier) Watchdog(ctx context.Context) {
	every := n.WatchdogInterval() / 2
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
