package scheduler

import (
	"github.com/coreos/go-systemd/v22/daemon"
)

const (
	stateReady    = daemon.SdNotifyReady
	stateWatchdog = daemon.SdNotifyWatchdog
	stateStopping = daemon.SdNotifyStopping
)

// sdNotify reports state to systemd. Outside a Type=notify unit
// NOTIFY_SOCKET is unset and this is a no-op.
func sdNotify(state string) {
	_, _ = daemon.SdNotify(false, state)
}
