package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "rrtracker/pkg/logx"
)

// sdNotify is replaced in tests.
var sdNotify = daemon.SdNotify

var sdWatchdogEnabled = daemon.SdWatchdogEnabled

// notifier reports service state to systemd. Outside systemd every call is a no-op.
type notifier struct {
	log logx.Logger
}

func (n notifier) send(state string) {
	sent, err := sdNotify(false, state)
	if err != nil {
		n.log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		n.log.Debug("sd_notify", logx.String("state", state))
	}
}

func (n notifier) ready(trackers int) {
	n.send(daemon.SdNotifyReady + "\n" + fmt.Sprintf("STATUS=tracking %d entities", trackers))
}

func (n notifier) stopping() { n.send(daemon.SdNotifyStopping) }

func (n notifier) status(msg string) { n.send("STATUS=" + msg) }

// watchdog pings at half the configured WatchdogSec until ctx is done.
// alive gates each ping, so a process with no live tracker stops petting.
func (n notifier) watchdog(ctx context.Context, alive func() bool) {
	interval, err := sdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if alive() {
				n.send(daemon.SdNotifyWatchdog)
			}
		}
	}
}
