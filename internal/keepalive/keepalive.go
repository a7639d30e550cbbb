// Package keepalive abstracts the platform mechanism that keeps the sampling
// loop scheduled while the app is backgrounded (foreground service, wake
// lock, systemd scope). The monitor never branches on platform identity; it
// only requests and releases the capability.
package keepalive

import "stovewatch/internal/logger"

// KeepAlive is requested when monitoring starts and released on every stop.
// Release must be safe to call when nothing was requested.
type KeepAlive interface {
	Request()
	Release()
}

// LogKeepAlive is the host-daemon implementation: the process is already
// long-lived, so the capability reduces to making the lifecycle observable.
type LogKeepAlive struct {
	log *logger.Logger
}

func NewLogKeepAlive(log *logger.Logger) *LogKeepAlive {
	return &LogKeepAlive{log: log}
}

func (k *LogKeepAlive) Request() {
	k.log.Debugw("keep-alive requested")
}

func (k *LogKeepAlive) Release() {
	k.log.Debugw("keep-alive released")
}
