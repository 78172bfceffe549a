// Package sdnotify implements the systemd readiness protocol for
// Type=notify units. All functions are no-ops outside systemd.
package sdnotify

import (
	"fmt"
	"net"
	"os"
)

// Ready sends READY=1 once rules are applied and the service is up.
// Returns nil if NOTIFY_SOCKET is not set.
func Ready() error {
	return send("READY=1")
}

// Stopping sends STOPPING=1 when teardown begins.
func Stopping() error {
	return send("STOPPING=1")
}

// Status sends a free-form STATUS= line shown by systemctl status.
func Status(msg string) error {
	return send("STATUS=" + msg)
}

func send(state string) error {
	socketPath := os.Getenv("NOTIFY_SOCKET")
	if socketPath == "" {
		return nil
	}

	conn, err := net.Dial("unixgram", socketPath)
	if err != nil {
		return fmt.Errorf("sdnotify: dial %s: %w", socketPath, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(state)); err != nil {
		return fmt.Errorf("sdnotify: write %q: %w", state, err)
	}
	return nil
}
