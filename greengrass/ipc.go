// Package greengrass holds the device-side Greengrass helpers: the
// component IPC configuration and the core discovery client.
package greengrass

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/goccy/go-json"
	"github.com/joeshaw/envdecode"
)

// ErrIPCUnavailable is returned when the process was not started by a
// Greengrass nucleus.
var ErrIPCUnavailable = errors.New("greengrass ipc unavailable")

// IPCConfig locates the nucleus IPC socket of a Greengrass component.
type IPCConfig struct {
	SocketPath string `env:"AWS_GG_NUCLEUS_DOMAIN_SOCKET_FILEPATH_FOR_COMPONENT,required"`
	AuthToken  string `env:"SVCUID"`
}

// DefaultIPCConfig reads the configuration the nucleus passes to components
// through the environment.
func DefaultIPCConfig() (*IPCConfig, error) {
	cfg := &IPCConfig{}
	if err := envdecode.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIPCUnavailable, err)
	}
	return cfg, nil
}

// ConnectAmendment returns the payload added to the IPC connect message.
// It is nil when no auth token is configured.
func (c *IPCConfig) ConnectAmendment() ([]byte, error) {
	if c.AuthToken == "" {
		return nil, nil
	}
	return json.Marshal(struct {
		AuthToken string `json:"authToken"`
	}{c.AuthToken})
}

// Dial connects to the nucleus IPC socket.
func (c *IPCConfig) Dial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIPCUnavailable, err)
	}
	return conn, nil
}
