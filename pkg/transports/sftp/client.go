package sftp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/replug/replug/pkg/telemetry"
)

// Client is an SFTP connection to a remote plugin host. It implements
// rawio.Store once connected; see store.go.
type Client struct {
	config *Config
	log    *telemetry.Logger

	// Connection management
	connMu      sync.RWMutex
	sshClient   *ssh.Client
	sftpClient  *sftp.Client
	connected   bool
	connectedAt time.Time
	lastUsedAt  time.Time
}

// NewClient creates an SFTP transport for the host described by config. The
// client does not dial until Connect is called.
func NewClient(config *Config, log *telemetry.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		config: config,
		log:    log.NewComponentLogger("sftp-transport"),
	}, nil
}

// Connect establishes the SSH connection and starts the SFTP subsystem.
// Failed dials are retried with exponential backoff up to DialRetries times;
// authentication failures abort immediately.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.connected && c.sftpClient != nil {
		// Already connected, verify the connection is still alive
		if err := c.healthCheckInternal(); err == nil {
			return nil
		}
		c.log.Warn("existing connection is dead, reconnecting")
		c.closeInternal()
	}

	clientConfig, err := c.config.BuildSSHClientConfig()
	if err != nil {
		return &TransportError{
			Op:          "connect",
			Err:         err,
			IsTemporary: false,
			IsAuthError: true,
		}
	}

	address := c.config.Address()
	c.log.WithField("address", address).Debug("establishing sftp connection")

	var sshClient *ssh.Client
	dial := func() error {
		client, err := dialSSH(ctx, address, clientConfig)
		if err != nil {
			if isAuthError(err) {
				return backoff.Permanent(err)
			}
			c.log.WithError(err).WithField("address", address).Warn("dial failed, will retry")
			return err
		}
		sshClient = client
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	if err := backoff.Retry(dial, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.config.DialRetries)), ctx)); err != nil {
		return &TransportError{
			Op:          "connect",
			Err:         err,
			IsTemporary: !isAuthError(err),
			IsAuthError: isAuthError(err),
		}
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return &TransportError{
			Op:          "connect",
			Err:         fmt.Errorf("failed to start sftp subsystem: %w", err),
			IsTemporary: true,
			IsAuthError: false,
		}
	}

	c.sshClient = sshClient
	c.sftpClient = sftpClient
	c.connected = true
	c.connectedAt = time.Now()
	c.lastUsedAt = time.Now()

	if c.config.KeepAliveInterval > 0 {
		go c.keepAlive(sshClient)
	}

	c.log.WithField("address", address).Info("sftp connection established")
	return nil
}

// dialSSH dials the remote host, honoring ctx cancellation. A client that
// completes the handshake after the caller gave up is closed rather than
// leaked.
func dialSSH(ctx context.Context, address string, config *ssh.ClientConfig) (*ssh.Client, error) {
	connChan := make(chan *ssh.Client)
	errChan := make(chan error, 1)

	go func() {
		client, err := ssh.Dial("tcp", address, config)
		if err != nil {
			errChan <- err
			return
		}
		select {
		case connChan <- client:
		case <-ctx.Done():
			_ = client.Close()
		}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errChan:
		return nil, err
	case client := <-connChan:
		return client, nil
	}
}

// Disconnect closes the SFTP session and the SSH connection beneath it.
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.connected {
		return nil
	}

	c.log.WithField("host", c.config.Host).Debug("closing sftp connection")

	if err := c.closeInternal(); err != nil {
		return &TransportError{
			Op:          "disconnect",
			Err:         err,
			IsTemporary: false,
			IsAuthError: false,
		}
	}

	return nil
}

// closeInternal tears down both clients (must be called with lock held).
func (c *Client) closeInternal() error {
	var firstErr error

	if c.sftpClient != nil {
		if err := c.sftpClient.Close(); err != nil {
			firstErr = err
		}
		c.sftpClient = nil
	}

	if c.sshClient != nil {
		if err := c.sshClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.sshClient = nil
	}

	c.connected = false
	return firstErr
}

// IsConnected returns true if the transport has an active connection.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// HealthCheck verifies the connection is still alive and responsive.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.connMu.RLock()
	defer c.connMu.RUnlock()

	if !c.connected || c.sftpClient == nil {
		return &TransportError{
			Op:          "healthcheck",
			Err:         fmt.Errorf("not connected"),
			IsTemporary: false,
			IsAuthError: false,
		}
	}

	return c.healthCheckInternal()
}

// healthCheckInternal performs the actual health check (must be called with
// lock held). A Getwd round-trip proves the sftp subsystem itself is
// responsive, not just the TCP connection beneath it.
func (c *Client) healthCheckInternal() error {
	if _, err := c.sftpClient.Getwd(); err != nil {
		return &TransportError{
			Op:          "healthcheck",
			Err:         err,
			IsTemporary: true,
			IsAuthError: false,
		}
	}
	return nil
}

// keepAlive sends periodic keep-alive requests on client. It exits when the
// connection is closed or replaced, or after too many consecutive failures.
func (c *Client) keepAlive(client *ssh.Client) {
	ticker := time.NewTicker(c.config.KeepAliveInterval)
	defer ticker.Stop()

	retries := 0
	for range ticker.C {
		c.connMu.RLock()
		alive := c.connected && c.sshClient == client
		c.connMu.RUnlock()
		if !alive {
			return
		}

		_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
		if err != nil {
			retries++
			c.log.WithError(err).WithField("retries", retries).Warn("keep-alive failed")
			if retries >= c.config.MaxKeepAliveRetries {
				c.log.Error("keep-alive failed too many times, connection may be dead")
				return
			}
			continue
		}

		retries = 0
		c.connMu.Lock()
		c.lastUsedAt = time.Now()
		c.connMu.Unlock()
	}
}

// GetConnectionInfo returns information about the current connection.
func (c *Client) GetConnectionInfo() ConnectionInfo {
	c.connMu.RLock()
	defer c.connMu.RUnlock()

	return ConnectionInfo{
		Host:         c.config.Host,
		Port:         c.config.Port,
		User:         c.config.User,
		ConnectedAt:  c.connectedAt,
		LastActivity: c.lastUsedAt,
	}
}

// getSFTP returns the live sftp client, recording the access time.
func (c *Client) getSFTP() (*sftp.Client, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.connected || c.sftpClient == nil {
		return nil, &TransportError{
			Op:          "open",
			Err:         fmt.Errorf("not connected"),
			IsTemporary: false,
			IsAuthError: false,
		}
	}

	c.lastUsedAt = time.Now()
	return c.sftpClient, nil
}
