package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/slok/sweep/internal/log"
	"github.com/slok/sweep/internal/model"
)

const (
	// DefaultConnectTimeout is the default SSH connection timeout.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultSSHPort is the default SSH port.
	DefaultSSHPort = 22

	maxReadChunk = 1 << 20
)

// ClientConfig holds the configuration for creating an SSH connection.
type ClientConfig struct {
	// Host is the IP address or hostname of the target.
	Host string
	// Port is the SSH port (default: 22).
	Port int
	// User is the SSH user.
	User string
	// PrivateKey is the PEM-encoded private key bytes.
	PrivateKey []byte
	// KnownHostsFile is the OpenSSH known_hosts file used to verify the host key.
	KnownHostsFile string
	// ConnectTimeout is the SSH connection timeout (default: 10s).
	ConnectTimeout time.Duration
	// Logger for logging (optional).
	Logger log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if len(c.PrivateKey) == 0 {
		return fmt.Errorf("private key is required")
	}
	if c.KnownHostsFile == "" {
		return fmt.Errorf("known hosts file is required")
	}
	if c.Port == 0 {
		c.Port = DefaultSSHPort
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "ssh.Client"})
	return nil
}

// Client wraps an SSH connection with high-level operations.
type Client struct {
	conn   *ssh.Client
	sftp   *sftp.Client
	logger log.Logger
}

// NewClient dials the SSH server and returns a connected client.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid ssh client config: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("could not parse private key: %w", err)
	}

	hostKeyCallback, err := knownhosts.New(cfg.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("could not load known hosts: %w", err)
	}

	sshCfg := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         cfg.ConnectTimeout,
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	// Use a dialer with context for cancellation support.
	var d net.Dialer
	netConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", addr, err)
	}

	// Perform SSH handshake over the raw connection.
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, sshCfg)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake failed with %s: %w", addr, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)

	// A single SFTP session is shared by all the file operations.
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("could not create sftp client: %w", err)
	}

	cfg.Logger.Debugf("Connected to %s as %s", addr, cfg.User)

	return &Client{
		conn:   client,
		sftp:   sftpClient,
		logger: cfg.Logger,
	}, nil
}

// Close closes the SSH connection.
func (c *Client) Close() error {
	if c.sftp != nil {
		_ = c.sftp.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// ExecOpts are options for command execution (non-TTY only).
type ExecOpts struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Exec runs a command on the remote host and returns the exit code.
func (c *Client) Exec(ctx context.Context, command string, opts ExecOpts) (int, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return -1, fmt.Errorf("could not create ssh session: %w", err)
	}
	defer session.Close()

	if opts.Stdin != nil {
		session.Stdin = opts.Stdin
	}
	if opts.Stdout != nil {
		session.Stdout = opts.Stdout
	}
	if opts.Stderr != nil {
		session.Stderr = opts.Stderr
	}

	// Run with context cancellation support.
	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		// Send signal to remote process and close session.
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return -1, ctx.Err()
	case err := <-done:
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				return exitErr.ExitStatus(), nil
			}
			return -1, fmt.Errorf("command execution failed: %w", err)
		}
		return 0, nil
	}
}

// Output runs a command on the remote host and returns its standard output.
// A non zero exit code is an error that includes the standard error.
func (c *Client) Output(ctx context.Context, command string) (string, error) {
	var stdout, stderr bytes.Buffer
	c.logger.Debugf("Running remote command: %s", command)

	exitCode, err := c.Exec(ctx, command, ExecOpts{Stdout: &stdout, Stderr: &stderr})
	if err != nil {
		return "", err
	}
	if exitCode != 0 {
		return stdout.String(), fmt.Errorf("command exited with code %d: %s", exitCode, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}

// WriteFile writes a file on the remote host creating its directory if required.
func (c *Client) WriteFile(ctx context.Context, dst string, data []byte, perm fs.FileMode) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := c.sftp.MkdirAll(path.Dir(dst)); err != nil {
		return fmt.Errorf("could not create remote directory: %w", err)
	}

	f, err := c.sftp.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("could not create remote file %s: %w", dst, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("could not write remote file %s: %w", dst, err)
	}

	if err := c.sftp.Chmod(dst, perm); err != nil {
		c.logger.Debugf("Could not set permissions on %s: %v", dst, err)
	}

	return nil
}

// ReadFileFrom reads a remote file starting at offset. Missing files return
// model.ErrNotFound.
func (c *Client) ReadFileFrom(ctx context.Context, src string, offset int64) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	f, err := c.sftp.Open(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remote file %s: %w", src, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not open remote file %s: %w", src, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("could not seek remote file %s: %w", src, err)
	}

	data, err := io.ReadAll(io.LimitReader(f, maxReadChunk))
	if err != nil {
		return nil, fmt.Errorf("could not read remote file %s: %w", src, err)
	}

	return data, nil
}

// LoadPrivateKey reads a PEM-encoded private key file.
func LoadPrivateKey(keyPath string) ([]byte, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("could not read private key %s: %w", keyPath, err)
	}
	return key, nil
}
