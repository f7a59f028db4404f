// Package remote runs commands on provisioned hosts over SSH, using the
// ssh-config generated for each host.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/andreweick/boxwright/internal/command"
	"github.com/andreweick/boxwright/internal/host"
	"github.com/andreweick/boxwright/internal/sshconfig"
	"github.com/go-logr/logr"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

const DefaultDialTimeout = 30 * time.Second

type Client struct {
	dialTimeout time.Duration
	agentSocket string
	log         logr.Logger
}

type Option func(*Client)

func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.dialTimeout = d
	}
}

// WithAgentSocket overrides SSH_AUTH_SOCK. An empty path disables the agent.
func WithAgentSocket(path string) Option {
	return func(c *Client) {
		c.agentSocket = path
	}
}

func NewClient(log logr.Logger, opts ...Option) *Client {
	c := &Client{
		dialTimeout: DefaultDialTimeout,
		agentSocket: os.Getenv("SSH_AUTH_SOCK"),
		log:         log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// target is what a host's ssh-config tells us about reaching it.
type target struct {
	addr           string
	user           string
	identityFiles  []string
	identitiesOnly bool
	forwardAgent   bool
}

func targetFor(h *host.Host) (*target, error) {
	if h.SSH.Config == "" {
		return nil, fmt.Errorf("host %s has no ssh-config", h.Name)
	}
	cfg, err := sshconfig.ParseFile(h.SSH.Config)
	if err != nil {
		return nil, err
	}

	hostname, _ := cfg.Get("HostName")
	port, _ := cfg.Get("Port")
	user, _ := cfg.Get("User")
	identitiesOnly, _ := cfg.Get("IdentitiesOnly")
	forwardAgent, _ := cfg.Get("ForwardAgent")

	return &target{
		addr:           net.JoinHostPort(hostname, port),
		user:           user,
		identityFiles:  cfg.All("IdentityFile"),
		identitiesOnly: strings.EqualFold(identitiesOnly, "yes"),
		forwardAgent:   strings.EqualFold(forwardAgent, "yes"),
	}, nil
}

type conn struct {
	client *ssh.Client
	agent  agent.ExtendedAgent
	closer func()
}

func (c *conn) Close() {
	c.client.Close()
	if c.closer != nil {
		c.closer()
	}
}

func (c *Client) dial(ctx context.Context, h *host.Host) (*conn, *target, error) {
	t, err := targetFor(h)
	if err != nil {
		return nil, nil, err
	}

	var signers []ssh.Signer
	for _, path := range t.identityFiles {
		key, err := os.ReadFile(path)
		if err != nil {
			c.log.V(1).Info("skipping identity file", "path", path, "error", err.Error())
			continue
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			c.log.V(1).Info("skipping identity file", "path", path, "error", err.Error())
			continue
		}
		signers = append(signers, signer)
	}

	auth := []ssh.AuthMethod{ssh.PublicKeys(signers...)}
	result := &conn{}
	if !t.identitiesOnly && c.agentSocket != "" {
		agentConn, err := net.Dial("unix", c.agentSocket)
		if err != nil {
			c.log.V(1).Info("ssh agent unavailable", "socket", c.agentSocket, "error", err.Error())
		} else {
			result.agent = agent.NewClient(agentConn)
			result.closer = func() { agentConn.Close() }
			auth = append(auth, ssh.PublicKeysCallback(result.agent.Signers))
		}
	}

	config := &ssh.ClientConfig{
		User: t.user,
		Auth: auth,
		// Vagrant machines are recreated with fresh host keys on every run.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.dialTimeout,
	}

	dialer := net.Dialer{Timeout: c.dialTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		if result.closer != nil {
			result.closer()
		}
		return nil, nil, fmt.Errorf("failed to connect to %s (%s): %w", h.Name, t.addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, t.addr, config)
	if err != nil {
		netConn.Close()
		if result.closer != nil {
			result.closer()
		}
		return nil, nil, fmt.Errorf("ssh handshake with %s (%s) failed: %w", h.Name, t.addr, err)
	}
	result.client = ssh.NewClient(sshConn, chans, reqs)
	return result, t, nil
}

// Exec runs cmd on the host. A non-zero exit status is returned in the
// result; the error covers connection and protocol failures only.
func (c *Client) Exec(ctx context.Context, h *host.Host, cmd string) (command.Result, error) {
	cn, t, err := c.dial(ctx, h)
	if err != nil {
		return command.Result{}, err
	}
	defer cn.Close()

	sess, err := cn.client.NewSession()
	if err != nil {
		return command.Result{}, fmt.Errorf("failed to open session on %s: %w", h.Name, err)
	}
	defer sess.Close()

	if t.forwardAgent && cn.agent != nil {
		if err := agent.ForwardToAgent(cn.client, cn.agent); err != nil {
			return command.Result{}, fmt.Errorf("failed to forward agent to %s: %w", h.Name, err)
		}
		if err := agent.RequestAgentForwarding(sess); err != nil {
			return command.Result{}, fmt.Errorf("failed to forward agent to %s: %w", h.Name, err)
		}
	}

	// sudo may insist on a tty
	if strings.HasPrefix(cmd, "sudo ") {
		if err := sess.RequestPty("xterm", 40, 80, ssh.TerminalModes{ssh.ECHO: 0}); err != nil {
			return command.Result{}, fmt.Errorf("failed to request pty on %s: %w", h.Name, err)
		}
	}

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	c.log.V(1).Info("remote exec", "host", h.Name, "user", t.user, "command", cmd)

	done := make(chan error, 1)
	go func() {
		done <- sess.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		sess.Close()
		return command.Result{}, ctx.Err()
	case err = <-done:
	}

	res := command.Result{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitStatus()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("failed to run %q on %s: %w", cmd, h.Name, err)
	}
	return res, nil
}

// WriteFile replaces the file at path on the host using sftp.
func (c *Client) WriteFile(ctx context.Context, h *host.Host, path string, data []byte) error {
	cn, _, err := c.dial(ctx, h)
	if err != nil {
		return err
	}
	defer cn.Close()

	sc, err := sftp.NewClient(cn.client)
	if err != nil {
		return fmt.Errorf("failed to start sftp on %s: %w", h.Name, err)
	}
	defer sc.Close()

	f, err := sc.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s on %s: %w", path, h.Name, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s on %s: %w", path, h.Name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s on %s: %w", path, h.Name, err)
	}

	c.log.V(1).Info("remote write", "host", h.Name, "path", path, "bytes", len(data))
	return nil
}
