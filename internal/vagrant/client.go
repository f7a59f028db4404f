package vagrant

import (
	"context"
	"fmt"
	"os"

	"github.com/andreweick/boxwright/internal/auth"
	"github.com/andreweick/boxwright/internal/command"
	"github.com/go-logr/logr"
)

// EnvCWD makes vagrant use the Vagrantfile in this directory instead of
// searching parent directories for one.
const EnvCWD = "VAGRANT_CWD"

// Client runs the vagrant CLI inside one session directory.
type Client struct {
	runner command.Runner
	binary string
	dir    string
	env    map[string]string
	log    logr.Logger
}

type Option func(*Client)

func WithBinary(binary string) Option {
	return func(c *Client) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithBoxToken passes a Vagrant Cloud token to every invocation.
func WithBoxToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.env[auth.EnvBoxToken] = token
		}
	}
}

func WithLogger(log logr.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a client that runs vagrant in dir. RUBYLIB and RUBYOPT
// are always blanked so the caller's Ruby setup cannot leak into vagrant, and
// VAGRANT_CWD pins vagrant to dir.
func NewClient(runner command.Runner, dir string, opts ...Option) *Client {
	c := &Client{
		runner: runner,
		binary: "vagrant",
		dir:    dir,
		env:    map[string]string{"RUBYLIB": "", "RUBYOPT": "", EnvCWD: dir},
		log:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Up(ctx context.Context) error {
	_, err := c.run(ctx, "up")
	return err
}

// Destroy force-destroys every machine of the Vagrantfile.
func (c *Client) Destroy(ctx context.Context) error {
	_, err := c.run(ctx, "destroy", "--force")
	return err
}

// SSHConfig returns the output of "vagrant ssh-config <name>".
func (c *Client) SSHConfig(ctx context.Context, name string) (string, error) {
	res, err := c.run(ctx, "ssh-config", name)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

func (c *Client) run(ctx context.Context, args ...string) (command.Result, error) {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return command.Result{}, fmt.Errorf("failed to create %s: %w", c.dir, err)
	}

	cmd := command.Command{
		Name: c.binary,
		Args: args,
		Dir:  c.dir,
		Env:  c.env,
	}
	c.log.V(1).Info("running vagrant", "command", redact(cmd).String(), "dir", c.dir)

	res, err := c.runner.Run(ctx, cmd)
	if err != nil {
		return res, err
	}
	if err := command.Check(command.Line(cmd), "", res); err != nil {
		return res, err
	}
	return res, nil
}

func redact(cmd command.Command) command.Command {
	if _, ok := cmd.Env[auth.EnvBoxToken]; !ok {
		return cmd
	}
	env := make(map[string]string, len(cmd.Env))
	for k, v := range cmd.Env {
		env[k] = v
	}
	env[auth.EnvBoxToken] = "<redacted>"
	cmd.Env = env
	return cmd
}
