// Package provision drives one configuration through its lifecycle: render the
// Vagrantfile, bring the machines up, re-key SSH and bootstrap every host,
// and tear everything down again.
package provision

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/andreweick/boxwright/internal/command"
	"github.com/andreweick/boxwright/internal/host"
	"github.com/andreweick/boxwright/internal/session"
	"github.com/go-logr/logr"
)

// Vagrant is the lifecycle half of the vagrant client.
type Vagrant interface {
	Up(ctx context.Context) error
	Destroy(ctx context.Context) error
}

// SSHConfigurer points a host at a fresh ssh-config for user.
type SSHConfigurer interface {
	SetSSHConfig(ctx context.Context, h *host.Host, user string) error
}

// Bootstrapper prepares booted hosts for privileged access.
type Bootstrapper interface {
	CopySSHToRoot(ctx context.Context, h *host.Host) error
	EnableRootLogin(ctx context.Context, h *host.Host) error
	HackEtcHosts(ctx context.Context, hosts []*host.Host) error
}

// Renderer turns hosts into Vagrantfile text.
type Renderer interface {
	Render(hosts []*host.Host, opts session.Options) (string, error)
}

// Translator turns a Butane file into validated Ignition JSON.
type Translator interface {
	TranslateFile(path string) ([]byte, error)
}

// Components are the collaborators an Orchestrator drives. Ignition may be
// nil when no host declares a Butane config.
type Components struct {
	Vagrant   Vagrant
	SSH       SSHConfigurer
	Bootstrap Bootstrapper
	Renderer  Renderer
	Ignition  Translator
}

type Orchestrator struct {
	session *session.Session
	hosts   []*host.Host
	c       Components
	log     logr.Logger
	state   State
}

func New(s *session.Session, hosts []*host.Host, c Components, log logr.Logger) *Orchestrator {
	return &Orchestrator{
		session: s,
		hosts:   hosts,
		c:       c,
		log:     log.WithValues("configuration", s.Name, "session", s.ID),
		state:   Unconfigured,
	}
}

// State reports how far the last operation got.
func (o *Orchestrator) State() State {
	return o.state
}

// Provision replaces any previous environment of this configuration with a
// fresh one. Once "up" has been attempted, any failure destroys the machines
// again before the error is returned.
func (o *Orchestrator) Provision(ctx context.Context) error {
	if o.session.DefinitionExists() {
		o.log.Info("destroying previous environment")
		if err := o.c.Vagrant.Destroy(ctx); err != nil {
			o.logDefinition()
			return fmt.Errorf("failed to destroy previous environment: %w", err)
		}
		o.state = Destroyed
	}

	if err := o.prepareIgnition(); err != nil {
		return err
	}

	text, err := o.c.Renderer.Render(o.hosts, o.session.Options)
	if err != nil {
		return err
	}
	if err := o.session.WriteDefinition(text); err != nil {
		return err
	}
	o.state = Rendered
	o.log.V(1).Info("wrote Vagrantfile", "path", o.session.DefinitionPath())

	if err := o.up(ctx); err != nil {
		return o.rollback(ctx, err)
	}
	return nil
}

func (o *Orchestrator) up(ctx context.Context) error {
	o.log.Info("bringing machines up", "hosts", len(o.hosts))
	if err := o.c.Vagrant.Up(ctx); err != nil {
		return err
	}
	o.state = Up
	return o.SetAllSSHConfig(ctx)
}

// rollback destroys the machines and hands back cause unchanged.
func (o *Orchestrator) rollback(ctx context.Context, cause error) error {
	o.log.Error(cause, "provisioning failed, destroying machines")
	o.logDefinition()

	if err := o.c.Vagrant.Destroy(ctx); err != nil {
		o.log.Error(err, "rollback destroy failed")
		return cause
	}
	o.state = Destroyed
	return cause
}

func (o *Orchestrator) logDefinition() {
	text, err := o.session.ReadDefinition()
	if err != nil {
		o.log.V(1).Info("no Vagrantfile to show", "error", err.Error())
		return
	}
	o.log.V(1).Info("Vagrantfile", "path", o.session.DefinitionPath(), "content", text)
}

// prepareIgnition writes an Ignition config for every host that declares a
// Butane file and points the host at it.
func (o *Orchestrator) prepareIgnition() error {
	for _, h := range o.hosts {
		if h.Butane == "" {
			continue
		}
		if o.c.Ignition == nil {
			return fmt.Errorf("host %s declares butane config %s but no translator is configured", h.Name, h.Butane)
		}

		data, err := o.c.Ignition.TranslateFile(h.Butane)
		if err != nil {
			return fmt.Errorf("host %s: %w", h.Name, err)
		}
		path, err := o.session.WriteArtifact(h.DisplayName()+".ign", data)
		if err != nil {
			return err
		}
		h.IgnitionPath = path
		o.log.V(1).Info("wrote ignition config", "host", h.Name, "path", path)
	}
	return nil
}

// Configure adopts machines that were brought up earlier: host IPs are taken
// from the existing Vagrantfile before SSH is set up.
func (o *Orchestrator) Configure(ctx context.Context) error {
	if _, err := o.session.ReadDefinition(); err != nil {
		return err
	}

	for _, h := range o.hosts {
		ip, found, err := o.GetIPFromDefinitionFile(h.Name)
		if err != nil {
			return err
		}
		if !found {
			o.log.Info("no ip in Vagrantfile, keeping configured one", "host", h.Name, "ip", h.IP)
			continue
		}
		h.IP = ip
	}
	o.state = Up

	return o.SetAllSSHConfig(ctx)
}

// SetAllSSHConfig logs into every host as the box's default user, gives root
// the box keys and root login, then switches the host to its final user.
// Finally every host gets an /etc/hosts naming all the others.
func (o *Orchestrator) SetAllSSHConfig(ctx context.Context) error {
	defaultUser := o.session.Options.DefaultUser

	for _, h := range o.hosts {
		finalUser := h.User

		if err := o.c.SSH.SetSSHConfig(ctx, h, defaultUser); err != nil {
			return err
		}
		if !h.Is(host.PlatformWindows) {
			if err := o.c.Bootstrap.CopySSHToRoot(ctx, h); err != nil {
				return fmt.Errorf("failed to copy ssh keys to root on %s: %w", h.Name, err)
			}
			if err := o.c.Bootstrap.EnableRootLogin(ctx, h); err != nil {
				return fmt.Errorf("failed to enable root login on %s: %w", h.Name, err)
			}
		}
		if err := o.c.SSH.SetSSHConfig(ctx, h, finalUser); err != nil {
			return err
		}
	}
	o.state = SSHConfigured

	if err := o.c.Bootstrap.HackEtcHosts(ctx, o.hosts); err != nil {
		return fmt.Errorf("failed to update /etc/hosts: %w", err)
	}
	o.state = Steady
	o.log.Info("machines ready", "hosts", len(o.hosts))
	return nil
}

// GetIPFromDefinitionFile looks up the private network address of the host
// named name in the rendered Vagrantfile. found is false when the Vagrantfile
// has no such host.
func (o *Orchestrator) GetIPFromDefinitionFile(name string) (ip string, found bool, err error) {
	text, err := o.session.ReadDefinition()
	if err != nil {
		return "", false, err
	}

	display := name
	if h, ok := host.Find(o.hosts, name); ok {
		display = h.DisplayName()
	}
	quoted := rubyQuoter.Replace(display)
	define := regexp.MustCompile(`(?m)^\s*c\.vm\.define '` + regexp.QuoteMeta(quoted) + `' do\b`)
	loc := define.FindStringIndex(text)
	if loc == nil {
		return "", false, nil
	}

	// the block runs to the next machine definition or the end of the file
	block := text[loc[1]:]
	if next := nextDefine.FindStringIndex(block); next != nil {
		block = block[:next[0]]
	}
	m := privateNetworkIP.FindStringSubmatch(block)
	if m == nil {
		return "", false, nil
	}
	return strings.TrimSpace(m[1]), true, nil
}

var (
	// matches the single-quoted names the Vagrantfile template writes
	rubyQuoter       = strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	nextDefine       = regexp.MustCompile(`(?m)^\s*c\.vm\.define `)
	privateNetworkIP = regexp.MustCompile(`:private_network,\s*ip:\s*["']([^"']+)["']`)
)

// Cleanup destroys the machines and removes every generated file. Only a
// destroy that could not be run at all is returned.
func (o *Orchestrator) Cleanup(ctx context.Context) error {
	o.log.Info("destroying machines")

	var invokeErr error
	if err := o.c.Vagrant.Destroy(ctx); err != nil {
		var exitErr *command.ExitError
		if !errors.As(err, &exitErr) {
			invokeErr = err
		}
		o.log.Error(err, "destroy failed")
	} else {
		o.state = Destroyed
	}

	if err := o.session.Remove(); err != nil {
		o.log.Error(err, "failed to remove session files", "dir", o.session.Dir())
	} else {
		o.state = Cleaned
	}
	return invokeErr
}
