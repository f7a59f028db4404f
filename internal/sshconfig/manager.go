package sshconfig

import (
	"context"
	"fmt"

	"github.com/andreweick/boxwright/internal/host"
	"github.com/andreweick/boxwright/internal/session"
	"github.com/go-logr/logr"
)

// Source yields the raw ssh-config of a machine.
type Source interface {
	SSHConfig(ctx context.Context, name string) (string, error)
}

// Manager points hosts at freshly generated ssh-config files.
type Manager struct {
	source  Source
	session *session.Session
	log     logr.Logger
}

func NewManager(source Source, s *session.Session, log logr.Logger) *Manager {
	return &Manager{source: source, session: s, log: log}
}

// SetSSHConfig queries the machine's ssh-config, rewrites it to log in as
// user at the host's IP, writes it to a new file in the session directory
// and records the path and user on the host.
func (m *Manager) SetSSHConfig(ctx context.Context, h *host.Host, user string) error {
	raw, err := m.source.SSHConfig(ctx, h.DisplayName())
	if err != nil {
		return fmt.Errorf("failed to get ssh-config for %s: %w", h.DisplayName(), err)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return fmt.Errorf("failed to parse ssh-config for %s: %w", h.DisplayName(), err)
	}
	Rewrite(cfg, h.IP, user, m.session.Options.ForwardSSHAgent)

	f, err := m.session.CreateTemp(h.DisplayName())
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(cfg.String()); err != nil {
		return fmt.Errorf("failed to write ssh-config for %s: %w", h.DisplayName(), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write ssh-config for %s: %w", h.DisplayName(), err)
	}

	h.SSH.Config = f.Name()
	h.User = user
	m.log.V(1).Info("configured ssh", "host", h.Name, "user", user, "config", f.Name(), "session", m.session.ID)
	return nil
}

// Rewrite targets the config at ip as user. IdentitiesOnly is relaxed only
// when agent forwarding is wanted, so agent keys can be offered.
func Rewrite(cfg *Config, ip, user string, forwardAgent bool) {
	if ip != "" {
		cfg.Set("Host", ip)
	}
	cfg.Set("User", user)
	if forwardAgent {
		cfg.Set("IdentitiesOnly", "no")
	}
}
