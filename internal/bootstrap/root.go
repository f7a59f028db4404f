package bootstrap

import (
	"context"
	"fmt"

	"github.com/andreweick/boxwright/internal/host"
)

// CopySSHToRoot gives the privileged account a copy of the login user's
// keys so later sessions can log in as root (Administrator on windows).
func (b *Bootstrapper) CopySSHToRoot(ctx context.Context, h *host.Host) error {
	b.log.V(1).Info("giving root a copy of the current user's keys", "host", h.Name)

	if h.Is(host.PlatformWindows) {
		return b.copySSHToAdministrator(ctx, h)
	}

	cmd := `sudo su -c "cp -r .ssh /root/."`
	if h.Is(host.PlatformFreeBSD) {
		cmd = "sudo cp -r .ssh /root/."
	}
	if _, err := b.run(ctx, h, cmd); err != nil {
		return err
	}

	supported, err := b.RelabelSupported(ctx, h)
	if err != nil {
		return err
	}
	if !supported {
		return nil
	}
	return b.Relabel(ctx, h)
}

func (b *Bootstrapper) copySSHToAdministrator(ctx context.Context, h *host.Host) error {
	cygwin, err := b.isCygwin(ctx, h)
	if err != nil {
		return err
	}

	cmds := []string{
		`if exist .ssh (xcopy .ssh C:\Users\Administrator\.ssh /s /e /y /i)`,
		`icacls C:\Users\Administrator\.ssh /setowner Administrator /T`,
	}
	if cygwin {
		cmds = []string{
			"cp -r .ssh /cygdrive/c/Users/Administrator/.",
			"chown -R Administrator /cygdrive/c/Users/Administrator/.ssh",
		}
	}
	for _, cmd := range cmds {
		if _, err := b.run(ctx, h, cmd); err != nil {
			return err
		}
	}
	return nil
}

// RelabelSupported reports whether the host enforces security labels that
// must be restored after copying files into /root.
func (b *Bootstrapper) RelabelSupported(ctx context.Context, h *host.Host) (bool, error) {
	res, err := b.exec.Exec(ctx, h, "sudo selinuxenabled")
	if err != nil {
		return false, fmt.Errorf("failed to check relabel support on %s: %w", h.Name, err)
	}
	return res.Success(), nil
}

// Relabel restores the security labels of /root.
func (b *Bootstrapper) Relabel(ctx context.Context, h *host.Host) error {
	_, err := b.run(ctx, h, "sudo fixfiles restore /root")
	return err
}

// EnableRootLogin permits root logins in sshd and restarts it.
func (b *Bootstrapper) EnableRootLogin(ctx context.Context, h *host.Host) error {
	var edit, restart string
	switch {
	case h.Is(host.PlatformWindows):
		b.log.V(1).Info("skipping root login on windows", "host", h.Name)
		return nil
	case h.Is(host.PlatformFreeBSD):
		edit = `sudo sed -i '' 's/#PermitRootLogin no/PermitRootLogin yes/g' /etc/ssh/sshd_config`
		restart = "sudo /etc/rc.d/sshd restart"
	case h.Is(host.PlatformUnix):
		edit = `sudo su -c "sed -ri 's/^#?PermitRootLogin no|^#?PermitRootLogin yes/PermitRootLogin yes/' /etc/ssh/sshd_config"`
		restart = "sudo -E systemctl restart sshd.service"
		if host.IsDebianFamily(h.PlatformName) {
			restart = `sudo su -c "service ssh restart"`
		}
	default:
		b.log.Info("cannot enable root login on unsupported platform", "host", h.Name, "platform", h.PlatformName)
		return nil
	}

	b.log.V(1).Info("updating sshd_config to allow root login", "host", h.Name)
	if _, err := b.run(ctx, h, edit); err != nil {
		return err
	}
	_, err := b.run(ctx, h, restart)
	return err
}
