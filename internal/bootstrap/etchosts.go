package bootstrap

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/andreweick/boxwright/internal/host"
)

const (
	etcHostsPath        = "/etc/hosts"
	etcHostsStagingPath = "/tmp/boxwright-etc-hosts"
	windowsHostsPath    = `C:\Windows\System32\drivers\etc\hosts`
	cygwinHostsPath     = "/cygdrive/c/Windows/System32/drivers/etc/hosts"
)

// EtcHosts builds the hosts file shared by every host of a topology.
// domains is indexed like hosts.
func EtcHosts(hosts []*host.Host, domains []string) string {
	var b strings.Builder
	b.WriteString("127.0.0.1\tlocalhost localhost.localdomain\n")
	for i, h := range hosts {
		name := h.DisplayName()
		if domains[i] == "" {
			fmt.Fprintf(&b, "%s\t%s\n", h.IP, name)
			continue
		}
		fmt.Fprintf(&b, "%s\t%s.%s %s\n", h.IP, name, domains[i], name)
	}
	return b.String()
}

// HackEtcHosts resolves every host's domain, then installs the same hosts
// file on every host. Nothing is written if any domain lookup fails.
// Windows hosts without cygwin have no resolv.conf and get a bare name.
func (b *Bootstrapper) HackEtcHosts(ctx context.Context, hosts []*host.Host) error {
	domains := make([]string, len(hosts))
	for i, h := range hosts {
		if h.Is(host.PlatformWindows) {
			cygwin, err := b.isCygwin(ctx, h)
			if err != nil {
				return fmt.Errorf("failed to detect shell of %s: %w", h.Name, err)
			}
			if !cygwin {
				b.log.V(1).Info("skipping domain lookup", "host", h.Name)
				continue
			}
		}
		domain, err := b.resolver.DomainName(ctx, h)
		if err != nil {
			return fmt.Errorf("failed to resolve domain of %s: %w", h.Name, err)
		}
		domains[i] = domain
	}

	content := EtcHosts(hosts, domains)
	for _, h := range hosts {
		b.log.Info("updating /etc/hosts", "host", h.Name)
		if err := b.setEtcHosts(ctx, h, content); err != nil {
			return fmt.Errorf("failed to update hosts file on %s: %w", h.Name, err)
		}
	}
	return nil
}

func (b *Bootstrapper) setEtcHosts(ctx context.Context, h *host.Host, content string) error {
	if h.Is(host.PlatformWindows) {
		path := windowsHostsPath
		cygwin, err := b.isCygwin(ctx, h)
		if err != nil {
			return err
		}
		if cygwin {
			path = cygwinHostsPath
		}
		return b.exec.WriteFile(ctx, h, path, []byte(content))
	}

	if err := b.exec.WriteFile(ctx, h, etcHostsStagingPath, []byte(content)); err != nil {
		return err
	}
	cp := fmt.Sprintf("cp %s %s && rm -f %s", etcHostsStagingPath, etcHostsPath, etcHostsStagingPath)
	if h.User != "root" {
		cp = fmt.Sprintf("sudo sh -c '%s'", cp)
	}
	_, err := b.run(ctx, h, cp)
	return err
}

// ResolvConf reads a host's domain from /etc/resolv.conf. A domain entry
// wins over the first search entry.
type ResolvConf struct {
	Exec Executor
}

var (
	domainLine = regexp.MustCompile(`^\s*domain\s+(\S+)`)
	searchLine = regexp.MustCompile(`^\s*search\s+(\S+)`)
)

func (r ResolvConf) DomainName(ctx context.Context, h *host.Host) (string, error) {
	res, err := r.Exec.Exec(ctx, h, "cat /etc/resolv.conf")
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", fmt.Errorf("cat /etc/resolv.conf exited with %d on %s", res.ExitCode, h.Name)
	}
	return ParseDomain(res.Stdout), nil
}

// ParseDomain extracts the domain from resolv.conf content.
func ParseDomain(resolvConf string) string {
	var domain, search string
	for _, line := range strings.Split(resolvConf, "\n") {
		if m := domainLine.FindStringSubmatch(line); m != nil {
			domain = m[1]
		} else if m := searchLine.FindStringSubmatch(line); m != nil {
			search = m[1]
		}
	}
	if domain != "" {
		return domain
	}
	return search
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
