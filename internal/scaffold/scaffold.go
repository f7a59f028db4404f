package scaffold

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andreweick/boxwright/internal/host"
	"github.com/andreweick/boxwright/internal/session"
	"github.com/andreweick/boxwright/internal/topology"
)

// DefaultFileName is the hosts file written when none is named.
const DefaultFileName = "hosts.toml"

// ErrExists is returned instead of overwriting an existing file.
var ErrExists = errors.New("file already exists")

type ScaffoldOptions struct {
	HostName string
	Platform string
	Box      string
	IP       string
	// MACAddress is written as given; "generate" picks a random VirtualBox address.
	MACAddress string
	// Butane adds a starter Butane config next to the hosts file.
	Butane    bool
	OutputDir string
	FileName  string
}

type Scaffolder struct {
	defaults session.Options
}

func NewScaffolder(defaults session.Options) *Scaffolder {
	return &Scaffolder{
		defaults: defaults,
	}
}

// fileExists checks if a file exists
func (s *Scaffolder) fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CreateTopology writes a one-host hosts file, plus a Butane config when
// asked, and returns the hosts file path.
func (s *Scaffolder) CreateTopology(opts ScaffoldOptions) (string, error) {
	opts = withDefaults(opts)

	path := filepath.Join(opts.OutputDir, opts.FileName)
	butanePath := filepath.Join(opts.OutputDir, opts.HostName+".bu")
	if s.fileExists(path) {
		return "", fmt.Errorf("%s: %w", path, ErrExists)
	}
	if opts.Butane && s.fileExists(butanePath) {
		return "", fmt.Errorf("%s: %w", butanePath, ErrExists)
	}

	h, err := s.newHost(opts)
	if err != nil {
		return "", err
	}
	if err := host.ValidateAll([]*host.Host{h}); err != nil {
		return "", err
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", opts.OutputDir, err)
	}

	if opts.Butane {
		if err := s.createButaneScaffold(butanePath, h); err != nil {
			return "", fmt.Errorf("failed to create butane scaffold: %w", err)
		}
	}

	if err := s.writeHostsFile(path, h); err != nil {
		return "", fmt.Errorf("failed to write hosts file: %w", err)
	}
	return path, nil
}

func withDefaults(opts ScaffoldOptions) ScaffoldOptions {
	if opts.HostName == "" {
		opts.HostName = "vm1"
	}
	if opts.Platform == "" {
		opts.Platform = "ubuntu-2204-x86_64"
	}
	if opts.Box == "" {
		opts.Box = "generic/ubuntu2204"
	}
	if opts.IP == "" {
		opts.IP = "10.255.1.10"
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.FileName == "" {
		opts.FileName = DefaultFileName
	}
	return opts
}

func (s *Scaffolder) newHost(opts ScaffoldOptions) (*host.Host, error) {
	h := &host.Host{
		Name:         opts.HostName,
		Platform:     host.ParsePlatform(opts.Platform),
		PlatformName: opts.Platform,
		Box:          opts.Box,
		IP:           opts.IP,
		User:         topology.DefaultUser,
	}

	switch opts.MACAddress {
	case "":
	case "generate":
		mac, err := host.GenerateMAC(host.DefaultMACPrefix)
		if err != nil {
			return nil, err
		}
		h.MAC = mac
	default:
		if !host.ValidateMAC(opts.MACAddress) {
			return nil, fmt.Errorf("invalid MAC address %q", opts.MACAddress)
		}
		h.MAC = opts.MACAddress
	}

	if opts.Butane {
		// relative, so the hosts file can move with its Butane config
		h.Butane = opts.HostName + ".bu"
	}
	return h, nil
}

func (s *Scaffolder) writeHostsFile(path string, h *host.Host) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString("# Generated by boxwright init\n"); err != nil {
		return err
	}
	t := &topology.Topology{Hosts: []*host.Host{h}, Options: s.defaults}
	if err := topology.EncodeTOML(f, t); err != nil {
		return err
	}
	return f.Close()
}

func (s *Scaffolder) createButaneScaffold(path string, h *host.Host) error {
	content := fmt.Sprintf(`variant: fcos
version: 1.5.0
passwd:
  users:
    - name: core
      groups:
        - wheel
storage:
  files:
    - path: /etc/hostname
      mode: 0644
      contents:
        inline: %s
systemd:
  units:
    - name: serial-getty@ttyS0.service
      dropins:
        - name: autologin-core.conf
          contents: |
            [Service]
            ExecStart=
            ExecStart=-/usr/sbin/agetty --autologin core --noclear %%I $TERM
`, h.DisplayName())

	return os.WriteFile(path, []byte(content), 0644)
}
