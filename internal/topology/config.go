package topology

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/andreweick/boxwright/internal/host"
	"github.com/andreweick/boxwright/internal/session"
	"gopkg.in/yaml.v3"
)

type Options struct {
	ForwardSSHAgent bool   `yaml:"forward_ssh_agent" toml:"forward_ssh_agent,omitempty"`
	Memsize         int    `yaml:"vagrant_memsize" toml:"vagrant_memsize,omitzero"`
	CPUs            int    `yaml:"vagrant_cpus" toml:"vagrant_cpus,omitzero"`
	DefaultUser     string `yaml:"default_user" toml:"default_user,omitempty"`
	FreeBSDNFS      bool   `yaml:"vagrant_freebsd_nfs" toml:"vagrant_freebsd_nfs,omitempty"`
	BoxTokenRef     string `yaml:"box_token_ref" toml:"box_token_ref,omitempty"`
	Strict          bool   `yaml:"strict" toml:"strict,omitempty"`
	Binary          string `yaml:"vagrant_binary" toml:"vagrant_binary,omitempty"`
}

type HostConfig struct {
	Platform            string     `yaml:"platform" toml:"platform"`
	Box                 string     `yaml:"box" toml:"box"`
	BoxURL              string     `yaml:"box_url" toml:"box_url,omitempty"`
	BoxVersion          string     `yaml:"box_version" toml:"box_version,omitempty"`
	BoxCheckUpdate      *bool      `yaml:"box_check_update" toml:"box_check_update,omitempty"`
	BoxDownloadInsecure bool       `yaml:"box_download_insecure" toml:"box_download_insecure,omitempty"`
	IP                  string     `yaml:"ip" toml:"ip"`
	Netmask             string     `yaml:"netmask" toml:"netmask,omitempty"`
	NetworkMAC          macSetting `yaml:"network_mac" toml:"network_mac,omitempty"`
	SyncedFolder        string     `yaml:"synced_folder" toml:"synced_folder,omitempty"`
	ShellProvisioner    *Shell     `yaml:"shell_provisioner" toml:"shell_provisioner,omitempty"`
	Memsize             int        `yaml:"vagrant_memsize" toml:"vagrant_memsize,omitzero"`
	CPUs                int        `yaml:"vagrant_cpus" toml:"vagrant_cpus,omitzero"`
	User                string     `yaml:"user" toml:"user,omitempty"`
	Butane              string     `yaml:"butane" toml:"butane,omitempty"`
}

type Shell struct {
	Path string `yaml:"path" toml:"path"`
	Args string `yaml:"args" toml:"args,omitempty"`
}

type Folder struct {
	From string `yaml:"from" toml:"from"`
	To   string `yaml:"to" toml:"to"`
}

type Port struct {
	From     int    `yaml:"from" toml:"from"`
	To       int    `yaml:"to" toml:"to"`
	FromIP   string `yaml:"from_ip" toml:"from_ip,omitempty"`
	ToIP     string `yaml:"to_ip" toml:"to_ip,omitempty"`
	Protocol string `yaml:"protocol" toml:"protocol,omitempty"`
}

// macSetting is a MAC address, or false to leave the MAC to the provider.
type macSetting struct {
	value    string
	disabled bool
}

func (m *macSetting) set(v string) {
	if strings.EqualFold(v, "false") {
		m.disabled = true
		return
	}
	m.value = v
}

func (m *macSetting) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: network_mac must be a MAC address or false", node.Line)
	}
	m.set(node.Value)
	return nil
}

func (m *macSetting) UnmarshalTOML(v interface{}) error {
	switch v := v.(type) {
	case bool:
		if v {
			return fmt.Errorf("network_mac must be a MAC address or false")
		}
		m.disabled = true
	case string:
		m.set(v)
	default:
		return fmt.Errorf("network_mac must be a MAC address or false, got %T", v)
	}
	return nil
}

func (m macSetting) MarshalText() ([]byte, error) {
	if m.disabled {
		return []byte("false"), nil
	}
	return []byte(m.value), nil
}

func (o Options) toSession() session.Options {
	opts := session.DefaultOptions()
	opts.ForwardSSHAgent = o.ForwardSSHAgent
	opts.Memsize = o.Memsize
	opts.CPUs = o.CPUs
	opts.FreeBSDNFS = o.FreeBSDNFS
	opts.BoxTokenRef = o.BoxTokenRef
	opts.Strict = o.Strict
	if o.DefaultUser != "" {
		opts.DefaultUser = o.DefaultUser
	}
	if o.Binary != "" {
		opts.Binary = o.Binary
	}
	return opts
}

func optionsFromSession(opts session.Options) Options {
	o := Options{
		ForwardSSHAgent: opts.ForwardSSHAgent,
		Memsize:         opts.Memsize,
		CPUs:            opts.CPUs,
		FreeBSDNFS:      opts.FreeBSDNFS,
		BoxTokenRef:     opts.BoxTokenRef,
		Strict:          opts.Strict,
	}
	defaults := session.DefaultOptions()
	if opts.DefaultUser != defaults.DefaultUser {
		o.DefaultUser = opts.DefaultUser
	}
	if opts.Binary != defaults.Binary {
		o.Binary = opts.Binary
	}
	return o
}

// toHost builds a host. Relative butane paths resolve against baseDir.
func (c HostConfig) toHost(name, baseDir string, folders []host.SyncedFolder, ports []host.ForwardedPort) *host.Host {
	h := &host.Host{
		Name:                       name,
		Platform:                   host.ParsePlatform(c.Platform),
		PlatformName:               c.Platform,
		IP:                         c.IP,
		Netmask:                    c.Netmask,
		MAC:                        c.NetworkMAC.value,
		DisableMAC:                 c.NetworkMAC.disabled,
		Box:                        c.Box,
		BoxURL:                     c.BoxURL,
		BoxVersion:                 c.BoxVersion,
		BoxCheckUpdate:             c.BoxCheckUpdate,
		BoxDownloadInsecure:        c.BoxDownloadInsecure,
		SyncedFolders:              folders,
		DisableDefaultSyncedFolder: strings.EqualFold(c.SyncedFolder, "disabled"),
		ForwardedPorts:             ports,
		Memsize:                    c.Memsize,
		CPUs:                       c.CPUs,
		User:                       c.User,
		Butane:                     c.Butane,
	}
	if h.User == "" {
		h.User = DefaultUser
	}
	if c.ShellProvisioner != nil {
		h.ShellProvisioner = &host.ShellProvisioner{Path: c.ShellProvisioner.Path, Args: c.ShellProvisioner.Args}
	}
	if h.Butane != "" && !filepath.IsAbs(h.Butane) {
		h.Butane = filepath.Join(baseDir, h.Butane)
	}
	return h
}

func hostConfigFrom(h *host.Host) HostConfig {
	c := HostConfig{
		Platform:            h.PlatformName,
		Box:                 h.Box,
		BoxURL:              h.BoxURL,
		BoxVersion:          h.BoxVersion,
		BoxCheckUpdate:      h.BoxCheckUpdate,
		BoxDownloadInsecure: h.BoxDownloadInsecure,
		IP:                  h.IP,
		Netmask:             h.Netmask,
		NetworkMAC:          macSetting{value: h.MAC, disabled: h.DisableMAC},
		Memsize:             h.Memsize,
		CPUs:                h.CPUs,
		Butane:              h.Butane,
	}
	if h.User != DefaultUser {
		c.User = h.User
	}
	if h.DisableDefaultSyncedFolder {
		c.SyncedFolder = "disabled"
	}
	if h.ShellProvisioner != nil {
		c.ShellProvisioner = &Shell{Path: h.ShellProvisioner.Path, Args: h.ShellProvisioner.Args}
	}
	return c
}
