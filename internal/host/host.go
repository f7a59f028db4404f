package host

import "strings"

// DefaultNetmask is used for the private network when a host declares none.
const DefaultNetmask = "255.255.0.0"

// Host is a single machine of a topology.
type Host struct {
	Name         string
	Platform     Platform
	PlatformName string

	IP         string
	Netmask    string
	MAC        string
	DisableMAC bool

	Box                 string
	BoxURL              string
	BoxVersion          string
	BoxCheckUpdate      *bool
	BoxDownloadInsecure bool

	SyncedFolders              []SyncedFolder
	DisableDefaultSyncedFolder bool
	ForwardedPorts             []ForwardedPort
	ShellProvisioner           *ShellProvisioner

	Memsize int
	CPUs    int

	// User is the login currently configured for the host.
	User string
	SSH  SSH

	// Butane points at a Butane config translated to Ignition before rendering.
	Butane       string
	IgnitionPath string
}

type SyncedFolder struct {
	Name string
	From string
	To   string
}

// Valid reports whether both ends of the mount are declared.
func (f SyncedFolder) Valid() bool {
	return f.From != "" && f.To != ""
}

// ForwardedPort maps host port From to guest port To.
type ForwardedPort struct {
	Name     string
	From     int
	To       int
	FromIP   string
	ToIP     string
	Protocol string
}

type ShellProvisioner struct {
	Path string
	Args string
}

type SSH struct {
	// Config is the path of the generated ssh-config file for the host.
	Config string
}

// DisplayName is the host name made safe for use as a hostname.
func (h *Host) DisplayName() string {
	return strings.ReplaceAll(h.Name, "_", "-")
}

// Is reports whether the host carries the given platform tag.
func (h *Host) Is(p Platform) bool {
	return h.Platform == p
}

// Find returns the host whose name or display name matches name.
func Find(hosts []*Host, name string) (*Host, bool) {
	for _, h := range hosts {
		if h.Name == name || h.DisplayName() == name {
			return h, true
		}
	}
	return nil, false
}
