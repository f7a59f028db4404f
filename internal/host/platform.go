package host

import "strings"

type Platform string

const (
	PlatformUnix    Platform = "generic-unix"
	PlatformWindows Platform = "windows"
	PlatformFreeBSD Platform = "freebsd"
	PlatformOther   Platform = "other"
)

var unixFamilies = []string{
	"el-", "centos", "redhat", "rhel", "rocky", "alma", "fedora", "amazon",
	"debian", "ubuntu", "cumulus", "sles", "opensuse", "arch", "fcos", "flatcar",
	"unix", "linux",
}

// ParsePlatform maps a platform string such as "centos-8-x86_64" to its tag.
func ParsePlatform(name string) Platform {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "windows"):
		return PlatformWindows
	case strings.Contains(n, "freebsd"):
		return PlatformFreeBSD
	}
	for _, family := range unixFamilies {
		if strings.Contains(n, family) {
			return PlatformUnix
		}
	}
	return PlatformOther
}

// IsDebianFamily reports whether the raw platform name belongs to the Debian family.
func IsDebianFamily(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "debian") || strings.Contains(n, "ubuntu") || strings.Contains(n, "cumulus")
}
