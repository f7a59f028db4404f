package topology

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/andreweick/boxwright/internal/host"
	"github.com/andreweick/boxwright/internal/session"
	"gopkg.in/yaml.v3"
)

// DefaultUser is the final login of a host that declares none.
const DefaultUser = "root"

// ErrHostNotFound is returned when a host cannot be found
var ErrHostNotFound = errors.New("host not found")

// Topology is a loaded hosts file.
type Topology struct {
	// Name is the hosts file's base name; it names the session.
	Name    string
	Path    string
	Hosts   []*host.Host
	Options session.Options
}

// Host returns the host named name, accepting its display name too.
func (t *Topology) Host(name string) (*host.Host, error) {
	if h, ok := host.Find(t.Hosts, name); ok {
		return h, nil
	}
	return nil, fmt.Errorf("host '%s': %w", name, ErrHostNotFound)
}

// Load reads a hosts file. Files ending in .toml are TOML, anything else is
// read as a YAML file with HOSTS and CONFIG sections.
func Load(path string) (*Topology, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hosts file: %w", err)
	}

	baseDir := filepath.Dir(path)
	var t *Topology
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		t, err = decodeTOML(content, baseDir)
	} else {
		t, err = decodeYAML(content, baseDir)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(t.Hosts) == 0 {
		return nil, fmt.Errorf("%s defines no hosts", path)
	}

	t.Name = filepath.Base(path)
	t.Path = path
	return t, nil
}

// entry is one key of an ordered YAML mapping.
type entry[T any] struct {
	Key   string
	Value T
}

// ordered decodes a YAML mapping while keeping its key order.
type ordered[T any] []entry[T]

func (o *ordered[T]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		var v T
		if err := node.Content[i+1].Decode(&v); err != nil {
			return err
		}
		*o = append(*o, entry[T]{Key: node.Content[i].Value, Value: v})
	}
	return nil
}

type yamlHost struct {
	HostConfig     `yaml:",inline"`
	MountFolders   ordered[Folder] `yaml:"mount_folders"`
	ForwardedPorts ordered[Port]   `yaml:"forwarded_ports"`
}

type yamlFile struct {
	Hosts  ordered[yamlHost] `yaml:"HOSTS"`
	Config Options           `yaml:"CONFIG"`
}

func decodeYAML(content []byte, baseDir string) (*Topology, error) {
	var f yamlFile
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, err
	}

	t := &Topology{Options: f.Config.toSession()}
	for _, e := range f.Hosts {
		var folders []host.SyncedFolder
		for _, mf := range e.Value.MountFolders {
			folders = append(folders, host.SyncedFolder{Name: mf.Key, From: mf.Value.From, To: mf.Value.To})
		}
		var ports []host.ForwardedPort
		for _, p := range e.Value.ForwardedPorts {
			ports = append(ports, portFrom(p.Key, p.Value))
		}
		t.Hosts = append(t.Hosts, e.Value.HostConfig.toHost(e.Key, baseDir, folders, ports))
	}
	return t, nil
}

type tomlFolder struct {
	Name string `toml:"name"`
	Folder
}

type tomlPort struct {
	Name string `toml:"name"`
	Port
}

type tomlHost struct {
	Name string `toml:"name"`
	HostConfig
	MountFolders   []tomlFolder `toml:"mount_folders,omitempty"`
	ForwardedPorts []tomlPort   `toml:"forwarded_ports,omitempty"`
}

type tomlFile struct {
	Config Options    `toml:"config"`
	Hosts  []tomlHost `toml:"hosts"`
}

func decodeTOML(content []byte, baseDir string) (*Topology, error) {
	var f tomlFile
	if err := toml.Unmarshal(content, &f); err != nil {
		return nil, err
	}

	t := &Topology{Options: f.Config.toSession()}
	for _, th := range f.Hosts {
		var folders []host.SyncedFolder
		for _, mf := range th.MountFolders {
			folders = append(folders, host.SyncedFolder{Name: mf.Name, From: mf.From, To: mf.To})
		}
		var ports []host.ForwardedPort
		for _, p := range th.ForwardedPorts {
			ports = append(ports, portFrom(p.Name, p.Port))
		}
		t.Hosts = append(t.Hosts, th.HostConfig.toHost(th.Name, baseDir, folders, ports))
	}
	return t, nil
}

func portFrom(name string, p Port) host.ForwardedPort {
	return host.ForwardedPort{
		Name:     name,
		From:     p.From,
		To:       p.To,
		FromIP:   p.FromIP,
		ToIP:     p.ToIP,
		Protocol: p.Protocol,
	}
}

// EncodeTOML writes the topology in the TOML hosts file format.
func EncodeTOML(w io.Writer, t *Topology) error {
	f := tomlFile{Config: optionsFromSession(t.Options)}
	for _, h := range t.Hosts {
		th := tomlHost{Name: h.Name, HostConfig: hostConfigFrom(h)}
		for _, sf := range h.SyncedFolders {
			th.MountFolders = append(th.MountFolders, tomlFolder{Name: sf.Name, Folder: Folder{From: sf.From, To: sf.To}})
		}
		for _, p := range h.ForwardedPorts {
			th.ForwardedPorts = append(th.ForwardedPorts, tomlPort{
				Name: p.Name,
				Port: Port{From: p.From, To: p.To, FromIP: p.FromIP, ToIP: p.ToIP, Protocol: p.Protocol},
			})
		}
		f.Hosts = append(f.Hosts, th)
	}

	encoder := toml.NewEncoder(w)
	if err := encoder.Encode(f); err != nil {
		return fmt.Errorf("failed to encode hosts file: %w", err)
	}
	return nil
}
