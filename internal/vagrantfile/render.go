package vagrantfile

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"text/template"

	"github.com/andreweick/boxwright/internal/host"
	"github.com/andreweick/boxwright/internal/session"
)

const vagrantfileTemplate = `Vagrant.configure("2") do |c|
{{- if .ForwardSSHAgent }}
  c.ssh.forward_agent = true
{{- end }}
  c.ssh.insert_key = false
{{- range .Hosts }}
  c.vm.define {{ squote .Name }} do |v|
    v.vm.hostname = {{ squote .Name }}
    v.vm.box = {{ squote .Box }}
{{- if .BoxURL }}
    v.vm.box_url = {{ squote .BoxURL }}
{{- end }}
{{- if .BoxVersion }}
    v.vm.box_version = {{ squote .BoxVersion }}
{{- end }}
{{- if .BoxDownloadInsecure }}
    v.vm.box_download_insecure = 'true'
{{- end }}
    v.vm.box_check_update = {{ squote .BoxCheckUpdate }}
    v.vm.network :private_network, ip: {{ dquote .IP }}, :netmask => {{ dquote .Netmask }}{{ if .MAC }}, :mac => {{ dquote .MAC }}{{ end }}
{{- range .SyncedFolders }}
    v.vm.synced_folder {{ squote .From }}, {{ squote .To }}, create: true
{{- end }}
{{- if .DisableDefaultSyncedFolder }}
    v.vm.synced_folder '.', '/vagrant', disabled: true
{{- end }}
{{- range .ForwardedPorts }}
    v.vm.network :forwarded_port,{{ if .Protocol }} protocol: {{ squote .Protocol }},{{ end }}{{ if .ToIP }} guest_ip: {{ squote .ToIP }},{{ end }} guest: {{ .To }},{{ if .FromIP }} host_ip: {{ squote .FromIP }},{{ end }} host: {{ .From }}
{{- end }}
{{- with .ShellProvisioner }}
    v.vm.provision 'shell', :path => {{ squote .Path }}{{ if .Args }}, :args => {{ squote .Args }}{{ end }}
{{- end }}
{{- if .Windows }}
    v.vm.network :forwarded_port, guest: 3389, host: 3389, id: 'rdp', auto_correct: true
    v.vm.network :forwarded_port, guest: 5985, host: 5985, id: 'winrm', auto_correct: true
    v.vm.guest = :windows
{{- end }}
{{- if .FreeBSD }}
    v.ssh.shell = 'sh'
    v.vm.guest = :freebsd
    v.vm.base_mac = {{ squote .BaseMAC }}
{{- if .RsyncShare }}
    v.vm.synced_folder '.', '/vagrant', type: 'rsync'
{{- end }}
{{- end }}
{{- if .IgnitionPath }}
    v.ignition.enabled = true
    v.ignition.path = {{ squote .IgnitionPath }}
    v.ignition.drive_name = {{ squote (printf "%s-config" .Name) }}
{{- end }}
    v.vm.provider :virtualbox do |vb|
      vb.customize ['modifyvm', :id, '--memory', {{ squote .Memsize }}, '--cpus', {{ squote .CPUs }}]
{{- if .IgnitionPath }}
      v.ignition.config_obj = vb
{{- end }}
    end
  end
{{- end }}
end
`

// getTemplateFuncs returns the quoting helpers used by the Vagrantfile template
func getTemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"squote": squote,
		"dquote": dquote,
	}
}

// squote renders a single-quoted Ruby string literal
func squote(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// dquote renders a double-quoted Ruby string literal with interpolation disabled
func dquote(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `#`, `\#`)
	return `"` + r.Replace(v) + `"`
}

type TemplateData struct {
	ForwardSSHAgent bool
	Hosts           []HostData
}

// HostData is a host with every default and precedence rule already applied.
type HostData struct {
	Name                       string
	Box                        string
	BoxURL                     string
	BoxVersion                 string
	BoxDownloadInsecure        bool
	BoxCheckUpdate             string
	IP                         string
	Netmask                    string
	MAC                        string
	SyncedFolders              []host.SyncedFolder
	DisableDefaultSyncedFolder bool
	ForwardedPorts             []host.ForwardedPort
	ShellProvisioner           *host.ShellProvisioner
	Windows                    bool
	FreeBSD                    bool
	BaseMAC                    string
	RsyncShare                 bool
	IgnitionPath               string
	Memsize                    string
	CPUs                       string
}

// Renderer produces Vagrantfiles for one session. The generated MAC address
// is drawn once and shared by every host and every render of the session.
type Renderer struct {
	tmpl    *template.Template
	genMAC  func() (string, error)
	macOnce sync.Once
	mac     string
	macErr  error
}

type Option func(*Renderer)

// WithMACGenerator replaces the random MAC source.
func WithMACGenerator(gen func() (string, error)) Option {
	return func(r *Renderer) {
		r.genMAC = gen
	}
}

func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		tmpl: template.Must(template.New("Vagrantfile").Funcs(getTemplateFuncs()).Parse(vagrantfileTemplate)),
		genMAC: func() (string, error) {
			return host.GenerateMAC(host.DefaultMACPrefix)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render validates hosts and returns the Vagrantfile text. Nothing is
// rendered if any host is invalid.
func (r *Renderer) Render(hosts []*host.Host, opts session.Options) (string, error) {
	if err := host.ValidateAll(hosts); err != nil {
		return "", err
	}

	mac, err := r.sessionMAC()
	if err != nil {
		return "", fmt.Errorf("failed to generate MAC address: %w", err)
	}

	data := TemplateData{ForwardSSHAgent: opts.ForwardSSHAgent}
	for _, h := range hosts {
		data.Hosts = append(data.Hosts, hostData(h, opts, mac))
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func (r *Renderer) sessionMAC() (string, error) {
	r.macOnce.Do(func() {
		r.mac, r.macErr = r.genMAC()
	})
	return r.mac, r.macErr
}

func hostData(h *host.Host, opts session.Options, generatedMAC string) HostData {
	d := HostData{
		Name:                       h.DisplayName(),
		Box:                        h.Box,
		BoxURL:                     h.BoxURL,
		BoxVersion:                 h.BoxVersion,
		BoxDownloadInsecure:        h.BoxDownloadInsecure,
		BoxCheckUpdate:             "true",
		IP:                         h.IP,
		Netmask:                    h.Netmask,
		DisableDefaultSyncedFolder: h.DisableDefaultSyncedFolder,
		ForwardedPorts:             h.ForwardedPorts,
		ShellProvisioner:           h.ShellProvisioner,
		Windows:                    h.Is(host.PlatformWindows),
		FreeBSD:                    h.Is(host.PlatformFreeBSD),
		RsyncShare:                 !opts.FreeBSDNFS,
		IgnitionPath:               h.IgnitionPath,
		Memsize:                    strconv.Itoa(memsize(h, opts)),
		CPUs:                       strconv.Itoa(cpus(h, opts)),
	}
	if h.BoxCheckUpdate != nil {
		d.BoxCheckUpdate = strconv.FormatBool(*h.BoxCheckUpdate)
	}
	if d.Netmask == "" {
		d.Netmask = host.DefaultNetmask
	}

	d.BaseMAC = generatedMAC
	if h.MAC != "" {
		d.BaseMAC = h.MAC
	}
	if !h.DisableMAC {
		d.MAC = d.BaseMAC
	}

	for _, f := range h.SyncedFolders {
		if f.Valid() {
			d.SyncedFolders = append(d.SyncedFolders, f)
		}
	}
	return d
}

func memsize(h *host.Host, opts session.Options) int {
	switch {
	case h.Memsize > 0:
		return h.Memsize
	case opts.Memsize > 0:
		return opts.Memsize
	case h.Is(host.PlatformWindows):
		return 2048
	default:
		return 1024
	}
}

func cpus(h *host.Host, opts session.Options) int {
	switch {
	case h.CPUs > 0:
		return h.CPUs
	case opts.CPUs > 0:
		return opts.CPUs
	default:
		return 1
	}
}
