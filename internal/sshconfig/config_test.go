package sshconfig

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andreweick/boxwright/internal/command"
	"github.com/andreweick/boxwright/internal/host"
	"github.com/andreweick/boxwright/internal/session"
	"github.com/andreweick/boxwright/internal/vagrant"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vagrantOutput = `Host vm1
        HostName 127.0.0.1
        User vagrant
        Port 2222
        UserKnownHostsFile /dev/null
        StrictHostKeyChecking no
        PasswordAuthentication no
        IdentityFile /home/root/.vagrant.d/insecure_private_key
        IdentitiesOnly yes`

func TestParse_RoundTrip(t *testing.T) {
	inputs := []string{
		vagrantOutput,
		vagrantOutput + "\n",
		"Host vm1\n  HostName 127.0.0.1\n\n  # comment\n  User=vagrant\n  Port  2222\r\n",
		"Host vm1\n\tHostName 127.0.0.1\n\tUser vagrant\n\tPort 2222\n\tIdentityFile \"/Users/a b/.vagrant.d/key\"\n",
	}

	for _, in := range inputs {
		cfg, err := Parse(in)
		require.NoError(t, err)
		assert.Equal(t, in, cfg.String())
	}
}

func TestParse_Get(t *testing.T) {
	cfg, err := Parse("Host vm1\n  HostName 127.0.0.1\n  User=vagrant\n  Port 2222\n  IdentityFile \"/a b/key\"\n  IdentityFile /c/key\n")
	require.NoError(t, err)

	v, ok := cfg.Get("hostname")
	assert.True(t, ok)
	assert.Equal(t, "127.0.0.1", v)

	v, ok = cfg.Get("User")
	assert.True(t, ok)
	assert.Equal(t, "vagrant", v)

	_, ok = cfg.Get("ForwardAgent")
	assert.False(t, ok)

	assert.Equal(t, []string{"/a b/key", "/c/key"}, cfg.All("IdentityFile"))
}

func TestParse_MissingDirectives(t *testing.T) {
	_, err := Parse("Host vm1\n  HostName 127.0.0.1\n")
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, []string{"User", "Port"}, perr.Missing)
}

func TestRewrite(t *testing.T) {
	tests := []struct {
		name         string
		ip           string
		forwardAgent bool
		expected     string
	}{
		{
			name:         "agent forwarding relaxes IdentitiesOnly",
			ip:           "ip.address.for.vm1",
			forwardAgent: true,
			expected:     "Host ip.address.for.vm1\n        HostName 127.0.0.1\n        User root\n        Port 2222\n        UserKnownHostsFile /dev/null\n        StrictHostKeyChecking no\n        PasswordAuthentication no\n        IdentityFile /home/root/.vagrant.d/insecure_private_key\n        IdentitiesOnly no",
		},
		{
			name:     "without agent forwarding",
			ip:       "ip.address.for.vm1",
			expected: "Host ip.address.for.vm1\n        HostName 127.0.0.1\n        User root\n        Port 2222\n        UserKnownHostsFile /dev/null\n        StrictHostKeyChecking no\n        PasswordAuthentication no\n        IdentityFile /home/root/.vagrant.d/insecure_private_key\n        IdentitiesOnly yes",
		},
		{
			name:     "unknown ip keeps the machine name",
			expected: strings.Replace(vagrantOutput, "User vagrant", "User root", 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse(vagrantOutput)
			require.NoError(t, err)

			Rewrite(cfg, tt.ip, "root", tt.forwardAgent)
			assert.Equal(t, tt.expected, cfg.String())
		})
	}
}

func TestManager_SetSSHConfig(t *testing.T) {
	fake := command.NewFake().On("vagrant ssh-config vm-1", command.Result{
		Stdout: strings.Replace(vagrantOutput, "Host vm1", "Host vm-1", 1),
	})

	s, err := session.New("sample.cfg", t.TempDir(), session.Options{ForwardSSHAgent: true})
	require.NoError(t, err)

	m := NewManager(vagrant.NewClient(fake, s.Dir()), s, logr.Discard())
	h := &host.Host{Name: "vm_1", IP: "10.255.1.10", User: "vagrant"}

	require.NoError(t, m.SetSSHConfig(context.Background(), h, "root"))

	assert.Equal(t, "root", h.User)
	assert.Equal(t, s.Dir(), filepath.Dir(h.SSH.Config))
	assert.True(t, strings.HasPrefix(filepath.Base(h.SSH.Config), "vm-1-"))

	content, err := os.ReadFile(h.SSH.Config)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(content), "Host 10.255.1.10\n"))
	assert.Contains(t, string(content), "        User root\n")
	assert.Contains(t, string(content), "        IdentitiesOnly no")

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]string{"RUBYLIB": "", "RUBYOPT": "", "VAGRANT_CWD": s.Dir()}, calls[0].Env)

	first := h.SSH.Config
	require.NoError(t, m.SetSSHConfig(context.Background(), h, "vagrant"))
	assert.NotEqual(t, first, h.SSH.Config, "every call writes a new file")
	assert.Equal(t, "vagrant", h.User)
}

func TestManager_SetSSHConfig_Failures(t *testing.T) {
	s, err := session.New("sample.cfg", t.TempDir(), session.Options{})
	require.NoError(t, err)

	t.Run("vagrant fails", func(t *testing.T) {
		fake := command.NewFake().On("vagrant ssh-config vm1", command.Result{ExitCode: 1})
		m := NewManager(vagrant.NewClient(fake, s.Dir()), s, logr.Discard())
		h := &host.Host{Name: "vm1", User: "root"}

		err := m.SetSSHConfig(context.Background(), h, "vagrant")
		require.Error(t, err)

		var exitErr *command.ExitError
		assert.True(t, errors.As(err, &exitErr))
		assert.Equal(t, "root", h.User, "host is untouched on failure")
		assert.Empty(t, h.SSH.Config)
	})

	t.Run("unparseable output", func(t *testing.T) {
		fake := command.NewFake().On("vagrant ssh-config vm1", command.Result{Stdout: "garbage"})
		m := NewManager(vagrant.NewClient(fake, s.Dir()), s, logr.Discard())

		err := m.SetSSHConfig(context.Background(), &host.Host{Name: "vm1"}, "vagrant")
		var perr *ParseError
		assert.True(t, errors.As(err, &perr))
	})
}
