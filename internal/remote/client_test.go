package remote

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andreweick/boxwright/internal/host"
	"github.com/go-logr/logr"
	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

type execResult struct {
	stdout, stderr string
	code           int
}

// testServer is a minimal SSH server that answers exec and sftp requests.
type testServer struct {
	addr     string
	commands chan string
	ptys     chan string
}

func startServer(t *testing.T, authorized ssh.PublicKey, handle func(cmd string) execResult) *testServer {
	t.Helper()

	_, hostKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostKey)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if meta.User() == "vagrant" && bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown key for %s", meta.User())
		},
	}
	cfg.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	srv := &testServer{
		addr:     ln.Addr().String(),
		commands: make(chan string, 16),
		ptys:     make(chan string, 16),
	}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.serveConn(c, cfg, handle)
		}
	}()
	return srv
}

func (s *testServer) serveConn(c net.Conn, cfg *ssh.ServerConfig, handle func(string) execResult) {
	sconn, chans, reqs, err := ssh.NewServerConn(c, cfg)
	if err != nil {
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			newCh.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			return
		}
		go s.serveSession(ch, requests, handle)
	}
}

func (s *testServer) serveSession(ch ssh.Channel, requests <-chan *ssh.Request, handle func(string) execResult) {
	defer ch.Close()
	pty := false
	for req := range requests {
		switch req.Type {
		case "pty-req":
			pty = true
			req.Reply(true, nil)
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				req.Reply(false, nil)
				return
			}
			req.Reply(true, nil)
			if pty {
				s.ptys <- payload.Command
			}
			s.commands <- payload.Command
			res := handle(payload.Command)
			io.WriteString(ch, res.stdout)
			io.WriteString(ch.Stderr(), res.stderr)
			ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(res.code)}))
			return
		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			server, err := sftp.NewServer(ch)
			if err != nil {
				return
			}
			server.Serve()
			return
		default:
			req.Reply(false, nil)
		}
	}
}

// newKey writes a fresh client key and returns its path and public half.
func newKey(t *testing.T) (string, ssh.PublicKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	keyPath := filepath.Join(t.TempDir(), "private_key")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(block), 0600))

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)
	return keyPath, sshPub
}

// hostAt writes an ssh-config reaching addr with the given key.
func hostAt(t *testing.T, addr, keyPath string) *host.Host {
	t.Helper()

	hostname, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	config := fmt.Sprintf("Host 10.255.1.10\n  HostName %s\n  User vagrant\n  Port %s\n  UserKnownHostsFile /dev/null\n  StrictHostKeyChecking no\n  IdentityFile \"%s\"\n  IdentitiesOnly yes\n", hostname, port, keyPath)
	configPath := filepath.Join(t.TempDir(), "vm1-ssh-config")
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0644))

	return &host.Host{Name: "vm1", User: "vagrant", SSH: host.SSH{Config: configPath}}
}

func TestClient_Exec(t *testing.T) {
	keyPath, pub := newKey(t)
	srv := startServer(t, pub, func(cmd string) execResult {
		switch cmd {
		case "cat /etc/resolv.conf":
			return execResult{stdout: "search labs.lan\n"}
		case "sudo selinuxenabled":
			return execResult{stderr: "not enabled", code: 1}
		}
		return execResult{}
	})
	h := hostAt(t, srv.addr, keyPath)

	c := NewClient(logr.Discard(), WithAgentSocket(""), WithDialTimeout(5*time.Second))
	ctx := context.Background()

	res, err := c.Exec(ctx, h, "cat /etc/resolv.conf")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "search labs.lan\n", res.Stdout)
	assert.Equal(t, "cat /etc/resolv.conf", <-srv.commands)

	res, err = c.Exec(ctx, h, "sudo selinuxenabled")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "not enabled", res.Stderr)
	assert.Equal(t, "sudo selinuxenabled", <-srv.ptys, "sudo commands get a pty")
}

func TestClient_WriteFile(t *testing.T) {
	keyPath, pub := newKey(t)
	srv := startServer(t, pub, func(string) execResult { return execResult{} })
	h := hostAt(t, srv.addr, keyPath)

	c := NewClient(logr.Discard(), WithAgentSocket(""))
	target := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, os.WriteFile(target, []byte("old content that is longer\n"), 0644))

	payload := []byte("127.0.0.1\tlocalhost localhost.localdomain\n")
	require.NoError(t, c.WriteFile(context.Background(), h, target, payload))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestClient_RejectedKey(t *testing.T) {
	keyPath, _ := newKey(t)
	_, otherPub := newKey(t)
	srv := startServer(t, otherPub, func(string) execResult { return execResult{} })
	h := hostAt(t, srv.addr, keyPath)

	c := NewClient(logr.Discard(), WithAgentSocket(""))
	_, err := c.Exec(context.Background(), h, "true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handshake")
}

func TestClient_NoConfig(t *testing.T) {
	c := NewClient(logr.Discard())
	_, err := c.Exec(context.Background(), &host.Host{Name: "vm1"}, "true")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no ssh-config")
}

func TestTargetFor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg")
	require.NoError(t, os.WriteFile(path, []byte("Host 10.0.0.2\n  HostName 127.0.0.1\n  User root\n  Port 2200\n  IdentityFile /a\n  IdentityFile \"/b c\"\n  IdentitiesOnly no\n  ForwardAgent yes\n"), 0644))

	tgt, err := targetFor(&host.Host{Name: "vm1", SSH: host.SSH{Config: path}})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:2200", tgt.addr)
	assert.Equal(t, "root", tgt.user)
	assert.Equal(t, []string{"/a", "/b c"}, tgt.identityFiles)
	assert.False(t, tgt.identitiesOnly)
	assert.True(t, tgt.forwardAgent)
}
